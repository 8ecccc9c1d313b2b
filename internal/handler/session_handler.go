package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prepdrill/prepdrill-backend/internal/engine"
	"github.com/prepdrill/prepdrill-backend/internal/middleware"
	"github.com/prepdrill/prepdrill-backend/internal/model"
	"github.com/prepdrill/prepdrill-backend/internal/response"
	"github.com/prepdrill/prepdrill-backend/internal/service"
	"github.com/prepdrill/prepdrill-backend/internal/validator"
)

// SessionHandler handles the quiz session lifecycle endpoints.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Start godoc
// POST /api/v1/quiz/sessions
// Starts a new session: resolves the time limit, loads questions, arms the
// countdown for timed mode.
func (h *SessionHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.sessionService.Start(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": sess.View()})
}

// GetActive godoc
// GET /api/v1/quiz/sessions/active
// Resumes the user's active session, reloading it from its draft if this
// process has no live copy. ?take_over=true claims a countdown started in
// another context.
func (h *SessionHandler) GetActive(c *gin.Context) {
	claims := middleware.GetClaims(c)
	takeOver := c.Query("take_over") == "true"

	sess, err := h.sessionService.Resume(c.Request.Context(), claims.UserID, takeOver)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess.View()})
}

// GetState godoc
// GET /api/v1/quiz/sessions/:session_id
func (h *SessionHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	view, err := h.sessionService.View(sessionID, claims.UserID)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// RecordAnswer godoc
// POST /api/v1/quiz/sessions/:session_id/answers
// Records one answer; re-answering overwrites. Returns feedback only in
// practice mode.
func (h *SessionHandler) RecordAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	feedback, err := h.sessionService.RecordAnswer(c.Request.Context(), sessionID, claims.UserID, questionID, req.Answer)
	if err != nil {
		failSessionError(c, err)
		return
	}

	if feedback == nil {
		response.Success(c, http.StatusOK, gin.H{"status": "saved"})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "saved", "feedback": feedback})
}

// Advance godoc
// POST /api/v1/quiz/sessions/:session_id/advance
func (h *SessionHandler) Advance(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	view, err := h.sessionService.Advance(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// GoTo godoc
// POST /api/v1/quiz/sessions/:session_id/goto
func (h *SessionHandler) GoTo(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	var req model.GoToRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessionService.GoTo(c.Request.Context(), sessionID, claims.UserID, req.Index)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// Submit godoc
// POST /api/v1/quiz/sessions/:session_id/submit
// Manual submission. A timed session with time remaining rejects this with
// reason TIMED_TIME_REMAINING.
func (h *SessionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	attempt, err := h.sessionService.Submit(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// Abandon godoc
// DELETE /api/v1/quiz/sessions/:session_id
// Cancels the session without producing an attempt.
func (h *SessionHandler) Abandon(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	if err := h.sessionService.Abandon(c.Request.Context(), sessionID, claims.UserID); err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "abandoned"})
}

func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return sessionID, true
}

// failSessionError maps session workflow errors onto the response envelope.
// Rejected transitions carry their machine-readable reason so clients can
// tell a too-early submit apart from a too-late answer.
func failSessionError(c *gin.Context, err error) {
	if ite, ok := engine.AsInvalidTransition(err); ok {
		status := http.StatusConflict
		switch ite.Reason {
		case engine.ReasonUnknownQuestion, engine.ReasonIndexOutOfRange:
			status = http.StatusUnprocessableEntity
		}
		response.FailWithReason(c, status, response.ErrInvalidTransition, string(ite.Reason))
		return
	}

	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrNoActiveSession):
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
	case errors.Is(err, service.ErrActiveSessionExists):
		response.Fail(c, http.StatusConflict, response.ErrSessionAlreadyLive)
	case errors.Is(err, service.ErrSelectionIncomplete):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"selection": "the selected method requires its matching dimension",
		})
	case errors.Is(err, engine.ErrConflictingSession):
		response.Fail(c, http.StatusConflict, response.ErrConflictingSession)
	case errors.Is(err, engine.ErrNoQuestionsAvailable):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestionsAvailable)
	case errors.Is(err, engine.ErrConfigurationFault):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrConfigurationFault)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
