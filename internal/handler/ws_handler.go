package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prepdrill/prepdrill-backend/internal/engine"
	"github.com/prepdrill/prepdrill-backend/internal/middleware"
	"github.com/prepdrill/prepdrill-backend/internal/service"
	ws "github.com/prepdrill/prepdrill-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live session over WebSocket: countdown ticks and the
// expiry-forced result flow server → client, answers and submission flow
// client → server on the same connection.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/quiz/sessions/:session_id/stream
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	// Ownership check before the upgrade so a rejected client gets a clean
	// HTTP status instead of a dropped socket.
	if _, err := h.sessionService.Get(sessionID, claims.UserID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(rawConn)
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Client connected")

	events, unsubscribe := h.sessionService.Subscribe(sessionID)
	defer unsubscribe()

	// Event pump: ticks and the expiry result are pushed as they happen.
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case event := <-events:
				h.pushEvent(conn, &event)
			}
		}
	}()

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, sessionID, claims.UserID, &msg)
		case ws.ActionGoTo:
			h.handleGoTo(conn, sessionID, claims.UserID, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, sessionID, claims.UserID)
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

func (h *WSHandler) pushEvent(conn *ws.Conn, event *service.SessionEvent) {
	switch event.Type {
	case service.EventTick:
		conn.WriteTyped(ws.TickResponse{
			Event:            ws.EventTick,
			RemainingSeconds: event.RemainingSeconds,
		})
	case service.EventExpired:
		resp := ws.GradedResponse{
			Event:  ws.EventExpired,
			Status: "expired",
		}
		if event.Attempt != nil {
			resp.Score = event.Attempt.Score
			resp.CorrectCount = event.Attempt.CorrectCount
			resp.Total = event.Attempt.TotalQuestions
		}
		conn.WriteTyped(resp)
	}
}

func (h *WSHandler) handleAnswer(conn *ws.Conn, sessionID uuid.UUID, userID int, msg *ws.RequestPayload) {
	if msg.QID == "" || msg.Answer == "" {
		conn.WriteError("q_id and ans are required")
		return
	}

	questionID, err := uuid.Parse(msg.QID)
	if err != nil {
		conn.WriteError("invalid q_id format")
		return
	}

	feedback, err := h.sessionService.RecordAnswer(context.Background(), sessionID, userID, questionID, msg.Answer)
	if err != nil {
		if ite, ok := engine.AsInvalidTransition(err); ok {
			conn.WriteError(string(ite.Reason))
			return
		}
		conn.WriteError("save failed")
		return
	}

	if feedback == nil {
		conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, Status: "saved"})
		return
	}
	conn.WriteTyped(ws.FeedbackResponse{
		Event:         ws.EventFeedback,
		Correct:       feedback.Correct,
		CorrectAnswer: feedback.CorrectAnswer,
		Explanation:   feedback.Explanation,
	})
}

func (h *WSHandler) handleGoTo(conn *ws.Conn, sessionID uuid.UUID, userID int, msg *ws.RequestPayload) {
	if _, err := h.sessionService.GoTo(context.Background(), sessionID, userID, msg.Index); err != nil {
		if ite, ok := engine.AsInvalidTransition(err); ok {
			conn.WriteError(string(ite.Reason))
			return
		}
		conn.WriteError("navigation failed")
		return
	}
	conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, Status: "moved"})
}

func (h *WSHandler) handleSubmit(conn *ws.Conn, wsLog zerolog.Logger, sessionID uuid.UUID, userID int) {
	attempt, err := h.sessionService.Submit(context.Background(), sessionID, userID)
	if err != nil {
		if ite, ok := engine.AsInvalidTransition(err); ok {
			conn.WriteError(string(ite.Reason))
			return
		}
		wsLog.Error().Err(err).Msg("Submit error")
		conn.WriteError("submit failed")
		return
	}

	wsLog.Info().
		Float64("score", attempt.Score).
		Int("correct", attempt.CorrectCount).
		Int("total", attempt.TotalQuestions).
		Msg("Session submitted over stream")

	conn.WriteTyped(ws.GradedResponse{
		Event:        ws.EventGraded,
		Status:       "completed",
		Score:        attempt.Score,
		CorrectCount: attempt.CorrectCount,
		Total:        attempt.TotalQuestions,
	})
}
