package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prepdrill/prepdrill-backend/internal/model"
	"github.com/prepdrill/prepdrill-backend/internal/response"
	"github.com/prepdrill/prepdrill-backend/internal/service"
	"github.com/prepdrill/prepdrill-backend/internal/validator"
)

// DurationRuleHandler handles the admin duration rule CRUD.
type DurationRuleHandler struct {
	durationService *service.DurationService
}

// NewDurationRuleHandler creates a new DurationRuleHandler.
func NewDurationRuleHandler(durationService *service.DurationService) *DurationRuleHandler {
	return &DurationRuleHandler{durationService: durationService}
}

// List godoc
// GET /api/v1/admin/duration-rules
func (h *DurationRuleHandler) List(c *gin.Context) {
	rules, err := h.durationService.ListRules(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if rules == nil {
		rules = []model.DurationRule{}
	}
	response.Success(c, http.StatusOK, gin.H{"rules": rules})
}

// Upsert godoc
// PUT /api/v1/admin/duration-rules
// Creates or replaces the rule for an (exam type, subject, year) key. The
// next session start resolves against the updated table.
func (h *DurationRuleHandler) Upsert(c *gin.Context) {
	var req model.UpsertDurationRuleRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rule := &model.DurationRule{
		ExamType:        model.ExamType(req.ExamType),
		SubjectID:       req.SubjectID,
		Year:            req.Year,
		DurationSeconds: req.DurationSeconds,
	}
	if err := h.durationService.UpsertRule(c.Request.Context(), rule); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"rule": rule})
}

// Delete godoc
// DELETE /api/v1/admin/duration-rules/:id
// Removing an exam type's default row is rejected by the database trigger;
// the rest delete freely.
func (h *DurationRuleHandler) Delete(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.durationService.DeleteRule(c.Request.Context(), id); err != nil {
		if isDefaultRuleViolation(err) {
			response.Fail(c, http.StatusConflict, response.ErrDependencyExists)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "duration rule deleted successfully"})
}

func isDefaultRuleViolation(err error) bool {
	for unwrapped := err; unwrapped != nil; unwrapped = errors.Unwrap(unwrapped) {
		if strings.Contains(unwrapped.Error(), "default duration rule") {
			return true
		}
	}
	return false
}
