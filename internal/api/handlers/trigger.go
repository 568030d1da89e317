package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/adsync-ai/adsync/internal/api/dto"
	"github.com/adsync-ai/adsync/internal/api/middleware"
	"github.com/adsync-ai/adsync/internal/pkg/validator"
	"github.com/adsync-ai/adsync/internal/trigger"
)

type TriggerHandler struct {
	triggerSvc *trigger.Service
}

func NewTriggerHandler(triggerSvc *trigger.Service) *TriggerHandler {
	return &TriggerHandler{triggerSvc: triggerSvc}
}

// Trigger dispatches a one-shot task run. The Idempotency-Key header is
// required; replaying the same key within the lookback window returns the
// original run instead of enqueuing again.
func (h *TriggerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	workspaceID := middleware.GetWorkspaceID(r.Context())

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		dto.BadRequest(w, "Idempotency-Key header is required")
		return
	}

	var req dto.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.BadRequest(w, "invalid request body")
		return
	}

	if err := validator.Validate(&req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	input := trigger.Input{
		WorkspaceID:    workspaceID,
		Action:         req.Action,
		Provider:       req.Provider,
		Scope:          req.Scope,
		AuthID:         req.AuthID,
		Args:           req.Args,
		Options:        req.Options,
		Priority:       req.Priority,
		DelaySeconds:   req.DelaySeconds,
		IdempotencyKey: idempotencyKey,
	}
	if claims != nil {
		input.CreatedBy = &claims.UserID
	}

	result, err := h.triggerSvc.Trigger(r.Context(), input)
	if err != nil {
		var paramErrs validator.ParamErrors
		switch {
		case errors.Is(err, trigger.ErrIdempotencyKeyRequired):
			dto.BadRequest(w, "idempotency key is required")
		case errors.Is(err, trigger.ErrIdempotencyConflict):
			dto.Conflict(w, "idempotency key was already used with a different payload")
		case errors.Is(err, trigger.ErrTaskNotFound):
			dto.NotFound(w, "unknown action")
		case errors.Is(err, trigger.ErrTaskDisabled):
			dto.Forbidden(w, "action is disabled")
		case errors.As(err, &paramErrs):
			dto.ParamErrorResponse(w, paramErrs)
		default:
			dto.InternalError(w, "failed to dispatch task")
		}
		return
	}

	status := http.StatusAccepted
	if result.IdempotentHit {
		status = http.StatusOK
	}

	dto.JSON(w, status, dto.TriggerResponse{
		TaskID:        result.TaskID,
		Action:        result.Action,
		WorkspaceID:   result.WorkspaceID.String(),
		State:         result.Status,
		EnqueuedAt:    result.EnqueuedAt,
		StatusURL:     fmt.Sprintf("/api/v1/runs/%d", result.RunID),
		IdempotentHit: result.IdempotentHit,
	})
}
