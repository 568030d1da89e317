package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/adsync-ai/adsync/internal/api/dto"
	"github.com/adsync-ai/adsync/internal/api/middleware"
	"github.com/adsync-ai/adsync/internal/domain/repositories"
	"github.com/adsync-ai/adsync/internal/domain/services"
	"github.com/adsync-ai/adsync/internal/pkg/validator"
)

type ScheduleHandler struct {
	scheduleSvc *services.ScheduleService
}

func NewScheduleHandler(scheduleSvc *services.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{scheduleSvc: scheduleSvc}
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	opts := repositories.NewListOptions(page, perPage)

	schedules, total, err := h.scheduleSvc.GetByWorkspace(r.Context(), workspaceID, opts)
	if err != nil {
		dto.InternalError(w, "failed to list schedules")
		return
	}

	response := make([]dto.ScheduleResponse, 0, len(schedules))
	for i := range schedules {
		response = append(response, dto.NewScheduleResponse(&schedules[i]))
	}

	totalPages := int(total) / opts.Limit
	if int(total)%opts.Limit > 0 {
		totalPages++
	}

	dto.JSONWithMeta(w, http.StatusOK, response, &dto.Meta{
		Page:       page,
		PerPage:    opts.Limit,
		Total:      total,
		TotalPages: totalPages,
	})
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	workspaceID := middleware.GetWorkspaceID(r.Context())

	var req dto.CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.BadRequest(w, "invalid request body")
		return
	}

	if err := validator.Validate(&req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	input := services.CreateScheduleInput{
		WorkspaceID:     workspaceID,
		TaskName:        req.TaskName,
		ScheduleType:    req.ScheduleType,
		IntervalSeconds: req.IntervalSeconds,
		CronExpression:  req.CronExpression,
		OneoffRunAt:     req.OneoffRunAt,
		Timezone:        req.Timezone,
		MisfireGraceS:   req.MisfireGraceS,
		JitterS:         req.JitterS,
		QueueOverride:   req.QueueOverride,
		Params:          req.Params,
	}
	if claims != nil {
		input.CreatedBy = &claims.UserID
	}

	schedule, err := h.scheduleSvc.Create(r.Context(), input)
	if err != nil {
		writeScheduleError(w, err)
		return
	}

	dto.Created(w, dto.NewScheduleResponse(schedule))
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		dto.BadRequest(w, "invalid schedule ID")
		return
	}

	schedule, err := h.scheduleSvc.GetByID(r.Context(), workspaceID, id)
	if err != nil {
		writeScheduleError(w, err)
		return
	}

	dto.OK(w, dto.NewScheduleResponse(schedule))
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	workspaceID := middleware.GetWorkspaceID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		dto.BadRequest(w, "invalid schedule ID")
		return
	}

	var req dto.UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.BadRequest(w, "invalid request body")
		return
	}

	if err := validator.Validate(&req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	input := services.UpdateScheduleInput{
		IntervalSeconds: req.IntervalSeconds,
		CronExpression:  req.CronExpression,
		OneoffRunAt:     req.OneoffRunAt,
		Timezone:        req.Timezone,
		MisfireGraceS:   req.MisfireGraceS,
		JitterS:         req.JitterS,
		QueueOverride:   req.QueueOverride,
		Params:          req.Params,
		Enabled:         req.Enabled,
	}
	if claims != nil {
		input.UpdatedBy = &claims.UserID
	}

	schedule, err := h.scheduleSvc.Update(r.Context(), workspaceID, id, input)
	if err != nil {
		writeScheduleError(w, err)
		return
	}

	dto.OK(w, dto.NewScheduleResponse(schedule))
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		dto.BadRequest(w, "invalid schedule ID")
		return
	}

	if err := h.scheduleSvc.Delete(r.Context(), workspaceID, id); err != nil {
		writeScheduleError(w, err)
		return
	}

	dto.NoContent(w)
}

func (h *ScheduleHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *ScheduleHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *ScheduleHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		dto.BadRequest(w, "invalid schedule ID")
		return
	}

	schedule, err := h.scheduleSvc.SetEnabled(r.Context(), workspaceID, id, enabled)
	if err != nil {
		writeScheduleError(w, err)
		return
	}

	dto.OK(w, dto.NewScheduleResponse(schedule))
}

func writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrScheduleNotFound):
		dto.NotFound(w, "schedule not found")
	case errors.Is(err, services.ErrTaskUnknown):
		dto.NotFound(w, "unknown task")
	case errors.Is(err, services.ErrTaskNotEnabled):
		dto.Forbidden(w, "task is disabled")
	case errors.Is(err, services.ErrTaskNotAllowed):
		dto.Forbidden(w, "task not available to this workspace")
	case errors.Is(err, services.ErrInvalidCron):
		dto.BadRequest(w, "invalid cron expression")
	case errors.Is(err, services.ErrInvalidTimezone):
		dto.BadRequest(w, "invalid timezone")
	case errors.Is(err, services.ErrInvalidSpec):
		dto.BadRequest(w, "schedule spec does not match schedule type")
	case errors.Is(err, services.ErrIntervalTooSmall):
		dto.BadRequest(w, "interval below the 60 second minimum")
	case errors.Is(err, services.ErrOneoffInPast):
		dto.BadRequest(w, "oneoff run time is in the past")
	default:
		dto.InternalError(w, "schedule operation failed")
	}
}
