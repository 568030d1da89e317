package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/adsync-ai/adsync/internal/api/dto"
	"github.com/adsync-ai/adsync/internal/api/middleware"
	"github.com/adsync-ai/adsync/internal/domain/repositories"
)

type RunHandler struct {
	runRepo *repositories.RunRepository
}

func NewRunHandler(runRepo *repositories.RunRepository) *RunHandler {
	return &RunHandler{runRepo: runRepo}
}

func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	opts := repositories.NewListOptions(page, perPage)

	runs, total, err := h.runRepo.FindByWorkspace(r.Context(), workspaceID, opts)
	if err != nil {
		dto.InternalError(w, "failed to list runs")
		return
	}

	response := make([]dto.RunResponse, 0, len(runs))
	for i := range runs {
		response = append(response, dto.NewRunResponse(&runs[i]))
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

func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		dto.BadRequest(w, "invalid run ID")
		return
	}

	run, err := h.runRepo.FindByID(r.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			dto.NotFound(w, "run not found")
			return
		}
		dto.InternalError(w, "failed to load run")
		return
	}

	if run.WorkspaceID != workspaceID {
		dto.NotFound(w, "run not found")
		return
	}

	dto.OK(w, dto.NewRunResponse(run))
}
