package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/adsync-ai/adsync/internal/api/dto"
	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/adsync-ai/adsync/internal/domain/repositories"
)

type TaskHandler struct {
	taskRepo *repositories.TaskRepository
}

func NewTaskHandler(taskRepo *repositories.TaskRepository) *TaskHandler {
	return &TaskHandler{taskRepo: taskRepo}
}

// List returns the tenant-visible task catalog. Platform-internal tasks
// are not exposed through the API.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.taskRepo.FindEnabled(r.Context())
	if err != nil {
		dto.InternalError(w, "failed to list tasks")
		return
	}

	response := make([]dto.TaskResponse, 0, len(tasks))
	for i := range tasks {
		if tasks[i].Visibility != models.TaskVisibilityTenant {
			continue
		}
		response = append(response, dto.NewTaskResponse(&tasks[i]))
	}

	dto.OK(w, response)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	task, err := h.taskRepo.FindByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			dto.NotFound(w, "task not found")
			return
		}
		dto.InternalError(w, "failed to load task")
		return
	}

	if task.Visibility != models.TaskVisibilityTenant {
		dto.NotFound(w, "task not found")
		return
	}

	dto.OK(w, dto.NewTaskResponse(task))
}
