package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskbid/internal/middleware"
	"github.com/hitoshi/taskbid/internal/model"
)

// TaskService はタスクハンドラーが必要とするサービスインターフェース。
type TaskService interface {
	List(ctx context.Context) ([]model.Task, error)
	Get(ctx context.Context, taskID string) (*model.Task, error)
	ListMine(ctx context.Context) ([]model.Task, error)
	Create(ctx context.Context, input model.TaskInput) (*model.Task, error)
	Update(ctx context.Context, taskID string, input model.TaskInput) error
	Delete(ctx context.Context, taskID string) error
}

// TaskHandler はタスク関連のHTTPハンドラー。
type TaskHandler struct {
	service TaskService
	logger  *slog.Logger
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{service: service, logger: logger}
}

// List は全タスクを返す。
// GET /api/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, nonNilTasks(tasks))
}

// ListMine は自分が投稿したタスクを返す。
// GET /api/tasks/mine
func (h *TaskHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.ListMine(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, nonNilTasks(tasks))
}

// Get はタスクを1件返す。
// GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	task, err := h.service.Get(r.Context(), taskID)
	if err != nil {
		writeServiceError(w, h.logger, err, taskID)
		return
	}
	if task == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewTaskNotFoundError(taskID))
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Create はタスクを投稿する。
// POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input model.TaskInput
	if !decodeJSON(w, r, &input) {
		return
	}

	task, err := h.service.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// Update はタスクを更新する。
// PUT /api/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	var input model.TaskInput
	if !decodeJSON(w, r, &input) {
		return
	}

	if err := h.service.Update(r.Context(), taskID, input); err != nil {
		writeServiceError(w, h.logger, err, taskID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete はタスクを削除する。
// DELETE /api/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), taskID); err != nil {
		writeServiceError(w, h.logger, err, taskID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNilTasks(tasks []model.Task) []model.Task {
	if tasks == nil {
		return []model.Task{}
	}
	return tasks
}
