package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/veranemoloko/model-fetcher/internal/domain"
	errpkg "github.com/veranemoloko/model-fetcher/internal/errors"
	"github.com/veranemoloko/model-fetcher/internal/validation"
)

// TaskServiceI defines the business operations behind the HTTP API.
type TaskServiceI interface {
	CheckSize(ctx context.Context, req domain.SizeCheckRequest) (domain.SizeResponse, error)
	StartDownload(ctx context.Context, req domain.DownloadRequest) (domain.Task, error)
	StartArchive(ctx context.Context, req domain.ArchiveRequest) (domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	ListTasks(ctx context.Context) []domain.Task
	RemoveTask(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) (domain.ActionResponse, error)
	Pause(ctx context.Context, id string) (domain.ActionResponse, error)
	Resume(ctx context.Context, id string) (domain.ActionResponse, error)
	Health(ctx context.Context) domain.HealthResponse
}

// TaskHandler handles HTTP requests for tasks.
type TaskHandler struct {
	taskService TaskServiceI
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewTaskHandler creates a new TaskHandler with the provided service and logger.
func NewTaskHandler(taskService TaskServiceI, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		validator:   validation.New(),
		logger:      logger,
	}
}

// CheckSize handles POST /api/check-size.
func (h *TaskHandler) CheckSize(w http.ResponseWriter, r *http.Request) {
	var req domain.SizeCheckRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.taskService.CheckSize(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// StartDownload handles POST /api/download/start.
func (h *TaskHandler) StartDownload(w http.ResponseWriter, r *http.Request) {
	var req domain.DownloadRequest
	if !h.decode(w, r, &req) {
		return
	}

	task, err := h.taskService.StartDownload(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.logger.Info("download accepted", "task_id", task.ID, "model_id", task.ModelID)
	writeJSON(w, http.StatusAccepted, domain.NewTaskResponse(task))
}

// StartArchive handles POST /api/archive.
func (h *TaskHandler) StartArchive(w http.ResponseWriter, r *http.Request) {
	var req domain.ArchiveRequest
	if !h.decode(w, r, &req) {
		return
	}

	task, err := h.taskService.StartArchive(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.logger.Info("archive accepted", "task_id", task.ID, "source_path", task.SourcePath)
	writeJSON(w, http.StatusAccepted, domain.NewTaskResponse(task))
}

// GetTask handles GET /api/download/progress/{taskID}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.taskService.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewTaskResponse(task))
}

// ListTasks handles GET /api/download/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.NewTaskResponses(h.taskService.ListTasks(r.Context())))
}

// RemoveTask handles DELETE /api/download/tasks/{taskID}.
func (h *TaskHandler) RemoveTask(w http.ResponseWriter, r *http.Request) {
	if err := h.taskService.RemoveTask(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.taskService.Cancel)
}

func (h *TaskHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.taskService.Pause)
}

func (h *TaskHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.taskService.Resume)
}

// Health handles GET /api/health.
func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.taskService.Health(r.Context()))
}

func (h *TaskHandler) action(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (domain.ActionResponse, error)) {
	resp, err := fn(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode reads and validates a JSON body. It writes the 400 response
// itself and reports whether the handler should continue.
func (h *TaskHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("validation failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, validation.Message(err))
		return false
	}
	return true
}

func (h *TaskHandler) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errpkg.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, errpkg.ErrTaskActive):
		return http.StatusConflict
	case errors.Is(err, errpkg.ErrSourceUnavailable),
		errors.Is(err, errpkg.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, errpkg.ErrUnsupportedSource),
		errors.Is(err, errpkg.ErrUnsupportedFormat),
		errors.Is(err, errpkg.ErrSourceNotDir),
		errors.Is(err, errpkg.ErrTargetNotFound),
		errors.Is(err, errpkg.ErrInvalidArchiveName):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
