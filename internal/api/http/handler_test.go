package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/model-fetcher/internal/domain"
	errpkg "github.com/veranemoloko/model-fetcher/internal/errors"
)

type mockTaskService struct {
	tasks     map[string]domain.Task
	sizeErr   error
	startErr  error
	removeErr error

	lastDownload domain.DownloadRequest
}

func newMockTaskService() *mockTaskService {
	return &mockTaskService{tasks: map[string]domain.Task{
		"t1": {
			ID:              "t1",
			Kind:            domain.TaskKindDownload,
			TaskParams:      domain.TaskParams{Source: "huggingface", ModelID: "org/model"},
			Status:          domain.TaskStatusDownloading,
			DownloadedBytes: 50,
			TotalBytes:      100,
			ProgressPercent: 50,
			CreatedAt:       time.Unix(1000, 0).UTC(),
			UpdatedAt:       time.Unix(1010, 0).UTC(),
		},
	}}
}

func (m *mockTaskService) CheckSize(ctx context.Context, req domain.SizeCheckRequest) (domain.SizeResponse, error) {
	if m.sizeErr != nil {
		return domain.SizeResponse{}, m.sizeErr
	}
	return domain.SizeResponse{SizeGB: 1.5, Message: "Total size of all weights: 1.50 GB"}, nil
}

func (m *mockTaskService) StartDownload(ctx context.Context, req domain.DownloadRequest) (domain.Task, error) {
	m.lastDownload = req
	if m.startErr != nil {
		return domain.Task{}, m.startErr
	}
	return domain.Task{
		ID:         "new",
		Kind:       domain.TaskKindDownload,
		TaskParams: domain.TaskParams{Source: req.Source, ModelID: req.ModelID},
		Status:     domain.TaskStatusPending,
	}, nil
}

func (m *mockTaskService) StartArchive(ctx context.Context, req domain.ArchiveRequest) (domain.Task, error) {
	if m.startErr != nil {
		return domain.Task{}, m.startErr
	}
	return domain.Task{
		ID:         "arc",
		Kind:       domain.TaskKindArchive,
		TaskParams: domain.TaskParams{SourcePath: req.SourceFolderPath},
		Status:     domain.TaskStatusPending,
	}, nil
}

func (m *mockTaskService) GetTask(ctx context.Context, id string) (domain.Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, errpkg.ErrTaskNotFound
	}
	return task, nil
}

func (m *mockTaskService) ListTasks(ctx context.Context) []domain.Task {
	return []domain.Task{m.tasks["t1"]}
}

func (m *mockTaskService) RemoveTask(ctx context.Context, id string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	if _, ok := m.tasks[id]; !ok {
		return errpkg.ErrTaskNotFound
	}
	return nil
}

func (m *mockTaskService) Cancel(ctx context.Context, id string) (domain.ActionResponse, error) {
	if _, ok := m.tasks[id]; !ok {
		return domain.ActionResponse{}, errpkg.ErrTaskNotFound
	}
	return domain.ActionResponse{TaskID: id, Status: domain.TaskStatusCancelled, Message: "Task cancelled"}, nil
}

func (m *mockTaskService) Pause(ctx context.Context, id string) (domain.ActionResponse, error) {
	return domain.ActionResponse{TaskID: id, Status: domain.TaskStatusPauseRequested, Message: "Pause requested"}, nil
}

func (m *mockTaskService) Resume(ctx context.Context, id string) (domain.ActionResponse, error) {
	return domain.ActionResponse{TaskID: id, Status: domain.TaskStatusDownloading, Message: "Download resumed"}, nil
}

func (m *mockTaskService) Health(ctx context.Context) domain.HealthResponse {
	return domain.HealthResponse{Status: "ok", Services: map[string]string{"huggingface": "available"}}
}

func newTestRouter(svc TaskServiceI) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	return NewRouter(svc, []string{"*"}, logger)
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			r = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var data map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&data))
	return data["error"]
}

func TestTaskHandler_CheckSize(t *testing.T) {
	h := newTestRouter(newMockTaskService())

	w := do(t, h, http.MethodPost, "/api/check-size", map[string]string{"source": "huggingface", "modelId": "org/model"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp domain.SizeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1.5, resp.SizeGB)
}

func TestTaskHandler_CheckSizeUnknownSource(t *testing.T) {
	svc := newMockTaskService()
	svc.sizeErr = fmt.Errorf("civitai: %w", errpkg.ErrUnsupportedSource)
	h := newTestRouter(svc)

	w := do(t, h, http.MethodPost, "/api/check-size", map[string]string{"source": "civitai", "modelId": "org/model"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "civitai: unsupported source", decodeError(t, w))
}

func TestTaskHandler_ValidationErrors(t *testing.T) {
	h := newTestRouter(newMockTaskService())

	tests := []struct {
		name   string
		target string
		body   any
		want   string
	}{
		{
			name:   "malformed json",
			target: "/api/download/start",
			body:   "{not json",
			want:   "invalid request body",
		},
		{
			name:   "missing model id",
			target: "/api/download/start",
			body:   map[string]any{"source": "huggingface"},
			want:   "modelId is required",
		},
		{
			name:   "bad model id",
			target: "/api/check-size",
			body:   map[string]any{"source": "huggingface", "modelId": "../etc"},
			want:   "modelId must look like 'organization/model'",
		},
		{
			name:   "archive without target",
			target: "/api/download/start",
			body:   map[string]any{"source": "huggingface", "modelId": "org/model", "archiveAfter": true},
			want:   "targetDrivePath is required",
		},
		{
			name:   "bad mirror",
			target: "/api/download/start",
			body:   map[string]any{"source": "huggingface", "modelId": "org/model", "mirror": "ftp://mirror"},
			want:   "mirror must be an http or https URL",
		},
		{
			name:   "loopback mirror",
			target: "/api/download/start",
			body:   map[string]any{"source": "huggingface", "modelId": "org/model", "hfMirror": "http://127.0.0.1:8080"},
			want:   "hfMirror must be an http or https URL",
		},
		{
			name:   "archive format",
			target: "/api/archive",
			body:   map[string]any{"sourceFolderPath": "/a", "targetDrivePath": "/b", "archiveFormat": "rar"},
			want:   "archiveFormat must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decodeError(t, w), tt.want)
		})
	}
}

func TestTaskHandler_StartDownload(t *testing.T) {
	svc := newMockTaskService()
	h := newTestRouter(svc)

	w := do(t, h, http.MethodPost, "/api/download/start", map[string]any{
		"source":     "huggingface",
		"modelId":    "org/model",
		"hfMirror":   "https://hf-mirror.com",
		"fileFilter": `\.safetensors$`,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp domain.TaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "new", resp.TaskID)
	assert.Equal(t, domain.TaskStatusPending, resp.Status)
	assert.Equal(t, domain.TaskKindDownload, resp.Type)
	assert.Nil(t, resp.EstimatedTimeLeft)

	assert.Equal(t, "https://hf-mirror.com", svc.lastDownload.EffectiveMirror())
	assert.Equal(t, `\.safetensors$`, svc.lastDownload.FileFilter)
}

func TestTaskHandler_StartDownloadServiceErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("x: %w", errpkg.ErrUnsupportedSource), http.StatusBadRequest},
		{fmt.Errorf("x: %w", errpkg.ErrSourceUnavailable), http.StatusServiceUnavailable},
		{errpkg.ErrShuttingDown, http.StatusServiceUnavailable},
		{errpkg.ErrUnsupportedFormat, http.StatusBadRequest},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			svc := newMockTaskService()
			svc.startErr = tt.err
			h := newTestRouter(svc)

			w := do(t, h, http.MethodPost, "/api/download/start", map[string]any{"source": "huggingface", "modelId": "org/model"})
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestTaskHandler_StartArchive(t *testing.T) {
	h := newTestRouter(newMockTaskService())

	w := do(t, h, http.MethodPost, "/api/archive", map[string]any{"sourceFolderPath": "/data/model", "targetDrivePath": "/mnt/usb"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp domain.TaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, domain.TaskKindArchive, resp.Type)
	assert.Equal(t, "/data/model", resp.SourcePath)
}

func TestTaskHandler_GetTask(t *testing.T) {
	h := newTestRouter(newMockTaskService())

	w := do(t, h, http.MethodGet, "/api/download/progress/t1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp domain.TaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "t1", resp.TaskID)
	assert.Equal(t, 50.0, resp.Progress)
	assert.Equal(t, int64(100), resp.TotalSize)

	w = do(t, h, http.MethodGet, "/api/download/progress/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTaskHandler_ListTasks(t *testing.T) {
	h := newTestRouter(newMockTaskService())

	w := do(t, h, http.MethodGet, "/api/download/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp []domain.TaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "t1", resp[0].TaskID)
}

func TestTaskHandler_RemoveTask(t *testing.T) {
	svc := newMockTaskService()
	h := newTestRouter(svc)

	w := do(t, h, http.MethodDelete, "/api/download/tasks/t1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodDelete, "/api/download/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.removeErr = fmt.Errorf("task is downloading: %w", errpkg.ErrTaskActive)
	w = do(t, h, http.MethodDelete, "/api/download/tasks/t1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTaskHandler_Actions(t *testing.T) {
	h := newTestRouter(newMockTaskService())

	tests := []struct {
		path   string
		status domain.TaskStatus
	}{
		{"/api/download/cancel/t1", domain.TaskStatusCancelled},
		{"/api/download/pause/t1", domain.TaskStatusPauseRequested},
		{"/api/download/resume/t1", domain.TaskStatusDownloading},
	}
	for _, tt := range tests {
		w := do(t, h, http.MethodPost, tt.path, nil)
		require.Equal(t, http.StatusOK, w.Code, tt.path)

		var resp domain.ActionResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "t1", resp.TaskID)
		assert.Equal(t, tt.status, resp.Status)
	}

	w := do(t, h, http.MethodPost, "/api/download/cancel/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	h := newTestRouter(newMockTaskService())

	w := do(t, h, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health domain.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)

	w = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := newTestRouter(newMockTaskService())

	req := httptest.NewRequest(http.MethodOptions, "/api/download/start", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
