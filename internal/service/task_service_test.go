package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veranemoloko/model-fetcher/internal/domain"
	errpkg "github.com/veranemoloko/model-fetcher/internal/errors"
	"github.com/veranemoloko/model-fetcher/internal/provider"
	"github.com/veranemoloko/model-fetcher/internal/repository"
	"github.com/veranemoloko/model-fetcher/internal/worker"
)

type stubAdapter struct {
	name    string
	size    int64
	sizeErr error

	// release, when set, keeps Transfer running until closed
	release chan struct{}
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Size(context.Context, string, string) (int64, error) {
	return a.size, a.sizeErr
}

func (a *stubAdapter) ListFiles(context.Context, provider.ListRequest) ([]provider.RemoteFile, error) {
	return []provider.RemoteFile{{Path: "model.safetensors", Size: a.size}}, nil
}

func (a *stubAdapter) Transfer(ctx context.Context, req provider.TransferRequest) error {
	if err := os.MkdirAll(req.Destination, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(req.Destination, "model.safetensors"), []byte("weights"), 0o644); err != nil {
		return err
	}
	req.OnProgress(a.size/2, a.size)
	if a.release != nil {
		for {
			if err := req.Checkpoint(ctx); err != nil {
				return err
			}
			select {
			case <-a.release:
				req.OnProgress(a.size, a.size)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
	req.OnProgress(a.size, a.size)
	return nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func newTestService(t *testing.T, adapters ...provider.Adapter) (*TaskService, string) {
	t.Helper()
	logger := newTestLogger()
	downloadDir := t.TempDir()

	repo := repository.NewTaskRegistry(logger)
	providers := provider.NewRegistry()
	for _, a := range adapters {
		providers.Register(a)
	}
	providers.Disable("modelscope")

	svc := NewTaskService(
		repo,
		providers,
		worker.NewSupervisor(repo, 2, logger),
		worker.NewRunner(repo, providers, logger),
		downloadDir,
		logger,
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})
	return svc, downloadDir
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting condition")
}

func waitStatus(t *testing.T, svc *TaskService, id string, want domain.TaskStatus) domain.Task {
	t.Helper()
	var task domain.Task
	waitFor(t, 2*time.Second, func() bool {
		task, _ = svc.GetTask(context.Background(), id)
		return task.Status == want
	})
	return task
}

func TestTaskService_CheckSize(t *testing.T) {
	hf := &stubAdapter{name: "huggingface", size: 3 * 1024 * 1024 * 1024 / 2}
	svc, _ := newTestService(t, hf)

	resp, err := svc.CheckSize(context.Background(), domain.SizeCheckRequest{Source: "huggingface", ModelID: "org/model-a"})
	require.NoError(t, err)
	assert.Equal(t, 1.5, resp.SizeGB)
	assert.Equal(t, "Total size of all weights: 1.50 GB", resp.Message)
}

func TestTaskService_CheckSizeProviderError(t *testing.T) {
	hf := &stubAdapter{name: "huggingface", sizeErr: errors.New("provider: unauthorized")}
	svc, _ := newTestService(t, hf)

	resp, err := svc.CheckSize(context.Background(), domain.SizeCheckRequest{Source: "huggingface", ModelID: "org/private"})
	require.NoError(t, err)
	assert.Zero(t, resp.SizeGB)
	assert.Equal(t, "Error: provider: unauthorized", resp.Message)
}

func TestTaskService_CheckSizeUnknownSource(t *testing.T) {
	svc, _ := newTestService(t, &stubAdapter{name: "huggingface"})

	_, err := svc.CheckSize(context.Background(), domain.SizeCheckRequest{Source: "civitai", ModelID: "org/model-a"})
	assert.ErrorIs(t, err, errpkg.ErrUnsupportedSource)

	_, err = svc.CheckSize(context.Background(), domain.SizeCheckRequest{Source: "modelscope", ModelID: "org/model-a"})
	assert.ErrorIs(t, err, errpkg.ErrSourceUnavailable)
}

func TestTaskService_StartDownload_DefaultSavePath(t *testing.T) {
	svc, downloadDir := newTestService(t, &stubAdapter{name: "huggingface", size: 1000})

	task, err := svc.StartDownload(context.Background(), domain.DownloadRequest{
		Source:  "huggingface",
		ModelID: "org/model-a",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskKindDownload, task.Kind)
	assert.Contains(t, []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusDownloading, domain.TaskStatusCompleted}, task.Status)
	assert.Equal(t, filepath.Join(downloadDir, "model-a"), task.SavePath)

	done := waitStatus(t, svc, task.ID, domain.TaskStatusCompleted)
	assert.Equal(t, 100.0, done.ProgressPercent)
	assert.Equal(t, int64(1000), done.DownloadedBytes)
	assert.FileExists(t, filepath.Join(downloadDir, "model-a", "model.safetensors"))
}

func TestTaskService_StartDownload_WithArchive(t *testing.T) {
	svc, _ := newTestService(t, &stubAdapter{name: "huggingface", size: 10})
	save := filepath.Join(t.TempDir(), "custom")
	target := t.TempDir()

	task, err := svc.StartDownload(context.Background(), domain.DownloadRequest{
		Source:          "huggingface",
		ModelID:         "org/model-a",
		SavePath:        save,
		ArchiveAfter:    true,
		TargetDrivePath: target,
		ArchiveFormat:   "tar",
	})
	require.NoError(t, err)
	assert.Equal(t, "model-a", task.ArchiveName)
	assert.Equal(t, "tar", task.ArchiveFormat)

	done := waitStatus(t, svc, task.ID, domain.TaskStatusCompleted)
	assert.Equal(t, filepath.Join(target, "model-a.tar"), done.ArchivePath)
}

func TestTaskService_StartDownload_Rejected(t *testing.T) {
	svc, _ := newTestService(t, &stubAdapter{name: "huggingface"})

	_, err := svc.StartDownload(context.Background(), domain.DownloadRequest{Source: "nope", ModelID: "org/a"})
	assert.ErrorIs(t, err, errpkg.ErrUnsupportedSource)

	_, err = svc.StartDownload(context.Background(), domain.DownloadRequest{Source: "modelscope", ModelID: "org/a"})
	assert.ErrorIs(t, err, errpkg.ErrSourceUnavailable)

	assert.Empty(t, svc.ListTasks(context.Background()))
}

func TestTaskService_StartArchive(t *testing.T) {
	svc, _ := newTestService(t)

	src := filepath.Join(t.TempDir(), "model-a")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.bin"), []byte("abc"), 0o644))
	target := t.TempDir()

	task, err := svc.StartArchive(context.Background(), domain.ArchiveRequest{SourceFolderPath: src, TargetDrivePath: target})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskKindArchive, task.Kind)
	assert.Equal(t, "model-a", task.ArchiveName)
	assert.Equal(t, "zip", task.ArchiveFormat)

	done := waitStatus(t, svc, task.ID, domain.TaskStatusCompleted)
	assert.Equal(t, filepath.Join(target, "model-a.zip"), done.ArchivePath)
}

func TestTaskService_StartArchive_Invalid(t *testing.T) {
	svc, _ := newTestService(t)
	dir := t.TempDir()

	_, err := svc.StartArchive(context.Background(), domain.ArchiveRequest{SourceFolderPath: dir, TargetDrivePath: dir, ArchiveFormat: "rar"})
	assert.ErrorIs(t, err, errpkg.ErrUnsupportedFormat)

	_, err = svc.StartArchive(context.Background(), domain.ArchiveRequest{SourceFolderPath: filepath.Join(dir, "x"), TargetDrivePath: dir})
	assert.ErrorIs(t, err, errpkg.ErrSourceNotDir)

	_, err = svc.StartArchive(context.Background(), domain.ArchiveRequest{SourceFolderPath: dir, TargetDrivePath: filepath.Join(dir, "x")})
	assert.ErrorIs(t, err, errpkg.ErrTargetNotFound)
}

func TestTaskService_PauseResumeCancel(t *testing.T) {
	hf := &stubAdapter{name: "huggingface", size: 100, release: make(chan struct{})}
	svc, _ := newTestService(t, hf)
	ctx := context.Background()

	task, err := svc.StartDownload(ctx, domain.DownloadRequest{Source: "huggingface", ModelID: "org/model-a", SavePath: t.TempDir()})
	require.NoError(t, err)
	waitStatus(t, svc, task.ID, domain.TaskStatusDownloading)

	resp, err := svc.Pause(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pause requested", resp.Message)
	waitStatus(t, svc, task.ID, domain.TaskStatusPaused)

	resp, err = svc.Resume(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDownloading, resp.Status)

	resp, err = svc.Cancel(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, resp.Status)

	// a second cancel is informative, not an error
	resp, err = svc.Cancel(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Task cannot be cancelled in status cancelled", resp.Message)

	resp, err = svc.Resume(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, resp.Status)

	_, err = svc.Pause(ctx, "missing")
	assert.ErrorIs(t, err, errpkg.ErrTaskNotFound)
}

func TestTaskService_RemoveTask(t *testing.T) {
	hf := &stubAdapter{name: "huggingface", size: 100, release: make(chan struct{})}
	svc, _ := newTestService(t, hf)
	ctx := context.Background()

	task, err := svc.StartDownload(ctx, domain.DownloadRequest{Source: "huggingface", ModelID: "org/model-a", SavePath: t.TempDir()})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RemoveTask(ctx, task.ID), errpkg.ErrTaskActive)

	close(hf.release)
	waitStatus(t, svc, task.ID, domain.TaskStatusCompleted)

	require.NoError(t, svc.RemoveTask(ctx, task.ID))
	assert.ErrorIs(t, svc.RemoveTask(ctx, task.ID), errpkg.ErrTaskNotFound)
	assert.Empty(t, svc.ListTasks(ctx))
}

func TestTaskService_Health(t *testing.T) {
	svc, _ := newTestService(t, &stubAdapter{name: "huggingface"})

	h := svc.Health(context.Background())
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, map[string]string{"huggingface": "available", "modelscope": "unavailable"}, h.Services)
	assert.Zero(t, h.ActiveJobs)
}

func TestTaskService_ShutdownRefusesNewTasks(t *testing.T) {
	svc, _ := newTestService(t, &stubAdapter{name: "huggingface"})

	require.NoError(t, svc.Shutdown(context.Background()))

	_, err := svc.StartDownload(context.Background(), domain.DownloadRequest{Source: "huggingface", ModelID: "org/model-a"})
	assert.ErrorIs(t, err, errpkg.ErrShuttingDown)

	tasks := svc.ListTasks(context.Background())
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskStatusCancelled, tasks[0].Status)
}
