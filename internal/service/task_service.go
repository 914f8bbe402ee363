package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"

	"github.com/veranemoloko/model-fetcher/internal/archive"
	"github.com/veranemoloko/model-fetcher/internal/domain"
	errpkg "github.com/veranemoloko/model-fetcher/internal/errors"
	"github.com/veranemoloko/model-fetcher/internal/metrics"
	"github.com/veranemoloko/model-fetcher/internal/progress"
	"github.com/veranemoloko/model-fetcher/internal/provider"
	"github.com/veranemoloko/model-fetcher/internal/repository"
	"github.com/veranemoloko/model-fetcher/internal/worker"
)

// TaskService is the business layer behind the HTTP API. It validates
// requests against the provider registry, registers tasks and hands them
// to the supervisor without waiting for them.
type TaskService struct {
	repo        repository.TaskRepo
	providers   *provider.Registry
	supervisor  *worker.Supervisor
	runner      *worker.Runner
	downloadDir string
	logger      *slog.Logger
}

// NewTaskService wires the service.
func NewTaskService(
	repo repository.TaskRepo,
	providers *provider.Registry,
	supervisor *worker.Supervisor,
	runner *worker.Runner,
	downloadDir string,
	logger *slog.Logger,
) *TaskService {
	return &TaskService{
		repo:        repo,
		providers:   providers,
		supervisor:  supervisor,
		runner:      runner,
		downloadDir: downloadDir,
		logger:      logger,
	}
}

// CheckSize looks up the total size of a model. Provider failures are
// reported in the message with a zero size; only an unknown or disabled
// source is an error.
func (s *TaskService) CheckSize(ctx context.Context, req domain.SizeCheckRequest) (domain.SizeResponse, error) {
	adapter, err := s.providers.Get(req.Source)
	if err != nil {
		return domain.SizeResponse{}, fmt.Errorf("%s: %w", req.Source, err)
	}

	size, err := adapter.Size(ctx, req.ModelID, req.AuthToken)
	if err != nil {
		metrics.SizeChecks.WithLabelValues(req.Source, "error").Inc()
		s.logger.Warn("Size lookup failed", "source", req.Source, "model_id", req.ModelID, "error", err)
		return domain.SizeResponse{SizeGB: 0, Message: "Error: " + err.Error()}, nil
	}

	metrics.SizeChecks.WithLabelValues(req.Source, "ok").Inc()
	gb := progress.GB(size)
	return domain.SizeResponse{
		SizeGB:  math.Round(gb*100) / 100,
		Message: fmt.Sprintf("Total size of all weights: %.2f GB", gb),
	}, nil
}

// StartDownload registers a download task and starts it in the background.
// The returned snapshot is in pending status.
func (s *TaskService) StartDownload(ctx context.Context, req domain.DownloadRequest) (domain.Task, error) {
	if _, err := s.providers.Get(req.Source); err != nil {
		return domain.Task{}, fmt.Errorf("%s: %w", req.Source, err)
	}

	savePath := req.SavePath
	if savePath == "" {
		savePath = filepath.Join(s.downloadDir, path.Base(req.ModelID))
	}
	savePath = filepath.Clean(savePath)

	job := worker.DownloadJob{
		Source:     req.Source,
		ModelID:    req.ModelID,
		SavePath:   savePath,
		Token:      req.AuthToken,
		Endpoint:   req.EffectiveMirror(),
		FileFilter: req.FileFilter,
	}
	params := domain.TaskParams{
		Source:   req.Source,
		ModelID:  req.ModelID,
		SavePath: savePath,
	}

	if req.ArchiveAfter {
		format, err := archive.ParseFormat(req.ArchiveFormat)
		if err != nil {
			return domain.Task{}, err
		}
		name := req.ArchiveName
		if name == "" {
			name = path.Base(req.ModelID)
		}
		job.Archive = &worker.ArchiveOptions{TargetDir: req.TargetDrivePath, Name: name, Format: format}
		params.TargetPath = req.TargetDrivePath
		params.ArchiveName = name
		params.ArchiveFormat = string(format)
	}

	id := s.repo.Create(domain.TaskKindDownload, params)
	job.TaskID = id
	metrics.TasksCreated.WithLabelValues(string(domain.TaskKindDownload)).Inc()

	if err := s.start(id, domain.TaskKindDownload, s.runner.Download(job)); err != nil {
		return domain.Task{}, err
	}

	s.logger.Info("Download task created",
		"task_id", id,
		"source", req.Source,
		"model_id", req.ModelID,
		"save_path", savePath,
		"archive_after", req.ArchiveAfter,
	)
	return s.repo.Get(id)
}

// StartArchive registers a standalone archive task and starts it.
func (s *TaskService) StartArchive(ctx context.Context, req domain.ArchiveRequest) (domain.Task, error) {
	format, err := archive.ParseFormat(req.ArchiveFormat)
	if err != nil {
		return domain.Task{}, err
	}

	source := filepath.Clean(req.SourceFolderPath)
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		return domain.Task{}, fmt.Errorf("%s: %w", source, errpkg.ErrSourceNotDir)
	}
	target := filepath.Clean(req.TargetDrivePath)
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		return domain.Task{}, fmt.Errorf("%s: %w", target, errpkg.ErrTargetNotFound)
	}

	name := req.ArchiveName
	if name == "" {
		name = filepath.Base(source)
	}

	id := s.repo.Create(domain.TaskKindArchive, domain.TaskParams{
		SourcePath:    source,
		TargetPath:    target,
		ArchiveName:   name,
		ArchiveFormat: string(format),
	})
	metrics.TasksCreated.WithLabelValues(string(domain.TaskKindArchive)).Inc()

	job := worker.ArchiveJob{
		TaskID:         id,
		Source:         source,
		ArchiveOptions: worker.ArchiveOptions{TargetDir: target, Name: name, Format: format},
	}
	if err := s.start(id, domain.TaskKindArchive, s.runner.Archive(job)); err != nil {
		return domain.Task{}, err
	}

	s.logger.Info("Archive task created", "task_id", id, "source_path", source, "target_path", target, "format", format)
	return s.repo.Get(id)
}

func (s *TaskService) start(id string, kind domain.TaskKind, job worker.Job) error {
	if err := s.supervisor.Go(id, kind, job); err != nil {
		s.repo.Finish(id, domain.TaskStatusCancelled, domain.Outcome{Error: err.Error()})
		return err
	}
	return nil
}

// GetTask returns a snapshot of one task.
func (s *TaskService) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return s.repo.Get(id)
}

// ListTasks returns every task, newest first.
func (s *TaskService) ListTasks(ctx context.Context) []domain.Task {
	return s.repo.List()
}

// RemoveTask deletes a finished task from the registry.
func (s *TaskService) RemoveTask(ctx context.Context, id string) error {
	task, err := s.repo.Get(id)
	if err != nil {
		return err
	}
	if !task.Status.IsTerminal() {
		return fmt.Errorf("task is %s: %w", task.Status, errpkg.ErrTaskActive)
	}
	if !s.repo.Remove(id) {
		return errpkg.ErrTaskNotFound
	}
	s.logger.Info("Task removed", "task_id", id)
	return nil
}

// Cancel stops a task. A task that already finished is left unchanged and
// the response explains why.
func (s *TaskService) Cancel(ctx context.Context, id string) (domain.ActionResponse, error) {
	return s.action(id, s.supervisor.Cancel, "Task cancelled", "cannot be cancelled")
}

// Pause asks a downloading task to stop at the next chunk boundary.
func (s *TaskService) Pause(ctx context.Context, id string) (domain.ActionResponse, error) {
	return s.action(id, s.supervisor.Pause, "Pause requested", "cannot be paused")
}

// Resume continues a paused task.
func (s *TaskService) Resume(ctx context.Context, id string) (domain.ActionResponse, error) {
	return s.action(id, s.supervisor.Resume, "Download resumed", "cannot be resumed")
}

func (s *TaskService) action(id string, fn func(string) error, done, refused string) (domain.ActionResponse, error) {
	err := fn(id)
	if err != nil && !errors.Is(err, errpkg.ErrInvalidTransition) {
		return domain.ActionResponse{}, err
	}

	task, gerr := s.repo.Get(id)
	if gerr != nil {
		return domain.ActionResponse{}, gerr
	}

	resp := domain.ActionResponse{TaskID: id, Status: task.Status, Message: done}
	if err != nil {
		resp.Message = fmt.Sprintf("Task %s in status %s", refused, task.Status)
	}
	return resp, nil
}

// Health reports provider availability and the number of running jobs.
func (s *TaskService) Health(ctx context.Context) domain.HealthResponse {
	services := make(map[string]string)
	for name, ok := range s.providers.Availability() {
		if ok {
			services[name] = "available"
		} else {
			services[name] = "unavailable"
		}
	}
	return domain.HealthResponse{
		Status:     "ok",
		Services:   services,
		ActiveJobs: s.supervisor.Active(),
	}
}

// Shutdown cancels running jobs and waits for them to stop.
func (s *TaskService) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down task service")
	if err := s.supervisor.Shutdown(ctx); err != nil {
		s.logger.Warn("task service shutdown timed out", "error", err)
		return err
	}
	s.logger.Info("task service shutdown completed")
	return nil
}
