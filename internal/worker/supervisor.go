package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/veranemoloko/model-fetcher/internal/domain"
	errpkg "github.com/veranemoloko/model-fetcher/internal/errors"
	"github.com/veranemoloko/model-fetcher/internal/metrics"
	"github.com/veranemoloko/model-fetcher/internal/repository"
	"golang.org/x/sync/semaphore"
)

const (
	msgCancelledByUser = "cancelled by user"
	msgShuttingDown    = "cancelled: service shutting down"
)

// Job is the body of one background task.
type Job func(ctx context.Context, ctl *Control)

// Control is the handle a running job uses to cooperate with cancel and pause.
type Control struct {
	taskID string
	cancel context.CancelFunc
	gate   *Gate
	repo   repository.TaskRepo
	logger *slog.Logger
}

// Checkpoint is called by the transfer between chunks. While the task is
// paused it marks the task paused and blocks until resumed or cancelled.
func (c *Control) Checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.gate.Paused() {
		return nil
	}

	if _, err := c.repo.Transition(c.taskID, domain.TaskStatusPaused, domain.TaskStatusPauseRequested); err == nil {
		c.logger.Info("Task paused", "task_id", c.taskID)
	}
	if err := c.gate.Wait(ctx); err != nil {
		return err
	}
	c.logger.Info("Task resumed", "task_id", c.taskID)
	return nil
}

// Supervisor runs jobs as detached goroutines, bounded by a weighted
// semaphore, and owns their cancel and pause controls.
type Supervisor struct {
	repo   repository.TaskRepo
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu     sync.Mutex
	jobs   map[string]*Control
	closed bool
	wg     sync.WaitGroup
}

// NewSupervisor creates a Supervisor that runs at most maxJobs jobs at once.
func NewSupervisor(repo repository.TaskRepo, maxJobs int, logger *slog.Logger) *Supervisor {
	if maxJobs <= 0 {
		maxJobs = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		repo:   repo,
		sem:    semaphore.NewWeighted(int64(maxJobs)),
		logger: logger,
		jobs:   make(map[string]*Control),
	}
}

// Go marks the task pending and starts job in the background. The job
// waits for a free slot before it runs.
func (s *Supervisor) Go(taskID string, kind domain.TaskKind, job Job) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errpkg.ErrShuttingDown
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctl := &Control{
		taskID: taskID,
		cancel: cancel,
		gate:   NewGate(),
		repo:   s.repo,
		logger: s.logger,
	}
	s.jobs[taskID] = ctl
	s.wg.Add(1)
	s.mu.Unlock()

	if _, err := s.repo.Transition(taskID, domain.TaskStatusPending, domain.TaskStatusCreated); err != nil {
		s.logger.Warn("Task not in created status", "task_id", taskID, "error", err)
	}
	metrics.ActiveJobs.Inc()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.jobs, taskID)
			s.mu.Unlock()
			cancel()
			metrics.ActiveJobs.Dec()
		}()

		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.logger.Debug("Task cancelled while queued", "task_id", taskID)
			return
		}
		defer s.sem.Release(1)

		start := time.Now()
		job(ctx, ctl)
		metrics.JobDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	return nil
}

// Cancel moves the task to cancelled and stops its job.
// Late progress from the job is then dropped by the registry.
func (s *Supervisor) Cancel(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.repo.Get(taskID)
	if err != nil {
		return err
	}
	if !finish(s.repo, task.Kind, taskID, domain.TaskStatusCancelled, domain.Outcome{Error: msgCancelledByUser}) {
		return fmt.Errorf("task is %s: %w", task.Status, errpkg.ErrInvalidTransition)
	}

	if ctl, ok := s.jobs[taskID]; ok {
		ctl.cancel()
	}
	s.logger.Info("Task cancelled", "task_id", taskID)
	return nil
}

// Pause asks a downloading task to stop at its next chunk boundary.
func (s *Supervisor) Pause(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.repo.Transition(taskID, domain.TaskStatusPauseRequested, domain.TaskStatusDownloading)
	if err != nil {
		if errors.Is(err, errpkg.ErrInvalidTransition) {
			return fmt.Errorf("task is %s: %w", prev, err)
		}
		return err
	}

	if ctl, ok := s.jobs[taskID]; ok {
		ctl.gate.Pause()
	}
	s.logger.Info("Pause requested", "task_id", taskID)
	return nil
}

// Resume lets a paused task continue.
func (s *Supervisor) Resume(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.repo.Transition(taskID, domain.TaskStatusDownloading,
		domain.TaskStatusPauseRequested, domain.TaskStatusPaused)
	if err != nil {
		if errors.Is(err, errpkg.ErrInvalidTransition) {
			return fmt.Errorf("task is %s: %w", prev, err)
		}
		return err
	}

	if ctl, ok := s.jobs[taskID]; ok {
		ctl.gate.Resume()
	}
	s.logger.Info("Task resumed by request", "task_id", taskID)
	return nil
}

// Active returns the number of jobs that have not returned yet.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Shutdown refuses new jobs, cancels every running one and waits for them
// to return or for ctx to expire.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for id, ctl := range s.jobs {
		if task, err := s.repo.Get(id); err == nil {
			finish(s.repo, task.Kind, id, domain.TaskStatusCancelled, domain.Outcome{Error: msgShuttingDown})
		}
		ctl.cancel()
	}
	count := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("Waiting for jobs to stop", "jobs", count)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs did not stop in time: %w", ctx.Err())
	}
}

// finish records the terminal status and counts it once.
func finish(repo repository.TaskRepo, kind domain.TaskKind, id string, status domain.TaskStatus, outcome domain.Outcome) bool {
	if !repo.Finish(id, status, outcome) {
		return false
	}
	metrics.TasksFinished.WithLabelValues(string(kind), string(status)).Inc()
	return true
}
