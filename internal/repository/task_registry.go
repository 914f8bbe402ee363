package repository

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veranemoloko/model-fetcher/internal/domain"
	errpkg "github.com/veranemoloko/model-fetcher/internal/errors"
	"github.com/veranemoloko/model-fetcher/internal/progress"
)

type entry struct {
	task   domain.Task
	sample progress.Sample
	seq    uint64
}

// TaskRegistry is an in-memory store of tasks guarded by a single lock.
// Readers always receive copies, never pointers into the map.
type TaskRegistry struct {
	mu     sync.RWMutex
	tasks  map[string]*entry
	seq    uint64
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a TaskRegistry.
type Option func(*TaskRegistry)

// WithClock replaces time.Now, used by tests to get deterministic speed and ETA.
func WithClock(now func() time.Time) Option {
	return func(r *TaskRegistry) {
		r.now = now
	}
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry(logger *slog.Logger, opts ...Option) *TaskRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &TaskRegistry{
		tasks:  make(map[string]*entry),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create inserts a new task in created status and returns its ID.
func (r *TaskRegistry) Create(kind domain.TaskKind, params domain.TaskParams) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.seq++
	r.tasks[id] = &entry{
		task: domain.Task{
			ID:         id,
			Kind:       kind,
			TaskParams: params,
			Status:     domain.TaskStatusCreated,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		sample: progress.Sample{At: now},
		seq:    r.seq,
	}

	r.logger.Debug("Task created", "task_id", id, "kind", kind, "model_id", params.ModelID)
	return id
}

// Get returns a snapshot of the task.
func (r *TaskRegistry) Get(id string) (domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, errpkg.ErrTaskNotFound
	}
	return snapshot(e.task), nil
}

// Update records new byte counts, recomputes percent, speed and ETA, and
// optionally sets a new status, all in one step.
// An empty status leaves the current one unchanged. Updates to unknown or
// terminal tasks are dropped and reported as false.
func (r *TaskRegistry) Update(id string, downloaded, total int64, status domain.TaskStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		r.logger.Warn("Update for unknown task ignored", "task_id", id)
		return false
	}
	if e.task.Status.IsTerminal() {
		r.logger.Debug("Update for finished task ignored",
			"task_id", id,
			"status", e.task.Status,
			"downloaded", downloaded,
		)
		return false
	}

	downloaded = max(downloaded, 0)
	total = max(total, 0)
	now := r.tick(e)

	est := progress.Compute(e.sample, downloaded, total, now)

	t := &e.task
	t.DownloadedBytes = downloaded
	t.TotalBytes = total
	t.ProgressPercent = est.Percent
	if est.HasRate() {
		speed, eta := est.Speed, est.ETA
		t.SpeedBytesPerSec = &speed
		t.EstimatedSecondsRemaining = &eta
	} else {
		t.SpeedBytesPerSec = nil
		t.EstimatedSecondsRemaining = nil
	}
	if status != "" {
		t.Status = status
	}
	e.sample = progress.Sample{Downloaded: downloaded, At: now}

	return true
}

// Transition moves a task to the given status if it is not terminal and,
// when from is non-empty, its current status is one of from.
// It returns the status observed before the call.
func (r *TaskRegistry) Transition(id string, to domain.TaskStatus, from ...domain.TaskStatus) (domain.TaskStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return "", errpkg.ErrTaskNotFound
	}

	current := e.task.Status
	if current.IsTerminal() {
		return current, errpkg.ErrInvalidTransition
	}
	if len(from) > 0 && !slices.Contains(from, current) {
		return current, errpkg.ErrInvalidTransition
	}

	e.task.Status = to
	r.tick(e)
	if to.IsTerminal() {
		clearRate(&e.task)
	}

	r.logger.Debug("Task status changed", "task_id", id, "from", current, "to", to)
	return current, nil
}

// Finish puts a task into a terminal status and attaches its outcome.
// A completed task is forced to 100%.
func (r *TaskRegistry) Finish(id string, status domain.TaskStatus, outcome domain.Outcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		r.logger.Warn("Finish for unknown task ignored", "task_id", id)
		return false
	}
	if e.task.Status.IsTerminal() {
		r.logger.Debug("Finish for finished task ignored", "task_id", id, "status", e.task.Status)
		return false
	}

	t := &e.task
	if status == domain.TaskStatusCompleted {
		if t.TotalBytes == 0 {
			t.TotalBytes = t.DownloadedBytes
		} else {
			t.DownloadedBytes = t.TotalBytes
		}
		t.ProgressPercent = 100
	}
	t.Status = status
	t.ResultMessage = outcome.Result
	t.ErrorMessage = outcome.Error
	t.ArchivePath = outcome.ArchivePath
	clearRate(t)
	r.tick(e)

	r.logger.Debug("Task finished", "task_id", id, "status", status)
	return true
}

// Remove deletes a task and reports whether it existed.
func (r *TaskRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return false
	}
	delete(r.tasks, id)
	return true
}

// List returns snapshots of all tasks, newest first.
func (r *TaskRegistry) List() []domain.Task {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.tasks))
	for _, e := range r.tasks {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *entry) int {
		switch {
		case a.seq > b.seq:
			return -1
		case a.seq < b.seq:
			return 1
		}
		return 0
	})

	tasks := make([]domain.Task, 0, len(entries))
	for _, e := range entries {
		tasks = append(tasks, snapshot(e.task))
	}
	r.mu.RUnlock()

	return tasks
}

// tick advances UpdatedAt. The clock never moves backwards for a task.
func (r *TaskRegistry) tick(e *entry) time.Time {
	now := r.now()
	if now.Before(e.task.UpdatedAt) {
		now = e.task.UpdatedAt
	}
	e.task.UpdatedAt = now
	return now
}

func clearRate(t *domain.Task) {
	t.SpeedBytesPerSec = nil
	t.EstimatedSecondsRemaining = nil
}

// snapshot copies the task so callers cannot alias the pointer fields.
func snapshot(t domain.Task) domain.Task {
	if t.SpeedBytesPerSec != nil {
		v := *t.SpeedBytesPerSec
		t.SpeedBytesPerSec = &v
	}
	if t.EstimatedSecondsRemaining != nil {
		v := *t.EstimatedSecondsRemaining
		t.EstimatedSecondsRemaining = &v
	}
	return t
}
