package repository

import (
	"github.com/veranemoloko/model-fetcher/internal/domain"
)

// TaskRepo defines the operations on the shared task registry.
// Every mutation of a task goes through this interface.
type TaskRepo interface {
	Create(kind domain.TaskKind, params domain.TaskParams) string
	Get(id string) (domain.Task, error)
	Update(id string, downloaded, total int64, status domain.TaskStatus) bool
	Transition(id string, to domain.TaskStatus, from ...domain.TaskStatus) (domain.TaskStatus, error)
	Finish(id string, status domain.TaskStatus, outcome domain.Outcome) bool
	Remove(id string) bool
	List() []domain.Task
}

var _ TaskRepo = (*TaskRegistry)(nil)
