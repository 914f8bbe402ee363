package domain

// TaskStatus represents the current state of a Task.
type TaskStatus string

const (
	TaskStatusCreated        TaskStatus = "created"
	TaskStatusPending        TaskStatus = "pending"
	TaskStatusDownloading    TaskStatus = "downloading"
	TaskStatusPauseRequested TaskStatus = "paused_requested"
	TaskStatusPaused         TaskStatus = "paused"
	TaskStatusArchiving      TaskStatus = "archiving"
	TaskStatusCompleted      TaskStatus = "completed"
	TaskStatusFailed         TaskStatus = "failed"
	TaskStatusCancelled      TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// ActiveStatuses lists every non-terminal status.
var ActiveStatuses = []TaskStatus{
	TaskStatusCreated,
	TaskStatusPending,
	TaskStatusDownloading,
	TaskStatusPauseRequested,
	TaskStatusPaused,
	TaskStatusArchiving,
}

// TaskKind distinguishes the two kinds of tracked work.
type TaskKind string

const (
	TaskKindDownload TaskKind = "download"
	TaskKindArchive  TaskKind = "archive"
)
