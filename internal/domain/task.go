package domain

import (
	"time"
)

// TaskParams holds the job parameters fixed at creation time.
type TaskParams struct {
	Source        string
	ModelID       string
	SavePath      string
	SourcePath    string
	TargetPath    string
	ArchiveName   string
	ArchiveFormat string
}

// Task is one tracked unit of asynchronous work.
type Task struct {
	ID   string
	Kind TaskKind
	TaskParams

	Status          TaskStatus
	DownloadedBytes int64
	TotalBytes      int64
	ProgressPercent float64

	// nil when the total is unknown or no positive rate was observed
	SpeedBytesPerSec          *float64
	EstimatedSecondsRemaining *float64

	CreatedAt time.Time
	UpdatedAt time.Time

	ErrorMessage  string
	ResultMessage string
	ArchivePath   string
}

// Outcome carries the human-readable result attached to a finished task.
type Outcome struct {
	Result      string
	Error       string
	ArchivePath string
}
