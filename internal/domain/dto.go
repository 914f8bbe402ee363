package domain

import (
	"time"

	"github.com/veranemoloko/model-fetcher/internal/progress"
)

// SizeCheckRequest represents the request body for a model size lookup.
type SizeCheckRequest struct {
	Source    string `json:"source" validate:"required"`
	ModelID   string `json:"modelId" validate:"required,model_id"`
	AuthToken string `json:"authToken,omitempty"`
}

// SizeResponse reports a best-effort model size.
type SizeResponse struct {
	SizeGB  float64 `json:"sizeGB"`
	Message string  `json:"message"`
}

// DownloadRequest represents the request body for starting a download task.
type DownloadRequest struct {
	Source          string `json:"source" validate:"required"`
	ModelID         string `json:"modelId" validate:"required,model_id"`
	AuthToken       string `json:"authToken,omitempty"`
	SavePath        string `json:"savePath,omitempty"`
	Mirror          string `json:"mirror,omitempty" validate:"omitempty,http_url"`
	HFMirror        string `json:"hfMirror,omitempty" validate:"omitempty,http_url"`
	FileFilter      string `json:"fileFilter,omitempty"`
	ArchiveAfter    bool   `json:"archiveAfter"`
	TargetDrivePath string `json:"targetDrivePath,omitempty" validate:"required_if=ArchiveAfter true"`
	ArchiveName     string `json:"archiveName,omitempty" validate:"omitempty,archive_name"`
	ArchiveFormat   string `json:"archiveFormat,omitempty" validate:"omitempty,archive_format"`
}

// EffectiveMirror returns the endpoint override, accepting the legacy hfMirror field.
func (r *DownloadRequest) EffectiveMirror() string {
	if r.Mirror != "" {
		return r.Mirror
	}
	return r.HFMirror
}

// ArchiveRequest represents the request body for a standalone archive task.
type ArchiveRequest struct {
	SourceFolderPath string `json:"sourceFolderPath" validate:"required"`
	TargetDrivePath  string `json:"targetDrivePath" validate:"required"`
	ArchiveName      string `json:"archiveName,omitempty" validate:"omitempty,archive_name"`
	ArchiveFormat    string `json:"archiveFormat,omitempty" validate:"omitempty,archive_format"`
}

// TaskResponse is the wire representation of a Task.
type TaskResponse struct {
	TaskID               string     `json:"taskId"`
	Type                 TaskKind   `json:"type"`
	Source               string     `json:"source,omitempty"`
	ModelID              string     `json:"modelId,omitempty"`
	Status               TaskStatus `json:"status"`
	Progress             float64    `json:"progress"`
	DownloadedSize       int64      `json:"downloadedSize"`
	TotalSize            int64      `json:"totalSize"`
	Speed                float64    `json:"speed"`
	SpeedHuman           string     `json:"speedHuman,omitempty"`
	EstimatedTimeLeft    *string    `json:"estimatedTimeLeft"`
	EstimatedSecondsLeft *float64   `json:"estimatedSecondsLeft,omitempty"`
	SavePath             string     `json:"savePath,omitempty"`
	SourcePath           string     `json:"sourcePath,omitempty"`
	TargetPath           string     `json:"targetPath,omitempty"`
	ArchiveName          string     `json:"archiveName,omitempty"`
	ArchiveFormat        string     `json:"archiveFormat,omitempty"`
	ArchivePath          string     `json:"archivePath,omitempty"`
	ErrorMessage         string     `json:"errorMessage,omitempty"`
	ResultMessage        string     `json:"resultMessage,omitempty"`
	StartTime            time.Time  `json:"startTime"`
	LastUpdateTime       time.Time  `json:"lastUpdateTime"`
}

// NewTaskResponse converts a task snapshot, formatting speed and ETA for display.
func NewTaskResponse(t Task) TaskResponse {
	resp := TaskResponse{
		TaskID:         t.ID,
		Type:           t.Kind,
		Source:         t.Source,
		ModelID:        t.ModelID,
		Status:         t.Status,
		Progress:       t.ProgressPercent,
		DownloadedSize: t.DownloadedBytes,
		TotalSize:      t.TotalBytes,
		SavePath:       t.SavePath,
		SourcePath:     t.SourcePath,
		TargetPath:     t.TargetPath,
		ArchiveName:    t.ArchiveName,
		ArchiveFormat:  t.ArchiveFormat,
		ArchivePath:    t.ArchivePath,
		ErrorMessage:   t.ErrorMessage,
		ResultMessage:  t.ResultMessage,
		StartTime:      t.CreatedAt,
		LastUpdateTime: t.UpdatedAt,
	}

	if t.SpeedBytesPerSec != nil {
		resp.Speed = *t.SpeedBytesPerSec
		resp.SpeedHuman = progress.FormatSpeed(*t.SpeedBytesPerSec)
	}
	if t.EstimatedSecondsRemaining != nil {
		eta := progress.FormatETA(*t.EstimatedSecondsRemaining)
		secs := *t.EstimatedSecondsRemaining
		resp.EstimatedTimeLeft = &eta
		resp.EstimatedSecondsLeft = &secs
	}

	return resp
}

// NewTaskResponses converts a list of snapshots.
func NewTaskResponses(tasks []Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, NewTaskResponse(t))
	}
	return out
}

// ActionResponse answers cancel, pause and resume requests.
type ActionResponse struct {
	TaskID  string     `json:"taskId"`
	Status  TaskStatus `json:"status"`
	Message string     `json:"message"`
}

// HealthResponse reports service liveness and provider availability.
type HealthResponse struct {
	Status     string            `json:"status"`
	Services   map[string]string `json:"services"`
	ActiveJobs int               `json:"activeJobs"`
}
