package errors

import "errors"

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskActive         = errors.New("task is still active")
	ErrInvalidTransition  = errors.New("transition not allowed from current status")
	ErrUnsupportedSource  = errors.New("unsupported source")
	ErrSourceUnavailable  = errors.New("source is not available")
	ErrUnsupportedFormat  = errors.New("unsupported archive format")
	ErrNoFilesMatched     = errors.New("no files matched the filter")
	ErrShuttingDown       = errors.New("service is shutting down")
	ErrTargetNotFound     = errors.New("target path does not exist")
	ErrSourceNotDir       = errors.New("source path is not a directory")
	ErrInvalidArchiveName = errors.New("archive name must be a relative path inside the target directory")
)
