package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/veranemoloko/model-fetcher/internal/archive"
	"github.com/veranemoloko/model-fetcher/internal/domain"
	errpkg "github.com/veranemoloko/model-fetcher/internal/errors"
	"github.com/veranemoloko/model-fetcher/internal/filter"
	"github.com/veranemoloko/model-fetcher/internal/provider"
	"github.com/veranemoloko/model-fetcher/internal/repository"
)

// DownloadJob holds the resolved parameters of a download task.
type DownloadJob struct {
	TaskID     string
	Source     string
	ModelID    string
	SavePath   string
	Token      string
	Endpoint   string
	FileFilter string

	// Archive is set when the download should be packed afterwards.
	Archive *ArchiveOptions
}

// ArchiveOptions describes where and how to pack a directory.
type ArchiveOptions struct {
	TargetDir string
	Name      string
	Format    archive.Format
}

// ArchiveJob holds the resolved parameters of an archive task.
type ArchiveJob struct {
	TaskID string
	Source string
	ArchiveOptions
}

// Runner drives tasks through their lifecycle, feeding progress into the registry.
type Runner struct {
	repo      repository.TaskRepo
	providers *provider.Registry
	logger    *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(repo repository.TaskRepo, providers *provider.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{repo: repo, providers: providers, logger: logger}
}

// Download returns the job body for a download task.
func (r *Runner) Download(job DownloadJob) Job {
	return func(ctx context.Context, ctl *Control) {
		r.runDownload(ctx, ctl, job)
	}
}

// Archive returns the job body for an archive task.
func (r *Runner) Archive(job ArchiveJob) Job {
	return func(ctx context.Context, ctl *Control) {
		r.runArchive(ctx, job)
	}
}

func (r *Runner) runDownload(ctx context.Context, ctl *Control, job DownloadJob) {
	logger := r.logger.With("task_id", job.TaskID, "source", job.Source, "model_id", job.ModelID)

	adapter, err := r.providers.Get(job.Source)
	if err != nil {
		r.fail(ctx, domain.TaskKindDownload, job.TaskID, err, logger)
		return
	}

	files, total, err := r.plan(ctx, adapter, job, logger)
	if err != nil {
		r.fail(ctx, domain.TaskKindDownload, job.TaskID, err, logger)
		return
	}

	if _, err := r.repo.Transition(job.TaskID, domain.TaskStatusDownloading, domain.TaskStatusPending); err != nil {
		logger.Info("Task no longer runnable, skipping transfer", "error", err)
		return
	}
	r.repo.Update(job.TaskID, 0, total, "")
	logger.Info("Download started", "save_path", job.SavePath, "total_bytes", total)

	err = adapter.Transfer(ctx, provider.TransferRequest{
		ModelID:     job.ModelID,
		Destination: job.SavePath,
		Token:       job.Token,
		Endpoint:    job.Endpoint,
		Files:       files,
		Checkpoint:  ctl.Checkpoint,
		OnProgress: func(downloaded, reported int64) {
			if reported <= 0 {
				reported = total
			}
			r.repo.Update(job.TaskID, downloaded, reported, "")
		},
	})
	if err != nil {
		r.fail(ctx, domain.TaskKindDownload, job.TaskID, err, logger)
		return
	}

	result := fmt.Sprintf("Model downloaded to %s", job.SavePath)
	if job.Archive == nil {
		finish(r.repo, domain.TaskKindDownload, job.TaskID, domain.TaskStatusCompleted, domain.Outcome{Result: result})
		logger.Info("Download completed", "save_path", job.SavePath)
		return
	}

	if _, err := r.repo.Transition(job.TaskID, domain.TaskStatusArchiving,
		domain.TaskStatusDownloading, domain.TaskStatusPauseRequested, domain.TaskStatusPaused); err != nil {
		logger.Info("Task no longer runnable, skipping archive", "error", err)
		return
	}

	path, err := archive.Create(ctx, archive.Request{
		Source:    job.SavePath,
		TargetDir: job.Archive.TargetDir,
		BaseName:  job.Archive.Name,
		Format:    job.Archive.Format,
	})
	if err != nil {
		if ctx.Err() != nil {
			r.cancelled(domain.TaskKindDownload, job.TaskID, logger)
			return
		}
		// the download itself succeeded, so the task still completes
		logger.Warn("Archive after download failed", "error", err)
		finish(r.repo, domain.TaskKindDownload, job.TaskID, domain.TaskStatusCompleted, domain.Outcome{
			Result: result,
			Error:  fmt.Sprintf("archive failed: %v", err),
		})
		return
	}

	finish(r.repo, domain.TaskKindDownload, job.TaskID, domain.TaskStatusCompleted, domain.Outcome{
		Result:      fmt.Sprintf("%s and archived to %s", result, path),
		ArchivePath: path,
	})
	logger.Info("Download completed and archived", "save_path", job.SavePath, "archive_path", path)
}

// plan resolves the file selection and the best known total size.
// Files is nil when no filter applies, which lets the adapter transfer everything.
func (r *Runner) plan(ctx context.Context, adapter provider.Adapter, job DownloadJob, logger *slog.Logger) ([]provider.RemoteFile, int64, error) {
	if job.FileFilter == "" {
		// metadata only lives on the configured hub; with a mirror the
		// transfer reports the total from the mirror's own listing
		if job.Endpoint != "" {
			return nil, 0, nil
		}
		size, err := adapter.Size(ctx, job.ModelID, job.Token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			logger.Warn("Total size unknown, progress will be indeterminate", "error", err)
			return nil, 0, nil
		}
		return nil, size, nil
	}

	listing, err := adapter.ListFiles(ctx, provider.ListRequest{
		ModelID:  job.ModelID,
		Token:    job.Token,
		Endpoint: job.Endpoint,
	})
	if err != nil {
		return nil, 0, err
	}

	paths := make([]string, len(listing))
	for i, f := range listing {
		paths[i] = f.Path
	}

	kept, err := filter.Apply(paths, job.FileFilter)
	if err != nil {
		logger.Warn("Ignoring file filter", "error", err)
	}
	if len(kept) == 0 {
		return nil, 0, fmt.Errorf("%w: pattern %q matched none of %d files", errpkg.ErrNoFilesMatched, job.FileFilter, len(listing))
	}

	keep := make(map[string]bool, len(kept))
	for _, p := range kept {
		keep[p] = true
	}

	var (
		files []provider.RemoteFile
		total int64
	)
	for _, f := range listing {
		if keep[f.Path] {
			files = append(files, f)
			total += f.Size
		}
	}
	logger.Info("File filter applied", "pattern", job.FileFilter, "selected", len(files), "available", len(listing))
	return files, total, nil
}

func (r *Runner) runArchive(ctx context.Context, job ArchiveJob) {
	logger := r.logger.With("task_id", job.TaskID, "source_path", job.Source)

	if _, err := r.repo.Transition(job.TaskID, domain.TaskStatusArchiving, domain.TaskStatusPending); err != nil {
		logger.Info("Task no longer runnable, skipping archive", "error", err)
		return
	}

	path, err := archive.Create(ctx, archive.Request{
		Source:    job.Source,
		TargetDir: job.TargetDir,
		BaseName:  job.Name,
		Format:    job.Format,
		OnProgress: func(written, total int64) {
			r.repo.Update(job.TaskID, written, total, "")
		},
	})
	if err != nil {
		r.fail(ctx, domain.TaskKindArchive, job.TaskID, err, logger)
		return
	}

	finish(r.repo, domain.TaskKindArchive, job.TaskID, domain.TaskStatusCompleted, domain.Outcome{
		Result:      fmt.Sprintf("Archive created at %s", path),
		ArchivePath: path,
	})
	logger.Info("Archive completed", "archive_path", path)
}

// fail records err as the task outcome. A cancelled context wins over err.
func (r *Runner) fail(ctx context.Context, kind domain.TaskKind, id string, err error, logger *slog.Logger) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		r.cancelled(kind, id, logger)
		return
	}
	logger.Error("Task failed", "error", err)
	finish(r.repo, kind, id, domain.TaskStatusFailed, domain.Outcome{Error: err.Error()})
}

func (r *Runner) cancelled(kind domain.TaskKind, id string, logger *slog.Logger) {
	if finish(r.repo, kind, id, domain.TaskStatusCancelled, domain.Outcome{Error: msgCancelledByUser}) {
		logger.Info("Task cancelled")
		return
	}
	logger.Debug("Task already finished before cancellation was observed")
}
