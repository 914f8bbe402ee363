package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/veranemoloko/model-fetcher/internal/metrics"
	"github.com/veranemoloko/model-fetcher/internal/progress"
	"github.com/veranemoloko/model-fetcher/internal/storage"
	"golang.org/x/sync/errgroup"
)

// ErrSizeUnknown is returned when neither metadata nor file probes yield a size.
var ErrSizeUnknown = errors.New("provider: size could not be determined")

const chunkSize = 256 * 1024

// Backend supplies the hub specific URLs and response parsing. Hub
// implements Adapter on top of it.
type Backend interface {
	Name() string

	// MetadataSize returns the repository size advertised by model
	// metadata, or 0 when the metadata carries none.
	MetadataSize(ctx context.Context, c *Client, endpoint, modelID, token string) (int64, error)

	ListFiles(ctx context.Context, c *Client, endpoint, modelID, token string) ([]RemoteFile, error)
	FileURL(endpoint, modelID, path string) string
}

// HubOptions configures a Hub.
type HubOptions struct {
	// Endpoint is the default base URL of the hub.
	Endpoint string

	// Token is used when a request carries none and the request goes to
	// Endpoint.
	Token string

	// IgnoreMirrors drops per-request endpoint overrides for hubs that have
	// no mirrors.
	IgnoreMirrors bool

	// ProbeConcurrency limits parallel HEAD requests for unknown file sizes.
	ProbeConcurrency int

	// ProgressInterval throttles progress callbacks during a file.
	ProgressInterval time.Duration

	Logger *slog.Logger
}

// Hub is the transfer engine shared by all hub adapters.
type Hub struct {
	backend Backend
	client  *Client
	opts    HubOptions
	logger  *slog.Logger
}

var _ Adapter = (*Hub)(nil)

// NewHub creates a Hub for backend.
func NewHub(backend Backend, client *Client, opts HubOptions) *Hub {
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")
	if opts.ProbeConcurrency <= 0 {
		opts.ProbeConcurrency = 8
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		backend: backend,
		client:  client,
		opts:    opts,
		logger:  logger.With("source", backend.Name()),
	}
}

// Name returns the source name of the backend.
func (h *Hub) Name() string {
	return h.backend.Name()
}

// Size looks up the repository size, first from model metadata and then
// by summing the file listing with HEAD probes for files of unknown size.
func (h *Hub) Size(ctx context.Context, modelID, token string) (int64, error) {
	token = h.token(token)
	endpoint := h.opts.Endpoint

	size, err := h.backend.MetadataSize(ctx, h.client, endpoint, modelID, token)
	if err == nil && size > 0 {
		return size, nil
	}
	if err != nil {
		h.logger.Debug("Metadata size lookup failed, falling back to file listing",
			"model_id", modelID,
			"error", err,
		)
	}

	files, err := h.backend.ListFiles(ctx, h.client, endpoint, modelID, token)
	if err != nil {
		return 0, fmt.Errorf("list files: %w", err)
	}

	files = h.probe(ctx, endpoint, modelID, token, files)
	if total := sumSizes(files); total > 0 {
		return total, nil
	}
	return 0, ErrSizeUnknown
}

// ListFiles returns the repository listing.
func (h *Hub) ListFiles(ctx context.Context, req ListRequest) ([]RemoteFile, error) {
	endpoint, token := h.target(req.Endpoint, req.Token)
	files, err := h.backend.ListFiles(ctx, h.client, endpoint, req.ModelID, token)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// Transfer downloads the requested files into req.Destination, keeping the
// repository layout. Files already present with the expected size are skipped.
func (h *Hub) Transfer(ctx context.Context, req TransferRequest) error {
	endpoint, token := h.target(req.Endpoint, req.Token)

	files := req.Files
	if files == nil {
		var err error
		files, err = h.backend.ListFiles(ctx, h.client, endpoint, req.ModelID, token)
		if err != nil {
			return fmt.Errorf("list files: %w", err)
		}
	}
	files = h.probe(ctx, endpoint, req.ModelID, token, files)

	if err := os.MkdirAll(req.Destination, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	t := &transfer{
		hub:        h,
		endpoint:   endpoint,
		token:      token,
		req:        req,
		storage:    storage.NewFileStorage(req.Destination),
		total:      sumSizes(files),
		bytes:      metrics.DownloadBytes.WithLabelValues(h.Name()),
		buf:        make([]byte, chunkSize),
		checkpoint: req.Checkpoint,
	}
	if t.checkpoint == nil {
		t.checkpoint = func(ctx context.Context) error { return ctx.Err() }
	}

	h.logger.Info("Transfer started",
		"model_id", req.ModelID,
		"files", len(files),
		"total", progress.FormatBytes(t.total),
		"destination", req.Destination,
	)

	for _, f := range files {
		if err := t.checkpoint(ctx); err != nil {
			return err
		}
		if err := t.file(ctx, f); err != nil {
			return err
		}
	}
	t.report(true)

	h.logger.Info("Transfer finished",
		"model_id", req.ModelID,
		"downloaded", progress.FormatBytes(t.done),
	)
	return nil
}

// probe fills in unknown file sizes with concurrent HEAD requests.
// Failed probes leave the size at 0.
func (h *Hub) probe(ctx context.Context, endpoint, modelID, token string, files []RemoteFile) []RemoteFile {
	out := make([]RemoteFile, len(files))
	copy(out, files)

	var g errgroup.Group
	g.SetLimit(h.opts.ProbeConcurrency)

	for i := range out {
		if out[i].Size > 0 {
			continue
		}
		g.Go(func() error {
			size, err := h.client.Size(ctx, h.backend.FileURL(endpoint, modelID, out[i].Path), token)
			if err != nil {
				h.logger.Debug("Size probe failed", "model_id", modelID, "path", out[i].Path, "error", err)
				return nil
			}
			out[i].Size = size
			return nil
		})
	}
	g.Wait()

	return out
}

// target resolves the base URL and credential for a request. The configured
// token is only ever sent to the configured endpoint; a mirror gets the
// caller's own token or none.
func (h *Hub) target(endpoint, token string) (string, string) {
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint != "" && endpoint != h.opts.Endpoint && !h.opts.IgnoreMirrors {
		return endpoint, token
	}
	return h.opts.Endpoint, h.token(token)
}

func (h *Hub) token(override string) string {
	if override != "" {
		return override
	}
	return h.opts.Token
}

type transfer struct {
	hub        *Hub
	endpoint   string
	token      string
	req        TransferRequest
	storage    *storage.FileStorage
	checkpoint CheckpointFunc
	bytes      prometheus.Counter
	buf        []byte
	done       int64
	total      int64
	lastReport time.Time
}

func (t *transfer) file(ctx context.Context, f RemoteFile) error {
	if f.Size > 0 {
		if size, ok := t.storage.Size(f.Path); ok && size == f.Size {
			t.hub.logger.Debug("File already present, skipping", "path", f.Path)
			t.done += size
			t.report(true)
			return nil
		}
	}

	resp, err := t.hub.client.Get(ctx, t.hub.backend.FileURL(t.endpoint, t.req.ModelID, f.Path), t.token)
	if err != nil {
		return fmt.Errorf("download %s: %w", f.Path, err)
	}
	defer resp.Body.Close()

	part, err := t.storage.Create(f.Path)
	if err != nil {
		return fmt.Errorf("store %s: %w", f.Path, err)
	}

	if err := t.copy(ctx, part, resp.Body); err != nil {
		part.Abort()
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("download %s: %w", f.Path, err)
	}
	if err := part.Commit(); err != nil {
		return fmt.Errorf("store %s: %w", f.Path, err)
	}

	t.report(true)
	return nil
}

func (t *transfer) copy(ctx context.Context, dst io.Writer, src io.Reader) error {
	for {
		if err := t.checkpoint(ctx); err != nil {
			return err
		}

		nr, rerr := src.Read(t.buf)
		if nr > 0 {
			nw, werr := dst.Write(t.buf[:nr])
			if nw > 0 {
				t.done += int64(nw)
				t.bytes.Add(float64(nw))
				t.report(false)
			}
			if werr != nil {
				return werr
			}
			if nr != nw {
				return io.ErrShortWrite
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return rerr
		}
	}
}

func (t *transfer) report(force bool) {
	if t.req.OnProgress == nil {
		return
	}

	now := time.Now()
	if !force && now.Sub(t.lastReport) < t.hub.opts.ProgressInterval {
		return
	}
	t.lastReport = now
	t.req.OnProgress(t.done, t.total)
}

// EscapePath escapes each segment of a slash separated repository path.
func EscapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func sumSizes(files []RemoteFile) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}
