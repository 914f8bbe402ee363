// Package provider talks to model hubs: size lookup, file listing and transfer.
package provider

import (
	"context"
	"sort"
	"sync"

	errpkg "github.com/veranemoloko/model-fetcher/internal/errors"
)

// RemoteFile is one file of a model repository. Size is 0 when the hub
// did not report it.
type RemoteFile struct {
	Path string
	Size int64
}

// ProgressFunc receives cumulative bytes written and the expected total.
type ProgressFunc func(downloaded, total int64)

// CheckpointFunc is called between chunks. It may block (pause) and
// returns an error to abort the transfer.
type CheckpointFunc func(ctx context.Context) error

// ListRequest selects a model repository on a hub.
type ListRequest struct {
	ModelID string
	Token   string

	// Endpoint overrides the hub base URL. Adapters that do not support
	// mirrors ignore it.
	Endpoint string
}

// TransferRequest describes one model download.
type TransferRequest struct {
	ModelID     string
	Destination string
	Token       string
	Endpoint    string

	// Files limits the transfer. nil means every file in the repository.
	Files []RemoteFile

	OnProgress ProgressFunc
	Checkpoint CheckpointFunc
}

// Adapter is the per-hub boundary used by the job runner and the service.
type Adapter interface {
	Name() string
	Size(ctx context.Context, modelID, token string) (int64, error)
	ListFiles(ctx context.Context, req ListRequest) ([]RemoteFile, error)
	Transfer(ctx context.Context, req TransferRequest) error
}

// Registry maps source names to adapters. Disabled sources are known
// but have no adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	known    map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		known:    make(map[string]bool),
	}
}

// Register adds an adapter under its name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
	r.known[a.Name()] = true
}

// Disable records a source that exists but is switched off.
func (r *Registry) Disable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, name)
	r.known[name] = true
}

// Get returns the adapter for source. It fails with ErrUnsupportedSource
// for unknown names and ErrSourceUnavailable for disabled ones.
func (r *Registry) Get(source string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.adapters[source]; ok {
		return a, nil
	}
	if r.known[source] {
		return nil, errpkg.ErrSourceUnavailable
	}
	return nil, errpkg.ErrUnsupportedSource
}

// Availability reports every known source and whether it is enabled.
func (r *Registry) Availability() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]bool, len(r.known))
	for name := range r.known {
		_, ok := r.adapters[name]
		out[name] = ok
	}
	return out
}

// Names returns the known source names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.known))
	for name := range r.known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
