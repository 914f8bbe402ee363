// Package modelscope implements the ModelScope hub backend.
package modelscope

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/veranemoloko/model-fetcher/internal/provider"
)

const (
	Name            = "modelscope"
	DefaultEndpoint = "https://www.modelscope.cn"
	revision        = "master"
)

// Backend builds ModelScope API URLs and parses its responses.
// ModelScope has no mirror support; the hub drops endpoint overrides.
type Backend struct {
	endpoint string
}

// New returns a ModelScope adapter.
func New(client *provider.Client, opts provider.HubOptions) *provider.Hub {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	opts.IgnoreMirrors = true
	return provider.NewHub(Backend{endpoint: opts.Endpoint}, client, opts)
}

func (Backend) Name() string { return Name }

// envelope is the common ModelScope response wrapper.
type envelope[T any] struct {
	Code    int    `json:"Code"`
	Message string `json:"Message"`
	Data    T      `json:"Data"`
}

func (e envelope[T]) err() error {
	if e.Code != 0 && e.Code != 200 {
		return fmt.Errorf("modelscope: code %d: %s", e.Code, e.Message)
	}
	return nil
}

func (b Backend) MetadataSize(ctx context.Context, c *provider.Client, _, modelID, token string) (int64, error) {
	var resp envelope[map[string]json.RawMessage]
	u := fmt.Sprintf("%s/api/v1/models/%s", b.endpoint, provider.EscapePath(modelID))
	if err := c.GetJSON(ctx, u, token, &resp); err != nil {
		return 0, err
	}
	if err := resp.err(); err != nil {
		return 0, err
	}
	return provider.FirstSize(resp.Data, "size", "Size", "model_size", "StorageSize"), nil
}

type repoFile struct {
	Name string        `json:"Name"`
	Path string        `json:"Path"`
	Size provider.Size `json:"Size"`
	Type string        `json:"Type"`
}

func (b Backend) ListFiles(ctx context.Context, c *provider.Client, _, modelID, token string) ([]provider.RemoteFile, error) {
	var resp envelope[struct {
		Files []repoFile `json:"Files"`
	}]
	u := fmt.Sprintf("%s/api/v1/models/%s/repo/files?Revision=%s&Recursive=true", b.endpoint, provider.EscapePath(modelID), revision)
	if err := c.GetJSON(ctx, u, token, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	files := make([]provider.RemoteFile, 0, len(resp.Data.Files))
	for _, f := range resp.Data.Files {
		if f.Type == "tree" {
			continue
		}
		path := f.Path
		if path == "" {
			path = f.Name
		}
		if path == "" {
			continue
		}
		files = append(files, provider.RemoteFile{Path: path, Size: int64(f.Size)})
	}
	return files, nil
}

func (b Backend) FileURL(_, modelID, path string) string {
	q := url.Values{}
	q.Set("Revision", revision)
	q.Set("FilePath", path)
	return fmt.Sprintf("%s/api/v1/models/%s/repo?%s", b.endpoint, provider.EscapePath(modelID), q.Encode())
}
