// Package huggingface implements the Hugging Face hub backend.
package huggingface

import (
	"context"
	"fmt"

	"github.com/veranemoloko/model-fetcher/internal/provider"
)

const (
	Name            = "huggingface"
	DefaultEndpoint = "https://huggingface.co"
	revision        = "main"
)

// Backend builds Hugging Face API URLs and parses its responses.
type Backend struct{}

// New returns a Hugging Face adapter.
func New(client *provider.Client, opts provider.HubOptions) *provider.Hub {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	return provider.NewHub(Backend{}, client, opts)
}

func (Backend) Name() string { return Name }

type cardData struct {
	TotalSize provider.Size `json:"total_size"`
}

type modelInfo struct {
	UsedStorage provider.Size `json:"usedStorage"`
	CardData    *cardData     `json:"cardData"`
	CardDataAlt *cardData     `json:"card_data"`
	Config      *struct {
		TotalFileSize provider.Size `json:"total_file_size"`
	} `json:"config"`
}

func (m modelInfo) size() int64 {
	switch {
	case m.UsedStorage > 0:
		return int64(m.UsedStorage)
	case m.CardData != nil && m.CardData.TotalSize > 0:
		return int64(m.CardData.TotalSize)
	case m.CardDataAlt != nil && m.CardDataAlt.TotalSize > 0:
		return int64(m.CardDataAlt.TotalSize)
	case m.Config != nil && m.Config.TotalFileSize > 0:
		return int64(m.Config.TotalFileSize)
	}
	return 0
}

func (Backend) MetadataSize(ctx context.Context, c *provider.Client, endpoint, modelID, token string) (int64, error) {
	var info modelInfo
	url := fmt.Sprintf("%s/api/models/%s", endpoint, provider.EscapePath(modelID))
	if err := c.GetJSON(ctx, url, token, &info); err != nil {
		return 0, err
	}
	return info.size(), nil
}

type treeEntry struct {
	Type string        `json:"type"`
	Path string        `json:"path"`
	Size provider.Size `json:"size"`
	LFS  *struct {
		Size provider.Size `json:"size"`
	} `json:"lfs"`
}

func (Backend) ListFiles(ctx context.Context, c *provider.Client, endpoint, modelID, token string) ([]provider.RemoteFile, error) {
	var entries []treeEntry
	url := fmt.Sprintf("%s/api/models/%s/tree/%s?recursive=true", endpoint, provider.EscapePath(modelID), revision)
	if err := c.GetJSON(ctx, url, token, &entries); err != nil {
		return nil, err
	}

	files := make([]provider.RemoteFile, 0, len(entries))
	for _, e := range entries {
		if e.Type != "file" || e.Path == "" {
			continue
		}
		size := int64(e.Size)
		if e.LFS != nil && e.LFS.Size > 0 {
			size = int64(e.LFS.Size)
		}
		files = append(files, provider.RemoteFile{Path: e.Path, Size: size})
	}
	return files, nil
}

func (Backend) FileURL(endpoint, modelID, path string) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", endpoint, provider.EscapePath(modelID), revision, provider.EscapePath(path))
}
