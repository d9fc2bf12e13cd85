// Package storage abstracts where stage artifacts live. The scheduler
// itself only ever handles the key/uri pair; workers move the bytes.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/conveyor-dev/conveyor/internal/config"
)

type Backend interface {
	// Put stores the content under key and returns the backend
	// resolved storage uri.
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// URL resolves a key to the uri recorded in job resources.
	URL(ctx context.Context, key string) (string, error)
}

func New(cfg *config.Config) (Backend, error) {
	switch cfg.Storage.Provider {
	case "local":
		return NewLocal(cfg.Storage.LocalRoot)
	case "s3":
		return NewS3(cfg)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}
