package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local stores artifacts under a filesystem root. The storage uri is
// the absolute path, which only makes sense when scheduler and workers
// share the filesystem.
type Local struct {
	root string
}

var _ Backend = (*Local)(nil)

func NewLocal(root string) (*Local, error) {
	if root == "" {
		var err error
		if root, err = os.MkdirTemp("", "conveyor-artifacts-"); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) path(key string) (string, error) {
	cleaned := filepath.Clean(filepath.Join(l.root, key))
	if !strings.HasPrefix(cleaned, l.root) {
		return "", fmt.Errorf("key %q escapes storage root", key)
	}
	return cleaned, nil
}

func (l *Local) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	p, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return l.URL(ctx, key)
}

func (l *Local) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (l *Local) Delete(ctx context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (l *Local) URL(ctx context.Context, key string) (string, error) {
	p, err := l.path(key)
	if err != nil {
		return "", err
	}
	return filepath.Abs(p)
}
