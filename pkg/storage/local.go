package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local stores objects on disk under Dir and serves them from URLPrefix.
type Local struct {
	Dir       string
	URLPrefix string
}

// NewLocal creates the directory tree for local object storage.
func NewLocal(dir, urlPrefix string) (*Local, error) {
	if err := os.MkdirAll(filepath.Join(dir, FolderThumbnails), 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Local{Dir: dir, URLPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

func (l *Local) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.Dir, clean), nil
}

// Put writes the object to disk.
func (l *Local) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("create object: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		_ = os.Remove(p)
		return fmt.Errorf("write object: %w", err)
	}
	return f.Close()
}

// Delete removes the object. A missing file is not an error.
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

// URL returns the path the file is served from.
func (l *Local) URL(key string) string {
	return l.URLPrefix + "/" + strings.TrimLeft(key, "/")
}
