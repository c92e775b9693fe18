package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore keeps objects as files in one directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("NewLocalStore: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// Put writes data to a temporary file beside the target and renames it into place.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	target, err := s.path(name)
	if err != nil {
		return fmt.Errorf("Put: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("Put %s: %w", target, err)
	}

	f, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("Put %s: creating temp file: %w", target, err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("Put %s: writing: %w", target, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("Put %s: syncing: %w", target, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("Put %s: closing: %w", target, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("Put %s: renaming: %w", target, err)
	}
	return nil
}

// Get reads a stored file.
func (s *LocalStore) Get(ctx context.Context, name string) ([]byte, error) {
	target, err := s.path(name)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("Get %s: %w", target, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get %s: %w", target, err)
	}
	return data, nil
}

// URI implements ObjectStore.
func (s *LocalStore) URI(name string) string {
	return "file://" + filepath.Join(s.dir, name)
}

// Close is a no-op; it lets callers treat every store alike.
func (s *LocalStore) Close() error { return nil }

var (
	_ ObjectStore = (*LocalStore)(nil)
	_ ObjectStore = (*GCSStore)(nil)
)
