package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LocalStore writes files under a directory on disk.
type LocalStore struct {
	dir   string
	now   func() time.Time
	newID func() string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, now: time.Now, newID: newObjectID}, nil
}

// Dir is the directory to serve under /uploads/.
func (s *LocalStore) Dir() string { return s.dir }

// Save returns the bare object name; clients fetch it from /uploads/<name>.
// O_EXCL guards against overwriting should two names ever collide.
func (s *LocalStore) Save(ctx context.Context, filename, _ string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := ObjectName(s.now(), s.newID(), filename)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("storage: creating %s: %w", name, err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("storage: writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("storage: closing %s: %w", name, err)
	}
	return name, nil
}
