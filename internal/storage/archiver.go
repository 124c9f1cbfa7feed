package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Archiver persists the original bytes of accepted uploads. Archival is
// best-effort: failures are logged by the queue and never reach the caller
// of a prediction.
type Archiver interface {
	Store(ctx context.Context, name string, data []byte) error
}

// DiskArchiver writes uploads under a local directory.
type DiskArchiver struct {
	dir string
}

func NewDiskArchiver(dir string) (*DiskArchiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %q: %w", dir, err)
	}
	return &DiskArchiver{dir: dir}, nil
}

func (a *DiskArchiver) Store(_ context.Context, name string, data []byte) error {
	path := filepath.Join(a.dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return nil
}

// NopArchiver discards uploads; used when archival is disabled.
type NopArchiver struct{}

func (NopArchiver) Store(context.Context, string, []byte) error {
	return nil
}
