package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FSBlobStore stores blobs as files under a root directory. The locator it
// returns is the absolute path of the stored file.
type FSBlobStore struct {
	root string
}

// NewFSBlobStore creates the root directory if needed.
func NewFSBlobStore(root string) (*FSBlobStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &FSBlobStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FSBlobStore) Root() string {
	return s.root
}

// Put writes r to a temp file and renames it into place so a failed write
// never leaves a partial blob behind.
func (s *FSBlobStore) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := filepath.Join(s.root, filepath.Base(name))
	tmp, err := os.CreateTemp(s.root, ".blob-*")
	if err != nil {
		return "", fmt.Errorf("create blob temp: %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close blob temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("place blob: %w", err)
	}
	return dest, nil
}
