// Package media handles attachment uploads. The upload target is opaque to
// the sync core: a message only ever references the returned URL.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Uploader stores attachment bytes and returns the URL a message should
// reference.
type Uploader interface {
	Upload(ctx context.Context, data []byte, path string) (string, error)
}

// DirUploader writes uploads under a local directory and returns file://
// URLs. It stands in for a remote blob store during local development.
type DirUploader struct {
	root string
}

// NewDirUploader creates an uploader rooted at dir.
func NewDirUploader(dir string) *DirUploader {
	return &DirUploader{root: dir}
}

// Upload writes data at path below the root, creating parent dirs as
// needed, and returns the file URL. An empty path gets a generated name.
func (u *DirUploader) Upload(_ context.Context, data []byte, path string) (string, error) {
	if path == "" {
		path = uuid.New().String()
	}
	full := filepath.Join(u.root, filepath.Clean("/"+path))
	if err := os.MkdirAll(filepath.Dir(full), 0700); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0600); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	return "file://" + abs, nil
}
