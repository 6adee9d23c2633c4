// Package filestore persists the ledger document as a JSON file. Writes go
// to a temporary file first and are moved into place with an atomic rename
// so a crash mid-write never leaves a partially written document behind.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Backend reads and writes one document file.
type Backend struct {
	path string
}

// New returns a file backend rooted at path. The parent directory is created
// on the first save.
func New(path string) (*Backend, error) {
	if path == "" {
		return nil, fmt.Errorf("filestore: path is required")
	}
	return &Backend{path: path}, nil
}

// Name identifies the backend in logs.
func (backend *Backend) Name() string {
	return "file"
}

// Load reads the document file, returning a zero-length document when the
// file does not exist yet.
func (backend *Backend) Load(_ context.Context) ([]byte, error) {
	document, err := os.ReadFile(backend.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore load: %w", err)
	}
	return document, nil
}

// Save writes the document to a sibling .tmp file and renames it into place.
func (backend *Backend) Save(_ context.Context, document []byte) error {
	if err := os.MkdirAll(filepath.Dir(backend.path), 0o755); err != nil {
		return fmt.Errorf("filestore mkdir: %w", err)
	}
	temporary := backend.path + ".tmp"
	if err := os.WriteFile(temporary, document, 0o644); err != nil {
		return fmt.Errorf("filestore write: %w", err)
	}
	if err := os.Rename(temporary, backend.path); err != nil {
		return fmt.Errorf("filestore rename: %w", err)
	}
	return nil
}
