// Package memstore keeps the ledger document in process memory. It is the
// terminal fallback of the backend chain and the default for tests.
package memstore

import (
	"context"
	"sync"
)

// Backend holds the document in memory.
type Backend struct {
	mutex    sync.RWMutex
	document []byte
}

// New returns an empty in-memory backend.
func New() *Backend {
	return &Backend{}
}

// Name identifies the backend in logs.
func (backend *Backend) Name() string {
	return "memory"
}

// Load returns the stored document, zero-length when nothing was saved.
func (backend *Backend) Load(_ context.Context) ([]byte, error) {
	backend.mutex.RLock()
	defer backend.mutex.RUnlock()
	if backend.document == nil {
		return nil, nil
	}
	copied := make([]byte, len(backend.document))
	copy(copied, backend.document)
	return copied, nil
}

// Save replaces the stored document.
func (backend *Backend) Save(_ context.Context, document []byte) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	copied := make([]byte, len(document))
	copy(copied, document)
	backend.document = copied
	return nil
}
