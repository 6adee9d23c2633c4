package postit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Store serializes all ledger transactions. Mutations made by fn are
// persisted only when fn returns nil.
type Store interface {
	RunExclusive(ctx context.Context, fn func(ctx context.Context, state *State) error) error
}

// Backend is one pluggable persistence target for the ledger document.
// Load returns a zero-length document when nothing was stored yet.
type Backend interface {
	Name() string
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, document []byte) error
}

// DocumentStore implements Store over an ordered backend chain. A failing
// backend is demoted for the remainder of the process and the next one in
// the chain takes over; the chain is expected to end in an in-memory
// backend that cannot fail.
type DocumentStore struct {
	mutex    sync.Mutex
	backends []Backend
	active   int
	logger   *zap.Logger
}

// NewDocumentStore wires a DocumentStore over the given backend chain.
func NewDocumentStore(logger *zap.Logger, backends ...Backend) (*DocumentStore, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: no backends configured", ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentStore{backends: backends, logger: logger}, nil
}

// RunExclusive re-reads the document, applies fn, and persists the result.
// Transactions never interleave within one process.
func (store *DocumentStore) RunExclusive(ctx context.Context, fn func(ctx context.Context, state *State) error) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	state, err := store.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, state); err != nil {
		return err
	}
	return store.save(ctx, state)
}

func (store *DocumentStore) load(ctx context.Context) (*State, error) {
	for store.active < len(store.backends) {
		backend := store.backends[store.active]
		document, err := backend.Load(ctx)
		if err != nil {
			store.logger.Warn("ledger backend load failed, demoting",
				zap.String("backend", backend.Name()),
				zap.Error(err))
			store.active++
			continue
		}
		if len(document) == 0 {
			return NewState(), nil
		}
		state := &State{}
		if err := json.Unmarshal(document, state); err != nil {
			store.logger.Warn("ledger document corrupt, demoting backend",
				zap.String("backend", backend.Name()),
				zap.Error(err))
			store.active++
			continue
		}
		state.Normalize()
		return state, nil
	}
	return nil, WrapError("store", "document", "load", ErrBackendUnavailable)
}

func (store *DocumentStore) save(ctx context.Context, state *State) error {
	document, err := json.Marshal(state)
	if err != nil {
		return WrapError("store", "document", "encode", err)
	}
	for store.active < len(store.backends) {
		backend := store.backends[store.active]
		if err := backend.Save(ctx, document); err != nil {
			store.logger.Warn("ledger backend save failed, demoting",
				zap.String("backend", backend.Name()),
				zap.Error(err))
			store.active++
			continue
		}
		return nil
	}
	return WrapError("store", "document", "save", ErrBackendUnavailable)
}
