package refresh

import (
	"context"
	"sync"

	"github.com/starford/paperfeed/internal/apperr"
	"github.com/starford/paperfeed/internal/models"
)

// StateStore persists the refresh state of one scope.
//
// Implementations return an error wrapping apperr.ErrNotFound when nothing
// has been stored yet; any other error is treated the same way by the
// orchestrator (as staleness).
type StateStore interface {
	// Key identifies the scope; concurrent regenerations of one key are merged.
	Key() string
	// LastRefresh returns the day of the last successful save.
	LastRefresh(ctx context.Context) (models.Day, error)
	// Load returns the full persisted state.
	Load(ctx context.Context) (*models.RefreshState, error)
	// Save replaces the persisted state wholesale.
	Save(ctx context.Context, st *models.RefreshState) error
}

// MemoryStore is an in-process StateStore.
type MemoryStore struct {
	key string

	mu    sync.RWMutex
	state *models.RefreshState
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(key string) *MemoryStore {
	return &MemoryStore{key: key}
}

// Key implements StateStore.
func (m *MemoryStore) Key() string { return m.key }

// LastRefresh implements StateStore.
func (m *MemoryStore) LastRefresh(_ context.Context) (models.Day, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return models.Day{}, apperr.ErrNotFound
	}
	return m.state.LastRefresh, nil
}

// Load implements StateStore.
func (m *MemoryStore) Load(_ context.Context) (*models.RefreshState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil, apperr.ErrNotFound
	}
	cp := *m.state
	return &cp, nil
}

// Save implements StateStore.
func (m *MemoryStore) Save(_ context.Context, st *models.RefreshState) error {
	cp := *st
	m.mu.Lock()
	m.state = &cp
	m.mu.Unlock()
	return nil
}
