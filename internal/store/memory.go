package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/nvandessel/targetdist/internal/grid"
)

// MemoryStore implements GridStore in memory for tests and one-shot runs.
type MemoryStore struct {
	mu    sync.RWMutex
	grids map[string]*grid.Field
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grids: make(map[string]*grid.Field)}
}

// Save stores a copy of f under key.
func (s *MemoryStore) Save(ctx context.Context, key string, f *grid.Field) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grids[key] = f.Clone(f.Name())
	return nil
}

// Load returns a copy of the grid stored under key.
func (s *MemoryStore) Load(ctx context.Context, key string) (*grid.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.grids[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return f.Clone(f.Name()), nil
}

// List returns the stored keys.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.grids), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grids, key)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
