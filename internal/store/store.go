// Package store defines the GridStore interface for saving and restoring
// target distribution grids by key, with memory, text file, compressed
// checkpoint and SQLite implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/nvandessel/targetdist/internal/grid"
)

var (
	// ErrNotFound is returned when no grid is stored under a key.
	ErrNotFound = errors.New("store: grid not found")
	// ErrChecksum is returned when stored grid data fails verification.
	ErrChecksum = errors.New("store: checksum mismatch")
	// ErrInvalidKey is returned for keys that cannot name a grid.
	ErrInvalidKey = errors.New("store: invalid key")
)

// GridStore saves and loads grids by key. Implementations are safe for
// concurrent use. Loaded grids are independent copies.
type GridStore interface {
	Save(ctx context.Context, key string, f *grid.Field) error
	Load(ctx context.Context, key string) (*grid.Field, error)
	// List returns the stored keys in ascending order.
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateKey checks that key is usable as a file name and a database key.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) || len(key) > 128 {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
