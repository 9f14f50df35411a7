package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/nvandessel/targetdist/internal/grid"
	"github.com/nvandessel/targetdist/internal/pathutil"
)

// gridExt is the extension of plain-text grid files.
const gridExt = ".dat"

// FileStore implements GridStore with one plain-text grid file per key,
// readable by the grid text format tools.
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create grid directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	p := filepath.Join(s.dir, key+gridExt)
	if err := pathutil.ValidatePath(p, []string{s.dir}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return p, nil
}

// Save writes f to <dir>/<key>.dat, replacing it atomically.
func (s *FileStore) Save(ctx context.Context, key string, f *grid.Field) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(p, func(fh *os.File) error { return grid.Write(fh, f) })
}

// Load reads <dir>/<key>.dat.
func (s *FileStore) Load(ctx context.Context, key string) (*grid.Field, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fh, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("opening %s: %w", pathutil.RedactPath(p), err)
	}
	defer fh.Close()
	f, err := grid.Read(fh)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", pathutil.RedactPath(p), err)
	}
	return f, nil
}

// List returns the keys of all grid files in the directory.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading grid directory: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), gridExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), gridExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the grid file for key.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", pathutil.RedactPath(p), err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

// writeAtomic writes through a temporary file in the same directory and
// renames it over path.
func writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming %s: %w", pathutil.RedactPath(path), err)
	}
	return nil
}
