package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nvandessel/targetdist/internal/grid"
)

func testGrid(t *testing.T, name string) *grid.Field {
	t.Helper()
	f, err := grid.New(name, []grid.Axis{
		{Name: "s1", Min: -1, Max: 1, Bins: 4},
		{Name: "s2", Min: -math.Pi, Max: math.Pi, Bins: 3, Periodic: true},
	})
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}
	f.Each(func(idx int, p []float64) {
		f.SetValue(idx, math.Exp(-p[0]*p[0])*(1+0.5*math.Cos(p[1])))
	})
	return f
}

// backends returns one fresh store of every kind.
func backends(t *testing.T) map[string]GridStore {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	fileStore, err := NewFileStore(filepath.Join(dir, "file"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	cpStore, err := NewCheckpointStore(filepath.Join(dir, "checkpoints"), 3)
	if err != nil {
		t.Fatalf("NewCheckpointStore: %v", err)
	}
	sqlStore, err := NewSQLiteStore(ctx, filepath.Join(dir, "grids.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	stores := map[string]GridStore{
		KindMemory:     NewMemoryStore(),
		KindFile:       fileStore,
		KindCheckpoint: cpStore,
		KindSQLite:     sqlStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestGridStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	for kind, s := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			want := testGrid(t, "targetdist")
			if err := s.Save(ctx, "targetdist", want); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := s.Load(ctx, "targetdist")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !want.SameShape(got) {
				t.Errorf("shape mismatch: got %v, want %v", got.Axes(), want.Axes())
			}
			if got.Name() != "targetdist" {
				t.Errorf("expected name targetdist, got %s", got.Name())
			}
			if !reflect.DeepEqual(got.Values(), want.Values()) {
				t.Errorf("values differ after round trip")
			}

			// loaded grids are copies
			got.Clear()
			again, err := s.Load(ctx, "targetdist")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if reflect.DeepEqual(again.Values(), got.Values()) {
				t.Error("mutating a loaded grid changed the stored one")
			}
		})
	}
}

func TestGridStore_OverwriteListDelete(t *testing.T) {
	ctx := context.Background()
	for kind, s := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			f := testGrid(t, "g")
			for _, key := range []string{"reweight", "log_targetdist", "targetdist"} {
				if err := s.Save(ctx, key, f); err != nil {
					t.Fatalf("Save %s: %v", key, err)
				}
			}

			f.Scale(2)
			if err := s.Save(ctx, "targetdist", f); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := s.Load(ctx, "targetdist")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.Value(3) != f.Value(3) {
				t.Errorf("expected overwritten value %g, got %g", f.Value(3), got.Value(3))
			}

			keys, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			want := []string{"log_targetdist", "reweight", "targetdist"}
			if !reflect.DeepEqual(keys, want) {
				t.Errorf("List = %v, want %v", keys, want)
			}

			if err := s.Delete(ctx, "reweight"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Delete(ctx, "reweight"); err != nil {
				t.Errorf("second Delete: %v", err)
			}
			if _, err := s.Load(ctx, "reweight"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestGridStore_NotFound(t *testing.T) {
	ctx := context.Background()
	for kind, s := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			_, err := s.Load(ctx, "missing")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"targetdist", true},
		{"targetdist_marginal_s1", true},
		{"run-3.final", true},
		{"", false},
		{"../etc/passwd", false},
		{"a/b", false},
		{".hidden", false},
		{"has space", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.valid && err != nil {
				t.Errorf("expected %q to be valid: %v", tt.key, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("expected ErrInvalidKey for %q, got %v", tt.key, err)
			}
		})
	}
}

func TestGridStore_RejectsInvalidKey(t *testing.T) {
	ctx := context.Background()
	for kind, s := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			err := s.Save(ctx, "../escape", testGrid(t, "g"))
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("expected ErrInvalidKey, got %v", err)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tests := []struct {
		kind string
		path string
		want string
	}{
		{KindMemory, "", "*store.MemoryStore"},
		{"", "", "*store.MemoryStore"},
		{KindFile, filepath.Join(dir, "f"), "*store.FileStore"},
		{KindCheckpoint, filepath.Join(dir, "c"), "*store.CheckpointStore"},
		{KindSQLite, filepath.Join(dir, "s.db"), "*store.SQLiteStore"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			s, err := Open(ctx, tt.kind, tt.path, 2)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()
			if got := reflect.TypeOf(s).String(); got != tt.want {
				t.Errorf("Open(%q) = %s, want %s", tt.kind, got, tt.want)
			}
		})
	}

	if _, err := Open(ctx, "redis", "", 0); err == nil {
		t.Error("expected error for unknown kind")
	}
}
