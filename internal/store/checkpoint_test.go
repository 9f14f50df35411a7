package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestCheckpointStore_Retention(t *testing.T) {
	ctx := context.Background()
	s, err := NewCheckpointStore(t.TempDir(), 2)
	if err != nil {
		t.Fatalf("NewCheckpointStore: %v", err)
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	f := testGrid(t, "targetdist")
	for i := 1; i <= 4; i++ {
		f.SetValue(0, float64(i))
		if err := s.Save(ctx, "targetdist", f); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
	if err := s.Save(ctx, "reweight", f); err != nil {
		t.Fatalf("Save: %v", err)
	}

	history, err := s.History(ctx, "targetdist")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 checkpoints kept, got %d", len(history))
	}
	if !history[0].CreatedAt.After(history[1].CreatedAt) {
		t.Errorf("expected newest first, got %v then %v", history[0].CreatedAt, history[1].CreatedAt)
	}
	if !history[0].CreatedAt.Equal(base.Add(4 * time.Second)) {
		t.Errorf("expected newest checkpoint from the 4th save, got %v", history[0].CreatedAt)
	}

	got, err := s.Load(ctx, "targetdist")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Value(0) != 4 {
		t.Errorf("expected newest value 4, got %g", got.Value(0))
	}

	// retention is per key
	rw, err := s.History(ctx, "reweight")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rw) != 1 {
		t.Errorf("expected 1 reweight checkpoint, got %d", len(rw))
	}
}

func TestCheckpointStore_MonotonicNames(t *testing.T) {
	ctx := context.Background()
	s, err := NewCheckpointStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewCheckpointStore: %v", err)
	}
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	f := testGrid(t, "g")
	for i := 0; i < 3; i++ {
		if err := s.Save(ctx, "g", f); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	history, err := s.History(ctx, "g")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("expected 3 distinct checkpoints with keep=0, got %d", len(history))
	}
}

func TestCheckpointStore_DetectsCorruption(t *testing.T) {
	ctx := context.Background()
	s, err := NewCheckpointStore(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("NewCheckpointStore: %v", err)
	}
	if err := s.Save(ctx, "targetdist", testGrid(t, "targetdist")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	history, err := s.History(ctx, "targetdist")
	if err != nil || len(history) != 1 {
		t.Fatalf("History: %v (%d entries)", err, len(history))
	}

	data, err := os.ReadFile(history[0].Path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[len(data)-5] ^= 0xff
	if err := os.WriteFile(history[0].Path, data, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := s.Load(ctx, "targetdist"); !errors.Is(err, ErrChecksum) {
		t.Errorf("expected ErrChecksum, got %v", err)
	}
}

func TestReadCheckpoint_Header(t *testing.T) {
	ctx := context.Background()
	s, err := NewCheckpointStore(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("NewCheckpointStore: %v", err)
	}
	f := testGrid(t, "log_targetdist")
	if err := s.Save(ctx, "log_targetdist", f); err != nil {
		t.Fatalf("Save: %v", err)
	}
	history, _ := s.History(ctx, "log_targetdist")

	data, err := os.ReadFile(history[0].Path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	firstLine := strings.SplitN(string(data), "\n", 2)[0]
	if !strings.Contains(firstLine, `"checksum":"sha256:`) {
		t.Errorf("expected plain JSON header with checksum, got %q", firstLine)
	}

	got, header, err := ReadCheckpoint(history[0].Path)
	if err != nil {
		t.Fatalf("ReadCheckpoint: %v", err)
	}
	if header.Key != "log_targetdist" || header.Cells != f.Size() || !header.Compressed {
		t.Errorf("unexpected header %+v", header)
	}
	if got.Size() != f.Size() {
		t.Errorf("expected %d cells, got %d", f.Size(), got.Size())
	}
}

func TestParseCheckpointName(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		stamp int64
		ok    bool
	}{
		{"targetdist.00000000000000000042.grid.gz", "targetdist", 42, true},
		{"a.b.00000000000000000007.grid.gz", "a.b", 7, true},
		{"targetdist.42.grid.gz", "", 0, false},
		{"targetdist.dat", "", 0, false},
		{".00000000000000000042.grid.gz", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, stamp, ok := parseCheckpointName(tt.name)
			if ok != tt.ok || key != tt.key || stamp != tt.stamp {
				t.Errorf("parseCheckpointName(%q) = (%q, %d, %v), want (%q, %d, %v)",
					tt.name, key, stamp, ok, tt.key, tt.stamp, tt.ok)
			}
		})
	}
}
