package store

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/targetdist/internal/grid"
	"github.com/nvandessel/targetdist/internal/pathutil"
)

// CheckpointVersion is the format version written in checkpoint headers.
const CheckpointVersion = 1

// MaxDecompressedSize bounds the decompressed payload of one checkpoint (200MB).
const MaxDecompressedSize = 200 * 1024 * 1024

const checkpointExt = ".grid.gz"

// CheckpointHeader is the plain JSON first line of a checkpoint file.
type CheckpointHeader struct {
	Version    int       `json:"version"`
	Key        string    `json:"key"`
	CreatedAt  time.Time `json:"created_at"`
	Checksum   string    `json:"checksum"`
	Cells      int       `json:"cells"`
	Axes       []string  `json:"axes"`
	Compressed bool      `json:"compressed"`
}

// CheckpointInfo describes one checkpoint file.
type CheckpointInfo struct {
	Path      string
	Key       string
	Size      int64
	CreatedAt time.Time
}

// RetentionPolicy decides which checkpoints of a key to keep. Input is
// sorted newest first.
type RetentionPolicy interface {
	Apply(checkpoints []CheckpointInfo) (keep []CheckpointInfo)
}

// CountPolicy keeps the N most recent checkpoints. Zero keeps all.
type CountPolicy struct {
	MaxCount int
}

// Apply keeps the first MaxCount checkpoints.
func (p *CountPolicy) Apply(checkpoints []CheckpointInfo) []CheckpointInfo {
	if p.MaxCount <= 0 || len(checkpoints) <= p.MaxCount {
		return checkpoints
	}
	return checkpoints[:p.MaxCount]
}

// CheckpointStore implements GridStore with timestamped, gzip-compressed,
// checksummed grid files. Every Save adds a checkpoint; Load returns the
// newest. Old checkpoints are pruned by the retention policy after each
// Save.
type CheckpointStore struct {
	mu     sync.Mutex
	dir    string
	policy RetentionPolicy
	last   int64
	now    func() time.Time
}

// NewCheckpointStore creates a store in dir keeping keep checkpoints per key.
func NewCheckpointStore(dir string, keep int) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &CheckpointStore{dir: dir, policy: &CountPolicy{MaxCount: keep}, now: time.Now}, nil
}

// Save writes a new checkpoint for key and applies retention.
func (s *CheckpointStore) Save(ctx context.Context, key string, f *grid.Field) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.now().UTC()
	stamp := created.UnixNano()
	if stamp <= s.last {
		stamp = s.last + 1
	}
	s.last = stamp

	path := filepath.Join(s.dir, fmt.Sprintf("%s.%020d%s", key, stamp, checkpointExt))
	if err := pathutil.ValidatePath(path, []string{s.dir}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if err := writeCheckpoint(path, key, created, f); err != nil {
		return err
	}
	_, err := s.applyRetention(key)
	return err
}

func writeCheckpoint(path, key string, created time.Time, f *grid.Field) error {
	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if err := grid.Write(gzw, f); err != nil {
		return fmt.Errorf("compressing grid: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	header := CheckpointHeader{
		Version:    CheckpointVersion,
		Key:        key,
		CreatedAt:  created,
		Checksum:   checksum(compressed.Bytes()),
		Cells:      f.Size(),
		Axes:       f.ArgNames(),
		Compressed: true,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	return writeAtomic(path, func(fh *os.File) error {
		if _, err := fh.Write(append(headerBytes, '\n')); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
		if _, err := fh.Write(compressed.Bytes()); err != nil {
			return fmt.Errorf("writing compressed payload: %w", err)
		}
		return nil
	})
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// Load returns the newest checkpoint of key.
func (s *CheckpointStore) Load(ctx context.Context, key string) (*grid.Field, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cps, err := s.history(key)
	if err != nil {
		return nil, err
	}
	if len(cps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	f, _, err := ReadCheckpoint(cps[0].Path)
	return f, err
}

// ReadCheckpoint reads a checkpoint file, verifies its checksum and decodes
// the grid.
func ReadCheckpoint(path string) (*grid.Field, *CheckpointHeader, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening checkpoint: %w", err)
	}
	defer fh.Close()

	reader := bufio.NewReader(fh)
	headerLine, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header line: %w", err)
	}
	var header CheckpointHeader
	if err := json.Unmarshal(bytes.TrimSpace(headerLine), &header); err != nil {
		return nil, nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != CheckpointVersion {
		return nil, nil, fmt.Errorf("unsupported checkpoint version %d", header.Version)
	}

	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	if actual := checksum(compressed); actual != header.Checksum {
		return nil, nil, fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksum, pathutil.RedactPath(path), header.Checksum, actual)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()
	limited := io.LimitReader(gzr, MaxDecompressedSize+1)
	payload, err := io.ReadAll(limited)
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(payload)) > MaxDecompressedSize {
		return nil, nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	f, err := grid.Read(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	if f.Size() != header.Cells {
		return nil, nil, fmt.Errorf("%w: header says %d cells, grid has %d", ErrChecksum, header.Cells, f.Size())
	}
	return f, &header, nil
}

// History lists the checkpoints of key, newest first.
func (s *CheckpointStore) History(ctx context.Context, key string) ([]CheckpointInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history(key)
}

func (s *CheckpointStore) history(key string) ([]CheckpointInfo, error) {
	all, err := s.scan()
	if err != nil {
		return nil, err
	}
	var out []CheckpointInfo
	for _, c := range all {
		if c.Key == key {
			out = append(out, c)
		}
	}
	return out, nil
}

// scan lists every checkpoint file sorted newest first.
func (s *CheckpointStore) scan() ([]CheckpointInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint directory: %w", err)
	}
	var out []CheckpointInfo
	for _, e := range entries {
		key, stamp, ok := parseCheckpointName(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, CheckpointInfo{
			Path:      filepath.Join(s.dir, e.Name()),
			Key:       key,
			Size:      info.Size(),
			CreatedAt: time.Unix(0, stamp).UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return filepath.Base(out[i].Path) > filepath.Base(out[j].Path)
	})
	return out, nil
}

// parseCheckpointName splits <key>.<20-digit stamp>.grid.gz.
func parseCheckpointName(name string) (key string, stamp int64, ok bool) {
	base, found := strings.CutSuffix(name, checkpointExt)
	if !found {
		return "", 0, false
	}
	i := strings.LastIndexByte(base, '.')
	if i <= 0 || len(base)-i-1 != 20 {
		return "", 0, false
	}
	stamp, err := strconv.ParseInt(base[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return base[:i], stamp, true
}

// applyRetention deletes the checkpoints of key the policy does not keep.
func (s *CheckpointStore) applyRetention(key string) (deleted []string, err error) {
	cps, err := s.history(key)
	if err != nil {
		return nil, err
	}
	keep := s.policy.Apply(cps)
	keepSet := make(map[string]bool, len(keep))
	for _, c := range keep {
		keepSet[c.Path] = true
	}
	for _, c := range cps {
		if keepSet[c.Path] {
			continue
		}
		if err := os.Remove(c.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(c.Path), err)
		}
		deleted = append(deleted, c.Path)
	}
	return deleted, nil
}

// List returns every key with at least one checkpoint.
func (s *CheckpointStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.scan()
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool)
	for _, c := range all {
		keys[c.Key] = true
	}
	return sortedKeys(keys), nil
}

// Delete removes every checkpoint of key.
func (s *CheckpointStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cps, err := s.history(key)
	if err != nil {
		return err
	}
	for _, c := range cps {
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", filepath.Base(c.Path), err)
		}
	}
	return nil
}

// Close is a no-op.
func (s *CheckpointStore) Close() error { return nil }
