package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/targetdist/internal/grid"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements GridStore on a single SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates the database at dbPath. ":memory:" gives a
// private in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, path: dbPath}, nil
}

// DB exposes the underlying handle for maintenance commands.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Save upserts the grid under key.
func (s *SQLiteStore) Save(ctx context.Context, key string, f *grid.Field) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	axes, err := json.Marshal(f.Axes())
	if err != nil {
		return fmt.Errorf("marshaling axes: %w", err)
	}
	data := encodeValues(f.Values())
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO grids (key, name, axes, cells, data, checksum, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			axes = excluded.axes,
			cells = excluded.cells,
			data = excluded.data,
			checksum = excluded.checksum,
			updated_at = excluded.updated_at`,
		key, f.Name(), string(axes), f.Size(), data, checksum(data), now, now)
	if err != nil {
		return fmt.Errorf("failed to save grid %s: %w", key, err)
	}
	return nil
}

// Load reads the grid stored under key and verifies its checksum.
func (s *SQLiteStore) Load(ctx context.Context, key string) (*grid.Field, error) {
	var (
		name, axesJSON, sum string
		cells               int
		data                []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, axes, cells, data, checksum FROM grids WHERE key = ?`, key,
	).Scan(&name, &axesJSON, &cells, &data, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load grid %s: %w", key, err)
	}
	if actual := checksum(data); actual != sum {
		return nil, fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksum, key, sum, actual)
	}

	var axes []grid.Axis
	if err := json.Unmarshal([]byte(axesJSON), &axes); err != nil {
		return nil, fmt.Errorf("parsing axes of %s: %w", key, err)
	}
	f, err := grid.New(name, axes)
	if err != nil {
		return nil, err
	}
	values, err := decodeValues(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if len(values) != cells {
		return nil, fmt.Errorf("%w: %s has %d values, row says %d", ErrChecksum, key, len(values), cells)
	}
	if err := f.SetValues(values); err != nil {
		return nil, err
	}
	return f, nil
}

// List returns the stored keys in sorted order.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM grids ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list grids: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM grids WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete grid %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeValues(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeValues(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("%w: blob length %d is not a multiple of 8", ErrChecksum, len(data))
	}
	values := make([]float64, len(data)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}
	return values, nil
}
