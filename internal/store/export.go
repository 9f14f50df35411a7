package store

import (
	"context"
	"fmt"

	"github.com/nvandessel/targetdist/internal/constants"
	"github.com/nvandessel/targetdist/internal/grid"
	"github.com/nvandessel/targetdist/internal/targetdist"
)

// Backend kinds accepted by Open.
const (
	KindMemory     = "memory"
	KindFile       = "file"
	KindCheckpoint = "checkpoint"
	KindSQLite     = "sqlite"
)

// Open creates the store of the given kind. path is a directory for file and
// checkpoint stores and a database file for sqlite; keep only applies to
// checkpoints.
func Open(ctx context.Context, kind, path string, keep int) (GridStore, error) {
	switch kind {
	case KindMemory, "":
		return NewMemoryStore(), nil
	case KindFile:
		return NewFileStore(path)
	case KindCheckpoint:
		return NewCheckpointStore(path, keep)
	case KindSQLite:
		return NewSQLiteStore(ctx, path)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

type namedGrid struct {
	key string
	f   *grid.Field
}

// SaveEngine stores the engine's primary grids and, when the reweight pass
// is active, its reweight grids. It returns the keys written.
func SaveEngine(ctx context.Context, s GridStore, e *targetdist.Engine) ([]string, error) {
	if e.Grid() == nil {
		return nil, fmt.Errorf("%w: %s has no grids", targetdist.ErrInvalidState, e.Name())
	}
	grids := []namedGrid{
		{constants.KeyTargetDist, e.Grid()},
		{constants.KeyLogTargetDist, e.LogGrid()},
	}
	if e.ReweightActive() {
		grids = append(grids,
			namedGrid{constants.KeyReweight, e.ReweightGrid()},
			namedGrid{constants.KeyLogReweight, e.LogReweightGrid()},
		)
	}
	keys := make([]string, 0, len(grids))
	for _, g := range grids {
		if err := s.Save(ctx, g.key, g.f); err != nil {
			return keys, fmt.Errorf("saving %s: %w", g.key, err)
		}
		keys = append(keys, g.key)
	}
	return keys, nil
}

// SaveMarginal stores the marginal of the engine's primary grid over args
// under its marginal name.
func SaveMarginal(ctx context.Context, s GridStore, e *targetdist.Engine, args []string) (string, error) {
	m, err := e.Marginal(args)
	if err != nil {
		return "", err
	}
	key := targetdist.MarginalName(args)
	if err := s.Save(ctx, key, m); err != nil {
		return "", fmt.Errorf("saving %s: %w", key, err)
	}
	return key, nil
}
