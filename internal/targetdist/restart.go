package targetdist

import (
	"context"
	"fmt"
	"math"

	"github.com/nvandessel/targetdist/internal/grid"
)

// GridLoader fetches a previously saved grid by key.
type GridLoader interface {
	Load(ctx context.Context, key string) (*grid.Field, error)
}

// Restart overwrites the primary value grid with src and rebuilds the log
// grid. It is only allowed between SetupGrids and the first Update.
func (e *Engine) Restart(src *grid.Field) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if e.state != StateGridsAllocated {
		return errorf(e.name, ErrInvalidState, "restart is only possible before the first update, engine is %s", e.state)
	}
	if src == nil {
		return errorf(e.name, ErrRestartMismatch, "no restart grid")
	}
	if src.Size() != e.primary.value.Size() {
		return errorf(e.name, ErrRestartMismatch, "restart grid %s has %d cells, target distribution has %d",
			src.Name(), src.Size(), e.primary.value.Size())
	}
	for idx := 0; idx < src.Size(); idx++ {
		if v := src.Value(idx); math.IsNaN(v) {
			return errorf(e.name, ErrRestartMismatch, "restart grid %s has NaN at cell %d", src.Name(), idx)
		}
	}
	if err := e.primary.value.CopyValues(src); err != nil {
		return fmt.Errorf("%s: %w: %w", e.name, ErrRestartMismatch, err)
	}
	refreshLog(&e.primary)
	e.trace(map[string]any{"event": "restart", "source": src.Name()})
	return nil
}

// RestartFrom loads the grid stored under key and restarts from it. A
// missing or unreadable grid is reported as ErrRestartMismatch.
func (e *Engine) RestartFrom(ctx context.Context, loader GridLoader, key string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	src, err := loader.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("%s: loading restart grid %s: %w: %w", e.name, key, ErrRestartMismatch, err)
	}
	return e.Restart(src)
}
