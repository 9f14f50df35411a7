package targetdist

import (
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/targetdist/internal/constants"
	"github.com/nvandessel/targetdist/internal/grid"
)

// cellFunc evaluates one cell. The point slice is reused between calls.
type cellFunc func(idx int, point []float64) (float64, error)

// evaluateCells computes one value per cell of f into a new slice. Cells are
// split into contiguous chunks, one per worker; newFn is called once per
// worker so each goroutine owns its evaluation state. Values are returned in
// flat-index order so callers can accumulate sequentially.
func evaluateCells(f *grid.Field, workers int, newFn func() cellFunc) ([]float64, error) {
	n := f.Size()
	out := make([]float64, n)
	workers = min(max(workers, 1), max(n/constants.MinCellsPerWorker, 1))
	chunk := (n + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			fn := newFn()
			p := make([]float64, f.Dimension())
			for i := start; i < end; i++ {
				f.PointInto(i, p)
				v, err := fn(i, p)
				if err != nil {
					return err
				}
				out[i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// storeMass writes values into f and returns their quadrature mass. Nothing
// is scaled. The mass is summed on one goroutine after all cells are known.
func storeMass(f *grid.Field, values []float64) float64 {
	if err := f.SetValues(values); err != nil {
		panic(err)
	}
	return grid.Mass(f, values)
}
