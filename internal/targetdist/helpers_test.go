package targetdist_test

import (
	"testing"

	"github.com/nvandessel/targetdist/internal/grid"
	"github.com/nvandessel/targetdist/internal/targetdist"
	"github.com/stretchr/testify/require"
)

func axis(name string, min, max float64, bins int) grid.Axis {
	return grid.Axis{Name: name, Min: min, Max: max, Bins: bins}
}

func periodic(name string, min, max float64, bins int) grid.Axis {
	return grid.Axis{Name: name, Min: min, Max: max, Bins: bins, Periodic: true}
}

// setup builds an engine and allocates its primary grids.
func setup(t *testing.T, spec targetdist.Spec, axes []grid.Axis, opts ...targetdist.Option) *targetdist.Engine {
	t.Helper()
	e, err := targetdist.New(spec, opts...)
	require.NoError(t, err)
	require.NoError(t, e.SetupGrids(axes))
	t.Cleanup(func() { e.Close() })
	return e
}

// fieldOf returns a grid over axes filled by fn.
func fieldOf(t *testing.T, name string, axes []grid.Axis, fn func(p []float64) float64) *grid.Field {
	t.Helper()
	f, err := grid.New(name, axes)
	require.NoError(t, err)
	f.Each(func(idx int, p []float64) { f.SetValue(idx, fn(p)) })
	return f
}

// normalizedOf scales raw so it integrates to one over f's quadrature.
func normalizedOf(f *grid.Field, raw []float64) []float64 {
	mass := grid.Mass(f, raw)
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = v / mass
	}
	return out
}

func requireValuesInDelta(t *testing.T, want, got []float64, delta float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.InDelta(t, want[i], got[i], delta, "cell %d", i)
	}
}
