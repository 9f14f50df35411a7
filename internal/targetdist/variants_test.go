package targetdist_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/targetdist/internal/grid"
	"github.com/nvandessel/targetdist/internal/targetdist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposite_WeightedSum(t *testing.T) {
	axes := []grid.Axis{axis("s1", -2, 2, 40)}
	gauss := targetdist.Spec{Type: "GAUSSIAN", Centers: [][]float64{{0}}, Sigmas: [][]float64{{0.5}}}
	uniform := targetdist.Spec{Type: "UNIFORM"}

	a := setup(t, gauss, axes)
	require.NoError(t, a.Update())
	b := setup(t, uniform, axes)
	require.NoError(t, b.Update())

	e := setup(t, targetdist.Spec{
		Type:          "LINEAR_COMBINATION",
		Distributions: []targetdist.Spec{gauss, uniform},
		Weights:       []float64{1, 3},
	}, axes)
	assert.True(t, e.Static())
	require.NoError(t, e.Update())

	want := make([]float64, a.Grid().Size())
	for i := range want {
		want[i] = 0.25*a.Grid().Value(i) + 0.75*b.Grid().Value(i)
	}
	requireValuesInDelta(t, want, e.Grid().Values(), 1e-15)
	assert.InDelta(t, 1.0, grid.Integrate(e.Grid()), 1e-4)

	_, err := e.Value([]float64{0})
	require.ErrorIs(t, err, targetdist.ErrPointwiseUnsupported)
}

func TestComposite_WeightScaleInvariant(t *testing.T) {
	axes := []grid.Axis{axis("s1", -2, 2, 40), periodic("s2", 0, 1, 8)}
	children := []targetdist.Spec{
		{Type: "GAUSSIAN", Centers: [][]float64{{0, 0.5}}, Sigmas: [][]float64{{0.4, 0.2}}},
		{Type: "UNIFORM"},
	}
	build := func(weights []float64) *targetdist.Engine {
		e := setup(t, targetdist.Spec{Type: "LINEAR_COMBINATION", Distributions: children, Weights: weights}, axes)
		require.NoError(t, e.Update())
		return e
	}
	ref := build([]float64{0.25, 0.75})
	a := setup(t, children[0], axes)
	require.NoError(t, a.Update())
	b := setup(t, children[1], axes)
	require.NoError(t, b.Update())

	tests := []struct {
		name    string
		weights []float64
	}{
		{"tiny", []float64{1e-9, 3e-9}},
		{"huge", []float64{1e9, 3e9}},
		{"integers", []float64{2, 6}},
		{"unit", []float64{0.25, 0.75}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := build(tt.weights)
			requireValuesInDelta(t, ref.Grid().Values(), e.Grid().Values(), 1e-12)

			// solve for both weights from a cell in the tail and one at the peak;
			// the uniform child is the same everywhere
			peak, err := e.Grid().Index([]float64{0, 0.5})
			require.NoError(t, err)
			tail := 0
			wa := (e.Grid().Value(peak) - e.Grid().Value(tail)) / (a.Grid().Value(peak) - a.Grid().Value(tail))
			wb := (e.Grid().Value(tail) - wa*a.Grid().Value(tail)) / b.Grid().Value(tail)
			assert.InDelta(t, 0.25, wa, 1e-12)
			assert.InDelta(t, 0.75, wb, 1e-12)
			assert.InDelta(t, 1.0, wa+wb, 1e-12)
		})
	}
}

func TestComposite_EqualChildren(t *testing.T) {
	axes := []grid.Axis{axis("s1", 0, 2, 8), axis("s2", 0, 1, 4)}
	e := setup(t, targetdist.Spec{
		Type:          "LINEAR_COMBINATION",
		Distributions: []targetdist.Spec{{Type: "UNIFORM"}, {Type: "UNIFORM"}},
		Weights:       []float64{1, 1},
	}, axes)
	require.NoError(t, e.Update())
	for i := 0; i < e.Grid().Size(); i++ {
		assert.InDelta(t, 0.5, e.Grid().Value(i), 1e-15)
	}
}

func TestComposite_InheritsDynamicChildren(t *testing.T) {
	axes := []grid.Axis{axis("s1", -2, 2, 20)}
	e := setup(t, targetdist.Spec{
		Type: "LINEAR_COMBINATION",
		Distributions: []targetdist.Spec{
			{Type: "UNIFORM"},
			{Type: "WELL_TEMPERED", BiasFactor: 5},
			{Type: "UNIFORM", BiasCutoff: 10},
		},
	}, axes)
	assert.True(t, e.Dynamic())
	assert.True(t, e.NeedsFreeEnergyGrid())
	assert.True(t, e.NeedsBiasWithoutCutoffGrid())
	assert.False(t, e.BiasCutoffActive())

	require.ErrorIs(t, e.Update(), targetdist.ErrMissingCollaborator)

	zero := func([]float64) float64 { return 0 }
	e.LinkBiasContext(targetdist.FixedBeta(1))
	e.LinkGrids(targetdist.Primary, targetdist.Links{
		FreeEnergy:        fieldOf(t, "fes", axes, zero),
		BiasWithoutCutoff: fieldOf(t, "bias", axes, zero),
	})
	require.NoError(t, e.Update())
	assert.InDelta(t, 1.0, grid.Integrate(e.Grid()), 1e-9)
}

func TestBiasCutoff(t *testing.T) {
	axes := []grid.Axis{axis("s1", 0, 1, 10)}
	e := setup(t, targetdist.Spec{Type: "UNIFORM", BiasCutoff: 5}, axes)
	require.ErrorIs(t, e.Update(), targetdist.ErrMissingCollaborator)

	e = setup(t, targetdist.Spec{Type: "UNIFORM", BiasCutoff: 5}, axes)
	bias := fieldOf(t, "bias", axes, func(p []float64) float64 { return -8 * p[0] })
	e.LinkGrids(targetdist.Primary, targetdist.Links{BiasWithoutCutoff: bias})
	require.NoError(t, e.Update())

	sw := targetdist.NewFermiSwitch(5, 0)
	w := grid.IntegrationWeights(e.Grid())
	norm := 0.0
	want := make([]float64, bias.Size())
	for i := range want {
		s, d := sw.Switch(bias.Value(i))
		norm += w[i] * s
		want[i] = s * d
	}
	for i := range want {
		want[i] /= norm
	}
	requireValuesInDelta(t, want, e.Grid().Values(), 1e-12)

	// the log grid keeps the values from before the cutoff
	for i := 0; i < e.LogGrid().Size(); i++ {
		assert.Equal(t, 0.0, e.LogGrid().Value(i))
	}

	// the derivative factor turns negative near the cutoff
	require.NotEmpty(t, e.Warnings())
	assert.Equal(t, targetdist.StepCheckNonnegative, e.Warnings()[0].Step)
}

func TestFermiSwitch(t *testing.T) {
	sw := targetdist.NewFermiSwitch(5, 10)

	s, d := sw.Switch(-5)
	assert.InDelta(t, 0.5, s, 1e-15)
	assert.InDelta(t, -12.0, d, 1e-12)

	s, d = sw.Switch(0)
	assert.InDelta(t, 1.0, s, 1e-15)
	assert.InDelta(t, 1.0, d, 1e-15)

	s, _ = sw.Switch(-1000)
	assert.False(t, math.IsNaN(s))
	assert.InDelta(t, 0.0, s, 1e-40)

	// ds/dr against a central difference, r = -V
	const h = 1e-6
	for _, v := range []float64{-6, -5.2, -4.9, -3} {
		sp, _ := sw.Switch(-(-v + h))
		sm, _ := sw.Switch(-(-v - h))
		s, d := sw.Switch(v)
		dsdr := (sp - sm) / (2 * h)
		assert.InDelta(t, s-v*dsdr, d, 1e-6)
	}
}

func TestExpression(t *testing.T) {
	axes := []grid.Axis{axis("s1", 0, 1, 10)}

	t.Run("pointwise", func(t *testing.T) {
		e, err := targetdist.New(targetdist.Spec{Type: "MATHEVAL_DIST", Function: "2*s1 + 1 + sin(pi*s1)"})
		require.NoError(t, err)
		assert.True(t, e.Static())
		assert.Equal(t, 0, e.Dimension())
		v, err := e.Value([]float64{3})
		require.NoError(t, err)
		assert.InDelta(t, 7.0+math.Sin(3*math.Pi), v, 1e-12)
	})
	t.Run("free energy makes it dynamic", func(t *testing.T) {
		e, err := targetdist.New(targetdist.Spec{Type: "MATHEVAL_DIST", Function: "exp(-beta*FE)"})
		require.NoError(t, err)
		assert.True(t, e.Dynamic())
		assert.True(t, e.NeedsFreeEnergyGrid())
		_, err = e.Value([]float64{0})
		require.ErrorIs(t, err, targetdist.ErrPointwiseUnsupported)
	})
	t.Run("kBT needs bias context", func(t *testing.T) {
		e := setup(t, targetdist.Spec{Type: "MATHEVAL_DIST", Function: "kBT*(1+s1)"}, axes)
		assert.True(t, e.Static())
		require.ErrorIs(t, e.Update(), targetdist.ErrMissingCollaborator)
	})
	t.Run("negative without shift", func(t *testing.T) {
		e := setup(t, targetdist.Spec{Type: "MATHEVAL_DIST", Function: "s1 - 0.5"}, axes)
		require.ErrorIs(t, e.Update(), targetdist.ErrNegativeValue)
	})
	t.Run("zero mass", func(t *testing.T) {
		e := setup(t, targetdist.Spec{Type: "MATHEVAL_DIST", Function: "0*s1"}, axes)
		require.ErrorIs(t, e.Update(), targetdist.ErrNormalizationFailure)
	})
	t.Run("matches well tempered", func(t *testing.T) {
		fes := fieldOf(t, "fes", axes, func(p []float64) float64 { return 3 * p[0] * p[0] })
		links := targetdist.Links{FreeEnergy: fes}

		ex := setup(t, targetdist.Spec{Type: "MATHEVAL_DIST", Function: "exp(-FE/(4*kBT))"}, axes)
		wt := setup(t, targetdist.Spec{Type: "WELL_TEMPERED", BiasFactor: 4}, axes)
		for _, e := range []*targetdist.Engine{ex, wt} {
			e.LinkBiasContext(targetdist.FixedBeta(2.5))
			e.LinkGrids(targetdist.Primary, links)
			require.NoError(t, e.Update())
		}
		requireValuesInDelta(t, wt.Grid().Values(), ex.Grid().Values(), 1e-12)
	})
}

func TestRestart(t *testing.T) {
	axes := []grid.Axis{axis("s1", 0, 1, 3)}
	src := fieldOf(t, "targetdist", axes, func([]float64) float64 { return 0 })
	require.NoError(t, src.SetValues([]float64{1, 2, 4, 0.5}))

	e, err := targetdist.New(targetdist.Spec{Type: "UNIFORM"})
	require.NoError(t, err)
	require.ErrorIs(t, e.Restart(src), targetdist.ErrInvalidState)
	require.NoError(t, e.SetupGrids(axes))

	require.ErrorIs(t, e.Restart(nil), targetdist.ErrRestartMismatch)
	short := fieldOf(t, "short", []grid.Axis{axis("s1", 0, 1, 2)}, func([]float64) float64 { return 1 })
	require.ErrorIs(t, e.Restart(short), targetdist.ErrRestartMismatch)

	require.NoError(t, e.Restart(src))
	assert.Equal(t, []float64{1, 2, 4, 0.5}, e.Grid().Values())
	requireValuesInDelta(t, []float64{math.Log(4), math.Log(2), 0, math.Log(8)}, e.LogGrid().Values(), 1e-12)

	require.NoError(t, e.Update())
	assert.InDelta(t, 1.0, e.Grid().Value(2), 1e-15)
}

type failingLoader struct{ err error }

func (l failingLoader) Load(context.Context, string) (*grid.Field, error) { return nil, l.err }

type fixedLoader struct{ f *grid.Field }

func (l fixedLoader) Load(context.Context, string) (*grid.Field, error) { return l.f, nil }

func TestRestartFrom(t *testing.T) {
	axes := []grid.Axis{axis("s1", 0, 1, 3)}
	e := setup(t, targetdist.Spec{Type: "UNIFORM"}, axes)

	missing := errors.New("no such grid")
	err := e.RestartFrom(context.Background(), failingLoader{missing}, "targetdist")
	require.ErrorIs(t, err, targetdist.ErrRestartMismatch)
	require.ErrorIs(t, err, missing)

	src := fieldOf(t, "targetdist", axes, func(p []float64) float64 { return 1 + p[0] })
	require.NoError(t, e.RestartFrom(context.Background(), fixedLoader{src}, "targetdist"))
	assert.Equal(t, src.Values(), e.Grid().Values())
}

func TestMarginal(t *testing.T) {
	axes := []grid.Axis{axis("s1", -3, 3, 30), periodic("s2", -math.Pi, math.Pi, 36)}
	e, err := targetdist.New(targetdist.Spec{Type: "MATHEVAL_DIST", Function: "exp(-0.5*s1*s1)*(1.5+cos(s2))"})
	require.NoError(t, err)
	_, err = e.Marginal([]string{"s1"})
	require.ErrorIs(t, err, targetdist.ErrInvalidState)
	require.NoError(t, e.SetupGrids(axes))
	require.NoError(t, e.Update())

	m, err := e.Marginal([]string{"s2"})
	require.NoError(t, err)
	assert.Equal(t, "targetdist_marginal_s2", m.Name())
	assert.Equal(t, []string{"s2"}, m.ArgNames())
	assert.InDelta(t, 1.0, grid.Integrate(m), 1e-12)

	_, err = e.Marginal([]string{"s3"})
	require.ErrorIs(t, err, targetdist.ErrConfiguration)
	require.ErrorIs(t, err, grid.ErrUnknownAxis)

	one := setup(t, targetdist.Spec{Type: "UNIFORM"}, []grid.Axis{axis("s1", 0, 1, 4)})
	_, err = one.Marginal([]string{"s1"})
	require.ErrorIs(t, err, targetdist.ErrConfiguration)
}
