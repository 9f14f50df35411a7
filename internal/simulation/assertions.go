package simulation

import (
	"context"
	"math"
	"testing"

	"github.com/nvandessel/targetdist/internal/grid"
	"gonum.org/v1/gonum/floats"
)

// AssertNormalized asserts that the target distribution integrates to one
// within tol in every iteration from afterIteration on.
func AssertNormalized(t *testing.T, result SimulationResult, tol float64, afterIteration int) {
	t.Helper()
	for i := afterIteration; i < len(result.Iterations); i++ {
		it := result.Iterations[i]
		if math.Abs(it.Integral-1) > tol {
			t.Errorf("AssertNormalized: %s iteration %d: integral %.9f not within %.2g of 1", result.Name, i, it.Integral, tol)
		}
	}
}

// AssertCutoffNormalized asserts that every iteration of a bias cutoff
// scenario holds the switched density rescaled to unit mass and then
// multiplied by the derivative factor. The log grid still carries the
// density from before the cutoff, which gives the raw values.
func AssertCutoffNormalized(t *testing.T, result SimulationResult, tol float64) {
	t.Helper()
	sw, ok := result.Engine.BiasCutoff()
	if !ok {
		t.Fatalf("AssertCutoffNormalized: %s has no bias cutoff", result.Name)
	}
	w := grid.IntegrationWeights(result.Engine.Grid())
	for _, it := range result.Iterations {
		if it.BiasWithoutCutoff == nil {
			t.Errorf("AssertCutoffNormalized: %s iteration %d: no bias linked", result.Name, it.Index)
			continue
		}
		switched := make([]float64, len(it.Values))
		derivs := make([]float64, len(it.Values))
		for idx := range switched {
			s, d := sw.Switch(it.BiasWithoutCutoff[idx])
			switched[idx] = math.Exp(-it.Log[idx]) * s
			derivs[idx] = d
		}
		norm := floats.Dot(w, switched)
		for idx, v := range it.Values {
			want := switched[idx] / norm * derivs[idx]
			if math.Abs(v-want) > tol {
				t.Errorf("AssertCutoffNormalized: %s iteration %d cell %d: got %.12g, want %.12g", result.Name, it.Index, idx, v, want)
				return
			}
		}
	}
}

// AssertNonnegative asserts that no iteration has a value below zero.
func AssertNonnegative(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, it := range result.Iterations {
		if it.Min < 0 {
			t.Errorf("AssertNonnegative: %s iteration %d: minimum %.6g < 0", result.Name, it.Index, it.Min)
		}
	}
}

// AssertNoWarnings asserts that no sanity check fired from afterIteration on.
func AssertNoWarnings(t *testing.T, result SimulationResult, afterIteration int) {
	t.Helper()
	for i := afterIteration; i < len(result.Iterations); i++ {
		for _, w := range result.Iterations[i].Warnings {
			t.Errorf("AssertNoWarnings: %s iteration %d: %s on %s: %s", result.Name, i, w.Step, w.Grid, w.Message)
		}
	}
}

// AssertMatches asserts that iteration i equals want(i, point) up to
// normalization on the primary grid, within tol per cell.
func AssertMatches(t *testing.T, result SimulationResult, i int, want SurfaceFunc, tol float64) {
	t.Helper()
	f := result.Engine.Grid().Clone("expected")
	f.Each(func(idx int, p []float64) { f.SetValue(idx, want(i, p)) })
	if grid.Normalize(f) <= 0 {
		t.Fatalf("AssertMatches: %s: reference surface has no mass", result.Name)
	}
	got := result.Iterations[i].Values
	for idx, v := range f.Values() {
		if math.Abs(got[idx]-v) > tol {
			t.Errorf("AssertMatches: %s iteration %d cell %d: got %.9g, want %.9g", result.Name, i, idx, got[idx], v)
			return
		}
	}
}

// AssertStationary asserts that consecutive iterations from afterIteration
// on differ by at most tol in every cell.
func AssertStationary(t *testing.T, result SimulationResult, tol float64, afterIteration int) {
	t.Helper()
	for i := max(afterIteration, 1); i < len(result.Iterations); i++ {
		prev, cur := result.Iterations[i-1].Values, result.Iterations[i].Values
		if d := maxAbsDiff(prev, cur); d > tol {
			t.Errorf("AssertStationary: %s iteration %d: changed by %.6g > %.2g", result.Name, i, d, tol)
		}
	}
}

// AssertReweightMirrors asserts that the reweight grid equals the primary
// grid in every iteration. Only meaningful when both use the same axes.
func AssertReweightMirrors(t *testing.T, result SimulationResult, tol float64) {
	t.Helper()
	for _, it := range result.Iterations {
		if it.Reweight == nil {
			t.Fatalf("AssertReweightMirrors: %s iteration %d: reweight pass inactive", result.Name, it.Index)
		}
		if d := maxAbsDiff(it.Values, it.Reweight); d > tol {
			t.Errorf("AssertReweightMirrors: %s iteration %d: grids differ by %.6g", result.Name, it.Index, d)
		}
	}
}

// AssertCheckpoint asserts that the stored checkpoint of iteration i holds
// exactly the values recorded for it.
func AssertCheckpoint(t *testing.T, result SimulationResult, i int) {
	t.Helper()
	f, err := result.Store.Load(context.Background(), CheckpointKey(i))
	if err != nil {
		t.Fatalf("AssertCheckpoint: %s: %v", result.Name, err)
	}
	if d := maxAbsDiff(f.Values(), result.Iterations[i].Values); d != 0 {
		t.Errorf("AssertCheckpoint: %s iteration %d: stored grid differs by %.6g", result.Name, i, d)
	}
}

func maxAbsDiff(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	d := 0.0
	for i := range a {
		d = math.Max(d, math.Abs(a[i]-b[i]))
	}
	return d
}
