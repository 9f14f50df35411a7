package simulation

import (
	"github.com/nvandessel/targetdist/internal/grid"
	"github.com/nvandessel/targetdist/internal/store"
	"github.com/nvandessel/targetdist/internal/targetdist"
)

// SurfaceFunc gives the value of a collaborator surface at point p during
// iteration i.
type SurfaceFunc func(i int, p []float64) float64

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name string
	Spec targetdist.Spec
	Axes []grid.Axis

	// ReweightAxes, when set, enables the reweight pass on these axes. The
	// collaborator surfaces are sampled on them as well.
	ReweightAxes []grid.Axis

	Beta       float64
	Iterations int
	Workers    int

	// FreeEnergy and Bias fill the linked collaborator grids before every
	// iteration. A nil surface leaves the grid unlinked.
	FreeEnergy SurfaceFunc
	Bias       SurfaceFunc

	// CoupleBias derives the bias from the previous iteration's target
	// distribution as V = -F - ln(p)/beta, the stationary bias of a
	// variationally enhanced sampling run. It overrides Bias after the
	// first iteration.
	CoupleBias bool

	// Checkpoint saves the engine grids to the runner's store after every
	// iteration under "<key>.<iteration>".
	Checkpoint bool

	// RestartKey, when set, restarts the engine from this store key after
	// grid setup and before the first iteration.
	RestartKey string

	// BeforeIteration, when non-nil, runs before each update.
	BeforeIteration func(i int, e *targetdist.Engine, s store.GridStore)
}

// IterationResult is the engine state after one update.
type IterationResult struct {
	Index    int
	Values   []float64
	Log      []float64
	Reweight []float64
	// BiasWithoutCutoff is the uncut bias linked for the update, nil when
	// no bias was linked.
	BiasWithoutCutoff []float64
	Integral          float64
	Min               float64
	Warnings          []targetdist.Warning
}

// SimulationResult captures all iterations and the runner's store.
type SimulationResult struct {
	Name       string
	Iterations []IterationResult
	Engine     *targetdist.Engine
	Store      store.GridStore
}

// Last returns the final iteration.
func (r SimulationResult) Last() IterationResult {
	return r.Iterations[len(r.Iterations)-1]
}
