// Package simulation is a multi-iteration test harness for target
// distribution engines.
//
// A Scenario describes a distribution, its grids and how the collaborator
// grids (free energy and bias) evolve from one iteration to the next. The
// Runner drives a real Engine through those iterations, optionally
// checkpointing every iteration into an isolated SQLite GridStore, and
// records a snapshot per iteration for property assertions.
//
// Each Runner gets its own t.TempDir() and a sandboxed HOME.
//
// Usage:
//
//	func TestWellTemperedTracksFreeEnergy(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:       "wt-tracking",
//	        Spec:       targetdist.Spec{Type: "WELL_TEMPERED", BiasFactor: 10},
//	        Axes:       []grid.Axis{{Name: "s1", Min: -2, Max: 2, Bins: 80}},
//	        Beta:       1,
//	        FreeEnergy: func(i int, p []float64) float64 { ... },
//	        Iterations: 20,
//	    })
//	    simulation.AssertNormalized(t, result, 1e-9, 0)
//	}
package simulation
