package simulation

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nvandessel/targetdist/internal/constants"
	"github.com/nvandessel/targetdist/internal/grid"
	"github.com/nvandessel/targetdist/internal/store"
	"github.com/nvandessel/targetdist/internal/targetdist"
)

// Runner drives engines through scenarios against a real SQLite grid store.
type Runner struct {
	t     *testing.T
	store *store.SQLiteStore
	opts  []targetdist.Option
}

// NewRunner creates a runner with an isolated SQLite store and sandboxed
// HOME directory. Extra options are passed to every engine it builds.
func NewRunner(t *testing.T, opts ...targetdist.Option) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(tmpDir, "grids.db"))
	if err != nil {
		t.Fatalf("NewRunner: failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Runner{t: t, store: s, opts: opts}
}

// Store returns the runner's grid store.
func (r *Runner) Store() store.GridStore { return r.store }

// collaborators holds the linked grids of one pass.
type collaborators struct {
	freeEnergy *grid.Field
	bias       *grid.Field
	biasNoCut  *grid.Field
}

func (r *Runner) newCollaborators(axes []grid.Axis) collaborators {
	r.t.Helper()
	mk := func(name string) *grid.Field {
		f, err := grid.New(name, axes)
		if err != nil {
			r.t.Fatalf("allocating %s grid: %v", name, err)
		}
		return f
	}
	return collaborators{
		freeEnergy: mk("free_energy"),
		bias:       mk("bias"),
		biasNoCut:  mk("bias_without_cutoff"),
	}
}

func (c collaborators) links(scenario Scenario, iteration int) targetdist.Links {
	var l targetdist.Links
	if scenario.FreeEnergy != nil {
		l.FreeEnergy = c.freeEnergy
	}
	if scenario.Bias != nil || (scenario.CoupleBias && iteration > 0) {
		l.Bias = c.bias
		l.BiasWithoutCutoff = c.biasNoCut
	}
	return l
}

// Run executes the scenario and returns the collected results.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()
	ctx := context.Background()

	opts := append([]targetdist.Option(nil), r.opts...)
	if scenario.Workers > 0 {
		opts = append(opts, targetdist.WithWorkers(scenario.Workers))
	}
	e, err := targetdist.New(scenario.Spec, opts...)
	if err != nil {
		r.t.Fatalf("%s: New: %v", scenario.Name, err)
	}
	r.t.Cleanup(func() { e.Close() })

	// Phase 1: allocate grids and link collaborators.
	if err := e.SetupGrids(scenario.Axes); err != nil {
		r.t.Fatalf("%s: SetupGrids: %v", scenario.Name, err)
	}
	primary := r.newCollaborators(scenario.Axes)
	var reweight collaborators
	if len(scenario.ReweightAxes) > 0 {
		if err := e.SetupReweightGrids(scenario.ReweightAxes); err != nil {
			r.t.Fatalf("%s: SetupReweightGrids: %v", scenario.Name, err)
		}
		reweight = r.newCollaborators(scenario.ReweightAxes)
	}
	e.LinkBiasContext(targetdist.FixedBeta(scenario.Beta))

	if scenario.RestartKey != "" {
		if err := e.RestartFrom(ctx, r.store, scenario.RestartKey); err != nil {
			r.t.Fatalf("%s: RestartFrom(%s): %v", scenario.Name, scenario.RestartKey, err)
		}
	}

	// Phase 2: iterate.
	iterations := make([]IterationResult, scenario.Iterations)
	for i := range iterations {
		r.fill(scenario, i, primary, e.LogGrid())
		links := primary.links(scenario, i)
		e.LinkGrids(targetdist.Primary, links)
		if e.ReweightActive() {
			r.fill(scenario, i, reweight, e.LogReweightGrid())
			e.LinkGrids(targetdist.Reweight, reweight.links(scenario, i))
		}
		if scenario.BeforeIteration != nil {
			scenario.BeforeIteration(i, e, r.store)
		}

		if err := e.Update(); err != nil {
			r.t.Fatalf("%s: iteration %d: Update: %v", scenario.Name, i, err)
		}
		iterations[i] = snapshot(i, e)
		if links.BiasWithoutCutoff != nil {
			iterations[i].BiasWithoutCutoff = links.BiasWithoutCutoff.Values()
		}

		if scenario.Checkpoint {
			r.checkpoint(ctx, scenario.Name, i, e)
		}
	}

	return SimulationResult{
		Name:       scenario.Name,
		Iterations: iterations,
		Engine:     e,
		Store:      r.store,
	}
}

// fill samples the scenario surfaces for iteration i into c. A coupled bias
// is built from the previous log target distribution. Biases are shifted so
// their maximum is zero.
func (r *Runner) fill(scenario Scenario, i int, c collaborators, logTarget *grid.Field) {
	if scenario.FreeEnergy != nil {
		c.freeEnergy.Each(func(idx int, p []float64) {
			c.freeEnergy.SetValue(idx, scenario.FreeEnergy(i, p))
		})
	}
	switch {
	case scenario.CoupleBias && i > 0:
		c.bias.Each(func(idx int, p []float64) {
			v := logTarget.Value(idx) / scenario.Beta
			if scenario.FreeEnergy != nil {
				v -= c.freeEnergy.Value(idx)
			}
			c.bias.SetValue(idx, v)
		})
	case scenario.Bias != nil:
		c.bias.Each(func(idx int, p []float64) {
			c.bias.SetValue(idx, scenario.Bias(i, p))
		})
	default:
		return
	}
	c.bias.SetMinToZero()
	c.bias.Shift(-c.bias.Max())
	if err := c.biasNoCut.CopyValues(c.bias); err != nil {
		r.t.Fatalf("copying bias: %v", err)
	}
}

func (r *Runner) checkpoint(ctx context.Context, name string, i int, e *targetdist.Engine) {
	r.t.Helper()
	if _, err := store.SaveEngine(ctx, r.store, e); err != nil {
		r.t.Fatalf("%s: iteration %d: SaveEngine: %v", name, i, err)
	}
	key := CheckpointKey(i)
	if err := r.store.Save(ctx, key, e.Grid()); err != nil {
		r.t.Fatalf("%s: iteration %d: Save(%s): %v", name, i, key, err)
	}
}

func snapshot(i int, e *targetdist.Engine) IterationResult {
	res := IterationResult{
		Index:    i,
		Values:   e.Grid().Values(),
		Log:      e.LogGrid().Values(),
		Integral: grid.Integrate(e.Grid()),
		Min:      e.Grid().Min(),
		Warnings: e.Warnings(),
	}
	if e.ReweightActive() {
		res.Reweight = e.ReweightGrid().Values()
	}
	return res
}

// CheckpointKey names the per-iteration checkpoint written by a scenario
// with Checkpoint set.
func CheckpointKey(iteration int) string {
	return fmt.Sprintf("%s.%d", constants.KeyTargetDist, iteration)
}
