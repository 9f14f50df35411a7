package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/nvandessel/targetdist/internal/config"
	"github.com/nvandessel/targetdist/internal/grid"
	"github.com/nvandessel/targetdist/internal/logging"
	"github.com/nvandessel/targetdist/internal/pathutil"
	"github.com/nvandessel/targetdist/internal/store"
	"github.com/nvandessel/targetdist/internal/targetdist"
)

// session is a configured engine with its store, ready for updates.
type session struct {
	cfg    *config.Config
	engine *targetdist.Engine
	store  store.GridStore
	tracer *logging.TraceLogger
}

// openSession builds the engine described by cfg, allocates its grids and
// links the collaborator grids named in the config. freeEnergyKey, when
// set, links the primary free energy from the store instead of a file.
func openSession(ctx context.Context, cfg *config.Config, logOut io.Writer, freeEnergyKey string) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts, tracer := cfg.EngineOptions(logOut)
	s := &session{cfg: cfg, tracer: tracer}
	var err error
	if s.engine, err = targetdist.New(cfg.Distribution, opts...); err != nil {
		s.Close()
		return nil, err
	}
	if s.store, err = cfg.OpenStore(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to open grid store: %w", err)
	}

	if err := s.engine.SetupGrids(cfg.Grid.Axes); err != nil {
		s.Close()
		return nil, err
	}
	if cfg.ReweightGrid.Active() {
		if err := s.engine.SetupReweightGrids(cfg.ReweightGrid.Axes); err != nil {
			s.Close()
			return nil, err
		}
	}
	if beta := cfg.Bias.BetaValue(); beta > 0 {
		s.engine.LinkBiasContext(targetdist.FixedBeta(beta))
	}

	primary, err := readLinks(cfg.Grid)
	if err != nil {
		s.Close()
		return nil, err
	}
	if freeEnergyKey != "" {
		if primary.FreeEnergy, err = s.store.Load(ctx, freeEnergyKey); err != nil {
			s.Close()
			return nil, fmt.Errorf("loading free energy %s: %w", freeEnergyKey, err)
		}
	}
	s.engine.LinkGrids(targetdist.Primary, primary)

	if cfg.ReweightGrid.Active() {
		reweight, err := readLinks(cfg.ReweightGrid)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.engine.LinkGrids(targetdist.Reweight, reweight)
	}
	return s, nil
}

// run performs n updates, stopping early when ctx is cancelled, then saves
// the grids. With n == 0 the grids are saved as they are. It returns the
// number of completed updates and the keys saved.
func (s *session) run(ctx context.Context, n int) (int, []string, error) {
	done := 0
	for ; done < n; done++ {
		if ctx.Err() != nil {
			break
		}
		if err := s.engine.Update(); err != nil {
			return done, nil, err
		}
	}
	if n > 0 && done == 0 {
		return 0, nil, fmt.Errorf("interrupted before the first update")
	}
	keys, err := store.SaveEngine(context.WithoutCancel(ctx), s.store, s.engine)
	if err != nil {
		return done, keys, fmt.Errorf("failed to save grids: %w", err)
	}
	return done, keys, nil
}

// Close releases the engine, store and tracer.
func (s *session) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
	s.tracer.Close()
}

// summary describes the engine after a run.
type summary struct {
	Distribution string               `json:"distribution"`
	Iterations   int                  `json:"iterations"`
	Cells        int                  `json:"cells"`
	Integral     float64              `json:"integral"`
	Min          float64              `json:"min"`
	Max          float64              `json:"max"`
	Warnings     []targetdist.Warning `json:"warnings,omitempty"`
	Saved        []string             `json:"saved"`
	Store        string               `json:"store"`
	RunID        string               `json:"run_id,omitempty"`
}

func (s *session) summary(iterations int, saved []string) summary {
	g := s.engine.Grid()
	return summary{
		Distribution: s.engine.Description(),
		Iterations:   iterations,
		Cells:        g.Size(),
		Integral:     grid.Integrate(g),
		Min:          g.Min(),
		Max:          g.Max(),
		Warnings:     s.engine.Warnings(),
		Saved:        saved,
		Store:        s.cfg.Store.Kind,
		RunID:        s.tracer.RunID(),
	}
}

func printSummary(w io.Writer, sum summary) {
	fmt.Fprintf(w, "%s: %d update(s) on %d cells\n", sum.Distribution, sum.Iterations, sum.Cells)
	fmt.Fprintf(w, "  integral: %.6f  min: %.6g  max: %.6g\n", sum.Integral, sum.Min, sum.Max)
	for _, warn := range sum.Warnings {
		fmt.Fprintf(w, "  warning: %s on %s: %s\n", warn.Step, warn.Grid, warn.Message)
	}
	fmt.Fprintf(w, "  saved to %s store: %v\n", sum.Store, sum.Saved)
}

// readLinks reads the collaborator grid files named in g.
func readLinks(g config.GridConfig) (targetdist.Links, error) {
	var l targetdist.Links
	var err error
	if l.FreeEnergy, err = readGridFile(g.FreeEnergy); err != nil {
		return l, err
	}
	if l.Bias, err = readGridFile(g.Bias); err != nil {
		return l, err
	}
	if l.BiasWithoutCutoff, err = readGridFile(g.BiasWithoutCutoff); err != nil {
		return l, err
	}
	return l, nil
}

// readGridFile returns nil for an empty path.
func readGridFile(path string) (*grid.Field, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening grid %s: %w", pathutil.RedactPath(path), err)
	}
	defer f.Close()
	g, err := grid.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading grid %s: %w", pathutil.RedactPath(path), err)
	}
	return g, nil
}
