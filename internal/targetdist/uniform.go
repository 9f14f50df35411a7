package targetdist

import "github.com/nvandessel/targetdist/internal/grid"

func init() {
	Register(Registration{
		Name:        "UNIFORM",
		Description: "constant density over the grid domain",
		Keys:        withPolicies(nil, KeyWellTemperedFactor, KeyNormalize, KeyBiasCutoff, KeyFermiLambda),
		New: func(Spec, Builder) (Node, error) {
			return &uniform{}, nil
		},
	})
}

type uniform struct {
	inverseVolume float64
}

func (u *uniform) Dimension() int             { return 0 }
func (u *uniform) Dynamic() bool              { return false }
func (u *uniform) Requirements() Requirements { return Requirements{} }

func (u *uniform) setupGrids(axes []grid.Axis) error {
	vol := 1.0
	for _, a := range axes {
		vol *= a.Max - a.Min
	}
	u.inverseVolume = 1 / vol
	return nil
}

func (u *uniform) Value([]float64) (float64, error) {
	if u.inverseVolume == 0 {
		return 0, errorf("UNIFORM", ErrInvalidState, "domain unknown before grid setup")
	}
	return u.inverseVolume, nil
}

func (u *uniform) UpdateGrid(p *Pass) error {
	return fillPointwise(p, u.Value)
}

// fillPointwise evaluates fn at every grid point of the pass.
func fillPointwise(p *Pass, fn func([]float64) (float64, error)) error {
	values, err := evaluateCells(p.Grid, p.workers, func() cellFunc {
		return func(_ int, point []float64) (float64, error) { return fn(point) }
	})
	if err != nil {
		return err
	}
	storeMass(p.Grid, values)
	return nil
}
