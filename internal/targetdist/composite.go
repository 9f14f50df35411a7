package targetdist

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

const compositeName = "LINEAR_COMBINATION"

func init() {
	Register(Registration{
		Name:        compositeName,
		Description: "weighted sum of two or more child distributions",
		Keys: withPolicies([]string{KeyDistributions, KeyWeights},
			KeyWellTemperedFactor, KeyNormalize, KeyBiasCutoff, KeyFermiLambda),
		New: newComposite,
	})
}

// composite owns its children. Each child runs its own full pipeline for a
// pass before the weighted sum is taken.
type composite struct {
	engines []*Engine
	weights []float64
}

func newComposite(s Spec, b Builder) (Node, error) {
	switch len(s.Distributions) {
	case 0:
		return nil, errorf(compositeName, ErrConfiguration, "no %s given", KeyDistributions)
	case 1:
		return nil, errorf(compositeName, ErrConfiguration, "a combination of one distribution makes no sense")
	}
	weights, err := normalizedWeights(compositeName, s.Weights, len(s.Distributions))
	if err != nil {
		return nil, err
	}
	c := &composite{weights: weights}
	dim := 0
	for i, cs := range s.Distributions {
		child, err := b.Build(cs)
		if err != nil {
			c.close()
			return nil, fmt.Errorf("%s: child %d: %w", compositeName, i+1, err)
		}
		child.name = fmt.Sprintf("%s[%d]", child.name, i+1)
		if d := child.Dimension(); d > 0 {
			if dim > 0 && d != dim {
				child.Close()
				c.close()
				return nil, errorf(compositeName, ErrDimensionMismatch, "child %d has dimension %d, earlier children %d", i+1, d, dim)
			}
			dim = d
		}
		c.engines = append(c.engines, child)
	}
	return c, nil
}

func (c *composite) close() {
	for _, e := range c.engines {
		e.Close()
	}
}

func (c *composite) children() []*Engine { return c.engines }

func (c *composite) Dimension() int {
	for _, e := range c.engines {
		if d := e.Dimension(); d > 0 {
			return d
		}
	}
	return 0
}

func (c *composite) Dynamic() bool {
	for _, e := range c.engines {
		if e.Dynamic() {
			return true
		}
	}
	return false
}

func (c *composite) Requirements() Requirements {
	var r Requirements
	for _, e := range c.engines {
		r = r.Or(e.Requirements(Primary))
	}
	return r
}

func (c *composite) Value([]float64) (float64, error) {
	return 0, errorf(compositeName, ErrPointwiseUnsupported, "combinations are evaluated on grids only")
}

func (c *composite) UpdateGrid(p *Pass) error {
	sources := make([][]float64, len(c.engines))
	for i, e := range c.engines {
		if err := e.runPass(p.Kind); err != nil {
			return err
		}
		sources[i] = e.pair(p.Kind).value.Values()
	}
	values := make([]float64, p.Grid.Size())
	for i, w := range c.weights {
		floats.AddScaled(values, w, sources[i])
	}
	storeMass(p.Grid, values)
	return nil
}
