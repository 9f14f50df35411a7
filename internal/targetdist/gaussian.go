package targetdist

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

func init() {
	Register(Registration{
		Name:        "GAUSSIAN",
		Description: "weighted sum of axis-aligned normal densities",
		Keys: withPolicies([]string{KeyCenters, KeySigmas, KeyWeights},
			KeyWellTemperedFactor, KeyShiftToZero, KeyNormalize, KeyBiasCutoff, KeyFermiLambda),
		New: newGaussian,
	})
}

type gaussian struct {
	centers [][]float64
	sigmas  [][]float64
	weights []float64
}

func newGaussian(s Spec, _ Builder) (Node, error) {
	const name = "GAUSSIAN"
	if len(s.Centers) == 0 {
		return nil, errorf(name, ErrConfiguration, "%s is required", KeyCenters)
	}
	if len(s.Sigmas) != len(s.Centers) {
		return nil, errorf(name, ErrConfiguration, "%d %s for %d %s", len(s.Sigmas), KeySigmas, len(s.Centers), KeyCenters)
	}
	dim := len(s.Centers[0])
	if dim == 0 {
		return nil, errorf(name, ErrConfiguration, "empty center")
	}
	for k := range s.Centers {
		if len(s.Centers[k]) != dim {
			return nil, errorf(name, ErrDimensionMismatch, "center %d has %d coordinates, want %d", k, len(s.Centers[k]), dim)
		}
		if len(s.Sigmas[k]) != dim {
			return nil, errorf(name, ErrDimensionMismatch, "sigma %d has %d entries, want %d", k, len(s.Sigmas[k]), dim)
		}
		for _, sg := range s.Sigmas[k] {
			if !(sg > 0) {
				return nil, errorf(name, ErrConfiguration, "sigma %d must be positive, got %g", k, sg)
			}
		}
	}
	weights, err := normalizedWeights(name, s.Weights, len(s.Centers))
	if err != nil {
		return nil, err
	}
	return &gaussian{centers: s.Centers, sigmas: s.Sigmas, weights: weights}, nil
}

func (g *gaussian) Dimension() int             { return len(g.centers[0]) }
func (g *gaussian) Dynamic() bool              { return false }
func (g *gaussian) Requirements() Requirements { return Requirements{} }

func (g *gaussian) Value(point []float64) (float64, error) {
	if len(point) != g.Dimension() {
		return 0, errorf("GAUSSIAN", ErrDimensionMismatch, "point has %d coordinates, want %d", len(point), g.Dimension())
	}
	sum := 0.0
	for k, c := range g.centers {
		v := g.weights[k]
		for i, x := range point {
			z := (x - c[i]) / g.sigmas[k][i]
			v *= math.Exp(-0.5*z*z) / (math.Sqrt(2*math.Pi) * g.sigmas[k][i])
		}
		sum += v
	}
	return sum, nil
}

func (g *gaussian) UpdateGrid(p *Pass) error {
	return fillPointwise(p, g.Value)
}

// normalizedWeights returns n weights summing to 1. Missing weights default
// to equal shares.
func normalizedWeights(name string, weights []float64, n int) ([]float64, error) {
	if len(weights) == 0 {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != n {
		return nil, errorf(name, ErrConfiguration, "%d %s for %d components", len(weights), KeyWeights, n)
	}
	if m := floats.Min(weights); m < 0 {
		return nil, errorf(name, ErrConfiguration, "negative weight %g", m)
	}
	sum := floats.Sum(weights)
	if !(sum > 0) {
		return nil, errorf(name, ErrConfiguration, "weights sum to %g", sum)
	}
	out := make([]float64, n)
	for i, w := range weights {
		out[i] = w / sum
	}
	return out, nil
}
