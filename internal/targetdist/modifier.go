package targetdist

import "math"

// Modifier is a pointwise transform applied to freshly evaluated values.
// The engine re-normalizes after each modifier.
type Modifier interface {
	Name() string
	Modify(value float64, point []float64) float64
}

// WellTemperedModifier raises values to the power 1/Factor, flattening a
// distribution as Factor grows.
type WellTemperedModifier struct {
	Factor float64
}

// NewWellTemperedModifier returns a modifier with factor gamma, which must be
// positive.
func NewWellTemperedModifier(gamma float64) (WellTemperedModifier, error) {
	if !(gamma > 0) {
		return WellTemperedModifier{}, errorf("modifier", ErrConfiguration, "%s must be positive, got %g", KeyWellTemperedFactor, gamma)
	}
	return WellTemperedModifier{Factor: gamma}, nil
}

func (m WellTemperedModifier) Name() string { return "welltempered" }

func (m WellTemperedModifier) Modify(value float64, _ []float64) float64 {
	return math.Pow(value, 1/m.Factor)
}
