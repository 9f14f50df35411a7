package targetdist

import "slices"

// Keyword names accepted in a Spec. Each distribution type accepts a subset;
// setting a keyword a type does not accept is a configuration error.
const (
	KeyWeights            = "weights"
	KeyDistributions      = "distributions"
	KeyBiasFactor         = "bias_factor"
	KeyFunction           = "function"
	KeyCenters            = "centers"
	KeySigmas             = "sigmas"
	KeyWellTemperedFactor = "welltempered_factor"
	KeyShiftToZero        = "shift_to_zero"
	KeyNormalize          = "normalize"
	KeyBiasCutoff         = "bias_cutoff"
	KeyFermiLambda        = "fermi_lambda"
)

// policyKeys are the keywords handled by the Engine rather than the variant.
var policyKeys = []string{KeyBiasCutoff, KeyFermiLambda, KeyWellTemperedFactor, KeyShiftToZero, KeyNormalize}

// Spec is the declarative description of a target distribution, usually
// decoded from the "distribution" section of the YAML config.
type Spec struct {
	Type string `json:"type" yaml:"type"`

	// LINEAR_COMBINATION, GAUSSIAN
	Weights []float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	// LINEAR_COMBINATION
	Distributions []Spec `json:"distributions,omitempty" yaml:"distributions,omitempty"`
	// WELL_TEMPERED
	BiasFactor float64 `json:"bias_factor,omitempty" yaml:"bias_factor,omitempty"`
	// MATHEVAL_DIST
	Function string `json:"function,omitempty" yaml:"function,omitempty"`
	// GAUSSIAN
	Centers [][]float64 `json:"centers,omitempty" yaml:"centers,omitempty"`
	Sigmas  [][]float64 `json:"sigmas,omitempty" yaml:"sigmas,omitempty"`

	// Engine policies
	WellTemperedFactor float64 `json:"welltempered_factor,omitempty" yaml:"welltempered_factor,omitempty"`
	ShiftToZero        bool    `json:"shift_to_zero,omitempty" yaml:"shift_to_zero,omitempty"`
	Normalize          bool    `json:"normalize,omitempty" yaml:"normalize,omitempty"`
	BiasCutoff         float64 `json:"bias_cutoff,omitempty" yaml:"bias_cutoff,omitempty"`
	FermiLambda        float64 `json:"fermi_lambda,omitempty" yaml:"fermi_lambda,omitempty"`
}

// setKeys lists the keywords carrying a non-zero value, in declaration order.
func (s Spec) setKeys() []string {
	var keys []string
	add := func(set bool, key string) {
		if set {
			keys = append(keys, key)
		}
	}
	add(len(s.Weights) > 0, KeyWeights)
	add(len(s.Distributions) > 0, KeyDistributions)
	add(s.BiasFactor != 0, KeyBiasFactor)
	add(s.Function != "", KeyFunction)
	add(len(s.Centers) > 0, KeyCenters)
	add(len(s.Sigmas) > 0, KeySigmas)
	add(s.WellTemperedFactor != 0, KeyWellTemperedFactor)
	add(s.ShiftToZero, KeyShiftToZero)
	add(s.Normalize, KeyNormalize)
	add(s.BiasCutoff != 0, KeyBiasCutoff)
	add(s.FermiLambda != 0, KeyFermiLambda)
	return keys
}

// validatePolicies rejects contradictory engine policy combinations.
func (s Spec) validatePolicies() error {
	switch {
	case s.BiasCutoff < 0:
		return errorf(s.Type, ErrConfiguration, "%s must be positive, got %g", KeyBiasCutoff, s.BiasCutoff)
	case s.FermiLambda < 0:
		return errorf(s.Type, ErrConfiguration, "%s must be positive, got %g", KeyFermiLambda, s.FermiLambda)
	case s.WellTemperedFactor < 0:
		return errorf(s.Type, ErrConfiguration, "%s must be positive, got %g", KeyWellTemperedFactor, s.WellTemperedFactor)
	case s.BiasCutoff > 0 && s.WellTemperedFactor > 0:
		return errorf(s.Type, ErrConfiguration, "%s cannot be combined with %s", KeyWellTemperedFactor, KeyBiasCutoff)
	case s.BiasCutoff > 0 && s.ShiftToZero:
		return errorf(s.Type, ErrConfiguration, "%s cannot be combined with %s", KeyShiftToZero, KeyBiasCutoff)
	case s.BiasCutoff > 0 && s.Normalize:
		return errorf(s.Type, ErrConfiguration, "%s cannot be combined with %s", KeyNormalize, KeyBiasCutoff)
	case s.Normalize && s.ShiftToZero:
		return errorf(s.Type, ErrConfiguration, "%s cannot be combined with %s", KeyNormalize, KeyShiftToZero)
	case s.FermiLambda > 0 && s.BiasCutoff == 0:
		return errorf(s.Type, ErrConfiguration, "%s requires %s", KeyFermiLambda, KeyBiasCutoff)
	}
	return nil
}

// checkKeys rejects keywords the registration does not accept.
func (s Spec) checkKeys(r Registration) error {
	for _, k := range s.setKeys() {
		if !slices.Contains(r.Keys, k) {
			return errorf(s.Type, ErrConfiguration, "keyword %s is not understood by this distribution", k)
		}
	}
	return nil
}
