package targetdist

import (
	"math"

	"github.com/nvandessel/targetdist/internal/constants"
)

// FermiSwitch smoothly switches a density off where the bias exceeds Cutoff.
type FermiSwitch struct {
	Cutoff float64
	Lambda float64
}

// NewFermiSwitch returns a switch for cutoff c. A zero lambda selects
// constants.DefaultFermiLambda.
func NewFermiSwitch(cutoff, lambda float64) FermiSwitch {
	if lambda == 0 {
		lambda = constants.DefaultFermiLambda
	}
	return FermiSwitch{Cutoff: cutoff, Lambda: lambda}
}

// Switch returns the switching value s for a bias value and the factor
// s - V ds/dr that converts the switched density into the cutoff target,
// with r = -V. The exponent is capped at constants.FermiExpMax.
func (f FermiSwitch) Switch(bias float64) (value, derivFactor float64) {
	r := -bias
	arg := math.Min(f.Lambda*(r-f.Cutoff), constants.FermiExpMax)
	s := 1 / (1 + math.Exp(arg))
	ds := -f.Lambda * s * (1 - s)
	return s, s - bias*ds
}
