package targetdist

import (
	"math"

	"github.com/nvandessel/targetdist/internal/constants"
)

const wellTemperedName = "WELL_TEMPERED"

func init() {
	Register(Registration{
		Name:        wellTemperedName,
		Description: "exp(-(beta/gamma) F(s)) from the linked free energy grid",
		Keys:        withPolicies([]string{KeyBiasFactor}, KeyBiasCutoff, KeyFermiLambda),
		New:         newWellTempered,
	})
}

type wellTempered struct {
	biasFactor float64
}

func newWellTempered(s Spec, _ Builder) (Node, error) {
	if s.BiasFactor == 0 {
		return nil, errorf(wellTemperedName, ErrConfiguration, "%s is required", KeyBiasFactor)
	}
	if !(s.BiasFactor > constants.MinBiasFactor) {
		return nil, errorf(wellTemperedName, ErrConfiguration, "%s must be larger than %g, got %g",
			KeyBiasFactor, constants.MinBiasFactor, s.BiasFactor)
	}
	return &wellTempered{biasFactor: s.BiasFactor}, nil
}

func (w *wellTempered) Dimension() int             { return 0 }
func (w *wellTempered) Dynamic() bool              { return true }
func (w *wellTempered) Requirements() Requirements { return Requirements{FreeEnergy: true} }

func (w *wellTempered) Value([]float64) (float64, error) {
	return 0, errorf(wellTemperedName, ErrPointwiseUnsupported, "values follow the free energy grid")
}

func (w *wellTempered) UpdateGrid(p *Pass) error {
	beta, err := p.Beta()
	if err != nil {
		return err
	}
	fe, err := p.FreeEnergy()
	if err != nil {
		return err
	}
	betaPrime := beta / w.biasFactor
	values, err := evaluateCells(p.Grid, p.workers, func() cellFunc {
		return func(idx int, _ []float64) (float64, error) {
			return math.Exp(-betaPrime * fe.Value(idx)), nil
		}
	})
	if err != nil {
		return err
	}
	mass := storeMass(p.Grid, values)
	if !(mass > 0) {
		return errorf(wellTemperedName, ErrNormalizationFailure, "integrates to %g", mass)
	}
	p.Grid.Scale(1 / mass)
	return nil
}
