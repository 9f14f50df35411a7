package targetdist

import (
	"fmt"
	"strings"

	"github.com/nvandessel/targetdist/internal/constants"
	"github.com/nvandessel/targetdist/internal/grid"
)

// MarginalName returns the grid name used for the marginal over args.
func MarginalName(args []string) string {
	return constants.KeyMarginal + "_" + strings.Join(args, "_")
}

// Marginal integrates the primary grid over every axis not named in args.
// The result keeps args in the order given and preserves the total mass.
func (e *Engine) Marginal(args []string) (*grid.Field, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if e.primary.value == nil {
		return nil, errorf(e.name, ErrInvalidState, "marginal before grid setup")
	}
	m, err := Marginal(e.primary.value, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}
	return m, nil
}

// Marginal projects f onto the named axes.
func Marginal(f *grid.Field, args []string) (*grid.Field, error) {
	if f.Dimension() < 2 {
		return nil, fmt.Errorf("marginal of a %d-dimensional grid: %w", f.Dimension(), ErrConfiguration)
	}
	m, err := f.Project(MarginalName(args), args)
	if err != nil {
		return nil, fmt.Errorf("marginal over %v: %w: %w", args, ErrConfiguration, err)
	}
	return m, nil
}
