package targetdist

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every error returned by this package wraps exactly one of
// them; test the kind with errors.Is. A fatal error leaves the engine's grids
// in an unspecified state and the engine must be discarded.
var (
	// ErrConfiguration indicates malformed or contradictory construction parameters.
	ErrConfiguration = errors.New("configuration error")
	// ErrDimensionMismatch indicates grids or children that do not share one dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrNormalizationFailure indicates a non-positive integrated mass.
	ErrNormalizationFailure = errors.New("normalization failure")
	// ErrNegativeValue indicates a negative raw density without zero-shift.
	ErrNegativeValue = errors.New("negative value")
	// ErrRestartMismatch indicates a missing or wrongly sized restart grid.
	ErrRestartMismatch = errors.New("restart mismatch")
	// ErrMissingCollaborator indicates a required collaborator grid or bias context was never linked.
	ErrMissingCollaborator = errors.New("missing collaborator")
	// ErrPointwiseUnsupported indicates direct evaluation of a variant that only works on grids.
	ErrPointwiseUnsupported = errors.New("pointwise evaluation unsupported")
	// ErrInvalidState indicates a call that is not allowed in the engine's current lifecycle state.
	ErrInvalidState = errors.New("invalid engine state")
)

func errorf(name string, kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", name, fmt.Sprintf(format, args...), kind)
}
