package grid

import "errors"

var (
	// ErrNoAxes indicates a field was requested without any axis.
	ErrNoAxes = errors.New("grid: at least one axis is required")
	// ErrBadAxis indicates an axis with an empty name, non-positive bin count or max <= min.
	ErrBadAxis = errors.New("grid: invalid axis")
	// ErrShapeMismatch indicates two fields (or a value slice) do not share a shape.
	ErrShapeMismatch = errors.New("grid: shape mismatch")
	// ErrUnknownAxis indicates a projection or lookup referenced an axis the field does not have.
	ErrUnknownAxis = errors.New("grid: unknown axis")
	// ErrOutOfDomain indicates a point lies outside a non-periodic axis range.
	ErrOutOfDomain = errors.New("grid: point outside domain")
	// ErrFormat indicates a malformed persisted grid.
	ErrFormat = errors.New("grid: malformed grid data")
)
