// Package constants provides named constants used throughout the targetdist codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Sanity check thresholds applied to the primary grid after each update.
const (
	// NormalizationTolerance is the allowed drift of the integrated mass from 1.
	// A primary grid integrating outside [1-tol, 1+tol] triggers a warning.
	NormalizationTolerance = 0.1

	// NonnegativeThreshold is the lowest cell value tolerated without a warning.
	NonnegativeThreshold = -0.02
)

// Bias cutoff switching constants
const (
	// DefaultFermiLambda is the steepness of the Fermi switching function
	// used when a bias cutoff is given without an explicit lambda.
	DefaultFermiLambda = 10.0

	// FermiExpMax caps the exponent of the Fermi switching function.
	FermiExpMax = 100.0
)

// Well-tempered constants
const (
	// MinBiasFactor is the exclusive lower bound of the well-tempered bias factor.
	MinBiasFactor = 1.0
)

// Runtime defaults
const (
	// DefaultWorkers is the per-cell evaluation parallelism when none is configured.
	DefaultWorkers = 1

	// MinCellsPerWorker keeps tiny grids on a single goroutine.
	MinCellsPerWorker = 256

	// DefaultCheckpointKeep is the number of compressed checkpoints retained per key.
	DefaultCheckpointKeep = 5
)

// Grid store keys used when exporting engine grids.
const (
	KeyTargetDist    = "targetdist"
	KeyLogTargetDist = "log_targetdist"
	KeyReweight      = "reweight"
	KeyLogReweight   = "log_reweight"
	KeyMarginal      = "targetdist_marginal"
)
