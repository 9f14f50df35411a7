// Package targetdist builds, updates, normalizes and composes the target
// distribution: a probability density held on a grid.Field that a bias
// potential uses to steer sampling toward a desired density.
//
// An Engine owns one primary (value, log) grid pair and, when enabled, a
// mirrored (reweight, log reweight) pair with its own dimensions and
// collaborator grids. Each Update runs a fixed sequence of steps on the
// primary grid and repeats the value-producing steps on the reweight grid:
//
//	Evaluate -> Modify -> BiasCutoff | ShiftToZero | ForceNormalize
//	         -> CheckNormalization -> CheckNonnegative    (primary only)
//
// The distribution variant behind an Engine is a Node chosen by name from a
// registry populated at init time:
//
//	UNIFORM             constant density over the grid domain
//	GAUSSIAN            weighted sum of axis-aligned normal densities
//	LINEAR_COMBINATION  weighted sum of two or more child distributions
//	MATHEVAL_DIST       arbitrary expression in s1..sN, FE, beta and kBT
//	WELL_TEMPERED       exp(-(beta/gamma) F(s)) from a linked free energy grid
//
// Collaborator grids (bias, bias without cutoff, free energy and their
// reweight counterparts) are borrowed from the coordinating bias action and
// never modified or retained beyond the link.
package targetdist
