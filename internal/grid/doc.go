// Package grid provides the rectangular multidimensional value grid that the
// target distribution machinery is built on.
//
// A Field covers the domain [min,max] of each Axis. A non-periodic axis with
// n bins carries n+1 points (both boundaries included); a periodic axis
// carries n points because the upper boundary coincides with the lower one.
// Cells are addressed by a flat index in which the first axis varies fastest.
//
// Integration uses per-cell quadrature weights (trapezoidal along each
// non-periodic axis), and every accumulation runs in flat-index order so that
// repeated runs produce bit-identical sums.
package grid
