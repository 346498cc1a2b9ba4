// Package hypercube implements the N-dimensional geometry used to index fragments:
// half-open integer ranges, axis-aligned boxes built from them, and a Set of
// pairwise-disjoint boxes that tracks an arbitrary rectilinear region.
//
// All Range and Hypercube operations are pure. Combining cubes of different
// dimensionality is a programming error and panics with a *DimensionMismatchError.
package hypercube
