// Package fragment registers the stored pieces of a dataset and selects the
// pieces needed to answer a read.
//
// A Set indexes fragment extents in a neighbour graph. MakeSetCoveringRegion
// walks that graph from the fragment most similar in shape to the query,
// tracking the still uncovered part of the query, and stops as soon as the
// query is covered.
package fragment
