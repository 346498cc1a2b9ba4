// Package dataspace describes rectangular views over a dataset's logical
// coordinate space and moves data between buffers laid out by such views.
//
// A Dataspace has an element Type, a per-dimension size and offset, and an
// optional stride (in elements). Without a stride the layout is contiguous
// row-major. Strides may be negative or permuted; a buffer for a strided
// space starts at its lowest addressed element.
package dataspace
