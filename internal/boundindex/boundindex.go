// Package boundindex keeps the start and end coordinates of a set of cubes
// along one dimension in a sorted array.
//
// Coordinates are stored baked: 2*coord for an end bound and 2*coord+1 for a
// start bound. At an equal coordinate end bounds therefore sort before start
// bounds, so a cube ending at x is found right before any cube starting at x.
package boundindex

import "sort"

const minCapacity = 8

// Entry is one bound of one cube.
type Entry struct {
	Bound int64
	Cube  int
}

// IsStart reports whether e is a start bound.
func (e Entry) IsStart() bool { return e.Bound&1 == 1 }

// Coord returns the unbaked coordinate of e.
func (e Entry) Coord() int64 { return e.Bound >> 1 }

// Bake encodes a coordinate and its bound kind.
func Bake(coord int64, isStart bool) int64 {
	if isStart {
		return 2*coord + 1
	}
	return 2 * coord
}

// Index is a sorted bound array for a single dimension.
type Index struct {
	entries []Entry
}

// Len returns the number of stored bounds.
func (x *Index) Len() int { return len(x.entries) }

// At returns the entry at position i.
func (x *Index) At(i int) Entry { return x.entries[i] }

// Lookup returns the position of the first entry whose baked bound is not
// less than bound. It returns Len() if there is none.
func (x *Index) Lookup(bound int64) int {
	return sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].Bound >= bound
	})
}

// Add inserts a bound of cube, keeping the array sorted. Entries with an equal
// bound keep their insertion order.
func (x *Index) Add(coord int64, isStart bool, cube int) {
	bound := Bake(coord, isStart)
	pos := x.Lookup(bound + 1)
	x.grow()
	x.entries = x.entries[:len(x.entries)+1]
	copy(x.entries[pos+1:], x.entries[pos:])
	x.entries[pos] = Entry{Bound: bound, Cube: cube}
}

// grow makes room for one more entry, doubling the capacity when full.
func (x *Index) grow() {
	if len(x.entries) < cap(x.entries) {
		return
	}
	c := 2 * cap(x.entries)
	if c < minCapacity {
		c = minCapacity
	}
	next := make([]Entry, len(x.entries), c)
	copy(next, x.entries)
	x.entries = next
}

// FindFirst returns the position of the first entry with exactly bound.
func (x *Index) FindFirst(bound int64) (int, bool) {
	pos := x.Lookup(bound)
	if pos < len(x.entries) && x.entries[pos].Bound == bound {
		return pos, true
	}
	return pos, false
}

// Next returns the position following pos if it holds the same bound.
func (x *Index) Next(pos int) (int, bool) {
	next := pos + 1
	if next < len(x.entries) && x.entries[next].Bound == x.entries[pos].Bound {
		return next, true
	}
	return next, false
}

// Run returns the cubes of all entries with exactly bound.
func (x *Index) Run(bound int64, dst []int) []int {
	for pos, ok := x.FindFirst(bound); ok; pos, ok = x.Next(pos) {
		dst = append(dst, x.entries[pos].Cube)
	}
	return dst
}
