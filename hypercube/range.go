package hypercube

import "fmt"

// Range is the half-open integer interval [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Size returns the number of coordinates in r, or 0 if r is empty or crossed.
func (r Range) Size() int64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// IsEmpty reports whether r contains no coordinate.
func (r Range) IsEmpty() bool { return r.Start >= r.End }

// Intersects reports whether a and b share at least one coordinate.
func (r Range) Intersects(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

// Touches reports whether r and o overlap or one ends where the other starts.
func (r Range) Touches(o Range) bool {
	return r.Intersects(o) || r.End == o.Start || o.End == r.Start
}

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// Intersection returns {max(a.Start, b.Start), min(a.End, b.End)}.
//
// The result is not normalized: when a and b do not overlap, Start may exceed End.
// Callers must check IsEmpty.
func Intersection(a, b Range) Range {
	return Range{Start: max(a.Start, b.Start), End: min(a.End, b.End)}
}
