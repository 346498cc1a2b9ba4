package hypercube

// Set is a region represented by pairwise-disjoint cubes.
//
// The zero value is an empty set. A Set is not safe for concurrent use.
type Set struct {
	cubes []Hypercube
}

// NewSet returns a set holding the union of cubes.
func NewSet(cubes ...Hypercube) *Set {
	s := &Set{}
	for _, c := range cubes {
		s.Add(c)
	}
	return s
}

// Len returns the number of member cubes.
func (s *Set) Len() int { return len(s.cubes) }

// IsEmpty reports whether the region is empty.
func (s *Set) IsEmpty() bool { return len(s.cubes) == 0 }

// Cubes returns the members. The slice must not be modified.
func (s *Set) Cubes() []Hypercube { return s.cubes }

// Volume returns the number of elements in the region.
func (s *Set) Volume() int64 {
	var v int64
	for _, c := range s.cubes {
		v += c.Volume()
	}
	return v
}

// Add unions c into the region. Only the parts of c not already covered are
// stored, so members stay disjoint.
func (s *Set) Add(c Hypercube) {
	if c.IsEmpty() {
		return
	}
	pieces := []Hypercube{c}
	for _, m := range s.cubes {
		var next []Hypercube
		for _, p := range pieces {
			next = subtractInto(next, p, m)
		}
		pieces = next
		if len(pieces) == 0 {
			return
		}
	}
	s.cubes = append(s.cubes, pieces...)
}

// Subtract removes c from the region. Every member intersecting c is split
// into at most 2*dims disjoint pieces along the faces of c.
func (s *Set) Subtract(c Hypercube) {
	out := make([]Hypercube, 0, len(s.cubes))
	for _, m := range s.cubes {
		out = subtractInto(out, m, c)
	}
	s.cubes = out
}

// Intersects reports whether any member intersects c.
func (s *Set) Intersects(c Hypercube) bool { return DoesIntersect(s.cubes, c) }

// Overlap returns the volume of the region that lies inside c.
func (s *Set) Overlap(c Hypercube) int64 {
	var v int64
	for _, m := range s.cubes {
		v += m.Overlap(c)
	}
	return v
}

// Clone returns an independent copy of s.
func (s *Set) Clone() *Set {
	return &Set{cubes: append([]Hypercube(nil), s.cubes...)}
}

// subtractInto appends the pieces of m outside c to dst.
func subtractInto(dst []Hypercube, m, c Hypercube) []Hypercube {
	if !m.Intersects(c) {
		return append(dst, m)
	}
	cur := m.Ranges()
	for i := range cur {
		cut := c.ranges[i]
		if cur[i].Start < cut.Start {
			piece := append([]Range(nil), cur...)
			piece[i].End = cut.Start
			dst = append(dst, Hypercube{ranges: piece})
			cur[i].Start = cut.Start
		}
		if cur[i].End > cut.End {
			piece := append([]Range(nil), cur...)
			piece[i].Start = cut.End
			dst = append(dst, Hypercube{ranges: piece})
			cur[i].End = cut.End
		}
	}
	return dst
}

// DoesIntersect reports whether any cube in list intersects c.
func DoesIntersect(list []Hypercube, c Hypercube) bool {
	for _, m := range list {
		if m.Intersects(c) {
			return true
		}
	}
	return false
}

// DoesCoverFully reports whether the union of list contains every element of c.
func DoesCoverFully(list []Hypercube, c Hypercube) bool {
	rest := []Hypercube{c}
	for _, m := range list {
		var next []Hypercube
		for _, r := range rest {
			next = subtractInto(next, r, m)
		}
		rest = next
		if len(rest) == 0 {
			return true
		}
	}
	return c.IsEmpty()
}
