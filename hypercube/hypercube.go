package hypercube

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Hypercube is an axis-aligned box: one Range per dimension.
//
// A Hypercube is immutable; accessors return copies.
type Hypercube struct {
	ranges []Range
}

// New returns a cube over the given ranges.
func New(ranges ...Range) Hypercube {
	return Hypercube{ranges: append([]Range(nil), ranges...)}
}

// FromOffsetSize projects an offset/size pair onto a cube.
func FromOffsetSize(offset, size []int64) Hypercube {
	if len(offset) != len(size) {
		panic(&DimensionMismatchError{Want: len(offset), Got: len(size)})
	}
	r := make([]Range, len(offset))
	for i := range offset {
		r[i] = Range{Start: offset[i], End: offset[i] + size[i]}
	}
	return Hypercube{ranges: r}
}

// Dims returns the dimensionality.
func (c Hypercube) Dims() int { return len(c.ranges) }

// Range returns the extent along dimension i.
func (c Hypercube) Range(i int) Range { return c.ranges[i] }

// Ranges returns a copy of all extents.
func (c Hypercube) Ranges() []Range { return append([]Range(nil), c.ranges...) }

// Offset returns the start coordinate of every dimension.
func (c Hypercube) Offset() []int64 {
	off := make([]int64, len(c.ranges))
	for i, r := range c.ranges {
		off[i] = r.Start
	}
	return off
}

// Size returns the extent length of every dimension.
func (c Hypercube) Size() []int64 {
	size := make([]int64, len(c.ranges))
	for i, r := range c.ranges {
		size[i] = r.Size()
	}
	return size
}

// Volume returns the number of elements in c.
func (c Hypercube) Volume() int64 {
	if len(c.ranges) == 0 {
		return 0
	}
	v := int64(1)
	for _, r := range c.ranges {
		v *= r.Size()
	}
	return v
}

// IsEmpty reports whether c has zero volume.
func (c Hypercube) IsEmpty() bool {
	if len(c.ranges) == 0 {
		return true
	}
	for _, r := range c.ranges {
		if r.IsEmpty() {
			return true
		}
	}
	return false
}

// Equal reports whether c and o describe the same box.
func (c Hypercube) Equal(o Hypercube) bool {
	if len(c.ranges) != len(o.ranges) {
		return false
	}
	for i := range c.ranges {
		if c.ranges[i] != o.ranges[i] {
			return false
		}
	}
	return true
}

// Touches reports whether, in every dimension, the extents of c and o overlap
// or one ends exactly where the other starts.
func (c Hypercube) Touches(o Hypercube) bool {
	mustMatch(c, o)
	for i := range c.ranges {
		if !c.ranges[i].Touches(o.ranges[i]) {
			return false
		}
	}
	return true
}

// Intersects reports whether c and o share a region of positive volume.
func (c Hypercube) Intersects(o Hypercube) bool {
	mustMatch(c, o)
	for i := range c.ranges {
		if !c.ranges[i].Intersects(o.ranges[i]) {
			return false
		}
	}
	return true
}

// Intersection returns the common region of c and o. ok is false when they do
// not intersect.
func (c Hypercube) Intersection(o Hypercube) (res Hypercube, ok bool) {
	mustMatch(c, o)
	r := make([]Range, len(c.ranges))
	for i := range c.ranges {
		r[i] = Intersection(c.ranges[i], o.ranges[i])
		if r[i].IsEmpty() {
			return Hypercube{}, false
		}
	}
	return Hypercube{ranges: r}, true
}

// Overlap returns the volume of the intersection of c and o.
func (c Hypercube) Overlap(o Hypercube) int64 {
	mustMatch(c, o)
	v := int64(1)
	for i := range c.ranges {
		s := Intersection(c.ranges[i], o.ranges[i]).Size()
		if s == 0 {
			return 0
		}
		v *= s
	}
	return v
}

// Contains reports whether o lies entirely within c.
func (c Hypercube) Contains(o Hypercube) bool {
	mustMatch(c, o)
	for i := range c.ranges {
		if o.ranges[i].Start < c.ranges[i].Start || o.ranges[i].End > c.ranges[i].End {
			return false
		}
	}
	return true
}

// ShapeSimilarity scores how closely the extents of c match those of o.
//
// The score is the product over dimensions of 2*min(a,b)/(a+b); 1 means an
// identical shape. Dimensions where both extents are zero are skipped.
func (c Hypercube) ShapeSimilarity(o Hypercube) float64 {
	mustMatch(c, o)
	sim := 1.0
	for i := range c.ranges {
		a := float64(c.ranges[i].Size())
		b := float64(o.ranges[i].Size())
		if a+b == 0 {
			continue
		}
		sim *= 2 * min(a, b) / (a + b)
	}
	return sim
}

// Hash returns a 64-bit digest of the box.
func (c Hypercube) Hash() uint64 {
	buf := make([]byte, 0, 16*len(c.ranges))
	for _, r := range c.ranges {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Start))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(r.End))
	}
	return xxhash.Sum64(buf)
}

func (c Hypercube) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, r := range c.ranges {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d-%d", r.Start, r.End)
	}
	sb.WriteByte('}')
	return sb.String()
}
