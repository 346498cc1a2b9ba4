package dataspace

import (
	"fmt"

	"github.com/hupe1980/cubestore/hypercube"
)

// Dataspace is an immutable view over a region of a dataset.
type Dataspace struct {
	typ    Type
	size   []int64
	offset []int64
	stride []int64
}

// New returns a contiguous dataspace. A nil offset means the origin.
func New(typ Type, size, offset []int64) (*Dataspace, error) {
	if typ.Size() == 0 {
		return nil, fmt.Errorf("%w: unknown element type %d", ErrInvalidArgument, typ)
	}
	if len(size) == 0 {
		return nil, fmt.Errorf("%w: zero dimensions", ErrInvalidArgument)
	}
	if offset == nil {
		offset = make([]int64, len(size))
	}
	if len(offset) != len(size) {
		return nil, fmt.Errorf("%w: %d offsets for %d dimensions", ErrInvalidArgument, len(offset), len(size))
	}
	for i, s := range size {
		if s < 0 {
			return nil, fmt.Errorf("%w: negative size %d in dimension %d", ErrInvalidArgument, s, i)
		}
	}
	return &Dataspace{
		typ:    typ,
		size:   append([]int64(nil), size...),
		offset: append([]int64(nil), offset...),
	}, nil
}

// MustNew is like New but panics on error.
func MustNew(typ Type, size, offset []int64) *Dataspace {
	d, err := New(typ, size, offset)
	if err != nil {
		panic(err)
	}
	return d
}

// FromHypercube returns a contiguous dataspace covering c.
func FromHypercube(typ Type, c hypercube.Hypercube) (*Dataspace, error) {
	return New(typ, c.Size(), c.Offset())
}

// WithStride returns a copy of d with an explicit element stride per dimension.
// A nil stride restores the contiguous layout.
func (d *Dataspace) WithStride(stride []int64) (*Dataspace, error) {
	if stride != nil && len(stride) != len(d.size) {
		return nil, fmt.Errorf("%w: %d strides for %d dimensions", ErrInvalidArgument, len(stride), len(d.size))
	}
	c := d.clone()
	if stride != nil {
		c.stride = append([]int64(nil), stride...)
	}
	return c, nil
}

// Subspace returns the region of d described by size and offset, in absolute
// coordinates. The region must lie inside d. The result shares d's type and
// explicit stride.
func (d *Dataspace) Subspace(size, offset []int64) (*Dataspace, error) {
	if len(size) != len(d.size) || len(offset) != len(d.size) {
		return nil, fmt.Errorf("%w: subspace of %d dimensions", ErrTypeMismatch, len(size))
	}
	for i := range size {
		if size[i] < 0 || offset[i] < d.offset[i] || offset[i]+size[i] > d.offset[i]+d.size[i] {
			return nil, fmt.Errorf("%w: dimension %d: [%d,%d) outside [%d,%d)",
				ErrInvalidArgument, i, offset[i], offset[i]+size[i], d.offset[i], d.offset[i]+d.size[i])
		}
	}
	c := d.clone()
	c.size = append([]int64(nil), size...)
	c.offset = append([]int64(nil), offset...)
	return c, nil
}

// Contiguous returns a copy of d without an explicit stride.
func (d *Dataspace) Contiguous() *Dataspace {
	c := d.clone()
	c.stride = nil
	return c
}

func (d *Dataspace) clone() *Dataspace {
	c := &Dataspace{
		typ:    d.typ,
		size:   append([]int64(nil), d.size...),
		offset: append([]int64(nil), d.offset...),
	}
	if d.stride != nil {
		c.stride = append([]int64(nil), d.stride...)
	}
	return c
}

// Type returns the element type.
func (d *Dataspace) Type() Type { return d.typ }

// Dims returns the number of dimensions.
func (d *Dataspace) Dims() int { return len(d.size) }

// Size returns a copy of the per-dimension sizes.
func (d *Dataspace) Size() []int64 { return append([]int64(nil), d.size...) }

// Offset returns a copy of the per-dimension offsets.
func (d *Dataspace) Offset() []int64 { return append([]int64(nil), d.offset...) }

// Stride returns a copy of the explicit stride, or nil for a contiguous layout.
func (d *Dataspace) Stride() []int64 {
	if d.stride == nil {
		return nil
	}
	return append([]int64(nil), d.stride...)
}

// EffectiveStride returns the element stride of every dimension, deriving the
// row-major stride when none is set.
func (d *Dataspace) EffectiveStride() []int64 {
	if d.stride != nil {
		return append([]int64(nil), d.stride...)
	}
	stride := make([]int64, len(d.size))
	acc := int64(1)
	for i := len(d.size) - 1; i >= 0; i-- {
		stride[i] = acc
		acc *= d.size[i]
	}
	return stride
}

// IsContiguous reports whether the layout is dense row-major.
func (d *Dataspace) IsContiguous() bool {
	if d.stride == nil {
		return true
	}
	acc := int64(1)
	for i := len(d.size) - 1; i >= 0; i-- {
		if d.size[i] > 1 && d.stride[i] != acc {
			return false
		}
		acc *= d.size[i]
	}
	return true
}

// ElementCount returns the number of logical elements.
func (d *Dataspace) ElementCount() int64 {
	n := int64(1)
	for _, s := range d.size {
		n *= s
	}
	return n
}

// ByteSize returns the number of bytes of the logical elements.
func (d *Dataspace) ByteSize() int64 { return d.ElementCount() * d.typ.Size() }

// BufferSize returns the number of bytes a buffer laid out by d must hold.
func (d *Dataspace) BufferSize() int64 {
	lo, hi, ok := d.span()
	if !ok {
		return 0
	}
	return (hi - lo + 1) * d.typ.Size()
}

// span returns the lowest and highest element index addressed by d.
func (d *Dataspace) span() (lo, hi int64, ok bool) {
	stride := d.EffectiveStride()
	for i, s := range d.size {
		if s == 0 {
			return 0, 0, false
		}
		ext := (s - 1) * stride[i]
		if ext < 0 {
			lo += ext
		} else {
			hi += ext
		}
	}
	return lo, hi, true
}

// Extents returns the region covered by d.
func (d *Dataspace) Extents() hypercube.Hypercube {
	return hypercube.FromOffsetSize(d.offset, d.size)
}

// Equal reports whether d and o have the same type, region and effective layout.
func (d *Dataspace) Equal(o *Dataspace) bool {
	if d.typ != o.typ || len(d.size) != len(o.size) {
		return false
	}
	ds, os := d.EffectiveStride(), o.EffectiveStride()
	for i := range d.size {
		if d.size[i] != o.size[i] || d.offset[i] != o.offset[i] || ds[i] != os[i] {
			return false
		}
	}
	return true
}

func (d *Dataspace) String() string {
	return fmt.Sprintf("%s%v", d.typ, d.Extents())
}
