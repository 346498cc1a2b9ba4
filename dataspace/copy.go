package dataspace

import (
	"fmt"
)

// plan is a reduced description of a copy between two layouts: one block of
// chunk bytes at srcOff/dstOff, repeated over the remaining dimensions with
// relative byte strides.
type plan struct {
	empty  bool
	chunk  int64
	srcOff int64
	dstOff int64
	size   []int64
	relSrc []int64
	relDst []int64
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func makePlan(src, dst *Dataspace) (plan, error) {
	if src.typ != dst.typ || len(src.size) != len(dst.size) {
		return plan{}, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, src, dst)
	}
	overlap, ok := src.Extents().Intersection(dst.Extents())
	if !ok {
		return plan{empty: true}, nil
	}
	dims := len(src.size)
	ovOff, ovSize := overlap.Offset(), overlap.Size()
	srcStride, dstStride := src.EffectiveStride(), dst.EffectiveStride()

	// Fuse dimensions into one block while strides agree and match the block size.
	fused := make([]bool, dims)
	shift, block := int64(0), int64(1)
	for {
		cur := -1
		for i := dims - 1; i >= 0; i-- {
			if !fused[i] && srcStride[i] == dstStride[i] && absInt64(srcStride[i]) == block {
				cur = i
				break
			}
		}
		if cur < 0 {
			break
		}
		fused[cur] = true
		if srcStride[cur] < 0 {
			shift += block * (ovSize[cur] - 1)
		}
		block *= ovSize[cur]
		if ovSize[cur] != src.size[cur] || ovSize[cur] != dst.size[cur] {
			break
		}
	}

	// Iterate the rest from the largest jump to the smallest.
	var order []int
	for {
		best, jump := -1, int64(0)
		for i := 0; i < dims; i++ {
			if fused[i] {
				continue
			}
			j := min(absInt64(srcStride[i]), absInt64(dstStride[i]))
			if best < 0 || jump < j {
				best, jump = i, j
			}
		}
		if best < 0 {
			break
		}
		fused[best] = true
		order = append(order, best)
	}

	elem := src.typ.Size()
	p := plan{
		chunk:  block * elem,
		size:   make([]int64, len(order)),
		relSrc: make([]int64, len(order)),
		relDst: make([]int64, len(order)),
	}
	for k, dim := range order {
		p.size[k] = ovSize[dim]
		p.relSrc[k] = srcStride[dim] * elem
		p.relDst[k] = dstStride[dim] * elem
		if k > 0 {
			p.relSrc[k-1] -= p.size[k] * p.relSrc[k]
			p.relDst[k-1] -= p.size[k] * p.relDst[k]
		}
	}

	srcLo, _, _ := src.span()
	dstLo, _, _ := dst.span()
	var si, di int64
	for i := 0; i < dims; i++ {
		si += (ovOff[i] - src.offset[i]) * srcStride[i]
		di += (ovOff[i] - dst.offset[i]) * dstStride[i]
	}
	p.srcOff = (si - shift - srcLo) * elem
	p.dstOff = (di - shift - dstLo) * elem
	return p, nil
}

// CopyData moves the elements in the overlap of src and dst from srcBuf to
// dstBuf. Spaces that do not overlap copy nothing.
func CopyData(src *Dataspace, srcBuf []byte, dst *Dataspace, dstBuf []byte) error {
	p, err := makePlan(src, dst)
	if err != nil {
		return err
	}
	if p.empty {
		return nil
	}
	if int64(len(srcBuf)) < src.BufferSize() {
		return fmt.Errorf("%w: source buffer holds %d bytes, need %d", ErrInvalidArgument, len(srcBuf), src.BufferSize())
	}
	if int64(len(dstBuf)) < dst.BufferSize() {
		return fmt.Errorf("%w: destination buffer holds %d bytes, need %d", ErrInvalidArgument, len(dstBuf), dst.BufferSize())
	}

	s, d := p.srcOff, p.dstOff
	counters := make([]int64, len(p.size))
	for {
		copy(dstBuf[d:d+p.chunk], srcBuf[s:s+p.chunk])

		i := len(p.size) - 1
		for ; i >= 0; i-- {
			s += p.relSrc[i]
			d += p.relDst[i]
			counters[i]++
			if counters[i] < p.size[i] {
				break
			}
			counters[i] = 0
		}
		if i < 0 {
			return nil
		}
	}
}

// Block reports whether the overlap of src and dst moves as a single
// contiguous block. It returns the byte offsets of the block in both buffers
// and its length.
func Block(src, dst *Dataspace) (srcOff, dstOff, n int64, ok bool) {
	p, err := makePlan(src, dst)
	if err != nil || p.empty || len(p.size) > 0 {
		return 0, 0, 0, false
	}
	return p.srcOff, p.dstOff, p.chunk, true
}

// Fill writes the element value into every element of dst that lies inside region.
func Fill(dst *Dataspace, dstBuf []byte, value []byte, region *Dataspace) error {
	if int64(len(value)) != dst.typ.Size() {
		return fmt.Errorf("%w: fill value of %d bytes for %s", ErrInvalidArgument, len(value), dst.typ)
	}
	src, err := region.WithStride(make([]int64, region.Dims()))
	if err != nil {
		return err
	}
	return CopyData(src, value, dst, dstBuf)
}
