package dataspace

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(vals []uint32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return buf
}

func decode(buf []byte) []uint32 {
	out := make([]uint32, len(buf)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
	return out
}

func seq(n int) []uint32 {
	v := make([]uint32, n)
	for i := range v {
		v[i] = uint32(i)
	}
	return v
}

func TestCopyData_OffsetShift(t *testing.T) {
	src := MustNew(Uint32, []int64{4, 5}, []int64{0, 0})
	dst := MustNew(Uint32, []int64{2, 3}, []int64{1, 2})
	srcBuf := encode(seq(20))
	dstBuf := make([]byte, dst.BufferSize())

	require.NoError(t, CopyData(src, srcBuf, dst, dstBuf))
	assert.Equal(t, []uint32{7, 8, 9, 12, 13, 14}, decode(dstBuf))

	back := make([]byte, len(srcBuf))
	require.NoError(t, CopyData(dst, dstBuf, src, back))
	got := decode(back)
	for _, i := range []int{7, 8, 9, 12, 13, 14} {
		assert.Equal(t, uint32(i), got[i])
	}
	assert.Equal(t, uint32(0), got[0])
}

func TestCopyData_Transpose(t *testing.T) {
	src := MustNew(Uint32, []int64{3, 4}, nil)
	dst, err := src.WithStride([]int64{1, 3})
	require.NoError(t, err)

	srcBuf := encode(seq(12))
	dstBuf := make([]byte, dst.BufferSize())
	require.NoError(t, CopyData(src, srcBuf, dst, dstBuf))

	// Column-major: element (r, c) lands at r + 3c.
	got := decode(dstBuf)
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			assert.Equal(t, uint32(r*4+c), got[r+3*c])
		}
	}

	back := make([]byte, len(srcBuf))
	require.NoError(t, CopyData(dst, dstBuf, src, back))
	assert.Equal(t, srcBuf, back)
}

func TestCopyData_NegativeStride(t *testing.T) {
	src := MustNew(Uint32, []int64{2, 3}, nil)
	dst, err := src.WithStride([]int64{3, -1})
	require.NoError(t, err)
	assert.Equal(t, src.BufferSize(), dst.BufferSize())

	srcBuf := encode(seq(6))
	dstBuf := make([]byte, dst.BufferSize())
	require.NoError(t, CopyData(src, srcBuf, dst, dstBuf))
	assert.Equal(t, []uint32{2, 1, 0, 5, 4, 3}, decode(dstBuf))

	back := make([]byte, len(srcBuf))
	require.NoError(t, CopyData(dst, dstBuf, src, back))
	assert.Equal(t, srcBuf, back)
}

func TestCopyData_FullyReversed(t *testing.T) {
	src := MustNew(Uint32, []int64{2, 3}, nil)
	rev, err := src.WithStride([]int64{-3, -1})
	require.NoError(t, err)

	srcBuf := encode(seq(6))
	mid := make([]byte, rev.BufferSize())
	require.NoError(t, CopyData(src, srcBuf, rev, mid))
	assert.Equal(t, []uint32{5, 4, 3, 2, 1, 0}, decode(mid))

	// Same layout on both sides collapses into one block.
	_, _, n, ok := Block(rev, rev)
	assert.True(t, ok)
	assert.Equal(t, int64(24), n)
}

func TestCopyData_NoOverlap(t *testing.T) {
	a := MustNew(Uint32, []int64{2, 2}, []int64{0, 0})
	b := MustNew(Uint32, []int64{2, 2}, []int64{2, 0})
	dst := make([]byte, b.BufferSize())
	require.NoError(t, CopyData(a, encode(seq(4)), b, dst))
	assert.Equal(t, make([]byte, 16), dst)
}

func TestCopyData_Errors(t *testing.T) {
	a := MustNew(Uint32, []int64{2, 2}, nil)
	b := MustNew(Uint64, []int64{2, 2}, nil)
	err := CopyData(a, make([]byte, 16), b, make([]byte, 32))
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = CopyData(a, make([]byte, 4), a, make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBlock(t *testing.T) {
	full := MustNew(Uint32, []int64{10, 8}, nil)
	rows := MustNew(Uint32, []int64{2, 8}, []int64{3, 0})
	srcOff, dstOff, n, ok := Block(rows, full)
	require.True(t, ok)
	assert.Equal(t, int64(0), srcOff)
	assert.Equal(t, int64(3*8*4), dstOff)
	assert.Equal(t, rows.ByteSize(), n)

	cols := MustNew(Uint32, []int64{10, 2}, []int64{0, 3})
	_, _, _, ok = Block(cols, full)
	assert.False(t, ok)
}

func TestFill(t *testing.T) {
	dst := MustNew(Uint32, []int64{3, 3}, nil)
	buf := encode(seq(9))
	region := MustNew(Uint32, []int64{2, 2}, []int64{1, 1})

	require.NoError(t, Fill(dst, buf, encode([]uint32{99}), region))
	assert.Equal(t, []uint32{0, 1, 2, 3, 99, 99, 6, 99, 99}, decode(buf))

	err := Fill(dst, buf, []byte{1}, region)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
