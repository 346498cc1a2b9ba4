package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/dataspace"
	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/hypercube"
)

func TestRNG_Reset(t *testing.T) {
	rng := NewRNG(4711)
	a := rng.Bytes(16)
	rng.Reset()
	assert.Equal(t, a, rng.Bytes(16))
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestRNG_Cube(t *testing.T) {
	rng := NewRNG(1)
	region := hypercube.New(hypercube.Range{Start: -5, End: 5}, hypercube.Range{Start: 0, End: 3})
	for i := 0; i < 100; i++ {
		c := rng.Cube(region)
		assert.True(t, region.Contains(c))
		assert.False(t, c.IsEmpty())
	}
}

func TestUint64Grid(t *testing.T) {
	buf := Uint64Grid([]int64{3, 4})
	require.Len(t, buf, 3*4*8)
	assert.Equal(t, uint64(2*4+1), Uint64At(buf, 9))
}

func TestTiling(t *testing.T) {
	region := hypercube.New(hypercube.Range{Start: 0, End: 10}, hypercube.Range{Start: 5, End: 8})
	tiles := Tiling(region, []int64{4, 2})

	require.Len(t, tiles, 3*2)
	assert.Equal(t, region.Volume(), hypercube.NewSet(tiles...).Volume())
	assert.Equal(t, hypercube.Range{Start: 8, End: 10}, tiles[len(tiles)-1].Range(0))
	assert.Equal(t, hypercube.Range{Start: 7, End: 8}, tiles[len(tiles)-1].Range(1))
}

func TestBackend(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(backend.Config{ID: "b1"})

	space := dataspace.MustNew(dataspace.Uint8, []int64{4}, nil)
	f := fragment.New("b1", space, []byte{1, 2, 3, 4})
	require.NoError(t, b.Write(ctx, f))
	assert.True(t, b.Has(f.ID))

	dst := make([]byte, 4)
	require.NoError(t, b.Read(ctx, f, dst))
	assert.Equal(t, []byte{1, 2, 3, 4}, dst)
	assert.Equal(t, 1, b.Reads(f.ID))
	assert.Equal(t, 1, b.TotalWrites())

	b.FailReads(true)
	assert.ErrorIs(t, b.Read(ctx, f, dst), ErrInjected)
	b.FailReads(false)

	require.NoError(t, b.Delete(ctx, f))
	assert.Zero(t, b.Stored())
	assert.Error(t, b.Read(ctx, f, dst))
}
