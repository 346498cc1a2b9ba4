package fragment

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cubestore/dataspace"
	"github.com/hupe1980/cubestore/hypercube"
)

func frag(t testing.TB, backend string, offset, size []int64) *Fragment {
	t.Helper()
	space, err := dataspace.New(dataspace.Uint64, size, offset)
	require.NoError(t, err)
	return New(backend, space, nil)
}

func unionCovers(t *testing.T, frags []*Fragment, query hypercube.Hypercube) {
	t.Helper()
	cubes := make([]hypercube.Hypercube, len(frags))
	for i, f := range frags {
		cubes[i] = f.Extents()
	}
	assert.True(t, hypercube.DoesCoverFully(cubes, query), "selection does not cover %v", query)
}

func TestSet_AddRejectsDuplicateShape(t *testing.T) {
	s := NewSet()
	require.NoError(t, s.Add(frag(t, "a", []int64{0, 0}, []int64{10, 10})))
	err := s.Add(frag(t, "b", []int64{0, 0}, []int64{10, 10}))
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, s.Len())

	err = s.Add(frag(t, "a", []int64{0}, []int64{10}))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSet_Replace(t *testing.T) {
	s := NewSet()
	old := frag(t, "a", []int64{0, 0}, []int64{10, 10})
	require.NoError(t, s.Add(old))
	require.NoError(t, s.Add(frag(t, "a", []int64{10, 0}, []int64{10, 10})))

	next := frag(t, "b", []int64{0, 0}, []int64{10, 10})
	assert.Same(t, old, s.Replace(next))
	assert.Same(t, next, s.LookupForShape(next.Extents()))
	assert.Equal(t, 2, s.Len())

	assert.Nil(t, s.Replace(frag(t, "b", []int64{5, 5}, []int64{1, 1})))
	assert.Nil(t, NewSet().Replace(next))
}

func TestSet_LookupForShape(t *testing.T) {
	s := NewSet()
	f := frag(t, "a", []int64{10, 0}, []int64{10, 100})
	require.NoError(t, s.Add(frag(t, "a", []int64{0, 0}, []int64{10, 100})))
	require.NoError(t, s.Add(f))

	assert.Same(t, f, s.LookupForShape(f.Extents()))
	assert.Nil(t, s.LookupForShape(hypercube.FromOffsetSize([]int64{5, 0}, []int64{10, 100})))

	got := s.MakeSetCoveringRegion(f.Extents())
	require.Len(t, got, 1)
	assert.Same(t, f, got[0])
}

func TestSet_EmptyAndMissing(t *testing.T) {
	s := NewSet()
	query := hypercube.FromOffsetSize([]int64{0, 0}, []int64{5, 5})
	assert.Empty(t, s.MakeSetCoveringRegion(query))

	require.NoError(t, s.Add(frag(t, "a", []int64{100, 100}, []int64{5, 5})))
	assert.Empty(t, s.MakeSetCoveringRegion(query))
}

func TestSet_RowTiling(t *testing.T) {
	s := NewSet()
	for r := int64(0); r < 10; r++ {
		require.NoError(t, s.Add(frag(t, "a", []int64{10 * r, 0}, []int64{10, 100})))
	}
	query := hypercube.FromOffsetSize([]int64{0, 0}, []int64{100, 100})
	got := s.MakeSetCoveringRegion(query)
	assert.Len(t, got, 10)
	unionCovers(t, got, query)

	part := hypercube.FromOffsetSize([]int64{15, 20}, []int64{10, 10})
	got = s.MakeSetCoveringRegion(part)
	assert.Len(t, got, 2)
	unionCovers(t, got, part)

	stats := s.Stats()
	assert.Equal(t, int64(10), stats.FragmentsAdded)
	assert.Equal(t, int64(2), stats.SetsCreated)
}

func TestSet_CoverageCompleteness(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s := NewSet()
	// 6x6 grid of irregular tiles over [0,60)x[0,60).
	cuts := []int64{0, 7, 15, 30, 33, 48, 60}
	for i := 0; i+1 < len(cuts); i++ {
		for j := 0; j+1 < len(cuts); j++ {
			require.NoError(t, s.Add(frag(t, "a",
				[]int64{cuts[i], cuts[j]},
				[]int64{cuts[i+1] - cuts[i], cuts[j+1] - cuts[j]})))
		}
	}

	for n := 0; n < 100; n++ {
		x, y := rng.Int63n(59), rng.Int63n(59)
		query := hypercube.FromOffsetSize([]int64{x, y}, []int64{1 + rng.Int63n(60-x), 1 + rng.Int63n(60-y)})
		got := s.MakeSetCoveringRegion(query)
		unionCovers(t, got, query)

		// Tiles do not overlap, so every selected tile must intersect the query.
		var want int
		for _, f := range s.Fragments() {
			if f.Extents().Intersects(query) {
				want++
			}
		}
		assert.Len(t, got, want)
		for _, f := range got {
			assert.True(t, f.Extents().Intersects(query))
		}
	}
}

func TestSet_DisconnectedComponents(t *testing.T) {
	s := NewSet()
	require.NoError(t, s.Add(frag(t, "a", []int64{0}, []int64{10})))
	require.NoError(t, s.Add(frag(t, "a", []int64{20}, []int64{10})))
	require.NoError(t, s.Add(frag(t, "a", []int64{40}, []int64{10})))

	query := hypercube.FromOffsetSize([]int64{0}, []int64{50})
	got := s.MakeSetCoveringRegion(query)
	assert.Len(t, got, 3)

	uncovered := hypercube.NewSet(query)
	for _, f := range got {
		uncovered.Subtract(f.Extents())
	}
	assert.Equal(t, int64(20), uncovered.Volume())
}

func TestSet_ThreeOrthogonalSlicings(t *testing.T) {
	const edge = 100
	s := NewSet()
	slicing := make(map[*Fragment]int)
	for axis := 0; axis < 3; axis++ {
		for i := int64(0); i < edge; i++ {
			offset := []int64{0, 0, 0}
			size := []int64{edge, edge, edge}
			offset[axis], size[axis] = i, 1
			f := frag(t, "a", offset, size)
			require.NoError(t, s.Add(f))
			slicing[f] = axis
		}
	}

	query := hypercube.FromOffsetSize([]int64{0, 0, 0}, []int64{edge, edge, edge})
	got := s.MakeSetCoveringRegion(query)
	require.Len(t, got, edge)
	unionCovers(t, got, query)
	axis := slicing[got[0]]
	for _, f := range got {
		assert.Equal(t, axis, slicing[f])
	}
}

func TestSet_OverlappingPrefersContributors(t *testing.T) {
	s := NewSet()
	big := frag(t, "a", []int64{0, 0}, []int64{10, 10})
	require.NoError(t, s.Add(big))
	require.NoError(t, s.Add(frag(t, "a", []int64{2, 2}, []int64{3, 3})))
	require.NoError(t, s.Add(frag(t, "a", []int64{10, 0}, []int64{10, 10})))

	query := hypercube.FromOffsetSize([]int64{0, 0}, []int64{10, 12})
	got := s.MakeSetCoveringRegion(query)
	require.Len(t, got, 1)
	assert.Same(t, big, got[0])
}

func TestSet_RecordsRoundTrip(t *testing.T) {
	s := NewSet()
	f := frag(t, "posix", []int64{3, 4}, []int64{5, 6})
	require.NoError(t, s.Add(f))

	recs := s.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, f.ID, recs[0].ID)
	assert.Equal(t, "uint64", recs[0].Type)

	back, err := FromRecord(recs[0])
	require.NoError(t, err)
	assert.Equal(t, f.ID, back.ID)
	assert.Equal(t, "posix", back.Backend)
	assert.True(t, back.Space.Equal(f.Space))
	assert.False(t, back.Loaded())
	assert.True(t, recs[0].Extents().Equal(f.Extents()))

	_, err = FromRecord(Record{ID: "x", Type: "bogus", Offset: []int64{0}, Size: []int64{1}})
	assert.Error(t, err)
}

func TestSet_DeleteAll(t *testing.T) {
	s := NewSet()
	var frags []*Fragment
	for i := int64(0); i < 6; i++ {
		f := frag(t, "a", []int64{i * 10}, []int64{10})
		require.NoError(t, s.Add(f))
		frags = append(frags, f)
	}
	boom := errors.New("boom")
	err := s.DeleteAll(context.Background(), 2, func(_ context.Context, f *Fragment) error {
		if f == frags[2] {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	require.Equal(t, 1, s.Len())
	assert.Same(t, frags[2], s.Fragments()[0])
	assert.Equal(t, int64(6), s.Stats().FragmentsAdded)

	require.NoError(t, s.DeleteAll(context.Background(), 0, func(context.Context, *Fragment) error { return nil }))
	assert.Equal(t, 0, s.Len())
}
