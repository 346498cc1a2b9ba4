package scheduler

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/dataspace"
	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/hypercube"
	"github.com/hupe1980/cubestore/metrics"
	"github.com/hupe1980/cubestore/resource"
	"github.com/hupe1980/cubestore/testutil"
)

const rowBytes = 100 * 8

func newBackend(id string, threads int, maxFragmentSize int64) *testutil.Backend {
	return testutil.NewBackend(backend.Config{
		ID:                id,
		MaxThreadsPerNode: threads,
		MaxGlobalThreads:  threads,
		MaxFragmentSize:   maxFragmentSize,
	})
}

func newScheduler(t *testing.T, cfg Config, bs ...backend.Backend) *Scheduler {
	t.Helper()
	reg, err := backend.NewRegistry(bs...)
	require.NoError(t, err)
	s := New(reg, cfg)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func gridSpace() *dataspace.Dataspace {
	return dataspace.MustNew(dataspace.Uint64, []int64{100, 100}, nil)
}

// writeGrid stores the 100x100 grid through s and registers the fragments.
func writeGrid(t *testing.T, s *Scheduler, bs ...backend.Backend) *fragment.Set {
	t.Helper()
	frags, err := s.Write(context.Background(), testutil.Uint64Grid([]int64{100, 100}), gridSpace(), bs)
	require.NoError(t, err)

	set := fragment.NewSet()
	for _, f := range frags {
		require.NoError(t, set.Add(f))
	}
	return set
}

func TestScheduler_WriteCompletion(t *testing.T) {
	for _, threads := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("threads=%d", threads), func(t *testing.T) {
			b := newBackend("b1", threads, rowBytes)
			b.SetDelay(100 * time.Microsecond)
			s := newScheduler(t, Config{}, b)

			req, err := s.EnqueueWrite(context.Background(), testutil.Uint64Grid([]int64{100, 100}), gridSpace(), []backend.Backend{b})
			require.NoError(t, err)
			require.Len(t, req.Tasks(), 100)

			require.NoError(t, req.Wait())
			assert.Zero(t, req.Pending())
			for _, task := range req.Tasks() {
				assert.True(t, task.Done())
				assert.NoError(t, task.Err())
				assert.Equal(t, 1, task.Executions())
				assert.False(t, task.Fragment.Loaded())
			}
			assert.Equal(t, 100, b.Stored())
			assert.Equal(t, 100, b.TotalWrites())
		})
	}
}

func TestScheduler_SynchronousBackend(t *testing.T) {
	b := newBackend("b1", 0, rowBytes*10)
	s := newScheduler(t, Config{}, b)

	req, err := s.EnqueueWrite(context.Background(), testutil.Uint64Grid([]int64{100, 100}), gridSpace(), []backend.Backend{b})
	require.NoError(t, err)
	// Every task already ran in the calling goroutine.
	assert.Zero(t, req.Pending())
	assert.Equal(t, 10, b.Stored())
}

func TestScheduler_PlanRoundRobin(t *testing.T) {
	b1 := newBackend("b1", 1, rowBytes*10)
	b2 := newBackend("b2", 2, rowBytes*10)
	s := newScheduler(t, Config{}, b1, b2)

	req, err := s.EnqueueWrite(context.Background(), testutil.Uint64Grid([]int64{100, 100}), gridSpace(), []backend.Backend{b1, b2})
	require.NoError(t, err)
	require.NoError(t, req.Wait())

	var owners []string
	for _, f := range req.Fragments() {
		owners = append(owners, f.Backend)
		assert.Equal(t, []int64{10, 100}, f.Space.Size())
	}
	assert.Equal(t, []string{"b1", "b2", "b2", "b1", "b2", "b2", "b1", "b2", "b2", "b1"}, owners)

	cubes := s.Plan(gridSpace(), []backend.Backend{b1, b2})
	assert.Equal(t, int64(100*100), hypercube.NewSet(cubes...).Volume())
}

func TestScheduler_PlanSplitsLargeSlabs(t *testing.T) {
	// One row is larger than the fragment limit, so slabs of one row are cut
	// again by the backend recommendation.
	b := newBackend("b1", 1, rowBytes/4)
	s := newScheduler(t, Config{}, b)

	cubes := s.Plan(gridSpace(), []backend.Backend{b})
	require.Len(t, cubes, 400)
	for _, c := range cubes {
		assert.LessOrEqual(t, c.Volume()*8, int64(rowBytes/4))
	}
}

func TestSplitDim(t *testing.T) {
	assert.Equal(t, 0, SplitDim([]int64{5, 5}))
	assert.Equal(t, 1, SplitDim([]int64{1, 5, 5}))
	assert.Equal(t, 0, SplitDim([]int64{1, 1}))
}

func TestScheduler_WriteErrors(t *testing.T) {
	b := newBackend("b1", 2, rowBytes*10)
	s := newScheduler(t, Config{}, b)
	ctx := context.Background()

	_, err := s.Write(ctx, testutil.Uint64Grid([]int64{100, 100}), gridSpace(), nil)
	assert.ErrorIs(t, err, ErrNoBackend)

	_, err = s.Write(ctx, make([]byte, 8), gridSpace(), []backend.Backend{b})
	assert.ErrorIs(t, err, dataspace.ErrInvalidArgument)

	b.FailWrites(true)
	frags, err := s.Write(ctx, testutil.Uint64Grid([]int64{100, 100}), gridSpace(), []backend.Backend{b})
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.Empty(t, frags)
}

func TestScheduler_ReadRoundTrip(t *testing.T) {
	for _, threads := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("threads=%d", threads), func(t *testing.T) {
			b := newBackend("b1", threads, rowBytes*10)
			other := newBackend("b2", threads, rowBytes*10)
			s := newScheduler(t, Config{}, b, other)
			set := writeGrid(t, s, b)

			buf := make([]byte, 100*rowBytes)
			res, err := s.Read(context.Background(), set, buf, gridSpace(), ReadOptions{})
			require.NoError(t, err)

			assert.Len(t, res.Fragments, 10)
			assert.Equal(t, testutil.Uint64Grid([]int64{100, 100}), buf)
			assert.Zero(t, other.TotalReads())
			for _, f := range set.Fragments() {
				assert.Equal(t, 1, b.Reads(f.ID))
			}
		})
	}
}

func TestScheduler_ReadSubregion(t *testing.T) {
	b := newBackend("b1", 2, rowBytes*10)
	s := newScheduler(t, Config{}, b)
	set := writeGrid(t, s, b)

	space := dataspace.MustNew(dataspace.Uint64, []int64{10, 10}, []int64{5, 10})
	buf := make([]byte, space.BufferSize())
	res, err := s.Read(context.Background(), set, buf, space, ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Fragments, 2)

	for i := int64(0); i < 10; i++ {
		for j := int64(0); j < 10; j++ {
			assert.Equal(t, uint64((5+i)*100+10+j), testutil.Uint64At(buf, i*10+j))
		}
	}
}

func TestScheduler_ReadTransposed(t *testing.T) {
	b := newBackend("b1", 4, rowBytes*10)
	s := newScheduler(t, Config{}, b)
	set := writeGrid(t, s, b)

	space, err := gridSpace().WithStride([]int64{1, 100})
	require.NoError(t, err)
	buf := make([]byte, space.BufferSize())
	_, err = s.Read(context.Background(), set, buf, space, ReadOptions{})
	require.NoError(t, err)

	for r := int64(0); r < 100; r += 7 {
		for c := int64(0); c < 100; c += 3 {
			assert.Equal(t, uint64(r*100+c), testutil.Uint64At(buf, c*100+r))
		}
	}
}

func TestScheduler_DirectIO(t *testing.T) {
	b := newBackend("b1", 2, rowBytes*10)
	writer := newScheduler(t, Config{}, b)
	set := writeGrid(t, writer, b)

	// Every intermediate buffer exceeds the limit; only direct reads succeed.
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1})
	s := newScheduler(t, Config{Resources: rc}, b)

	buf := make([]byte, 100*rowBytes)
	_, err := s.Read(context.Background(), set, buf, gridSpace(), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, testutil.Uint64Grid([]int64{100, 100}), buf)

	space := dataspace.MustNew(dataspace.Uint64, []int64{10, 10}, []int64{0, 0})
	_, err = s.Read(context.Background(), set, make([]byte, space.BufferSize()), space, ReadOptions{})
	assert.ErrorIs(t, err, resource.ErrOverLimit)
	assert.Zero(t, rc.MemoryUsage())
}

func TestScheduler_IncompleteData(t *testing.T) {
	b := newBackend("b1", 2, rowBytes*10)
	s := newScheduler(t, Config{}, b)
	full := writeGrid(t, s, b)

	set := fragment.NewSet()
	for _, f := range full.Fragments()[:5] {
		require.NoError(t, set.Add(f))
	}

	_, err := s.Read(context.Background(), set, make([]byte, 100*rowBytes), gridSpace(), ReadOptions{})
	assert.ErrorIs(t, err, ErrIncompleteData)
	assert.Zero(t, b.TotalReads())
}

func TestScheduler_Fill(t *testing.T) {
	b := newBackend("b1", 2, rowBytes*10)
	m := &metrics.Basic{}
	s := newScheduler(t, Config{Metrics: m}, b)

	half := dataspace.MustNew(dataspace.Uint64, []int64{50, 100}, nil)
	frags, err := s.Write(context.Background(), testutil.Uint64Grid([]int64{50, 100}), half, []backend.Backend{b})
	require.NoError(t, err)
	set := fragment.NewSet()
	for _, f := range frags {
		require.NoError(t, set.Add(f))
	}

	fill := make([]byte, 8)
	binary.LittleEndian.PutUint64(fill, math.MaxUint64)
	buf := make([]byte, 100*rowBytes)
	res, err := s.Read(context.Background(), set, buf, gridSpace(), ReadOptions{FillValue: fill})
	require.NoError(t, err)

	assert.Equal(t, int64(50*100), res.Filled)
	assert.Equal(t, uint64(49*100+99), testutil.Uint64At(buf, 49*100+99))
	assert.Equal(t, uint64(math.MaxUint64), testutil.Uint64At(buf, 50*100))
	assert.Equal(t, uint64(math.MaxUint64), testutil.Uint64At(buf, 100*100-1))
	assert.Equal(t, int64(50*100), m.GetStats().FilledElements)
}

func TestScheduler_ReadFailureAggregation(t *testing.T) {
	b := newBackend("b1", 4, rowBytes*10)
	s := newScheduler(t, Config{}, b)
	set := writeGrid(t, s, b)

	broken := set.Fragments()[3]
	b.FailOn(broken.ID)

	req, err := s.EnqueueRead(context.Background(), set, make([]byte, 100*rowBytes), gridSpace(), ReadOptions{})
	require.NoError(t, err)
	err = req.Wait()
	assert.ErrorIs(t, err, testutil.ErrInjected)

	failed := 0
	for _, task := range req.Tasks() {
		assert.True(t, task.Done())
		if task.Err() != nil {
			failed++
			assert.Equal(t, broken.ID, task.Fragment.ID)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 10, b.TotalReads())
}

func TestScheduler_UnknownBackend(t *testing.T) {
	b := newBackend("b1", 1, rowBytes*10)
	s := newScheduler(t, Config{}, b)

	set := fragment.NewSet()
	require.NoError(t, set.Add(fragment.New("gone", gridSpace(), nil)))

	_, err := s.Read(context.Background(), set, make([]byte, 100*rowBytes), gridSpace(), ReadOptions{})
	assert.ErrorIs(t, err, backend.ErrUnknownBackend)
}

func TestScheduler_OverlappingFragments(t *testing.T) {
	b := newBackend("b1", 4, 1<<20)
	s := newScheduler(t, Config{}, b)
	ctx := context.Background()
	grid := testutil.Uint64Grid([]int64{10, 10})

	set := fragment.NewSet()
	top := dataspace.MustNew(dataspace.Uint64, []int64{6, 10}, []int64{0, 0})
	bottom := dataspace.MustNew(dataspace.Uint64, []int64{6, 10}, []int64{4, 0})
	for _, w := range []struct {
		space *dataspace.Dataspace
		buf   []byte
	}{{top, grid}, {bottom, grid[4*10*8:]}} {
		frags, err := s.Write(ctx, w.buf, w.space, []backend.Backend{b})
		require.NoError(t, err)
		for _, f := range frags {
			require.NoError(t, set.Add(f))
		}
	}

	full := dataspace.MustNew(dataspace.Uint64, []int64{10, 10}, nil)
	buf := make([]byte, full.BufferSize())
	res, err := s.Read(ctx, set, buf, full, ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Fragments, 2)
	assert.Equal(t, grid, buf)
}

func TestScheduler_WriteBack(t *testing.T) {
	b := newBackend("b1", 2, rowBytes*10)
	cache := newBackend("b2", 1, rowBytes*10)
	m := &metrics.Basic{}
	s := newScheduler(t, Config{Metrics: m}, b, cache)
	set := writeGrid(t, s, b)

	// One column touches every row fragment: 10 fragments fetched for 100 elements.
	column := dataspace.MustNew(dataspace.Uint64, []int64{100, 1}, []int64{0, 5})
	buf := make([]byte, column.BufferSize())
	res, err := s.Read(context.Background(), set, buf, column, ReadOptions{WriteBack: []backend.Backend{cache}})
	require.NoError(t, err)

	assert.Equal(t, int64(100*8), res.RequestedBytes)
	assert.Equal(t, int64(10*rowBytes*10), res.FetchedBytes)
	require.Len(t, res.WrittenBack, 1)
	assert.True(t, res.WrittenBack[0].Extents().Equal(column.Extents()))
	assert.Equal(t, 1, cache.Stored())

	require.NoError(t, set.Add(res.WrittenBack[0]))
	res, err = s.Read(context.Background(), set, buf, column, ReadOptions{WriteBack: []backend.Backend{cache}})
	require.NoError(t, err)
	assert.Len(t, res.Fragments, 1)
	assert.Empty(t, res.WrittenBack)
	assert.Equal(t, uint64(42*100+5), testutil.Uint64At(buf, 42))

	st := s.Stats()
	assert.Equal(t, int64(2), st.Read.Requests)
	assert.Equal(t, int64(1), st.Write.InternalRequests)
	assert.Equal(t, int64(1), m.GetStats().WriteBackCount)
}

func TestScheduler_WriteBackDisabled(t *testing.T) {
	b := newBackend("b1", 2, rowBytes*10)
	cache := newBackend("b2", 1, rowBytes*10)
	s := newScheduler(t, Config{WriteBackRatio: -1}, b, cache)
	set := writeGrid(t, s, b)

	column := dataspace.MustNew(dataspace.Uint64, []int64{100, 1}, []int64{0, 5})
	res, err := s.Read(context.Background(), set, make([]byte, column.BufferSize()), column, ReadOptions{WriteBack: []backend.Backend{cache}})
	require.NoError(t, err)
	assert.Empty(t, res.WrittenBack)
	assert.Zero(t, cache.Stored())
}

func TestScheduler_Stats(t *testing.T) {
	b := newBackend("b1", 2, rowBytes*10)
	s := newScheduler(t, Config{}, b)
	set := writeGrid(t, s, b)

	_, err := s.Read(context.Background(), set, make([]byte, 100*rowBytes), gridSpace(), ReadOptions{})
	require.NoError(t, err)

	st := s.Stats()
	assert.Equal(t, int64(1), st.Write.Requests)
	assert.Equal(t, int64(10), st.Write.Fragments)
	assert.Equal(t, int64(100*rowBytes), st.Write.BytesUser)
	assert.Equal(t, int64(100*rowBytes), st.Write.BytesIO)
	assert.Equal(t, int64(1), st.Read.Requests)
	assert.Equal(t, int64(10), st.Read.Fragments)
	assert.Equal(t, int64(100*rowBytes), st.Read.BytesIO)
	assert.Positive(t, st.ReadTimes.Total)

	s.ResetStats()
	assert.Equal(t, Stats{}, s.Stats())
}

func TestScheduler_Closed(t *testing.T) {
	b := newBackend("b1", 2, rowBytes*10)
	s := newScheduler(t, Config{}, b)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.EnqueueWrite(context.Background(), testutil.Uint64Grid([]int64{100, 100}), gridSpace(), []backend.Backend{b})
	assert.ErrorIs(t, err, ErrClosed)
}
