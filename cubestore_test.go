package cubestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/catalog"
	"github.com/hupe1980/cubestore/dataspace"
	"github.com/hupe1980/cubestore/metrics"
	"github.com/hupe1980/cubestore/testutil"
)

var gridSize = []int64{100, 100}

func newBackend(id string) *testutil.Backend {
	return testutil.NewBackend(backend.Config{
		ID:                id,
		MaxThreadsPerNode: 4,
		MaxGlobalThreads:  4,
		MaxFragmentSize:   10 * 100 * 8,
	})
}

func openStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEndToEnd_RowFragments(t *testing.T) {
	ctx := context.Background()
	b1, b2 := newBackend("b1"), newBackend("b2")
	m := &metrics.Basic{}
	s := openStore(t, WithBackend(b1), WithBackend(b2), WithMetricsCollector(m))

	other, err := s.CreateDataset(ctx, "other", dataspace.Uint64, []int64{10, 10}, WithDatasetBackends("b2"))
	require.NoError(t, err)
	require.NoError(t, other.Write(ctx, testutil.Uint64Grid([]int64{10, 10}), other.Space()))

	ds, err := s.CreateDataset(ctx, "grid", dataspace.Uint64, gridSize, WithDatasetBackends("b1"))
	require.NoError(t, err)
	require.NoError(t, ds.Write(ctx, testutil.Uint64Grid(gridSize), ds.Space()))
	require.NoError(t, ds.Commit(ctx))

	records := ds.Fragments()
	require.Len(t, records, 10)
	for _, r := range records {
		assert.Equal(t, "b1", r.Backend)
		assert.Equal(t, []int64{10, 100}, r.Size)
	}

	before := m.GetStats().ReadFragments
	buf := make([]byte, 100*100*8)
	require.NoError(t, ds.Read(ctx, buf, ds.Space()))

	assert.Equal(t, int64(10), m.GetStats().ReadFragments-before)
	for row := int64(0); row < 100; row++ {
		for col := int64(0); col < 100; col++ {
			require.Equal(t, uint64(row*100+col), testutil.Uint64At(buf, row*100+col))
		}
	}
	for _, r := range records {
		assert.Equal(t, 1, b1.Reads(r.ID))
	}
	assert.Zero(t, b2.TotalReads())
}

func TestDataset_IncompleteData(t *testing.T) {
	ctx := context.Background()
	b := newBackend("b1")
	s := openStore(t, WithBackend(b))

	ds, err := s.CreateDataset(ctx, "grid", dataspace.Uint64, gridSize)
	require.NoError(t, err)
	half := dataspace.MustNew(dataspace.Uint64, []int64{50, 100}, nil)
	require.NoError(t, ds.Write(ctx, testutil.Uint64Grid([]int64{50, 100}), half))

	err = ds.Read(ctx, make([]byte, 100*100*8), ds.Space())
	assert.ErrorIs(t, err, ErrIncompleteData)
	assert.Zero(t, b.TotalReads())

	// The written half alone is complete.
	buf := make([]byte, half.BufferSize())
	require.NoError(t, ds.Read(ctx, buf, half))
	assert.Equal(t, testutil.Uint64Grid([]int64{50, 100}), buf)
}

func TestDataset_FillValue(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, WithBackend(newBackend("b1")))

	fill := []byte{0xAB}
	ds, err := s.CreateDataset(ctx, "bytes", dataspace.Uint8, []int64{4, 4}, WithFillValue(fill))
	require.NoError(t, err)
	assert.Equal(t, fill, ds.FillValue())

	corner := dataspace.MustNew(dataspace.Uint8, []int64{2, 2}, []int64{0, 0})
	require.NoError(t, ds.Write(ctx, []byte{1, 2, 3, 4}, corner))

	buf := make([]byte, 16)
	require.NoError(t, ds.Read(ctx, buf, ds.Space()))
	assert.Equal(t, []byte{
		1, 2, 0xAB, 0xAB,
		3, 4, 0xAB, 0xAB,
		0xAB, 0xAB, 0xAB, 0xAB,
		0xAB, 0xAB, 0xAB, 0xAB,
	}, buf)

	_, err = s.CreateDataset(ctx, "bad", dataspace.Uint16, []int64{4}, WithFillValue(fill))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDataset_CommitAndReopen(t *testing.T) {
	ctx := context.Background()
	b := newBackend("b1")
	cat, err := catalog.OpenBolt(filepath.Join(t.TempDir(), "catalog.db"), catalog.BoltOptions{})
	require.NoError(t, err)
	defer cat.Close()

	s1, err := Open(ctx, WithBackend(b), WithCatalog(cat))
	require.NoError(t, err)
	ds, err := s1.CreateDataset(ctx, "grid", dataspace.Uint64, gridSize)
	require.NoError(t, err)
	require.NoError(t, ds.Write(ctx, testutil.Uint64Grid(gridSize), ds.Space()))
	require.NoError(t, ds.Commit(ctx))
	require.NoError(t, s1.Close())

	s2 := openStore(t, WithBackend(b), WithCatalog(cat))
	names, err := s2.Datasets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"grid"}, names)

	ds, err = s2.OpenDataset(ctx, "grid")
	require.NoError(t, err)
	assert.Empty(t, ds.Fragments())

	// Reading a region loads only the records it needs.
	rows := dataspace.MustNew(dataspace.Uint64, []int64{15, 100}, []int64{20, 0})
	buf := make([]byte, rows.BufferSize())
	require.NoError(t, ds.Read(ctx, buf, rows))
	assert.Len(t, ds.Fragments(), 2)
	assert.Equal(t, uint64(20*100), testutil.Uint64At(buf, 0))

	require.NoError(t, ds.Load(ctx))
	assert.Len(t, ds.Fragments(), 10)

	_, err = s2.OpenDataset(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDataset_ReplaceFragment(t *testing.T) {
	ctx := context.Background()
	b := newBackend("b1")
	s := openStore(t, WithBackend(b))

	ds, err := s.CreateDataset(ctx, "grid", dataspace.Uint64, gridSize)
	require.NoError(t, err)
	require.NoError(t, ds.Write(ctx, testutil.Uint64Grid(gridSize), ds.Space()))
	require.NoError(t, ds.Commit(ctx))

	rows := dataspace.MustNew(dataspace.Uint64, []int64{10, 100}, []int64{10, 0})
	var oldID string
	for _, r := range ds.Fragments() {
		if r.Offset[0] == 10 {
			oldID = r.ID
		}
	}
	require.NotEmpty(t, oldID)

	zeros := make([]byte, rows.BufferSize())
	require.NoError(t, ds.Write(ctx, zeros, rows))
	assert.Len(t, ds.Fragments(), 10)

	buf := make([]byte, 100*100*8)
	require.NoError(t, ds.Read(ctx, buf, ds.Space()))
	assert.Equal(t, uint64(0), testutil.Uint64At(buf, 15*100+7))
	assert.Equal(t, uint64(25*100+7), testutil.Uint64At(buf, 25*100+7))

	assert.True(t, b.Has(oldID))
	assert.Zero(t, b.Deletes(oldID))
	require.NoError(t, ds.Commit(ctx))
	assert.Equal(t, 1, b.Deletes(oldID))
	assert.False(t, b.Has(oldID))
	assert.Equal(t, 10, b.Stored())
}

func TestDataset_InvalidRegions(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, WithBackend(newBackend("b1")))
	ds, err := s.CreateDataset(ctx, "grid", dataspace.Uint64, gridSize)
	require.NoError(t, err)

	err = ds.Write(ctx, make([]byte, 800), dataspace.MustNew(dataspace.Uint64, []int64{100}, nil))
	var dm *ErrDimensionMismatch
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 1, dm.Actual)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = ds.Write(ctx, make([]byte, 800), dataspace.MustNew(dataspace.Float64, []int64{10, 10}, nil))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = ds.Read(ctx, make([]byte, 800), dataspace.MustNew(dataspace.Uint64, []int64{10, 10}, []int64{95, 0}))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = ds.Write(ctx, make([]byte, 8), ds.Space())
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.CreateDataset(ctx, "grid", dataspace.Uint64, gridSize)
	assert.ErrorIs(t, err, ErrExists)

	_, err = s.CreateDataset(ctx, "a/b", dataspace.Uint64, gridSize)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.CreateDataset(ctx, "nowhere", dataspace.Uint64, gridSize, WithDatasetBackends("missing"))
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestStore_DeleteDataset(t *testing.T) {
	ctx := context.Background()
	b := newBackend("b1")
	s := openStore(t, WithBackend(b))

	ds, err := s.CreateDataset(ctx, "grid", dataspace.Uint64, gridSize)
	require.NoError(t, err)
	require.NoError(t, ds.Write(ctx, testutil.Uint64Grid(gridSize), ds.Space()))
	require.NoError(t, ds.Commit(ctx))
	require.Equal(t, 10, b.Stored())

	require.NoError(t, s.DeleteDataset(ctx, "grid"))
	assert.Zero(t, b.Stored())

	names, err := s.Datasets(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.ErrorIs(t, s.DeleteDataset(ctx, "grid"), ErrNotFound)
}

func TestStore_BackendConfig(t *testing.T) {
	ctx := context.Background()
	s := openStore(t,
		WithBackendConfig(backend.Config{
			ID:                "mem",
			Type:              "memory",
			MaxThreadsPerNode: 2,
			MaxGlobalThreads:  2,
			MaxFragmentSize:   4096,
			Compression:       "zstd",
		}),
		WithBlockCache(1<<20),
		WithProcesses(1, 1),
	)
	require.Len(t, s.Backends(), 1)

	ds, err := s.CreateDataset(ctx, "grid", dataspace.Uint64, gridSize)
	require.NoError(t, err)
	require.NoError(t, ds.Write(ctx, testutil.Uint64Grid(gridSize), ds.Space()))

	// Read transposed: element (row, col) lands at col*100+row.
	space, err := ds.Space().WithStride([]int64{1, 100})
	require.NoError(t, err)
	buf := make([]byte, space.BufferSize())
	require.NoError(t, ds.Read(ctx, buf, space))
	assert.Equal(t, uint64(42*100+7), testutil.Uint64At(buf, 7*100+42))

	_, err = Open(ctx, WithBackendConfig(backend.Config{ID: "x", Type: "tape"}))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, WithBackend(newBackend("b1")))
	ds, err := s.CreateDataset(ctx, "grid", dataspace.Uint64, gridSize)
	require.NoError(t, err)
	require.NoError(t, ds.Write(ctx, testutil.Uint64Grid(gridSize), ds.Space()))
	require.NoError(t, ds.Read(ctx, make([]byte, 100*100*8), ds.Space()))

	st := s.Stats()
	assert.Equal(t, 1, st.Datasets)
	assert.Equal(t, int64(10), st.Fragments.FragmentsAdded)
	assert.Equal(t, int64(1), st.Fragments.SetsCreated)
	assert.Equal(t, int64(1), st.Scheduler.Write.Requests)
	assert.Equal(t, int64(1), st.Scheduler.Read.Requests)
	require.Len(t, st.Pools, 1)
	assert.Equal(t, "b1", st.Pools[0].Backend)

	s.ResetStats()
	st = s.Stats()
	assert.Zero(t, st.Fragments.FragmentsAdded)
	assert.Zero(t, st.Scheduler.Read.Requests)
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, WithBackend(newBackend("b1")))
	require.NoError(t, err)
	ds, err := s.CreateDataset(ctx, "grid", dataspace.Uint64, gridSize)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, ds.Write(ctx, testutil.Uint64Grid(gridSize), ds.Space()), ErrInvalidState)
	_, err = s.CreateDataset(ctx, "more", dataspace.Uint64, gridSize)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil))
	assert.ErrorIs(t, translateError(catalog.ErrNotFound), ErrNotFound)
	assert.ErrorIs(t, translateError(dataspace.ErrTypeMismatch), ErrInvalidArgument)
	other := errors.New("backend down")
	assert.Equal(t, other, translateError(other))
}
