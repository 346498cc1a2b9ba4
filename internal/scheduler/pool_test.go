package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/metrics"
	"github.com/hupe1980/cubestore/testutil"
)

// newPoolTask returns a write task on b1 whose backend call is io.
func newPoolTask(io func(ctx context.Context) error) *Task {
	return &Task{
		Op:       metrics.OpWrite,
		Fragment: fragment.New("b1", gridSpace(), nil),
		io:       io,
	}
}

func TestBackendPool(t *testing.T) {
	s := newScheduler(t, Config{})
	p := newBackendPool(s, "b1", 4)

	var n atomic.Int32
	st := NewStatus()
	st.Add(100)
	for i := 0; i < 100; i++ {
		io := func(context.Context) error {
			n.Add(1)
			return nil
		}
		if i%10 == 0 {
			io = func(context.Context) error { return assert.AnError }
		}
		require.NoError(t, p.submit(context.Background(), st, newPoolTask(io)))
	}
	assert.ErrorIs(t, st.Wait(), assert.AnError)
	p.close()
	p.close()

	assert.Equal(t, int32(90), n.Load())
	assert.Equal(t, PoolStats{Backend: "b1", Workers: 4, Completed: 100, Failed: 10}, p.stats())
	assert.ErrorIs(t, p.submit(context.Background(), NewStatus(), newPoolTask(nil)), ErrClosed)
}

func TestBackendPool_Synchronous(t *testing.T) {
	s := newScheduler(t, Config{})
	p := newBackendPool(s, "b1", 0)
	defer p.close()

	var ran bool
	st := NewStatus()
	st.Add(1)
	require.NoError(t, p.submit(context.Background(), st, newPoolTask(func(context.Context) error {
		ran = true
		return nil
	})))
	// The task ran before submit returned.
	assert.True(t, ran)
	assert.Zero(t, st.Pending())
	assert.Equal(t, PoolStats{Backend: "b1", Completed: 1}, p.stats())
}

func TestBackendPool_SubmitCanceled(t *testing.T) {
	s := newScheduler(t, Config{})
	p := newBackendPool(s, "b1", 1)

	block := make(chan struct{})
	st := NewStatus()
	st.Add(3)
	require.NoError(t, p.submit(context.Background(), st, newPoolTask(func(context.Context) error {
		<-block
		return nil
	})))
	for i := 0; i < 2; i++ {
		require.NoError(t, p.submit(context.Background(), st, newPoolTask(func(context.Context) error { return nil })))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.submit(ctx, st, newPoolTask(nil)), context.Canceled)

	close(block)
	// Close runs what is still queued.
	p.close()
	assert.Zero(t, st.Pending())
	assert.Equal(t, int64(3), p.stats().Completed)
}

func TestScheduler_Pools(t *testing.T) {
	b1 := newBackend("b1", 2, rowBytes*10)
	b2 := newBackend("b2", 0, rowBytes*10)
	s := newScheduler(t, Config{}, b1, b2)

	writeGrid(t, s, b1)
	b2.FailWrites(true)
	_, err := s.Write(context.Background(), testutil.Uint64Grid([]int64{100, 100}), gridSpace(), []backend.Backend{b2})
	require.ErrorIs(t, err, testutil.ErrInjected)

	// Workers account for a task just after its request saw it finish.
	want := []PoolStats{
		{Backend: "b1", Workers: 2, Completed: 10},
		{Backend: "b2", Completed: 10, Failed: 10},
	}
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, s.Pools())
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	assert.Empty(t, s.Pools())
}

func TestStatus(t *testing.T) {
	st := NewStatus()
	st.Add(3)
	assert.Equal(t, 3, st.Pending())

	first := assert.AnError
	go func() {
		st.Done(nil)
		st.Done(first)
		st.Done(context.Canceled)
	}()

	assert.ErrorIs(t, st.Wait(), first)
	assert.Zero(t, st.Pending())
	assert.ErrorIs(t, st.Err(), first)
}

func TestStatus_WaitWithoutTasks(t *testing.T) {
	assert.NoError(t, NewStatus().Wait())
}
