package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/metrics"
)

// Task is one backend call for one fragment.
type Task struct {
	Op       metrics.Op
	Fragment *fragment.Fragment
	Backend  backend.Backend

	// io performs the backend call.
	io func(ctx context.Context) error
	// callback runs after io with its result; its return value is the task
	// result. It copies read data back or releases buffers.
	callback func(err error) error

	runs atomic.Int32
	done atomic.Bool
	err  error
}

// Done reports whether the task has recorded its result.
func (t *Task) Done() bool { return t.done.Load() }

// Err returns the task result. It is valid once Done reports true.
func (t *Task) Err() error { return t.err }

// Executions returns how often the task ran.
func (t *Task) Executions() int { return int(t.runs.Load()) }

func (t *Task) bytes() int64 { return t.Fragment.Space.ByteSize() }

func (t *Task) execute(ctx context.Context, st *Status, s *Scheduler) {
	t.runs.Add(1)
	start := time.Now()

	err := t.io(ctx)
	if t.callback != nil {
		err = t.callback(err)
	}
	if err != nil {
		err = fmt.Errorf("%s %s on backend %s: %w", t.Op, t.Fragment.ID, t.Fragment.Backend, err)
		s.logger.Warn("task failed", "op", string(t.Op), "fragment", t.Fragment.ID, "backend", t.Fragment.Backend, "error", err)
	}
	s.metrics.RecordTask(t.Fragment.Backend, t.Op, t.bytes(), time.Since(start), err)

	t.finish(st, err)
}

// fail completes a task that could not be dispatched.
func (t *Task) fail(st *Status, err error) {
	if t.callback != nil {
		err = t.callback(err)
	}
	t.finish(st, err)
}

func (t *Task) finish(st *Status, err error) {
	t.err = err
	t.done.Store(true)
	st.Done(err)
}
