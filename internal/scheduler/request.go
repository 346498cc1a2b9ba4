package scheduler

import (
	"time"

	"github.com/hupe1980/cubestore/dataspace"
	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/hypercube"
	"github.com/hupe1980/cubestore/metrics"
)

// Request is a dispatched read or write.
type Request struct {
	op       metrics.Op
	space    *dataspace.Dataspace
	status   *Status
	tasks    []*Task
	internal bool

	start    time.Time
	enqueued time.Time

	// read state
	selected  []*fragment.Fragment
	uncovered *hypercube.Set
	filled    int64
	buf       []byte
}

// Op returns the request direction.
func (r *Request) Op() metrics.Op { return r.op }

// Tasks returns the tasks of the request.
func (r *Request) Tasks() []*Task { return r.tasks }

// Pending returns the number of tasks not yet complete.
func (r *Request) Pending() int { return r.status.Pending() }

// Wait blocks until every task completed and returns the first task error.
func (r *Request) Wait() error { return r.status.Wait() }

// Fragments returns the fragments of the request: the created fragments of a
// write, the selected fragments of a read.
func (r *Request) Fragments() []*fragment.Fragment {
	if r.op == metrics.OpRead {
		return r.selected
	}
	out := make([]*fragment.Fragment, len(r.tasks))
	for i, t := range r.tasks {
		out[i] = t.Fragment
	}
	return out
}

// Uncovered returns the part of a read region no selected fragment covers.
func (r *Request) Uncovered() *hypercube.Set { return r.uncovered }

func (r *Request) ioBytes() int64 {
	var n int64
	for _, t := range r.tasks {
		n += t.bytes()
	}
	return n
}
