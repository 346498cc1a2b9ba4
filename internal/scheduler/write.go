package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/dataspace"
	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/hypercube"
	"github.com/hupe1980/cubestore/metrics"
)

type placement struct {
	backend backend.Backend
	cube    hypercube.Hypercube
}

// SplitDim returns the dimension writes are cut along: the first dimension
// with more than one element, or 0.
func SplitDim(size []int64) int {
	for i, n := range size {
		if n > 1 {
			return i
		}
	}
	return 0
}

// Plan cuts the region of space into fragment cubes and assigns them to
// backends. Backends take turns in order; each turn a backend takes one slab
// per worker thread (at least one), every slab as thick as the backend's
// MaxFragmentSize admits along the split dimension. Slabs are cut further
// with backend.Recommend.
func (s *Scheduler) Plan(space *dataspace.Dataspace, backends []backend.Backend) []hypercube.Hypercube {
	ps := s.plan(space, backends)
	out := make([]hypercube.Hypercube, len(ps))
	for i, p := range ps {
		out[i] = p.cube
	}
	return out
}

func (s *Scheduler) plan(space *dataspace.Dataspace, backends []backend.Backend) []placement {
	if len(backends) == 0 || space.ElementCount() == 0 {
		return nil
	}

	size, offset := space.Size(), space.Offset()
	dim := SplitDim(size)
	cross := space.Type().Size()
	for i, n := range size {
		if i != dim {
			cross *= n
		}
	}

	var out []placement
	cursor, end := offset[dim], offset[dim]+size[dim]
	for k := 0; cursor < end; k = (k + 1) % len(backends) {
		b := backends[k]
		cfg := b.Config().WithDefaults()
		thick := max(1, cfg.MaxFragmentSize/cross)
		slabs := max(1, s.Threads(b))

		for j := 0; j < slabs && cursor < end; j++ {
			n := min(thick, end-cursor)
			slabSize := append([]int64(nil), size...)
			slabOffset := append([]int64(nil), offset...)
			slabSize[dim], slabOffset[dim] = n, cursor

			slab, err := space.Subspace(slabSize, slabOffset)
			if err != nil {
				// The slab lies inside space by construction.
				panic(err)
			}
			for _, c := range backend.Recommend(slab, cfg) {
				out = append(out, placement{backend: b, cube: c})
			}
			cursor += n
		}
	}
	return out
}

// EnqueueWrite splits the region of space into fragments and dispatches one
// write task per fragment. buf holds the elements of space in its layout and
// must stay unchanged until the request completes.
func (s *Scheduler) EnqueueWrite(ctx context.Context, buf []byte, space *dataspace.Dataspace, backends []backend.Backend) (*Request, error) {
	return s.enqueueWrite(ctx, buf, space, backends, false)
}

func (s *Scheduler) enqueueWrite(ctx context.Context, buf []byte, space *dataspace.Dataspace, backends []backend.Backend, internal bool) (*Request, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if len(backends) == 0 {
		return nil, ErrNoBackend
	}
	if int64(len(buf)) < space.BufferSize() {
		return nil, fmt.Errorf("%w: buffer holds %d bytes, %s needs %d",
			dataspace.ErrInvalidArgument, len(buf), space, space.BufferSize())
	}

	req := &Request{op: metrics.OpWrite, space: space, status: NewStatus(), internal: internal, start: time.Now()}
	for _, p := range s.plan(space, backends) {
		fspace, err := dataspace.FromHypercube(space.Type(), p.cube)
		if err != nil {
			return nil, err
		}
		f := fragment.New(p.backend.Config().ID, fspace, nil)
		req.tasks = append(req.tasks, s.writeTask(buf, space, f, p.backend))
	}
	split := time.Since(req.start)

	s.dispatch(ctx, req.status, req.tasks)
	req.enqueued = time.Now()

	s.updateStats(func(st *Stats) {
		st.WriteTimes.Split += split
		st.WriteTimes.Enqueue += req.enqueued.Sub(req.start) - split
	})
	return req, nil
}

// writeTask copies the fragment region out of buf, writes it and drops the
// fragment buffer again.
func (s *Scheduler) writeTask(buf []byte, space *dataspace.Dataspace, f *fragment.Fragment, b backend.Backend) *Task {
	size := f.Space.ByteSize()
	acquired := false
	t := &Task{Op: metrics.OpWrite, Fragment: f, Backend: b}
	t.io = func(ctx context.Context) error {
		if err := s.rc.AcquireMemory(ctx, size); err != nil {
			return err
		}
		acquired = true
		f.Data = make([]byte, size)
		if err := dataspace.CopyData(space, buf, f.Space, f.Data); err != nil {
			return err
		}
		return b.Write(ctx, f)
	}
	t.callback = func(err error) error {
		f.Unload()
		if acquired {
			s.rc.ReleaseMemory(size)
		}
		return err
	}
	return t
}

// Write stores the region of space and returns the fragments written.
//
// On failure the returned fragments are those that were persisted; the error
// is the first task error.
func (s *Scheduler) Write(ctx context.Context, buf []byte, space *dataspace.Dataspace, backends []backend.Backend) ([]*fragment.Fragment, error) {
	return s.write(ctx, buf, space, backends, false)
}

func (s *Scheduler) write(ctx context.Context, buf []byte, space *dataspace.Dataspace, backends []backend.Backend, internal bool) ([]*fragment.Fragment, error) {
	req, err := s.enqueueWrite(ctx, buf, space, backends, internal)
	if err != nil {
		s.metrics.RecordWrite(space.ByteSize(), 0, 0, err)
		return nil, err
	}
	err = req.Wait()
	done := time.Now()

	var written []*fragment.Fragment
	for _, t := range req.tasks {
		if t.Err() == nil {
			written = append(written, t.Fragment)
		}
	}

	s.updateStats(func(st *Stats) {
		if internal {
			st.Write.InternalRequests++
			st.Write.BytesInternal += space.ByteSize()
		} else {
			st.Write.Requests++
			st.Write.BytesUser += space.ByteSize()
		}
		st.Write.Fragments += int64(len(req.tasks))
		st.Write.BytesIO += req.ioBytes()
		st.WriteTimes.Wait += done.Sub(req.enqueued)
		st.WriteTimes.Total += done.Sub(req.start)
	})
	if !internal {
		s.metrics.RecordWrite(space.ByteSize(), len(req.tasks), done.Sub(req.start), err)
	}
	return written, err
}
