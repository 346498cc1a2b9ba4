package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/dataspace"
	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/hypercube"
	"github.com/hupe1980/cubestore/metrics"
)

// Selector picks the fragments covering a region.
// *fragment.Set implements it.
type Selector interface {
	MakeSetCoveringRegion(query hypercube.Hypercube) []*fragment.Fragment
}

// ReadOptions configures one read.
type ReadOptions struct {
	// FillValue is the bytes of one element written into the part of the
	// region no fragment covers. Without it such reads fail with
	// ErrIncompleteData.
	FillValue []byte

	// WriteBack lists the backends an expensive read is written back to.
	// Empty disables write-back for the read.
	WriteBack []backend.Backend
}

// ReadResult describes a completed read.
type ReadResult struct {
	// Fragments are the fragments selected for the region.
	Fragments []*fragment.Fragment
	// Filled is the number of elements set to the fill value.
	Filled int64
	// RequestedBytes is the payload of the region, FetchedBytes the bytes
	// read from backends.
	RequestedBytes int64
	FetchedBytes   int64
	// WrittenBack holds the fragments created by write-back. The caller
	// registers them with its fragment set.
	WrittenBack []*fragment.Fragment
}

// EnqueueRead selects the fragments covering the region of space and
// dispatches one read task per fragment. Uncovered elements are set to
// opts.FillValue before dispatch. The result lands in buf in the layout of
// space.
func (s *Scheduler) EnqueueRead(ctx context.Context, sel Selector, buf []byte, space *dataspace.Dataspace, opts ReadOptions) (*Request, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if int64(len(buf)) < space.BufferSize() {
		return nil, fmt.Errorf("%w: buffer holds %d bytes, %s needs %d",
			dataspace.ErrInvalidArgument, len(buf), space, space.BufferSize())
	}

	req := &Request{op: metrics.OpRead, space: space, status: NewStatus(), buf: buf, start: time.Now()}
	query := space.Extents()
	if query.IsEmpty() {
		req.uncovered = hypercube.NewSet()
		req.enqueued = req.start
		return req, nil
	}

	req.selected = sel.MakeSetCoveringRegion(query)
	req.uncovered = hypercube.NewSet(query)
	for _, f := range req.selected {
		req.uncovered.Subtract(f.Extents())
	}
	selected := time.Now()

	if !req.uncovered.IsEmpty() {
		if opts.FillValue == nil {
			s.logger.Debug("incomplete read",
				"region", query.String(),
				"fragments", len(req.selected),
				"missing_elements", req.uncovered.Volume(),
			)
			return nil, fmt.Errorf("%w: %d of %d elements of %v not stored",
				ErrIncompleteData, req.uncovered.Volume(), query.Volume(), query)
		}
		if err := fill(space, buf, opts.FillValue, req.uncovered); err != nil {
			return nil, err
		}
		req.filled = req.uncovered.Volume()
		s.metrics.RecordFill(req.filled)
	}
	filled := time.Now()

	// Resolve every backend before dispatch; an unknown id fails the request.
	backends := make([]backend.Backend, len(req.selected))
	for i, f := range req.selected {
		b, err := s.reg.Lookup(f.Backend)
		if err != nil {
			return nil, fmt.Errorf("fragment %s: %w", f.ID, err)
		}
		backends[i] = b
	}

	// Overlapping fragments write the same bytes of buf; their copies are
	// serialized and never go directly into buf.
	overlapping := anyOverlap(req.selected)
	var copyMu *sync.Mutex
	if overlapping {
		copyMu = &sync.Mutex{}
	}
	for i, f := range req.selected {
		req.tasks = append(req.tasks, s.readTask(buf, space, f, backends[i], !overlapping, copyMu))
	}

	s.dispatch(ctx, req.status, req.tasks)
	req.enqueued = time.Now()

	s.updateStats(func(st *Stats) {
		st.ReadTimes.MakeSet += selected.Sub(req.start)
		st.ReadTimes.Fill += filled.Sub(selected)
		st.ReadTimes.Enqueue += req.enqueued.Sub(filled)
	})
	return req, nil
}

func fill(space *dataspace.Dataspace, buf []byte, value []byte, uncovered *hypercube.Set) error {
	for _, c := range uncovered.Cubes() {
		region, err := dataspace.FromHypercube(space.Type(), c)
		if err != nil {
			return err
		}
		if err := dataspace.Fill(space, buf, value, region); err != nil {
			return err
		}
	}
	return nil
}

func anyOverlap(frags []*fragment.Fragment) bool {
	seen := make([]hypercube.Hypercube, 0, len(frags))
	for _, f := range frags {
		ext := f.Extents()
		if hypercube.DoesIntersect(seen, ext) {
			return true
		}
		seen = append(seen, ext)
	}
	return false
}

// readTask reads f straight into buf when f lands there as one block,
// otherwise into an intermediate buffer that is copied back.
func (s *Scheduler) readTask(buf []byte, space *dataspace.Dataspace, f *fragment.Fragment, b backend.Backend, allowDirect bool, copyMu *sync.Mutex) *Task {
	t := &Task{Op: metrics.OpRead, Fragment: f, Backend: b}
	size := f.Space.ByteSize()

	if allowDirect {
		srcOff, dstOff, n, ok := dataspace.Block(f.Space, space)
		if ok && srcOff == 0 && n == size {
			t.io = func(ctx context.Context) error {
				return b.Read(ctx, f, buf[dstOff:dstOff+n])
			}
			return t
		}
	}

	var tmp []byte
	t.io = func(ctx context.Context) error {
		if err := s.rc.AcquireMemory(ctx, size); err != nil {
			return err
		}
		tmp = make([]byte, size)
		return b.Read(ctx, f, tmp)
	}
	t.callback = func(err error) error {
		if tmp == nil {
			return err
		}
		defer s.rc.ReleaseMemory(size)
		if err != nil {
			return err
		}
		if copyMu != nil {
			copyMu.Lock()
			defer copyMu.Unlock()
		}
		return dataspace.CopyData(f.Space, tmp, space, buf)
	}
	return t
}

// Read fills buf with the region of space.
//
// A complete read that fetched at least the configured ratio of the requested
// bytes is written back to opts.WriteBack as new fragments. Write-back is best
// effort; its failures are logged and not returned.
func (s *Scheduler) Read(ctx context.Context, sel Selector, buf []byte, space *dataspace.Dataspace, opts ReadOptions) (ReadResult, error) {
	start := time.Now()
	req, err := s.EnqueueRead(ctx, sel, buf, space, opts)
	if err != nil {
		s.metrics.RecordRead(space.ByteSize(), 0, 0, time.Since(start), err)
		return ReadResult{}, err
	}

	err = req.Wait()
	waited := time.Now()

	res := ReadResult{
		Fragments:      req.selected,
		Filled:         req.filled,
		RequestedBytes: space.ByteSize(),
		FetchedBytes:   req.ioBytes(),
	}

	if err == nil && req.filled == 0 && s.shouldWriteBack(res, opts) {
		res.WrittenBack = s.writeBack(ctx, buf, space, opts.WriteBack)
	}
	done := time.Now()

	s.updateStats(func(st *Stats) {
		st.Read.Requests++
		st.Read.BytesUser += res.RequestedBytes
		st.Read.Fragments += int64(len(req.tasks))
		st.Read.BytesIO += res.FetchedBytes
		st.ReadTimes.Wait += waited.Sub(req.enqueued)
		st.ReadTimes.WriteBack += done.Sub(waited)
		st.ReadTimes.Total += done.Sub(req.start)
	})
	s.metrics.RecordRead(res.RequestedBytes, res.FetchedBytes, len(req.tasks), done.Sub(start), err)
	return res, err
}

func (s *Scheduler) shouldWriteBack(res ReadResult, opts ReadOptions) bool {
	if s.cfg.WriteBackRatio < 0 || len(opts.WriteBack) == 0 || res.RequestedBytes == 0 {
		return false
	}
	return float64(res.FetchedBytes)/float64(res.RequestedBytes) >= s.cfg.WriteBackRatio
}

func (s *Scheduler) writeBack(ctx context.Context, buf []byte, space *dataspace.Dataspace, backends []backend.Backend) []*fragment.Fragment {
	if !s.rc.TryAcquireBackground() {
		s.logger.Debug("write-back skipped: no background slot")
		return nil
	}
	defer s.rc.ReleaseBackground()

	frags, err := s.write(ctx, buf, space, backends, true)
	s.metrics.RecordWriteBack(space.ByteSize(), err)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("write-back failed", "region", space.Extents().String(), "error", err)
	}
	s.logger.Debug("write-back", "region", space.Extents().String(), "fragments", len(frags))
	return frags
}
