package cubestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/catalog"
	"github.com/hupe1980/cubestore/dataspace"
	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/hypercube"
	"github.com/hupe1980/cubestore/internal/scheduler"
)

// Dataset is an N-dimensional array stored as fragments across backends.
//
// Writes register their fragments immediately, so they are visible to reads
// of the same Dataset at once; Commit records them in the catalog. A Dataset
// is safe for concurrent use.
type Dataset struct {
	store   *Store
	desc    catalog.Descriptor
	typ     dataspace.Type
	extents hypercube.Hypercube
	logger  *Logger

	commitMu sync.Mutex

	mu       sync.Mutex
	set      *fragment.Set
	known    map[string]struct{}
	dropped  map[string]struct{}
	pending  []*fragment.Fragment
	replaced []*fragment.Fragment
	complete bool
}

func (s *Store) newDataset(desc catalog.Descriptor) (*Dataset, error) {
	if err := desc.Validate(); err != nil {
		return nil, translateError(err)
	}
	typ, err := dataspace.ParseType(desc.Type)
	if err != nil {
		return nil, translateError(err)
	}
	if desc.FillValue != nil && int64(len(desc.FillValue)) != typ.Size() {
		return nil, fmt.Errorf("%w: fill value of %d bytes for %s", ErrInvalidArgument, len(desc.FillValue), typ)
	}
	for _, id := range desc.Backends {
		if _, err := s.reg.Lookup(id); err != nil {
			return nil, err
		}
	}

	return &Dataset{
		store:   s,
		desc:    desc,
		typ:     typ,
		extents: hypercube.FromOffsetSize(make([]int64, len(desc.Size)), desc.Size),
		logger:  s.logger.WithDataset(desc.Name),
		set:     fragment.NewSet(),
		known:   make(map[string]struct{}),
		dropped: make(map[string]struct{}),
	}, nil
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.desc.Name }

// Type returns the element type.
func (d *Dataset) Type() dataspace.Type { return d.typ }

// Space returns a contiguous dataspace over the whole dataset.
func (d *Dataset) Space() *dataspace.Dataspace {
	return dataspace.MustNew(d.typ, d.desc.Size, nil)
}

// FillValue returns the fill element, or nil.
func (d *Dataset) FillValue() []byte {
	return append([]byte(nil), d.desc.FillValue...)
}

// Write stores the region of space, taking its elements from buf in the layout
// of space. Writing a region that equals a stored fragment replaces that
// fragment; other overlaps leave the overlapped elements undefined.
func (d *Dataset) Write(ctx context.Context, buf []byte, space *dataspace.Dataspace) error {
	start := time.Now()
	n, err := d.write(ctx, buf, space)
	d.logger.LogWrite(ctx, space, n, time.Since(start), err)
	return err
}

func (d *Dataset) write(ctx context.Context, buf []byte, space *dataspace.Dataspace) (int, error) {
	if err := d.store.checkOpen(); err != nil {
		return 0, err
	}
	if err := d.checkRegion(space); err != nil {
		return 0, err
	}
	// Stored fragments of the region must be known to be replaced.
	if err := d.seed(ctx, space.Extents()); err != nil {
		return 0, translateError(err)
	}
	backends, err := d.backends()
	if err != nil {
		return 0, translateError(err)
	}

	frags, err := d.store.sched.Write(ctx, buf, space, backends)

	d.mu.Lock()
	regErr := d.register(frags)
	d.mu.Unlock()
	return len(frags), translateError(errors.Join(err, regErr))
}

// Read fills buf with the region of space in the layout of space.
//
// Elements no fragment covers are set to the fill value. Without a fill value
// such reads fail with ErrIncompleteData before any backend is read.
func (d *Dataset) Read(ctx context.Context, buf []byte, space *dataspace.Dataspace) error {
	start := time.Now()
	res, err := d.read(ctx, buf, space)
	d.logger.LogRead(ctx, space, len(res.Fragments), res.Filled, time.Since(start), err)
	return err
}

func (d *Dataset) read(ctx context.Context, buf []byte, space *dataspace.Dataspace) (scheduler.ReadResult, error) {
	if err := d.store.checkOpen(); err != nil {
		return scheduler.ReadResult{}, err
	}
	if err := d.checkRegion(space); err != nil {
		return scheduler.ReadResult{}, err
	}
	if err := d.seed(ctx, space.Extents()); err != nil {
		return scheduler.ReadResult{}, translateError(err)
	}
	backends, err := d.backends()
	if err != nil {
		return scheduler.ReadResult{}, translateError(err)
	}

	res, err := d.store.sched.Read(ctx, (*selector)(d), buf, space, scheduler.ReadOptions{
		FillValue: d.desc.FillValue,
		WriteBack: backends,
	})
	if len(res.WrittenBack) > 0 {
		d.mu.Lock()
		if regErr := d.register(res.WrittenBack); regErr != nil {
			d.logger.DebugContext(ctx, "write-back not registered", "error", regErr)
		}
		d.mu.Unlock()
	}
	return res, translateError(err)
}

// Commit records the fragments written since the last commit in the catalog
// and deletes the fragments they replaced from their backends.
func (d *Dataset) Commit(ctx context.Context) error {
	if err := d.store.checkOpen(); err != nil {
		return err
	}

	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	d.mu.Lock()
	pending := d.pending
	replaced := d.replaced
	records := make([]fragment.Record, 0, len(pending))
	for _, f := range pending {
		if _, ok := d.known[f.ID]; ok {
			records = append(records, f.Record())
		}
	}
	d.mu.Unlock()

	if len(records) > 0 {
		if err := d.store.catalog.Save(ctx, d.desc.Name, records); err != nil {
			d.logger.LogCommit(ctx, len(records), len(replaced), err)
			return translateError(err)
		}
	}
	if len(replaced) > 0 {
		ids := make([]string, len(replaced))
		for i, f := range replaced {
			ids[i] = f.ID
		}
		if err := d.store.catalog.Delete(ctx, d.desc.Name, ids); err != nil {
			d.logger.LogCommit(ctx, len(records), len(replaced), err)
			return translateError(err)
		}
		for _, f := range replaced {
			if err := d.store.deleteFragment(ctx, f); err != nil {
				d.logger.WarnContext(ctx, "replaced fragment not deleted", "fragment", f.ID, "backend", f.Backend, "error", err)
			}
		}
	}

	d.mu.Lock()
	d.pending = d.pending[len(pending):]
	d.replaced = d.replaced[len(replaced):]
	for _, f := range replaced {
		delete(d.dropped, f.ID)
	}
	d.mu.Unlock()

	d.logger.LogCommit(ctx, len(records), len(replaced), nil)
	return nil
}

// Fragments returns the records of the fragments registered in memory.
func (d *Dataset) Fragments() []fragment.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.set.Records()
}

// Load registers every fragment recorded in the catalog.
func (d *Dataset) Load(ctx context.Context) error {
	return translateError(d.loadAll(ctx))
}

// Stats returns the fragment set counters of the dataset.
func (d *Dataset) Stats() fragment.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.set.Stats()
}

func (d *Dataset) resetStats() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.set.ResetStats()
}

func (d *Dataset) checkRegion(space *dataspace.Dataspace) error {
	if space == nil {
		return fmt.Errorf("%w: nil dataspace", ErrInvalidArgument)
	}
	if space.Dims() != d.extents.Dims() {
		return &ErrDimensionMismatch{Expected: d.extents.Dims(), Actual: space.Dims()}
	}
	if space.Type() != d.typ {
		return fmt.Errorf("%w: %s dataspace for %s dataset %s", ErrInvalidArgument, space.Type(), d.typ, d.desc.Name)
	}
	if !d.extents.Contains(space.Extents()) {
		return fmt.Errorf("%w: region %v outside dataset %s %v", ErrInvalidArgument, space.Extents(), d.desc.Name, d.extents)
	}
	return nil
}

// backends returns the backends the dataset writes to.
func (d *Dataset) backends() ([]backend.Backend, error) {
	if len(d.desc.Backends) == 0 {
		all := d.store.reg.All()
		if len(all) == 0 {
			return nil, scheduler.ErrNoBackend
		}
		return all, nil
	}
	out := make([]backend.Backend, len(d.desc.Backends))
	for i, id := range d.desc.Backends {
		b, err := d.store.reg.Lookup(id)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// register adds frags to the fragment set as uncommitted fragments. A fragment
// with the extents of a registered one replaces it. d.mu must be held.
func (d *Dataset) register(frags []*fragment.Fragment) error {
	var err error
	for _, f := range frags {
		if old := d.set.Replace(f); old != nil {
			delete(d.known, old.ID)
			d.dropped[old.ID] = struct{}{}
			d.replaced = append(d.replaced, old)
		} else if addErr := d.set.Add(f); addErr != nil {
			err = errors.Join(err, addErr)
			continue
		}
		d.known[f.ID] = struct{}{}
		d.pending = append(d.pending, f)
	}
	return err
}

// seed registers the catalog records intersecting query that are not in
// memory yet.
func (d *Dataset) seed(ctx context.Context, query hypercube.Hypercube) error {
	d.mu.Lock()
	complete := d.complete
	d.mu.Unlock()
	if complete {
		return nil
	}

	records, err := d.store.catalog.Lookup(ctx, d.desc.Name, query)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	loaded := 0
	for _, r := range records {
		if _, ok := d.known[r.ID]; ok {
			continue
		}
		if _, ok := d.dropped[r.ID]; ok {
			continue
		}
		f, err := fragment.FromRecord(r)
		if err != nil {
			return err
		}
		if err := d.set.Add(f); err != nil {
			// A newer fragment of the same shape is registered.
			if errors.Is(err, fragment.ErrInvalidState) {
				continue
			}
			return err
		}
		d.known[r.ID] = struct{}{}
		loaded++
	}
	if loaded > 0 {
		d.logger.DebugContext(ctx, "fragments loaded", "region", query.String(), "fragments", loaded)
	}
	return nil
}

func (d *Dataset) loadAll(ctx context.Context) error {
	if err := d.seed(ctx, hypercube.Hypercube{}); err != nil {
		return err
	}
	d.mu.Lock()
	d.complete = true
	fragments := d.set.Len()
	d.mu.Unlock()
	d.logger.LogOpen(ctx, fragments, nil)
	return nil
}

// selector runs coverage selection under the dataset lock.
type selector Dataset

func (s *selector) MakeSetCoveringRegion(query hypercube.Hypercube) []*fragment.Fragment {
	d := (*Dataset)(s)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.set.MakeSetCoveringRegion(query)
}
