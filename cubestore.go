package cubestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/backend/blob"
	"github.com/hupe1980/cubestore/blobstore"
	"github.com/hupe1980/cubestore/catalog"
	"github.com/hupe1980/cubestore/dataspace"
	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/internal/cache"
	"github.com/hupe1980/cubestore/internal/scheduler"
	"github.com/hupe1980/cubestore/metrics"
	"github.com/hupe1980/cubestore/resource"
)

// DefaultDeleteConcurrency bounds the concurrent fragment deletions of
// DeleteDataset.
const DefaultDeleteConcurrency = 16

// Store holds the backends, the catalog and the open datasets of one process.
//
// A Store is safe for concurrent use.
type Store struct {
	reg         *backend.Registry
	sched       *scheduler.Scheduler
	catalog     catalog.Catalog
	ownsCatalog bool
	rc          *resource.Controller
	metrics     metrics.Collector
	logger      *Logger

	mu       sync.Mutex
	datasets map[string]*Dataset
	closed   bool
}

// Open creates a store.
//
// Example:
//
//	store, _ := cubestore.Open(ctx,
//	    cubestore.WithBackend(b),
//	    cubestore.WithCatalog(cat),
//	)
//	defer store.Close()
func Open(ctx context.Context, optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)
	rc := resource.NewController(o.resources)

	reg, err := backend.NewRegistry(o.backends...)
	if err != nil {
		return nil, translateError(err)
	}

	var blockCache cache.BlockCache
	if o.blockCacheBytes > 0 {
		blockCache = cache.NewLRUBlockCache(o.blockCacheBytes, rc)
	}
	for _, spec := range o.backendConfigs {
		opts := append([]blob.OpenOption{
			blob.WithBackendOptions(
				blob.WithResourceController(rc),
				blob.WithLogger(o.logger.WithBackend(spec.cfg.ID).Logger),
			),
		}, spec.opts...)
		if blockCache != nil {
			opts = append(opts, blob.WithBlockCache(blockCache, 0))
		}
		b, err := blob.Open(ctx, spec.cfg, opts...)
		if err != nil {
			return nil, translateError(err)
		}
		if err := reg.Register(b); err != nil {
			return nil, translateError(err)
		}
	}

	cat, owns := o.catalog, false
	switch {
	case cat != nil:
	case o.s3Catalog != nil:
		opts := o.s3Catalog.opts
		if opts.Codec == nil {
			opts.Codec = o.codec
		}
		m, err := catalog.OpenS3(ctx, o.s3Catalog.bucket, opts)
		if err != nil {
			return nil, err
		}
		cat, owns = m, true
	default:
		cat, owns = catalog.NewManifest(blobstore.NewMemoryStore(), o.codec), true
	}

	s := &Store{
		reg:         reg,
		catalog:     cat,
		ownsCatalog: owns,
		rc:          rc,
		metrics:     o.metricsCollector,
		logger:      o.logger,
		datasets:    make(map[string]*Dataset),
	}
	s.sched = scheduler.New(reg, scheduler.Config{
		ProcsPerNode:   o.procsPerNode,
		TotalProcs:     o.totalProcs,
		Resources:      rc,
		Metrics:        o.metricsCollector,
		Logger:         o.logger.Logger,
		WriteBackRatio: o.writeBackRatio,
	})

	for _, b := range reg.All() {
		s.logger.DebugContext(ctx, "backend registered",
			"backend", b.Config().ID,
			"type", b.Config().Type,
			"threads", s.sched.Threads(b),
		)
	}
	return s, nil
}

// Backends returns the registered backends in registration order.
func (s *Store) Backends() []backend.Backend { return s.reg.All() }

// CreateDataset creates a dataset of element type typ spanning size elements
// from the origin.
func (s *Store) CreateDataset(ctx context.Context, name string, typ dataspace.Type, size []int64, opts ...DatasetOption) (*Dataset, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	desc := catalog.Descriptor{
		Name:      name,
		Type:      typ.String(),
		Size:      append([]int64(nil), size...),
		CreatedAt: time.Now().UTC(),
	}
	for _, fn := range opts {
		fn(&desc)
	}

	d, err := s.newDataset(desc)
	if err != nil {
		return nil, err
	}
	d.complete = true
	if err := s.catalog.CreateDataset(ctx, desc); err != nil {
		return nil, translateError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[name] = d
	s.logger.WithDataset(name).InfoContext(ctx, "dataset created", "type", desc.Type, "size", desc.Size)
	return d, nil
}

// OpenDataset returns the dataset called name. Fragment records are loaded
// from the catalog on demand by the regions read.
func (s *Store) OpenDataset(ctx context.Context, name string) (*Dataset, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if d, ok := s.datasets[name]; ok {
		s.mu.Unlock()
		return d, nil
	}
	s.mu.Unlock()

	desc, err := s.catalog.Dataset(ctx, name)
	if err != nil {
		return nil, translateError(err)
	}
	d, err := s.newDataset(desc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.datasets[name]; ok {
		return existing, nil
	}
	s.datasets[name] = d
	return d, nil
}

// Datasets returns the names of all datasets in the catalog.
func (s *Store) Datasets(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	names, err := s.catalog.Datasets(ctx)
	return names, translateError(err)
}

// DeleteDataset removes every fragment of the dataset from its backend and
// then the dataset from the catalog. Fragments that could not be deleted keep
// the dataset in place and the first error is returned.
func (s *Store) DeleteDataset(ctx context.Context, name string) error {
	d, err := s.OpenDataset(ctx, name)
	if err != nil {
		return err
	}
	if err := d.loadAll(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	err = d.set.DeleteAll(ctx, DefaultDeleteConcurrency, s.deleteFragment)
	d.mu.Unlock()
	if err != nil {
		return translateError(err)
	}

	if err := s.catalog.DeleteDataset(ctx, name); err != nil {
		return translateError(err)
	}
	s.mu.Lock()
	delete(s.datasets, name)
	s.mu.Unlock()
	s.logger.WithDataset(name).InfoContext(ctx, "dataset deleted")
	return nil
}

func (s *Store) deleteFragment(ctx context.Context, f *fragment.Fragment) error {
	b, err := s.reg.Lookup(f.Backend)
	if err != nil {
		return err
	}
	return b.Delete(ctx, f)
}

// Stats summarizes the work of the store.
type Stats struct {
	// Scheduler holds request counters and per-phase timings.
	Scheduler scheduler.Stats
	// Pools holds the task accounting of each backend.
	Pools []scheduler.PoolStats
	// Fragments sums the fragment set counters of the open datasets.
	Fragments fragment.Stats
	// Datasets is the number of open datasets.
	Datasets int
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	datasets := make([]*Dataset, 0, len(s.datasets))
	for _, d := range s.datasets {
		datasets = append(datasets, d)
	}
	s.mu.Unlock()

	st := Stats{Scheduler: s.sched.Stats(), Pools: s.sched.Pools(), Datasets: len(datasets)}
	for _, d := range datasets {
		st.Fragments = st.Fragments.Merge(d.Stats())
	}
	return st
}

// ResetStats zeroes the scheduler and fragment set counters.
func (s *Store) ResetStats() {
	s.sched.ResetStats()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.datasets {
		d.resetStats()
	}
}

// Close waits for queued backend tasks and releases the store. Uncommitted
// fragments stay in their backends but are not recorded in the catalog.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.sched.Close()
	if s.ownsCatalog {
		err = errors.Join(err, s.catalog.Close())
	}
	return err
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store closed", ErrInvalidState)
	}
	return nil
}
