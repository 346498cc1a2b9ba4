package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/metrics"
	"github.com/hupe1980/cubestore/resource"
)

// DefaultWriteBackRatio is the fetched-to-requested byte ratio from which a
// complete read is written back as a new fragment.
const DefaultWriteBackRatio = 8

// Config configures a Scheduler.
type Config struct {
	// ProcsPerNode is the number of processes sharing a node. Defaults to 1.
	ProcsPerNode int
	// TotalProcs is the number of processes in all. Defaults to 1.
	TotalProcs int

	// Resources limits intermediate buffers, I/O and write-back jobs.
	// Nil grants everything.
	Resources *resource.Controller
	// Metrics receives request and task observations. Defaults to metrics.Noop.
	Metrics metrics.Collector
	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// WriteBackRatio enables write-back of expensive reads. Zero uses
	// DefaultWriteBackRatio, a negative value disables write-back.
	WriteBackRatio float64
}

// Scheduler dispatches fragment tasks to backend worker pools.
//
// A Scheduler is safe for concurrent use.
type Scheduler struct {
	reg     *backend.Registry
	cfg     Config
	rc      *resource.Controller
	metrics metrics.Collector
	logger  *slog.Logger

	mu     sync.Mutex
	pools  map[string]*backendPool
	closed bool

	statsMu sync.Mutex
	stats   Stats
}

// New returns a scheduler for the backends of reg.
func New(reg *backend.Registry, cfg Config) *Scheduler {
	cfg.ProcsPerNode = max(cfg.ProcsPerNode, 1)
	cfg.TotalProcs = max(cfg.TotalProcs, 1)
	if cfg.WriteBackRatio == 0 {
		cfg.WriteBackRatio = DefaultWriteBackRatio
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &Scheduler{
		reg:     reg,
		cfg:     cfg,
		rc:      cfg.Resources,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		pools:   make(map[string]*backendPool),
	}
}

// Registry returns the backends the scheduler resolves fragments against.
func (s *Scheduler) Registry() *backend.Registry { return s.reg }

// Threads returns the worker count of b for this process.
func (s *Scheduler) Threads(b backend.Backend) int {
	return b.Config().ThreadCount(s.cfg.ProcsPerNode, s.cfg.TotalProcs)
}

// pool returns the task pool of b, creating it on first use.
func (s *Scheduler) pool(b backend.Backend) (*backendPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	id := b.Config().ID
	if p, ok := s.pools[id]; ok {
		return p, nil
	}

	threads := s.Threads(b)
	s.logger.Debug("backend thread sizing",
		"backend", id,
		"threads", threads,
		"procs_per_node", s.cfg.ProcsPerNode,
		"total_procs", s.cfg.TotalProcs,
	)

	p := newBackendPool(s, id, threads)
	s.pools[id] = p
	return p, nil
}

// dispatch registers all tasks with st and hands them to their pools.
// Tasks that cannot be queued complete with the submission error.
func (s *Scheduler) dispatch(ctx context.Context, st *Status, tasks []*Task) {
	st.Add(len(tasks))
	for _, t := range tasks {
		p, err := s.pool(t.Backend)
		if err == nil {
			err = p.submit(ctx, st, t)
		}
		if err != nil {
			t.fail(st, err)
		}
	}
}

// Pools returns the task accounting of every backend pool started so far,
// ordered by backend id.
func (s *Scheduler) Pools() []PoolStats {
	s.mu.Lock()
	pools := make([]*backendPool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	s.mu.Unlock()

	out := make([]PoolStats, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Backend < out[j].Backend })
	return out
}

// Close stops all worker pools after their queued tasks have run.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pools := s.pools
	s.pools = nil
	s.mu.Unlock()

	for _, p := range pools {
		p.close()
	}
	return nil
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
