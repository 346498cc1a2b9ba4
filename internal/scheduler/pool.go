package scheduler

import (
	"context"
	"sync"
)

// job is a task queued on a backend pool with the request it reports to.
type job struct {
	ctx  context.Context
	st   *Status
	task *Task
}

// PoolStats is the task accounting of one backend pool.
type PoolStats struct {
	Backend string
	// Workers is the number of goroutines; 0 means tasks run in the
	// dispatching goroutine.
	Workers   int
	Queued    int
	Running   int
	Completed int64
	Failed    int64
}

// backendPool runs the tasks of one backend on a fixed set of goroutines in
// submission order. The queue is unbounded, so dispatching never blocks on a
// slow backend.
type backendPool struct {
	backend string
	workers int
	sched   *Scheduler

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []job
	running   int
	completed int64
	failed    int64
	closed    bool

	wg sync.WaitGroup
}

func newBackendPool(s *Scheduler, backend string, workers int) *backendPool {
	p := &backendPool{backend: backend, workers: max(workers, 0), sched: s}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker()
	}
	return p
}

// submit queues t. A pool without workers runs t before returning.
//
// Returns ErrClosed after close and ctx.Err() if ctx has ended.
func (p *backendPool) submit(ctx context.Context, st *Status, t *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j := job{ctx: ctx, st: st, task: t}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.workers == 0 {
		p.running++
		p.mu.Unlock()
		p.run(j)
		return nil
	}
	p.queue = append(p.queue, j)
	p.mu.Unlock()

	p.cond.Signal()
	return nil
}

func (p *backendPool) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		// Closed pools drain their queue first.
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue[0] = job{}
		p.queue = p.queue[1:]
		p.running++
		p.mu.Unlock()

		p.run(j)
	}
}

// run executes a job already counted as running.
func (p *backendPool) run(j job) {
	j.task.execute(j.ctx, j.st, p.sched)

	p.mu.Lock()
	p.running--
	p.completed++
	if j.task.Err() != nil {
		p.failed++
	}
	p.mu.Unlock()
}

// close stops the pool after queued tasks have run. It is idempotent.
func (p *backendPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *backendPool) stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Backend:   p.backend,
		Workers:   p.workers,
		Queued:    len(p.queue),
		Running:   p.running,
		Completed: p.completed,
		Failed:    p.failed,
	}
}
