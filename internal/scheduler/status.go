package scheduler

import "sync"

// Status tracks the pending tasks of one request.
//
// The decrement in Done and the check in Wait run under the same mutex, so a
// waiter cannot miss the final signal.
type Status struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending int
	err     error
}

// NewStatus returns a status without pending tasks.
func NewStatus() *Status {
	s := &Status{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Add registers n more pending tasks. It must be called before the tasks are
// dispatched.
func (s *Status) Add(n int) {
	s.mu.Lock()
	s.pending += n
	s.mu.Unlock()
}

// Done marks one task complete. The first non-nil err is kept.
func (s *Status) Done(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && s.err == nil {
		s.err = err
	}
	s.pending--
	if s.pending <= 0 {
		s.cond.Broadcast()
	}
}

// Wait blocks until no task is pending and returns the first task error.
func (s *Status) Wait() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.cond.Wait()
	}
	return s.err
}

// Pending returns the number of tasks not yet complete.
func (s *Status) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Err returns the first error recorded so far.
func (s *Status) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
