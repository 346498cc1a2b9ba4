package fragment

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/cubestore/hypercube"
	"github.com/hupe1980/cubestore/internal/neighbour"
)

// Set is the fragment registry of one dataset.
//
// A Set is mutated by a single writer; callers serialize Add and DeleteAll.
type Set struct {
	frags   []*Fragment
	mgr     *neighbour.Manager
	byShape map[uint64][]int
	stats   Stats
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{byShape: make(map[uint64][]int)}
}

// Add registers f. The neighbour graph is created from the first fragment's
// dimensionality.
func (s *Set) Add(f *Fragment) error {
	start := time.Now()
	ext := f.Extents()
	if s.mgr == nil {
		s.mgr = neighbour.New(ext.Dims())
	} else if ext.Dims() != s.mgr.Dims() {
		return fmt.Errorf("%w: %d-dimensional fragment in %d-dimensional set", ErrInvalidArgument, ext.Dims(), s.mgr.Dims())
	}
	if s.LookupForShape(ext) != nil {
		return fmt.Errorf("%w: fragment %v already registered", ErrInvalidState, ext)
	}

	idx := s.mgr.PushBack(ext)
	s.frags = append(s.frags, f)
	h := ext.Hash()
	s.byShape[h] = append(s.byShape[h], idx)

	s.stats.FragmentsAdded++
	s.stats.AddTime += time.Since(start)
	return nil
}

// Replace swaps the registered fragment with the extents of f for f and
// returns the fragment it replaced. It returns nil and leaves s unchanged if
// no fragment has those extents.
func (s *Set) Replace(f *Fragment) *Fragment {
	ext := f.Extents()
	if s.mgr == nil || ext.Dims() != s.mgr.Dims() {
		return nil
	}
	for _, idx := range s.byShape[ext.Hash()] {
		if s.mgr.Cube(idx).Equal(ext) {
			old := s.frags[idx]
			s.frags[idx] = f
			return old
		}
	}
	return nil
}

// Len returns the number of registered fragments.
func (s *Set) Len() int { return len(s.frags) }

// Fragments returns the registered fragments in registration order.
// The slice must not be modified.
func (s *Set) Fragments() []*Fragment { return s.frags }

// LookupForShape returns the fragment whose extents equal c, or nil.
func (s *Set) LookupForShape(c hypercube.Hypercube) *Fragment {
	if s.mgr == nil || c.Dims() != s.mgr.Dims() {
		return nil
	}
	for _, idx := range s.byShape[c.Hash()] {
		if s.mgr.Cube(idx).Equal(c) {
			return s.frags[idx]
		}
	}
	return nil
}

// Neighbours returns the fragments touching the i-th registered fragment.
func (s *Set) Neighbours(i int) []*Fragment {
	idx := s.mgr.Neighbours(i)
	out := make([]*Fragment, len(idx))
	for k, n := range idx {
		out[k] = s.frags[n]
	}
	return out
}

// Records returns the metadata records of all fragments.
func (s *Set) Records() []Record {
	out := make([]Record, len(s.frags))
	for i, f := range s.frags {
		out[i] = f.Record()
	}
	return out
}

// Stats returns the accumulated counters of s.
func (s *Set) Stats() Stats { return s.stats }

// ResetStats zeroes the counters of s.
func (s *Set) ResetStats() { s.stats = Stats{} }

// DeleteFunc removes one fragment from its backend.
type DeleteFunc func(ctx context.Context, f *Fragment) error

// DeleteAll removes every fragment through del, at most limit at a time.
// Fragments that could not be deleted stay registered and the first error is
// returned.
func (s *Set) DeleteAll(ctx context.Context, limit int, del DeleteFunc) error {
	failed := make([]error, len(s.frags))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, f := range s.frags {
		g.Go(func() error {
			failed[i] = del(ctx, f)
			return failed[i]
		})
	}
	err := g.Wait()

	keep, stats := s.frags, s.stats
	s.frags, s.mgr = nil, nil
	s.byShape = make(map[uint64][]int)
	for i, f := range keep {
		if failed[i] == nil {
			continue
		}
		if addErr := s.Add(f); addErr != nil && err == nil {
			err = addErr
		}
	}
	s.stats = stats
	return err
}
