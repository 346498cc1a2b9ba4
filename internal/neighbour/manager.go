// Package neighbour maintains an incremental adjacency graph over cubes.
//
// Cubes are kept in an arena and addressed by index; adjacency lists hold
// indices only. Two cubes are adjacent iff they touch.
package neighbour

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/cubestore/hypercube"
	"github.com/hupe1980/cubestore/internal/boundindex"
)

// Manager owns registered cubes, one bound index per dimension and one
// neighbour list per cube.
//
// A Manager is not safe for concurrent use.
type Manager struct {
	dims       int
	cubes      []hypercube.Hypercube
	bounds     []boundindex.Index
	neighbours [][]int
}

// New returns an empty manager for cubes of the given dimensionality.
func New(dims int) *Manager {
	return &Manager{
		dims:   dims,
		bounds: make([]boundindex.Index, dims),
	}
}

// Dims returns the dimensionality of managed cubes.
func (m *Manager) Dims() int { return m.dims }

// Len returns the number of registered cubes.
func (m *Manager) Len() int { return len(m.cubes) }

// Cube returns the cube registered under index i.
func (m *Manager) Cube(i int) hypercube.Hypercube { return m.cubes[i] }

// Cubes returns all registered cubes in index order. The slice must not be modified.
func (m *Manager) Cubes() []hypercube.Hypercube { return m.cubes }

// Neighbours returns the indices of the cubes touching cube i.
// The slice must not be modified.
func (m *Manager) Neighbours(i int) []int { return m.neighbours[i] }

// PushBack registers c and returns its index. The manager takes ownership of c.
// It panics with a *hypercube.DimensionMismatchError if c has the wrong
// dimensionality.
func (m *Manager) PushBack(c hypercube.Hypercube) int {
	if c.Dims() != m.dims {
		panic(&hypercube.DimensionMismatchError{Want: m.dims, Got: c.Dims()})
	}
	idx := len(m.cubes)

	var mine []int
	it := m.candidates(c).Iterator()
	for it.HasNext() {
		other := int(it.Next())
		if m.cubes[other].Touches(c) {
			m.neighbours[other] = append(m.neighbours[other], idx)
			mine = append(mine, other)
		}
	}

	m.cubes = append(m.cubes, c)
	m.neighbours = append(m.neighbours, mine)
	for d := 0; d < m.dims; d++ {
		r := c.Range(d)
		m.bounds[d].Add(r.Start, true, idx)
		m.bounds[d].Add(r.End, false, idx)
	}
	return idx
}

// candidates collects every registered cube that may touch c: cubes sharing a
// bound plane with c in some dimension, plus cubes overlapping c along the
// dimension with the narrowest bound window.
func (m *Manager) candidates(c hypercube.Hypercube) *roaring.Bitmap {
	set := roaring.New()
	var run []int
	for d := 0; d < m.dims; d++ {
		r := c.Range(d)
		run = m.bounds[d].Run(boundindex.Bake(r.Start, false), run[:0])
		run = m.bounds[d].Run(boundindex.Bake(r.End, true), run)
		for _, n := range run {
			set.Add(uint32(n))
		}
	}
	if len(m.cubes) == 0 {
		return set
	}

	// A cube overlapping c along d either starts before c ends or ends after
	// c starts; scan whichever side of whichever dimension holds fewer bounds.
	bestDim, bestLo, bestHi, bestPrefix := -1, 0, 0, false
	for d := 0; d < m.dims; d++ {
		r := c.Range(d)
		x := &m.bounds[d]
		prefixEnd := x.Lookup(boundindex.Bake(r.End, false))
		suffixStart := x.Lookup(boundindex.Bake(r.Start, true))
		lo, hi, prefix := 0, prefixEnd, true
		if x.Len()-suffixStart < prefixEnd {
			lo, hi, prefix = suffixStart, x.Len(), false
		}
		if bestDim < 0 || hi-lo < bestHi-bestLo {
			bestDim, bestLo, bestHi, bestPrefix = d, lo, hi, prefix
		}
	}

	r := c.Range(bestDim)
	x := &m.bounds[bestDim]
	for i := bestLo; i < bestHi; i++ {
		e := x.At(i)
		other := m.cubes[e.Cube].Range(bestDim)
		if bestPrefix {
			if e.IsStart() && other.End > r.Start {
				set.Add(uint32(e.Cube))
			}
		} else if !e.IsStart() && other.Start < r.End {
			set.Add(uint32(e.Cube))
		}
	}
	return set
}
