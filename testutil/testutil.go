package testutil

import (
	"encoding/binary"
	"math/rand"
	"sync"

	"github.com/hupe1980/cubestore/hypercube"
)

// RNG encapsulates a seeded random number generator.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int63n returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63n(n)
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// Cube returns a random non-empty cube inside region.
func (r *RNG) Cube(region hypercube.Hypercube) hypercube.Hypercube {
	ranges := make([]hypercube.Range, region.Dims())
	for i := range ranges {
		rg := region.Range(i)
		a := rg.Start + r.Int63n(rg.Size())
		b := rg.Start + r.Int63n(rg.Size())
		if a > b {
			a, b = b, a
		}
		ranges[i] = hypercube.Range{Start: a, End: b + 1}
	}
	return hypercube.New(ranges...)
}

// Uint64Grid returns a row-major little-endian uint64 buffer of the given
// shape in which every element holds its linear index. For two dimensions the
// element at (row, col) is row*size[1]+col.
func Uint64Grid(size []int64) []byte {
	n := int64(1)
	for _, s := range size {
		n *= s
	}
	buf := make([]byte, n*8)
	for i := int64(0); i < n; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(i))
	}
	return buf
}

// Uint64At returns the i-th little-endian uint64 of buf.
func Uint64At(buf []byte, i int64) uint64 {
	return binary.LittleEndian.Uint64(buf[i*8:])
}

// Tiling cuts region into cubes of the given edge lengths. Cubes at the upper
// border are clipped.
func Tiling(region hypercube.Hypercube, edges []int64) []hypercube.Hypercube {
	dims := region.Dims()
	if len(edges) != dims || region.IsEmpty() {
		return nil
	}

	var out []hypercube.Hypercube
	starts := region.Offset()
	ranges := make([]hypercube.Range, dims)
	for {
		for i := range ranges {
			ranges[i] = hypercube.Range{Start: starts[i], End: min(starts[i]+edges[i], region.Range(i).End)}
		}
		out = append(out, hypercube.New(ranges...))

		d := dims - 1
		for ; d >= 0; d-- {
			starts[d] += edges[d]
			if starts[d] < region.Range(d).End {
				break
			}
			starts[d] = region.Range(d).Start
		}
		if d < 0 {
			return out
		}
	}
}
