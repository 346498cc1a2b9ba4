package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/fragment"
)

// ErrInjected is returned by a Backend told to fail.
var ErrInjected = errors.New("testutil: injected failure")

// Backend is an in-memory backend.Backend that counts calls per fragment.
type Backend struct {
	cfg backend.Config

	mu      sync.Mutex
	data    map[string][]byte
	reads   map[string]int
	writes  map[string]int
	deletes map[string]int
	failOn  map[string]bool
	delay   time.Duration

	failWrites bool
	failReads  bool
}

var _ backend.Backend = (*Backend)(nil)

// NewBackend returns an empty backend with configuration cfg.
func NewBackend(cfg backend.Config) *Backend {
	return &Backend{
		cfg:     cfg,
		data:    make(map[string][]byte),
		reads:   make(map[string]int),
		writes:  make(map[string]int),
		deletes: make(map[string]int),
		failOn:  make(map[string]bool),
	}
}

// Config implements backend.Backend.
func (b *Backend) Config() backend.Config { return b.cfg }

// SetDelay makes every call sleep for d.
func (b *Backend) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// FailWrites makes all subsequent writes fail.
func (b *Backend) FailWrites(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWrites = fail
}

// FailReads makes all subsequent reads fail.
func (b *Backend) FailReads(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failReads = fail
}

// FailOn makes every call for the fragment id fail.
func (b *Backend) FailOn(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failOn[id] = true
}

func (b *Backend) enter(ctx context.Context) (time.Duration, error) {
	b.mu.Lock()
	d := b.delay
	b.mu.Unlock()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return d, ctx.Err()
		}
	}
	return d, nil
}

// Write implements backend.Backend.
func (b *Backend) Write(ctx context.Context, f *fragment.Fragment) error {
	if _, err := b.enter(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes[f.ID]++
	if b.failWrites || b.failOn[f.ID] {
		return fmt.Errorf("write %s: %w", f.ID, ErrInjected)
	}
	b.data[f.ID] = append([]byte(nil), f.Data...)
	return nil
}

// Read implements backend.Backend.
func (b *Backend) Read(ctx context.Context, f *fragment.Fragment, dst []byte) error {
	if _, err := b.enter(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads[f.ID]++
	if b.failReads || b.failOn[f.ID] {
		return fmt.Errorf("read %s: %w", f.ID, ErrInjected)
	}
	data, ok := b.data[f.ID]
	if !ok {
		return fmt.Errorf("read %s: not stored", f.ID)
	}
	if len(data) != len(dst) {
		return fmt.Errorf("read %s: stored %d bytes, buffer %d", f.ID, len(data), len(dst))
	}
	copy(dst, data)
	return nil
}

// Delete implements backend.Backend.
func (b *Backend) Delete(ctx context.Context, f *fragment.Fragment) error {
	if _, err := b.enter(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes[f.ID]++
	if b.failOn[f.ID] {
		return fmt.Errorf("delete %s: %w", f.ID, ErrInjected)
	}
	delete(b.data, f.ID)
	return nil
}

// Reads returns the number of Read calls for id.
func (b *Backend) Reads(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads[id]
}

// Writes returns the number of Write calls for id.
func (b *Backend) Writes(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes[id]
}

// Deletes returns the number of Delete calls for id.
func (b *Backend) Deletes(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deletes[id]
}

// TotalReads returns the number of Read calls for all fragments.
func (b *Backend) TotalReads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sum(b.reads)
}

// TotalWrites returns the number of Write calls for all fragments.
func (b *Backend) TotalWrites() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sum(b.writes)
}

// Stored returns the number of fragments held.
func (b *Backend) Stored() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Has reports whether the fragment id is stored.
func (b *Backend) Has(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[id]
	return ok
}

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
