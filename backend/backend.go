package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/cubestore/fragment"
)

var (
	// ErrUnknownBackend is returned when no backend is registered for an id.
	ErrUnknownBackend = errors.New("backend: unknown backend")
	// ErrDuplicateBackend is returned when an id is registered twice.
	ErrDuplicateBackend = errors.New("backend: duplicate backend id")
	// ErrInvalidConfig is returned for malformed backend configuration.
	ErrInvalidConfig = errors.New("backend: invalid config")
)

// Backend stores fragment data.
//
// Implementations must be safe for concurrent use. They must not modify the
// fragment passed to them.
type Backend interface {
	// Config returns the configuration the backend was created with.
	Config() Config
	// Write persists f.Data, the contiguous bytes of f.Space.
	Write(ctx context.Context, f *fragment.Fragment) error
	// Read loads the contiguous bytes of f into dst, which holds exactly
	// f.Space.ByteSize() bytes.
	Read(ctx context.Context, f *fragment.Fragment, dst []byte) error
	// Delete removes f from storage.
	Delete(ctx context.Context, f *fragment.Fragment) error
}

// Registry maps backend ids to backends.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Backend
	order []Backend
}

// NewRegistry returns a registry holding bs.
func NewRegistry(bs ...Backend) (*Registry, error) {
	r := &Registry{byID: make(map[string]Backend)}
	for _, b := range bs {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds b under its configured id.
func (r *Registry) Register(b Backend) error {
	cfg := b.Config()
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[cfg.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBackend, cfg.ID)
	}
	r.byID[cfg.ID] = b
	r.order = append(r.order, b)
	return nil
}

// Lookup returns the backend with the given id.
func (r *Registry) Lookup(id string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, id)
	}
	return b, nil
}

// All returns the backends in registration order.
func (r *Registry) All() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Backend(nil), r.order...)
}

// Len returns the number of registered backends.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
