package fragment

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/cubestore/dataspace"
	"github.com/hupe1980/cubestore/hypercube"
)

// Fragment is one stored rectangular piece of a dataset.
type Fragment struct {
	// ID is assigned at creation and names the fragment inside its backend.
	ID string
	// Backend is the id of the backend holding the fragment.
	Backend string
	// Space is the region and in-memory layout of the fragment data.
	Space *dataspace.Dataspace
	// Data holds the fragment bytes while pending or loaded.
	Data []byte
}

// New returns a fragment with a fresh id.
func New(backend string, space *dataspace.Dataspace, data []byte) *Fragment {
	return &Fragment{
		ID:      uuid.NewString(),
		Backend: backend,
		Space:   space,
		Data:    data,
	}
}

// Extents returns the region covered by f.
func (f *Fragment) Extents() hypercube.Hypercube { return f.Space.Extents() }

// Loaded reports whether f holds its data in memory.
func (f *Fragment) Loaded() bool { return f.Data != nil }

// Unload drops the in-memory data.
func (f *Fragment) Unload() { f.Data = nil }

func (f *Fragment) String() string {
	return fmt.Sprintf("fragment %s@%s %s", f.ID, f.Backend, f.Space)
}

// Record is the persisted description of a fragment.
type Record struct {
	ID      string  `json:"id"`
	Backend string  `json:"backend"`
	Type    string  `json:"type"`
	Offset  []int64 `json:"offset"`
	Size    []int64 `json:"size"`
}

// Record returns the metadata record of f.
func (f *Fragment) Record() Record {
	return Record{
		ID:      f.ID,
		Backend: f.Backend,
		Type:    f.Space.Type().String(),
		Offset:  f.Space.Offset(),
		Size:    f.Space.Size(),
	}
}

// Extents returns the region described by r.
func (r Record) Extents() hypercube.Hypercube {
	return hypercube.FromOffsetSize(r.Offset, r.Size)
}

// FromRecord returns an unloaded fragment described by r.
func FromRecord(r Record) (*Fragment, error) {
	typ, err := dataspace.ParseType(r.Type)
	if err != nil {
		return nil, err
	}
	space, err := dataspace.New(typ, r.Size, r.Offset)
	if err != nil {
		return nil, fmt.Errorf("fragment %s: %w", r.ID, err)
	}
	return &Fragment{ID: r.ID, Backend: r.Backend, Space: space}, nil
}
