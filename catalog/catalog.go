package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/hypercube"
)

var (
	// ErrNotFound is returned for unknown datasets.
	ErrNotFound = errors.New("catalog: dataset not found")
	// ErrExists is returned when a dataset is created twice.
	ErrExists = errors.New("catalog: dataset exists")
	// ErrInvalidArgument is returned for malformed names, descriptors and queries.
	ErrInvalidArgument = errors.New("catalog: invalid argument")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("catalog: closed")
)

// Descriptor describes a dataset.
type Descriptor struct {
	Name string `json:"name"`
	// Type is the element type name, see dataspace.ParseType.
	Type string  `json:"type"`
	Size []int64 `json:"size"`
	// FillValue holds one element used for unwritten positions.
	FillValue []byte `json:"fill_value,omitempty"`
	// Backends restricts writes to these backend ids. Empty means all.
	Backends  []string  `json:"backends,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Catalog stores dataset metadata.
//
// Implementations must be safe for concurrent use.
type Catalog interface {
	// CreateDataset registers d. It fails with ErrExists for a known name.
	CreateDataset(ctx context.Context, d Descriptor) error
	// Dataset returns the descriptor of name.
	Dataset(ctx context.Context, name string) (Descriptor, error)
	// Datasets returns the names of all datasets in lexical order.
	Datasets(ctx context.Context) ([]string, error)
	// Save adds records to dataset. A record whose id is already stored
	// replaces the stored one.
	Save(ctx context.Context, dataset string, records []fragment.Record) error
	// Delete removes the records with the given ids from dataset. Unknown ids
	// are ignored.
	Delete(ctx context.Context, dataset string, ids []string) error
	// Lookup returns the records of dataset intersecting query. A query
	// without dimensions returns every record.
	Lookup(ctx context.Context, dataset string, query hypercube.Hypercube) ([]fragment.Record, error)
	// DeleteDataset removes the descriptor and all records of name.
	DeleteDataset(ctx context.Context, name string) error
	// Close releases the catalog.
	Close() error
}

// Validate checks d for a usable name and shape.
func (d Descriptor) Validate() error {
	if err := validateName(d.Name); err != nil {
		return err
	}
	if d.Type == "" || len(d.Size) == 0 {
		return fmt.Errorf("%w: dataset %s: type and size required", ErrInvalidArgument, d.Name)
	}
	for i, s := range d.Size {
		if s < 0 {
			return fmt.Errorf("%w: dataset %s: negative size in dimension %d", ErrInvalidArgument, d.Name, i)
		}
	}
	return nil
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("%w: dataset name %q", ErrInvalidArgument, name)
	}
	return nil
}

// filter returns the records intersecting query.
func filter(records []fragment.Record, query hypercube.Hypercube) ([]fragment.Record, error) {
	if query.Dims() == 0 {
		return append([]fragment.Record(nil), records...), nil
	}
	var out []fragment.Record
	for _, r := range records {
		if len(r.Size) != query.Dims() {
			return nil, fmt.Errorf("%w: %d-dimensional query on %d-dimensional record %s",
				ErrInvalidArgument, query.Dims(), len(r.Size), r.ID)
		}
		if r.Extents().Intersects(query) {
			out = append(out, r)
		}
	}
	return out, nil
}

// without returns records minus those whose id is in ids.
func without(records []fragment.Record, ids []string) []fragment.Record {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := make([]fragment.Record, 0, len(records))
	for _, r := range records {
		if _, ok := drop[r.ID]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// merge adds records to base, replacing records with the same id.
func merge(base, records []fragment.Record) []fragment.Record {
	pos := make(map[string]int, len(base))
	for i, r := range base {
		pos[r.ID] = i
	}
	for _, r := range records {
		if i, ok := pos[r.ID]; ok {
			base[i] = r
			continue
		}
		pos[r.ID] = len(base)
		base = append(base, r)
	}
	return base
}
