package cubestore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/catalog"
	"github.com/hupe1980/cubestore/dataspace"
	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/hypercube"
	"github.com/hupe1980/cubestore/internal/scheduler"
)

var (
	// ErrInvalidArgument is returned for malformed dataspaces, buffers and
	// dimension mismatches.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is returned when an operation conflicts with the state
	// of a dataset or store, such as a use after Close.
	ErrInvalidState = errors.New("invalid state")

	// ErrIncompleteData is returned by a read whose region is not fully
	// stored when the dataset has no fill value.
	ErrIncompleteData = errors.New("incomplete data")

	// ErrNotFound is returned for unknown datasets.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when a dataset is created twice.
	ErrExists = errors.New("already exists")

	// ErrUnknownBackend is returned when a fragment names a backend that is
	// not registered.
	ErrUnknownBackend = backend.ErrUnknownBackend
)

// ErrDimensionMismatch indicates a region of the wrong dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return ErrInvalidArgument }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, scheduler.ErrIncompleteData):
		return fmt.Errorf("%w: %w", ErrIncompleteData, err)
	case errors.Is(err, catalog.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, catalog.ErrExists):
		return fmt.Errorf("%w: %w", ErrExists, err)
	case errors.Is(err, fragment.ErrInvalidState),
		errors.Is(err, scheduler.ErrClosed),
		errors.Is(err, catalog.ErrClosed):
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	var dm *hypercube.DimensionMismatchError
	if errors.As(err, &dm) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if errors.Is(err, dataspace.ErrInvalidArgument) ||
		errors.Is(err, fragment.ErrInvalidArgument) ||
		errors.Is(err, catalog.ErrInvalidArgument) ||
		errors.Is(err, backend.ErrInvalidConfig) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return err
}
