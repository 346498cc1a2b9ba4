package dataspace

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for malformed sizes, offsets, strides or buffers.
	ErrInvalidArgument = errors.New("dataspace: invalid argument")

	// ErrTypeMismatch is returned when two spaces of different element type or
	// dimensionality are combined.
	ErrTypeMismatch = fmt.Errorf("%w: type or dimension mismatch", ErrInvalidArgument)
)
