package hypercube

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is the sentinel wrapped by *DimensionMismatchError.
var ErrDimensionMismatch = errors.New("hypercube: dimension mismatch")

// DimensionMismatchError is the panic value raised when two cubes of different
// dimensionality are combined.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("hypercube: dimension mismatch: want %d, got %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

func mustMatch(a, b Hypercube) {
	if len(a.ranges) != len(b.ranges) {
		panic(&DimensionMismatchError{Want: len(a.ranges), Got: len(b.ranges)})
	}
}
