package fragment

import "errors"

var (
	// ErrInvalidState is returned when a fragment with the same extents is already registered.
	ErrInvalidState = errors.New("fragment: invalid state")

	// ErrInvalidArgument is returned for fragments that do not fit the set.
	ErrInvalidArgument = errors.New("fragment: invalid argument")
)
