package scheduler

import "errors"

var (
	// ErrIncompleteData is returned when the selected fragments do not cover a
	// read region and no fill value is set.
	ErrIncompleteData = errors.New("scheduler: incomplete data")

	// ErrNoBackend is returned when a write is issued without backends.
	ErrNoBackend = errors.New("scheduler: no backend")

	// ErrClosed is returned when the scheduler or a worker pool is closed.
	ErrClosed = errors.New("scheduler: closed")
)
