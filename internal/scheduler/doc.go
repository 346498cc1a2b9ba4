// Package scheduler turns dataset reads and writes into per-fragment backend
// tasks and waits for their completion.
//
// Every backend gets its own worker pool sized by backend.Config.ThreadCount.
// A backend with zero threads runs its tasks in the calling goroutine.
//
// A request moves through three states:
//
//	created -> dispatched (pending > 0) -> complete (pending == 0)
//
// Each task decrements the pending counter of its request after the backend
// call and its completion callback. Wait blocks until the counter drops to
// zero and returns the first task error.
package scheduler
