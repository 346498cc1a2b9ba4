// Package backend defines the storage backends that hold fragment data.
//
// A Backend reads, writes and deletes single fragments. Its Config advertises
// the thread budget and maximum fragment size the scheduler plans with.
// Backends are looked up by id through a Registry.
package backend
