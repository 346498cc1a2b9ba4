// Package resource bounds the memory, background work and I/O bandwidth used
// by read and write requests.
package resource
