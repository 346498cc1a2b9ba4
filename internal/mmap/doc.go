// Package mmap maps fragment files read-only into memory.
//
// On Unix the mapping uses mmap(2) and honors madvise(2) access hints; on
// Windows it uses CreateFileMapping/MapViewOfFile and hints are ignored.
//
// Close is idempotent. Callers must not use the slice returned by Bytes
// after Close.
package mmap
