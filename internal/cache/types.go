package cache

import "context"

// Key identifies one block of one blob.
type Key struct {
	// Path is the blob name.
	Path string
	// Block is the block index within the blob.
	Block int64
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok is false if it is missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. The caller must not modify b afterwards.
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes all blocks of the blob at path.
	Invalidate(path string)
	// Stats returns hit and miss counts.
	Stats() (hits, misses int64)
}
