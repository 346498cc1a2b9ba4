package blobstore

import (
	"context"
	"errors"
	"io"

	"github.com/hupe1980/cubestore/internal/cache"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBlockSize  = 64 * 1024
	maxFillConcurrent = 16
)

// CachingStore wraps a BlobStore and caches reads in fixed-size blocks.
type CachingStore struct {
	inner     BlobStore
	cache     cache.BlockCache
	blockSize int64
}

// NewCachingStore creates a CachingStore.
// blockSize defaults to 64KB if <= 0.
func NewCachingStore(inner BlobStore, c cache.BlockCache, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	return &CachingStore{
		inner:     inner,
		cache:     c,
		blockSize: blockSize,
	}
}

// Open opens a cached view of the blob.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &cachingBlob{
		inner:     b,
		cache:     s.cache,
		name:      name,
		blockSize: s.blockSize,
	}, nil
}

// Put invalidates cached blocks and writes through.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.cache.Invalidate(name)
	return s.inner.Put(ctx, name, data)
}

// Delete invalidates cached blocks and deletes from the inner store.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.cache.Invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List delegates to the inner store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

type cachingBlob struct {
	inner     Blob
	cache     cache.BlockCache
	name      string
	blockSize int64
}

func (b *cachingBlob) Close() error { return b.inner.Close() }
func (b *cachingBlob) Size() int64  { return b.inner.Size() }

func (b *cachingBlob) key(blk int64) cache.Key {
	return cache.Key{Path: b.name, Block: blk}
}

func (b *cachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	size := b.Size()
	if off >= size {
		return 0, io.EOF
	}
	end := off + int64(len(p))
	var eof error
	if end > size {
		end = size
		eof = io.EOF
	}

	startBlock := off / b.blockSize
	endBlock := (end - 1) / b.blockSize

	if err := b.fill(ctx, startBlock, endBlock); err != nil {
		return 0, err
	}

	total := 0
	for blk := startBlock; blk <= endBlock; blk++ {
		blkStart := blk * b.blockSize
		lo := max(blkStart, off)
		hi := min(blkStart+b.blockSize, end)

		data, err := b.block(ctx, blk)
		if err != nil {
			return total, err
		}
		src := lo - blkStart
		if src >= int64(len(data)) {
			return total, io.ErrUnexpectedEOF
		}
		n := copy(p[lo-off:hi-off], data[src:])
		total += n
		if int64(n) < hi-lo {
			return total, io.ErrUnexpectedEOF
		}
	}
	return total, eof
}

// fill loads missing blocks, fetching each contiguous run of misses with a
// single inner read.
func (b *cachingBlob) fill(ctx context.Context, startBlock, endBlock int64) error {
	type run struct{ start, count int64 }
	var runs []run

	for blk := startBlock; blk <= endBlock; blk++ {
		if _, ok := b.cache.Get(ctx, b.key(blk)); ok {
			continue
		}
		if n := len(runs); n > 0 && runs[n-1].start+runs[n-1].count == blk {
			runs[n-1].count++
		} else {
			runs = append(runs, run{start: blk, count: 1})
		}
	}
	if len(runs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFillConcurrent)

	size := b.Size()
	for _, r := range runs {
		g.Go(func() error {
			byteStart := r.start * b.blockSize
			byteLen := min(r.count*b.blockSize, size-byteStart)
			if byteLen <= 0 {
				return nil
			}

			buf := make([]byte, byteLen)
			n, err := b.inner.ReadAt(gctx, buf, byteStart)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			buf = buf[:n]

			for i := int64(0); i < r.count; i++ {
				lo := i * b.blockSize
				if lo >= int64(len(buf)) {
					break
				}
				hi := min(lo+b.blockSize, int64(len(buf)))
				// Copy so the cache does not pin the whole run buffer.
				blk := make([]byte, hi-lo)
				copy(blk, buf[lo:hi])
				b.cache.Set(gctx, b.key(r.start+i), blk)
			}
			return nil
		})
	}
	return g.Wait()
}

// block returns one block, reading it directly if the cache evicted it.
func (b *cachingBlob) block(ctx context.Context, blk int64) ([]byte, error) {
	if data, ok := b.cache.Get(ctx, b.key(blk)); ok {
		return data, nil
	}

	off := blk * b.blockSize
	buf := make([]byte, min(b.blockSize, b.Size()-off))
	n, err := b.inner.ReadAt(ctx, buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	buf = buf[:n]
	if n > 0 {
		b.cache.Set(ctx, b.key(blk), buf)
	}
	return buf, nil
}
