package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/blobstore"
	"github.com/hupe1980/cubestore/fragment"
	"github.com/hupe1980/cubestore/internal/compress"
	"github.com/hupe1980/cubestore/resource"
)

// ErrFragmentSize is returned when stored data does not match the fragment size.
var ErrFragmentSize = errors.New("blob: fragment size mismatch")

var _ backend.Backend = (*Backend)(nil)

// Backend stores fragments as compressed blobs.
type Backend struct {
	cfg    backend.Config
	store  blobstore.BlobStore
	codec  compress.Codec
	prefix string
	rc     *resource.Controller
	logger *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithPrefix sets the blob name prefix. It defaults to the backend id.
func WithPrefix(prefix string) Option {
	return func(b *Backend) { b.prefix = prefix }
}

// WithResourceController rate limits backend I/O through rc.
func WithResourceController(rc *resource.Controller) Option {
	return func(b *Backend) { b.rc = rc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// New returns a backend storing fragments in store.
func New(cfg backend.Config, store blobstore.BlobStore, opts ...Option) (*Backend, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := compress.ParseCodec(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: backend %s: %w", backend.ErrInvalidConfig, cfg.ID, err)
	}

	b := &Backend{
		cfg:    cfg,
		store:  store,
		codec:  codec,
		prefix: cfg.ID,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Config returns the backend configuration.
func (b *Backend) Config() backend.Config { return b.cfg }

// Store returns the underlying blob store.
func (b *Backend) Store() blobstore.BlobStore { return b.store }

func (b *Backend) name(f *fragment.Fragment) string {
	return path.Join(b.prefix, f.ID)
}

// Write compresses and stores f.Data.
func (b *Backend) Write(ctx context.Context, f *fragment.Fragment) error {
	if f.Data == nil {
		return fmt.Errorf("%w: %s has no data", fragment.ErrInvalidState, f)
	}
	if want := f.Space.ByteSize(); int64(len(f.Data)) != want {
		return fmt.Errorf("%w: %s holds %d bytes, want %d", ErrFragmentSize, f, len(f.Data), want)
	}

	frame, err := compress.Encode(b.codec, f.Data)
	if err != nil {
		return fmt.Errorf("blob: encode %s: %w", f.ID, err)
	}
	if err := b.rc.AcquireIO(ctx, len(frame)); err != nil {
		return err
	}
	if err := b.store.Put(ctx, b.name(f), frame); err != nil {
		return fmt.Errorf("blob: write %s: %w", f.ID, err)
	}
	b.logger.Debug("fragment written", "backend", b.cfg.ID, "fragment", f.ID, "bytes", len(f.Data), "stored", len(frame))
	return nil
}

// Read loads and verifies the data of f into dst.
func (b *Backend) Read(ctx context.Context, f *fragment.Fragment, dst []byte) error {
	if want := f.Space.ByteSize(); int64(len(dst)) != want {
		return fmt.Errorf("%w: buffer of %d bytes for %s, want %d", ErrFragmentSize, len(dst), f, want)
	}

	frame, err := blobstore.ReadAll(ctx, b.store, b.name(f))
	if err != nil {
		return fmt.Errorf("blob: read %s: %w", f.ID, err)
	}
	if err := b.rc.AcquireIO(ctx, len(frame)); err != nil {
		return err
	}
	if err := compress.Decode(dst, frame); err != nil {
		return fmt.Errorf("blob: decode %s: %w", f.ID, err)
	}
	return nil
}

// Delete removes the blob of f.
func (b *Backend) Delete(ctx context.Context, f *fragment.Fragment) error {
	if err := b.store.Delete(ctx, b.name(f)); err != nil {
		return fmt.Errorf("blob: delete %s: %w", f.ID, err)
	}
	return nil
}
