package blob

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/blobstore"
	"github.com/hupe1980/cubestore/blobstore/minio"
	"github.com/hupe1980/cubestore/blobstore/s3"
	"github.com/hupe1980/cubestore/internal/cache"
)

// OpenOption configures Open.
type OpenOption func(*openOptions)

type openOptions struct {
	cache     cache.BlockCache
	blockSize int64
	backend   []Option
}

// WithBlockCache puts a block cache in front of the blob store.
func WithBlockCache(c cache.BlockCache, blockSize int64) OpenOption {
	return func(o *openOptions) {
		o.cache = c
		o.blockSize = blockSize
	}
}

// WithBackendOptions passes options on to New.
func WithBackendOptions(opts ...Option) OpenOption {
	return func(o *openOptions) { o.backend = append(o.backend, opts...) }
}

// Open creates the blob store named by cfg.Type and cfg.Target and returns a
// backend on top of it.
func Open(ctx context.Context, cfg backend.Config, optFns ...OpenOption) (*Backend, error) {
	var o openOptions
	for _, fn := range optFns {
		fn(&o)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		store = blobstore.NewCachingStore(store, o.cache, o.blockSize)
	}
	return New(cfg, store, o.backend...)
}

func openStore(ctx context.Context, cfg backend.Config) (blobstore.BlobStore, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "dummy":
		return blobstore.NewMemoryStore(), nil
	case "posix", "local":
		if cfg.Target == "" {
			return nil, fmt.Errorf("%w: backend %s: posix target not set", backend.ErrInvalidConfig, cfg.ID)
		}
		return blobstore.NewLocalStore(cfg.Target), nil
	case "s3":
		bucket, prefix := splitBucket(cfg.Target)
		if bucket == "" {
			return nil, fmt.Errorf("%w: backend %s: s3 bucket not set", backend.ErrInvalidConfig, cfg.ID)
		}
		return s3.New(ctx, bucket, s3.WithPrefix(prefix))
	case "minio":
		mc, err := parseMinioTarget(cfg.Target)
		if err != nil {
			return nil, fmt.Errorf("%w: backend %s: %w", backend.ErrInvalidConfig, cfg.ID, err)
		}
		return minio.Dial(ctx, mc)
	default:
		return nil, fmt.Errorf("%w: backend %s: unknown type %q", backend.ErrInvalidConfig, cfg.ID, cfg.Type)
	}
}

func splitBucket(target string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(strings.Trim(target, "/"), "/")
	return bucket, prefix
}

func parseMinioTarget(target string) (minio.Config, error) {
	u, err := url.Parse(target)
	if err != nil {
		return minio.Config{}, err
	}
	if u.Scheme != "minio" && u.Scheme != "minios" {
		return minio.Config{}, fmt.Errorf("minio target %q: want scheme minio:// or minios://", target)
	}
	bucket, prefix := splitBucket(u.Path)
	if u.Host == "" || bucket == "" {
		return minio.Config{}, fmt.Errorf("minio target %q: host and bucket required", target)
	}

	mc := minio.Config{
		Endpoint:     u.Host,
		Secure:       u.Scheme == "minios",
		Region:       u.Query().Get("region"),
		Bucket:       bucket,
		Prefix:       prefix,
		CreateBucket: u.Query().Get("create") == "true",
	}
	if u.User != nil {
		mc.AccessKey = u.User.Username()
		mc.SecretKey, _ = u.User.Password()
	}
	return mc, nil
}
