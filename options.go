package cubestore

import (
	"log/slog"

	"github.com/hupe1980/cubestore/backend"
	"github.com/hupe1980/cubestore/backend/blob"
	"github.com/hupe1980/cubestore/catalog"
	"github.com/hupe1980/cubestore/codec"
	"github.com/hupe1980/cubestore/metrics"
	"github.com/hupe1980/cubestore/resource"
)

type backendSpec struct {
	cfg  backend.Config
	opts []blob.OpenOption
}

type s3CatalogSpec struct {
	bucket string
	opts   catalog.S3Options
}

type options struct {
	codec            codec.Codec
	catalog          catalog.Catalog
	s3Catalog        *s3CatalogSpec
	backends         []backend.Backend
	backendConfigs   []backendSpec
	blockCacheBytes  int64
	procsPerNode     int
	totalProcs       int
	resources        resource.Config
	writeBackRatio   float64
	metricsCollector metrics.Collector
	logger           *Logger
}

// Option configures Open.
type Option func(*options)

// WithCodec configures the codec used for catalog metadata created by the
// store. If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCatalog configures the metadata catalog. The store does not close a
// catalog passed here.
//
// Without it the store keeps its catalog in memory.
func WithCatalog(c catalog.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// WithS3Catalog keeps the catalog in an S3 bucket, opened on Open with
// catalog.OpenS3 and closed with the store. Set opts.CommitTable when several
// processes write the catalog. WithCatalog takes precedence.
//
// Example:
//
//	store, _ := cubestore.Open(ctx,
//	    cubestore.WithS3Catalog("cubes", catalog.S3Options{
//	        Prefix:      "catalog/",
//	        CommitTable: "cubestore-commits",
//	    }),
//	    cubestore.WithProcesses(4, 64),
//	)
func WithS3Catalog(bucket string, opts catalog.S3Options) Option {
	return func(o *options) {
		o.s3Catalog = &s3CatalogSpec{bucket: bucket, opts: opts}
	}
}

// WithBackend registers a backend.
func WithBackend(b backend.Backend) Option {
	return func(o *options) {
		o.backends = append(o.backends, b)
	}
}

// WithBackendConfig registers a blob backend opened from cfg on Open.
//
// Example:
//
//	store, _ := cubestore.Open(ctx,
//	    cubestore.WithBackendConfig(backend.Config{
//	        ID:                "scratch",
//	        Type:              "posix",
//	        Target:            "/scratch/cubes",
//	        MaxThreadsPerNode: 8,
//	        MaxGlobalThreads:  64,
//	        Compression:       "zstd",
//	    }),
//	)
func WithBackendConfig(cfg backend.Config, opts ...blob.OpenOption) Option {
	return func(o *options) {
		o.backendConfigs = append(o.backendConfigs, backendSpec{cfg: cfg, opts: opts})
	}
}

// WithBlockCache puts an LRU block cache of the given capacity in front of
// every backend opened with WithBackendConfig.
func WithBlockCache(capacityBytes int64) Option {
	return func(o *options) {
		o.blockCacheBytes = capacityBytes
	}
}

// WithProcesses sets the number of processes sharing a node and the number of
// processes in all. Backend worker pools are sized from them.
func WithProcesses(procsPerNode, totalProcs int) Option {
	return func(o *options) {
		o.procsPerNode = procsPerNode
		o.totalProcs = totalProcs
	}
}

// WithResourceLimits limits read buffer memory, backend I/O throughput and
// concurrent write-backs.
func WithResourceLimits(cfg resource.Config) Option {
	return func(o *options) {
		o.resources = cfg
	}
}

// WithWriteBackRatio sets the fetched-to-requested byte ratio from which a read
// is written back as a new fragment. A negative ratio disables write-back.
func WithWriteBackRatio(ratio float64) Option {
	return func(o *options) {
		o.writeBackRatio = ratio
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with metrics.Basic:
//
//	m := &metrics.Basic{}
//	store, _ := cubestore.Open(ctx, cubestore.WithMetricsCollector(m))
//	// ... use store ...
//	stats := m.GetStats()
//	fmt.Printf("Reads: %d, Avg latency: %dns\n", stats.ReadCount, stats.ReadAvgNanos)
func WithMetricsCollector(mc metrics.Collector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := cubestore.NewJSONLogger(slog.LevelInfo)
//	store, _ := cubestore.Open(ctx, cubestore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		procsPerNode:     1,
		totalProcs:       1,
		metricsCollector: metrics.Noop{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = metrics.Noop{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}

// DatasetOption configures CreateDataset.
type DatasetOption func(*catalog.Descriptor)

// WithFillValue sets the element written into unstored positions on read.
// value holds exactly one element in little-endian byte order.
func WithFillValue(value []byte) DatasetOption {
	return func(d *catalog.Descriptor) {
		d.FillValue = append([]byte(nil), value...)
	}
}

// WithDatasetBackends restricts the writes of a dataset to the given backends.
func WithDatasetBackends(ids ...string) DatasetOption {
	return func(d *catalog.Descriptor) {
		d.Backends = append([]string(nil), ids...)
	}
}
