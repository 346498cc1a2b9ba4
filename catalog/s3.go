package catalog

import (
	"context"
	"fmt"

	"github.com/hupe1980/cubestore/blobstore"
	"github.com/hupe1980/cubestore/blobstore/s3"
	"github.com/hupe1980/cubestore/codec"
)

// S3Options configures OpenS3.
type S3Options struct {
	// Prefix is prepended to every manifest key.
	Prefix string
	// Region and Endpoint override the default AWS config chain.
	Region   string
	Endpoint string
	// CommitTable names the DynamoDB table CURRENT pointers are committed
	// through. Without it only one process may write the catalog.
	CommitTable string
	// Codec encodes new manifest versions; nil selects codec.Default.
	Codec codec.Codec
}

// OpenS3 returns a Manifest catalog keeping its manifests in bucket.
//
// Example:
//
//	cat, err := catalog.OpenS3(ctx, "cubes", catalog.S3Options{
//	    Prefix:      "catalog/",
//	    CommitTable: "cubestore-commits",
//	})
func OpenS3(ctx context.Context, bucket string, opts S3Options) (*Manifest, error) {
	var s3Opts []s3.Option
	if opts.Prefix != "" {
		s3Opts = append(s3Opts, s3.WithPrefix(opts.Prefix))
	}
	if opts.Region != "" {
		s3Opts = append(s3Opts, s3.WithRegion(opts.Region))
	}
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, s3.WithEndpoint(opts.Endpoint))
	}

	var (
		store blobstore.BlobStore
		err   error
	)
	if opts.CommitTable != "" {
		store, err = s3.OpenDDBCommitStore(ctx, bucket, opts.CommitTable, s3Opts...)
	} else {
		store, err = s3.New(ctx, bucket, s3Opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: open s3 bucket %s: %w", bucket, err)
	}
	return NewManifest(store, opts.Codec), nil
}
