// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore and
// a DynamoDB-backed commit store for pointers shared by several writers.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("cubes/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
// # Features
//
//   - Range reads for partial fragment fetches
//   - Multipart uploads above the configured part size
//   - CRC32C integrity checksums on small uploads
//   - Automatic pagination for listing
package s3
