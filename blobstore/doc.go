// Package blobstore is the storage abstraction behind blob-backed fragment
// backends.
//
// A BlobStore holds immutable, named byte blobs. Implementations must be safe
// for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and scratch datasets
//   - LocalStore: local directory; reads go through mmap
//   - CachingStore: block cache in front of any other store
//   - s3.Store: Amazon S3 (aws-sdk-go-v2)
//   - minio.Store: MinIO and S3-compatible servers (minio-go)
package blobstore
