// Package minio provides a BlobStore backed by MinIO or any other
// S3-compatible server (Ceph, Garage, SeaweedFS) through minio-go.
//
// # Basic Usage
//
//	store, err := minio.Dial(ctx, minio.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	    Bucket:    "cubes",
//	    Prefix:    "climate/",
//	})
//
// An existing *minio.Client can be wrapped with NewStore.
package minio
