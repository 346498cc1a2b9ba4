// Package cubestore stores N-dimensional arrays as rectangular fragments
// spread over pluggable storage backends.
//
// A write is cut into fragments that fit each backend's configured fragment
// size; the fragments are written in parallel by per-backend worker pools. A
// read selects a small set of stored fragments whose union covers the
// requested region, reads them, and assembles the result in the caller's
// memory layout, which may be strided, transposed or reversed.
//
// # Quick Start
//
//	ctx := context.Background()
//	store, _ := cubestore.Open(ctx,
//	    cubestore.WithBackendConfig(backend.Config{
//	        ID:                "local",
//	        Type:              "posix",
//	        Target:            "./data",
//	        MaxThreadsPerNode: 4,
//	        MaxGlobalThreads:  4,
//	    }),
//	)
//	defer store.Close()
//
//	ds, _ := store.CreateDataset(ctx, "temperature", dataspace.Float64, []int64{365, 180, 360})
//	space := dataspace.MustNew(dataspace.Float64, []int64{1, 180, 360}, []int64{0, 0, 0})
//	_ = ds.Write(ctx, day0, space)
//	_ = ds.Commit(ctx)
//
//	buf := make([]byte, space.BufferSize())
//	_ = ds.Read(ctx, buf, space)
//
// # Incomplete Reads
//
// Reading a region that is not fully written fails with ErrIncompleteData,
// unless the dataset was created with WithFillValue. Then the missing
// elements are set to the fill value.
//
// # Metadata
//
// Dataset descriptors and fragment records live in a catalog.Catalog. The
// default catalog is in memory; catalog.OpenBolt and catalog.NewManifest
// persist them. Fragments become durable in the catalog on Dataset.Commit.
//
// # Backends
//
// Backends implement backend.Backend. The blob backend (backend/blob) stores
// fragments in memory, in a local directory, in S3 or in MinIO, optionally
// compressed with lz4, zstd or snappy.
package cubestore
