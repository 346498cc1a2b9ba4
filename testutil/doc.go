// Package testutil provides testing utilities for cubestore.
//
// This package is intended for use in tests only.
//
// # Data Generation
//
//	rng := testutil.NewRNG(seed)
//	buf := testutil.Uint64Grid([]int64{100, 100}) // element value = row*100+col
//	cubes := testutil.Tiling(region, []int64{10, 100})
//
// # Instrumented Backend
//
//	b := testutil.NewBackend(backend.Config{ID: "b1", MaxThreadsPerNode: 4})
//	// ... run requests ...
//	b.Reads(fragmentID) // number of Read calls for one fragment
package testutil
