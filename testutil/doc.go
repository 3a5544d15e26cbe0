// Package testutil provides testing utilities for bkdgo.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Points
//
//	rng := testutil.NewRNG(seed)
//	entries := rng.UniqueEntries(1000, 3, -100, 100)
//	box := rng.Box(3, -100, 100)
//
// # Brute-Force Oracle
//
//	oracle := testutil.NewOracle()
//	oracle.Insert(p, v)
//	want := oracle.Query(box)
//	testutil.AssertSameEntries(t, want, got)
package testutil
