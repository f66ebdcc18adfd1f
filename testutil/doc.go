// Package testutil provides testing utilities for sortjoin.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded random generator, a generator for product and
// price datasets with known join results, and helpers to write inputs
// and parse joined output.
//
// # Datasets
//
//	rng := testutil.NewRNG(seed)
//	ds := rng.Dataset(testutil.DatasetConfig{Products: 1000, MaxPrices: 8, Orphans: 50})
//	testutil.WriteLines(productsPath, "", ds.Products)
//
// # Verification
//
//	out, _ := testutil.ParseOutput(data)
//	// compare out.Groups with ds.Expected
package testutil
