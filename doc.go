// Package sortjoin joins a product catalog with a price history using an
// external sort-merge join with bounded memory.
//
// Both inputs are delimited text files. Products are `id,description`
// lines, prices are `id,date,price` lines. The output holds one line per
// product with every price sharing its id:
//
//	"PRODUCT_ID","PRODUCT_DESCRIPTION","PRICE"
//	1,apple,0.50,0.55
//	2,banana
//
// # Quick Start
//
//	report, err := sortjoin.MergeFiles(ctx, "products.csv", "prices.csv", "out.csv",
//	    sortjoin.WithTempDir("/fast/scratch"),
//	    sortjoin.WithMemoryLimit(512<<20),
//	)
//
// # How it works
//
// Each input is sorted by id with package extsort: the input is cut into
// batches that fit the memory budget, every batch is sorted and spilled to
// a compressed temporary file, and the batches are merged back with a loser
// tree. Exact duplicate product lines are removed. The two sorted streams
// are then merged by package join in a single forward pass that buffers at
// most one price across product boundaries.
//
// Sorted streams are consumed straight from the final merge, so apart from
// the spill batches no intermediate file is written. The output is written
// next to its destination and renamed into place once complete.
//
// # Header lines
//
// Header lines are not special: by default they are sorted and joined like
// any other line. With the standard headers they share the key `"ID"` and
// produce a first group `"ID","DESCRIPTION","VALUE"`. Use WithHeaderLines(1)
// to drop them.
//
// # Orphan prices
//
// Prices whose id matches no product are dropped and counted in
// Report.Join.Orphans. Products without prices produce a line with no
// price fields.
//
// # Errors
//
// Failures abort the whole join and are reported as a *StageError wrapping
// one of ErrSourceUnavailable, ErrStorageExhausted, ErrMalformedRecord,
// ErrRecordTooLarge, ErrOrderViolation or a context error. Lines are
// limited to just under 128 MiB. Temporary files are removed on
// every path.
package sortjoin
