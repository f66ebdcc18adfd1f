// Package extsort sorts line-oriented record streams that do not fit in memory.
//
// The input is read in bounded batches. Each batch is sorted in memory and
// spilled to a compressed batch file in a private temporary directory. Once
// the input is consumed, the batches are merged with a loser tree and the
// result is exposed as a forward-only Stream:
//
//	s := extsort.New(record.DefaultLayout.EntityKey().Compare, func(o *extsort.Options) {
//		o.RemoveDuplicates = true
//	})
//
//	stream, err := s.Sort(ctx, input)
//	if err != nil {
//		return err
//	}
//	defer stream.Close()
//
//	for stream.Next() {
//		fmt.Println(stream.Record())
//	}
//	if err := stream.Err(); err != nil {
//		return err
//	}
//
// # Ordering
//
// Output is non-decreasing under the comparator. Records that compare equal
// keep their input order. With RemoveDuplicates set, ties are broken by the
// raw line instead so identical lines meet and only one copy is emitted.
//
// # Memory
//
// A batch is cut when it reaches MaxBatchRecords or MaxBatchBytes, or when
// the shared resource.Controller refuses to reserve more memory. During the
// merge at most MaxMergeWidth batches are open at once; more batches are
// first merged in intermediate passes.
//
// # Cleanup
//
// Batch files belong to the Sort call that wrote them. They are removed when
// the stream is closed, when it is exhausted and on every failure path.
package extsort
