// Package join merges a key-sorted entity stream with a key-sorted fact
// stream into one group per entity.
//
// Both streams are read forward once. At most one fact is buffered across
// entity boundaries: the first fact whose key is greater than the current
// entity waits for a later entity. Facts whose key matches no entity are
// dropped and counted as orphans. Entities without facts still produce a
// group, so the join is a left outer join grouped by entity.
//
// A Merger has no per-call state and may be shared.
package join
