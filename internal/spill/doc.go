// Package spill stores sorted batches of records in temporary files.
//
// # File Format
//
//	[magic "SJB1"][compression uint8]
//	[block]*
//
// Each block is
//
//	[raw length uint32][stored length uint32][crc32c of raw uint32][payload]
//
// where a stored length of 0 means the payload is kept uncompressed and is
// raw length bytes long. The raw block is a sequence of records, each
// encoded as a uvarint length followed by the record bytes. A file ends at
// a block boundary.
//
// Blocks bound the memory a reader needs: only one decoded block per open
// batch is resident during a merge.
//
// # Ownership
//
// A [Dir] is a private directory created per sort. Every batch lives in it
// and [Dir.Close] removes the directory together with whatever is left.
package spill
