package extsort

import (
	"log/slog"
	"time"

	"github.com/hupe1980/sortjoin/internal/fs"
	"github.com/hupe1980/sortjoin/internal/spill"
	"github.com/hupe1980/sortjoin/resource"
)

// Compression selects how batch files are compressed.
type Compression = spill.Compression

const (
	CompressionNone = spill.CompressionNone
	CompressionLZ4  = spill.CompressionLZ4
	CompressionZSTD = spill.CompressionZSTD
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	return spill.ParseCompression(s)
}

// Options configures a Sorter.
type Options struct {
	// MaxBatchRecords caps the number of records per batch. 0 means no cap.
	MaxBatchRecords int

	// MaxBatchBytes caps the approximate resident size of a batch.
	// 0 means no cap; at least one of the two caps must be set.
	MaxBatchBytes int64

	// MaxRecordBytes is the longest accepted input line, line terminator
	// excluded. Longer lines fail the sort with ErrRecordTooLarge. 0 or a
	// value above spill.MaxRecordSize (128 MiB minus a few bytes) selects
	// spill.MaxRecordSize.
	MaxRecordBytes int

	// RemoveDuplicates drops exact duplicate lines.
	RemoveDuplicates bool

	// HeaderLines is the number of leading input lines dropped before sorting.
	HeaderLines int

	// TempDir is the parent of the private spill directory. Empty means os.TempDir().
	TempDir string

	Compression Compression

	// BlockSize is the raw size of a compressed block in batch files.
	BlockSize int

	// MaxMergeWidth is the maximum number of batches merged at once.
	MaxMergeWidth int

	// Resources is the shared memory and IO budget. Nil means unlimited.
	Resources *resource.Controller

	FS     fs.FileSystem
	Logger *slog.Logger

	// OnSpill, if set, is called after every batch written during the batch phase.
	OnSpill func(records, bytes int64, d time.Duration)
}

// DefaultOptions returns default sorter options.
var DefaultOptions = Options{
	MaxBatchBytes: 64 << 20,
	Compression:   CompressionLZ4,
	BlockSize:     spill.DefaultBlockSize,
	MaxMergeWidth: 64,
}

func (o *Options) normalize() {
	if o.MaxBatchRecords < 0 {
		o.MaxBatchRecords = 0
	}
	if o.MaxBatchBytes < 0 {
		o.MaxBatchBytes = 0
	}
	if o.MaxBatchRecords == 0 && o.MaxBatchBytes == 0 {
		o.MaxBatchBytes = DefaultOptions.MaxBatchBytes
	}
	if o.MaxRecordBytes <= 0 || o.MaxRecordBytes > spill.MaxRecordSize {
		o.MaxRecordBytes = spill.MaxRecordSize
	}
	if o.HeaderLines < 0 {
		o.HeaderLines = 0
	}
	if o.BlockSize <= 0 {
		o.BlockSize = spill.DefaultBlockSize
	}
	o.BlockSize = min(o.BlockSize, spill.MaxBlockSize)
	if o.MaxMergeWidth <= 0 {
		o.MaxMergeWidth = DefaultOptions.MaxMergeWidth
	}
	if o.MaxMergeWidth < 2 {
		o.MaxMergeWidth = 2
	}
	if o.FS == nil {
		o.FS = fs.Default
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}
