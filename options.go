package sortjoin

import (
	"github.com/hupe1980/sortjoin/extsort"
	"github.com/hupe1980/sortjoin/internal/fs"
	"github.com/hupe1980/sortjoin/record"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	tempDir          string
	batchRecords     int
	batchBytes       int64
	compression      extsort.Compression
	mergeWidth       int
	memoryLimit      int64
	ioLimit          int64
	headerLines      int
	layout           record.Layout
	fs               fs.FileSystem
}

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		batchBytes:       extsort.DefaultOptions.MaxBatchBytes,
		compression:      extsort.DefaultOptions.Compression,
		mergeWidth:       extsort.DefaultOptions.MaxMergeWidth,
		layout:           record.DefaultLayout,
		fs:               fs.Default,
	}
}

// Option configures a Joiner.
type Option func(*options)

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector. If nil is passed, metrics are discarded.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithTempDir sets the directory spill files are created in.
// Each sort creates and removes its own subdirectory there.
func WithTempDir(dir string) Option {
	return func(o *options) {
		o.tempDir = dir
	}
}

// WithBatchSize caps the number of records held in memory per batch.
func WithBatchSize(records int) Option {
	return func(o *options) {
		o.batchRecords = records
	}
}

// WithBatchBytes caps the approximate memory of one batch.
func WithBatchBytes(bytes int64) Option {
	return func(o *options) {
		o.batchBytes = bytes
	}
}

// WithCompression selects the compression of spill files.
func WithCompression(c extsort.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMaxMergeWidth sets how many batches are merged at once.
func WithMaxMergeWidth(width int) Option {
	return func(o *options) {
		o.mergeWidth = width
	}
}

// WithMemoryLimit bounds the memory held by batches of both sorts of one
// join together. Concurrent joins each get their own limit.
//
// With a limit set, each batch is capped at half of it so the in-memory
// tail of the first sort leaves room for the second.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithIOLimit throttles spill file reads and writes of one join to bytes per second.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithHeaderLines drops the first n lines of each input before sorting.
//
// The default of 0 treats header lines as records: with the standard
// headers they end up as the first output group.
func WithHeaderLines(n int) Option {
	return func(o *options) {
		o.headerLines = n
	}
}

// WithLayout sets delimiter and field positions of inputs and output.
func WithLayout(l record.Layout) Option {
	return func(o *options) {
		o.layout = l
	}
}

// WithFileSystem sets the file system used for inputs, output and spill files.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys == nil {
			fsys = fs.Default
		}
		o.fs = fsys
	}
}
