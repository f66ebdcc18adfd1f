package sortjoin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hupe1980/sortjoin/extsort"
	"github.com/hupe1980/sortjoin/internal/fs"
	"github.com/hupe1980/sortjoin/join"
	"github.com/hupe1980/sortjoin/record"
	"github.com/hupe1980/sortjoin/resource"
)

// partialSuffix is appended to the output path while the output is written.
const partialSuffix = ".partial"

// Report summarizes a join.
type Report struct {
	Products extsort.Stats
	Prices   extsort.Stats
	Join     join.Stats
	Duration time.Duration
}

// Joiner joins product catalogs with price histories.
//
// A Joiner may be used for several joins, also concurrently. Memory and IO
// limits apply per join: each call gets its own budget, shared by its two
// sorts.
type Joiner struct {
	opts   options
	merger *join.Merger
}

// New creates a Joiner.
func New(optFns ...Option) *Joiner {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.memoryLimit > 0 && (opts.batchBytes <= 0 || opts.batchBytes > opts.memoryLimit/2) {
		opts.batchBytes = max(opts.memoryLimit/2, 1)
	}

	return &Joiner{
		opts: opts,
		merger: join.NewMerger(opts.layout, func(o *join.Options) {
			o.Logger = opts.logger.Logger
		}),
	}
}

// newResources returns the memory and IO budget of one join.
func (j *Joiner) newResources() *resource.Controller {
	return resource.NewController(resource.Config{
		MemoryLimitBytes:   j.opts.memoryLimit,
		IOLimitBytesPerSec: j.opts.ioLimit,
	})
}

// sorter returns the sorter for one input of a join drawing on rc.
func (j *Joiner) sorter(stream string, rc *resource.Controller) *extsort.Sorter {
	key, dedup := j.opts.layout.FactKey(), false
	if stream == StreamProducts {
		key, dedup = j.opts.layout.EntityKey(), true
	}

	return extsort.New(key.Compare, func(o *extsort.Options) {
		o.MaxBatchRecords = j.opts.batchRecords
		o.MaxBatchBytes = j.opts.batchBytes
		o.RemoveDuplicates = dedup
		o.HeaderLines = j.opts.headerLines
		o.TempDir = j.opts.tempDir
		o.Compression = j.opts.compression
		o.MaxMergeWidth = j.opts.mergeWidth
		o.Resources = rc
		o.FS = j.opts.fs
		o.Logger = j.opts.logger.WithStream(stream).Logger
		o.OnSpill = func(records, bytes int64, d time.Duration) {
			j.opts.metricsCollector.RecordSpill(stream, records, bytes, d)
		}
	})
}

// sortedInput is the sorted stream of one input and how long its batch phase took.
type sortedInput struct {
	name     string
	stream   *extsort.Stream
	duration time.Duration
}

func (j *Joiner) sort(ctx context.Context, name string, r io.Reader, rc *resource.Controller) (*sortedInput, error) {
	start := time.Now()
	stream, err := j.sorter(name, rc).Sort(ctx, r)
	d := time.Since(start)
	if err != nil {
		j.opts.metricsCollector.RecordSort(name, extsort.Stats{}, d, err)
		j.opts.logger.LogSort(ctx, name, extsort.Stats{}, d, err)
		return nil, err
	}
	return &sortedInput{name: name, stream: stream, duration: d}, nil
}

// finish releases a sorted input and records its final statistics.
func (j *Joiner) finish(ctx context.Context, in *sortedInput) (extsort.Stats, error) {
	closeErr := in.stream.Close()
	err := in.stream.Err()
	if err == nil {
		err = closeErr
	}

	stats := in.stream.Stats()
	j.opts.metricsCollector.RecordSort(in.name, stats, in.duration, err)
	j.opts.logger.LogSort(ctx, in.name, stats, in.duration, err)
	return stats, closeErr
}

// Join sorts products and prices and writes one line per product to out:
// the output header followed by `id,description[,price]*` lines in product
// key order. Prices without a matching product are dropped.
func (j *Joiner) Join(ctx context.Context, products, prices io.Reader, out io.Writer) (report Report, err error) {
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
	}()

	rc := j.newResources()

	prod, err := j.sort(ctx, StreamProducts, products, rc)
	if err != nil {
		return report, stageError(StageSortProducts, err)
	}

	pric, err := j.sort(ctx, StreamPrices, prices, rc)
	if err != nil {
		report.Products, _ = j.finish(ctx, prod)
		return report, stageError(StageSortPrices, err)
	}

	report.Join, err = j.merge(ctx, prod.stream, pric.stream, out)

	var closeErr error
	report.Products, closeErr = j.finish(ctx, prod)
	if err == nil && closeErr != nil {
		err = stageError(StageSortProducts, closeErr)
	}
	report.Prices, closeErr = j.finish(ctx, pric)
	if err == nil && closeErr != nil {
		err = stageError(StageSortPrices, closeErr)
	}
	return report, err
}

// merge joins the sorted streams into out.
func (j *Joiner) merge(ctx context.Context, products, prices join.Cursor, out io.Writer) (join.Stats, error) {
	start := time.Now()
	gw := record.NewGroupWriter(out, j.opts.layout)

	stats, err := j.merger.Merge(ctx, products, prices, func(g record.Group) error {
		if werr := gw.Write(g); werr != nil {
			return stageError(StageOutput, werr)
		}
		return nil
	})
	if err == nil {
		err = gw.WriteHeader()
		if err == nil {
			err = gw.Flush()
		}
		err = stageError(StageOutput, err)
	}
	err = stageError(StageMerge, err)

	d := time.Since(start)
	j.opts.metricsCollector.RecordJoin(stats, d, err)
	j.opts.logger.LogJoin(ctx, stats, d, err)
	return stats, err
}

// MergeFiles joins the files at productsPath and pricesPath into outputPath.
//
// The output is written to outputPath+".partial" and renamed into place
// once complete. On failure the partial file is removed and an existing
// file at outputPath is left untouched.
func (j *Joiner) MergeFiles(ctx context.Context, productsPath, pricesPath, outputPath string) (Report, error) {
	if productsPath == "" || pricesPath == "" || outputPath == "" {
		return Report{}, fmt.Errorf("%w: products, prices and output paths are required", ErrInvalidArguments)
	}

	fsys := j.opts.fs

	products, err := openInput(fsys, productsPath)
	if err != nil {
		return Report{}, err
	}
	defer products.Close()

	prices, err := openInput(fsys, pricesPath)
	if err != nil {
		return Report{}, err
	}
	defer prices.Close()

	partial := outputPath + partialSuffix
	out, err := fsys.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return Report{}, stageError(StageOutput, err)
	}

	report, err := j.Join(ctx, products, prices, out)
	if err == nil {
		err = stageError(StageOutput, out.Sync())
	}
	if cerr := out.Close(); err == nil && cerr != nil {
		err = stageError(StageOutput, cerr)
	}
	if err == nil {
		err = stageError(StageOutput, fsys.Rename(partial, outputPath))
	}
	if err != nil {
		if rerr := fsys.Remove(partial); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			j.opts.logger.WarnContext(ctx, "failed to remove partial output", "path", partial, "error", rerr)
		}
		return report, err
	}

	j.opts.logger.InfoContext(ctx, "output written",
		"path", outputPath,
		"groups", report.Join.Entities,
		"duration", report.Duration,
	)
	return report, nil
}

// MergeFiles joins the files at productsPath and pricesPath into outputPath
// with a Joiner configured by optFns.
func MergeFiles(ctx context.Context, productsPath, pricesPath, outputPath string, optFns ...Option) (Report, error) {
	return New(optFns...).MergeFiles(ctx, productsPath, pricesPath, outputPath)
}

func openInput(fsys fs.FileSystem, path string) (fs.File, error) {
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, stageError(StageOpen, fmt.Errorf("%w: %w", ErrSourceUnavailable, err))
	}
	_ = fs.AdviseSequential(f)
	return f, nil
}
