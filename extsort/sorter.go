package extsort

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/sortjoin/internal/loser"
	"github.com/hupe1980/sortjoin/internal/spill"
	"github.com/hupe1980/sortjoin/record"
	"github.com/hupe1980/sortjoin/resource"
)

// lineOverhead approximates the memory a batch spends per line on top of
// its bytes: the string header and its slot in the batch slice.
const lineOverhead = 32

// checkEvery is how many input lines are read between context checks.
const checkEvery = 1024

// Sorter sorts record streams. It holds no per-sort state, so one Sorter
// may run several sorts concurrently.
type Sorter struct {
	cmp  record.Comparator
	opts Options
}

// New creates a Sorter ordering records by cmp. A nil cmp orders by the
// first comma separated field.
func New(cmp record.Comparator, optFns ...func(o *Options)) *Sorter {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}
	opts.normalize()

	if cmp == nil {
		cmp = record.KeyPolicy{}.Compare
	}

	return &Sorter{cmp: cmp, opts: opts}
}

// Options returns the effective options.
func (s *Sorter) Options() Options { return s.opts }

// compare is the order batches are sorted and merged in. With duplicate
// removal on, equal keys are ordered by the raw line so duplicates meet.
func (s *Sorter) compare(a, b string) int {
	if c := s.cmp(a, b); c != 0 || !s.opts.RemoveDuplicates {
		return c
	}
	return strings.Compare(a, b)
}

func (s *Sorter) less(a, b string) bool {
	return s.compare(a, b) < 0
}

// Sort consumes r and returns its records in sorted order. The caller must
// Close the stream. Read failures wrap record.ErrSourceUnavailable, spill
// failures wrap ErrStorageExhausted and lines longer than MaxRecordBytes
// fail with ErrRecordTooLarge.
func (s *Sorter) Sort(ctx context.Context, r io.Reader) (*Stream, error) {
	st := &sortRun{
		sorter: s,
		ctx:    ctx,
	}

	if err := st.readBatches(r); err != nil {
		_ = st.cleanup()
		return nil, err
	}

	stream, err := st.stream()
	if err != nil {
		_ = st.cleanup()
		return nil, err
	}
	return stream, nil
}

// SortTo sorts r and writes the sorted records to w, one per line.
func (s *Sorter) SortTo(ctx context.Context, r io.Reader, w io.Writer) (Stats, error) {
	stream, err := s.Sort(ctx, r)
	if err != nil {
		return Stats{}, err
	}
	defer stream.Close()

	bw := bufio.NewWriterSize(w, 64<<10)
	for stream.Next() {
		if _, err := bw.WriteString(stream.Record()); err != nil {
			return stream.Stats(), fmt.Errorf("extsort: write output: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return stream.Stats(), fmt.Errorf("extsort: write output: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return stream.Stats(), err
	}
	if err := bw.Flush(); err != nil {
		return stream.Stats(), fmt.Errorf("extsort: write output: %w", err)
	}

	if err := stream.Close(); err != nil {
		return stream.Stats(), err
	}
	return stream.Stats(), nil
}

// sortRun is the state of one Sort call.
type sortRun struct {
	sorter *Sorter
	ctx    context.Context

	dir     *spill.Dir
	batches []spill.Batch

	lines    []string
	reserved int64 // memory reserved for lines
	bytes    int64 // approximate size of lines

	stats Stats
}

func (st *sortRun) opts() *Options { return &st.sorter.opts }

func (st *sortRun) resources() *resource.Controller { return st.sorter.opts.Resources }

// readBatches reads the whole input, spilling full batches. The last batch
// stays in st.lines.
func (st *sortRun) readBatches(r io.Reader) error {
	opts := st.opts()
	br := bufio.NewReaderSize(r, 64<<10)

	var n int64
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: read input: %w", record.ErrSourceUnavailable, err)
		}
		if line == "" && err != nil {
			return nil
		}

		n++
		if n%checkEvery == 0 {
			if cerr := st.ctx.Err(); cerr != nil {
				return cerr
			}
		}

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")
		if len(line) > opts.MaxRecordBytes {
			return fmt.Errorf("%w: line %d has %d bytes, limit %d", ErrRecordTooLarge, n, len(line), opts.MaxRecordBytes)
		}

		if n <= int64(opts.HeaderLines) {
			st.stats.HeaderLines++
		} else if aerr := st.add(line); aerr != nil {
			return aerr
		}

		if err != nil {
			return nil
		}
	}
}

// add appends line to the current batch, spilling first when the batch is full.
func (st *sortRun) add(line string) error {
	opts := st.opts()
	size := int64(len(line)) + lineOverhead

	if len(st.lines) > 0 {
		full := opts.MaxBatchRecords > 0 && len(st.lines) >= opts.MaxBatchRecords
		full = full || opts.MaxBatchBytes > 0 && st.bytes+size > opts.MaxBatchBytes
		if full {
			if err := st.spill(); err != nil {
				return err
			}
		}
	}

	if err := st.reserve(size); err != nil {
		return err
	}

	st.lines = append(st.lines, line)
	st.bytes += size
	st.stats.InputRecords++
	return nil
}

// reserve takes size bytes from the memory budget. When the budget is spent
// the current batch is spilled to make room.
func (st *sortRun) reserve(size int64) error {
	rc := st.resources()

	err := rc.AcquireMemory(size)
	if errors.Is(err, resource.ErrMemoryLimitExceeded) && len(st.lines) > 0 {
		if err = st.spill(); err != nil {
			return err
		}
		err = rc.AcquireMemory(size)
	}
	if err != nil {
		return fmt.Errorf("%w: record of %d bytes: %w", ErrStorageExhausted, size, err)
	}

	st.reserved += size
	return nil
}

func (st *sortRun) release() {
	st.resources().ReleaseMemory(st.reserved)
	st.reserved = 0
}

// sortBatch sorts the lines of the current batch and collapses duplicates.
func (st *sortRun) sortBatch() {
	slices.SortStableFunc(st.lines, st.sorter.compare)

	if st.opts().RemoveDuplicates {
		n := len(st.lines)
		st.lines = slices.Compact(st.lines)
		st.stats.DuplicatesRemoved += int64(n - len(st.lines))
	}
}

// spill sorts the current batch and writes it to a new batch file.
func (st *sortRun) spill() error {
	if err := st.ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	st.sortBatch()

	w, err := st.create()
	if err != nil {
		return err
	}
	for _, line := range st.lines {
		if err := w.Append(line); err != nil {
			w.Abort()
			return fmt.Errorf("%w: %w", ErrStorageExhausted, err)
		}
	}
	b, err := w.Commit()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageExhausted, err)
	}

	st.batches = append(st.batches, b)
	st.stats.Batches++
	st.stats.SpilledBytes += b.Bytes

	clear(st.lines)
	st.lines = st.lines[:0]
	st.bytes = 0
	st.release()

	d := time.Since(start)
	opts := st.opts()
	opts.Logger.Debug("spilled batch",
		"batch", len(st.batches),
		"records", b.Records,
		"bytes", b.Bytes,
		"duration", d,
	)
	if opts.OnSpill != nil {
		opts.OnSpill(b.Records, b.Bytes, d)
	}
	return nil
}

// create opens a new batch file, creating the spill directory on first use.
func (st *sortRun) create() (*spill.BatchWriter, error) {
	if st.dir == nil {
		opts := st.opts()
		dir, err := spill.NewDir(spill.Config{
			FS:          opts.FS,
			Parent:      opts.TempDir,
			Compression: opts.Compression,
			BlockSize:   opts.BlockSize,
			Resources:   opts.Resources,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorageExhausted, err)
		}
		st.dir = dir
	}

	w, err := st.dir.Create(st.ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageExhausted, err)
	}
	return w, nil
}

// stream reduces the batches to at most MaxMergeWidth and opens the final merge.
func (st *sortRun) stream() (*Stream, error) {
	st.sortBatch()

	if len(st.batches) == 0 {
		st.stats.InMemory = true
	}

	// The in-memory tail takes one slot of the final merge.
	limit := st.opts().MaxMergeWidth
	if len(st.lines) > 0 {
		limit--
	}
	for len(st.batches) > limit {
		if err := st.mergePass(); err != nil {
			return nil, err
		}
	}

	m, err := st.openMerge(st.batches, st.lines)
	if err != nil {
		return nil, err
	}

	return &Stream{
		ctx:       st.ctx,
		merge:     m,
		dir:       st.dir,
		resources: st.resources(),
		reserved:  st.reserved,
		stats:     st.stats,
	}, nil
}

// mergePass merges consecutive groups of MaxMergeWidth batches into one
// batch each. Group order is kept, so equal records keep their input order.
func (st *sortRun) mergePass() error {
	start := time.Now()
	width := st.opts().MaxMergeWidth
	before := len(st.batches)

	var next []spill.Batch
	for group := range slices.Chunk(st.batches, width) {
		if len(group) == 1 {
			next = append(next, group[0])
			continue
		}
		b, err := st.mergeGroup(group)
		if err != nil {
			return err
		}
		next = append(next, b)
	}

	st.batches = next
	st.stats.MergePasses++

	st.opts().Logger.Debug("merge pass",
		"pass", st.stats.MergePasses,
		"batches_in", before,
		"batches_out", len(st.batches),
		"duration", time.Since(start),
	)
	return nil
}

// mergeGroup merges group into a new batch and removes the inputs.
func (st *sortRun) mergeGroup(group []spill.Batch) (spill.Batch, error) {
	m, err := st.openMerge(group, nil)
	if err != nil {
		return spill.Batch{}, err
	}
	defer m.close()

	w, err := st.create()
	if err != nil {
		return spill.Batch{}, err
	}

	for {
		if err := st.ctx.Err(); err != nil {
			w.Abort()
			return spill.Batch{}, err
		}
		line, ok := m.next()
		if !ok {
			break
		}
		if err := w.Append(line); err != nil {
			w.Abort()
			return spill.Batch{}, fmt.Errorf("%w: %w", ErrStorageExhausted, err)
		}
	}
	if m.err != nil {
		w.Abort()
		return spill.Batch{}, m.err
	}

	b, err := w.Commit()
	if err != nil {
		return spill.Batch{}, fmt.Errorf("%w: %w", ErrStorageExhausted, err)
	}
	st.stats.SpilledBytes += b.Bytes
	st.stats.DuplicatesRemoved += m.duplicates

	if err := m.close(); err != nil {
		return spill.Batch{}, fmt.Errorf("%w: %w", ErrStorageExhausted, err)
	}
	for _, in := range group {
		if err := st.dir.Remove(in); err != nil {
			return spill.Batch{}, fmt.Errorf("%w: %w", ErrStorageExhausted, err)
		}
	}
	return b, nil
}

// openMerge opens a merge over batches followed by the in-memory lines.
func (st *sortRun) openMerge(batches []spill.Batch, lines []string) (*merge, error) {
	m := &merge{dedup: st.opts().RemoveDuplicates}

	sources := make([]func() (string, bool), 0, len(batches)+1)
	for _, b := range batches {
		r, err := st.dir.Open(st.ctx, b)
		if err != nil {
			_ = m.close()
			return nil, fmt.Errorf("%w: %w", ErrStorageExhausted, err)
		}
		m.readers = append(m.readers, r)
		sources = append(sources, m.batchSource(r))
	}
	if len(lines) > 0 {
		sources = append(sources, sliceSource(lines))
	}

	m.tree = loser.New(sources, st.sorter.less)
	return m, nil
}

// cleanup removes every batch and returns the reserved memory.
func (st *sortRun) cleanup() error {
	st.release()
	st.lines = nil
	if st.dir == nil {
		return nil
	}
	err := st.dir.Close()
	st.dir = nil
	return err
}
