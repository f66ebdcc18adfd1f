package extsort

import (
	"context"
	"errors"

	"github.com/hupe1980/sortjoin/internal/spill"
	"github.com/hupe1980/sortjoin/resource"
)

// Stats describes one sort.
type Stats struct {
	InputRecords      int64 // records read, header lines excluded
	HeaderLines       int64 // leading lines dropped
	DuplicatesRemoved int64
	OutputRecords     int64 // records returned by the stream so far

	Batches      int   // batches spilled while reading
	MergePasses  int   // intermediate merge passes
	SpilledBytes int64 // bytes written to batch files, all passes
	InMemory     bool  // the input fit in one batch and was never spilled
}

// Stream is the sorted output of a Sort call. It is not safe for concurrent use.
type Stream struct {
	ctx   context.Context
	merge *merge

	dir       *spill.Dir
	resources *resource.Controller
	reserved  int64

	stats Stats
	cur   string
	err   error
	done  bool

	released   bool
	releaseErr error
}

// Next advances to the next record. It returns false when the stream is
// exhausted or failed; Err tells the two apart. Batches are removed as soon
// as the stream ends.
func (s *Stream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.fail(err)
		return false
	}

	v, ok := s.merge.next()
	if !ok {
		if s.merge.err != nil {
			s.fail(s.merge.err)
			return false
		}
		s.done = true
		if err := s.release(); err != nil {
			s.err = err
		}
		return false
	}

	s.cur = v
	s.stats.OutputRecords++
	return true
}

// Record returns the current record.
func (s *Stream) Record() string { return s.cur }

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error { return s.err }

// Stats returns the statistics of the sort so far.
func (s *Stream) Stats() Stats {
	st := s.stats
	st.DuplicatesRemoved += s.merge.duplicates
	return st
}

// Close releases the stream and removes its batches.
func (s *Stream) Close() error {
	return s.release()
}

func (s *Stream) fail(err error) {
	s.err = err
	_ = s.release()
}

func (s *Stream) release() error {
	if s.released {
		return s.releaseErr
	}
	s.released = true

	errs := []error{s.merge.close()}
	if s.dir != nil {
		errs = append(errs, s.dir.Close())
	}
	s.resources.ReleaseMemory(s.reserved)
	s.reserved = 0

	if err := errors.Join(errs...); err != nil {
		s.releaseErr = errors.Join(ErrStorageExhausted, err)
	}
	return s.releaseErr
}
