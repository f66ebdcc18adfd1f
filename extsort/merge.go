package extsort

import (
	"errors"
	"fmt"

	"github.com/hupe1980/sortjoin/internal/loser"
	"github.com/hupe1980/sortjoin/internal/spill"
)

// merge is a k-way merge over sorted sources.
type merge struct {
	tree    *loser.Tree[string]
	readers []*spill.BatchReader
	dedup   bool

	last    string
	started bool

	duplicates int64
	err        error
	closed     bool
}

// next returns the next record in order. With dedup on, a record equal to
// the previous one is skipped. After false, m.err tells failure from the end.
func (m *merge) next() (string, bool) {
	for {
		v, _, ok := m.tree.Next()
		if m.err != nil || !ok {
			return "", false
		}
		if m.dedup && m.started && v == m.last {
			m.duplicates++
			continue
		}
		m.last, m.started = v, true
		return v, true
	}
}

// batchSource adapts a batch reader to a loser tree source. A read error
// ends the source and is kept in m.err.
func (m *merge) batchSource(r *spill.BatchReader) func() (string, bool) {
	return func() (string, bool) {
		if r.Next() {
			return r.Record(), true
		}
		if err := r.Err(); err != nil && m.err == nil {
			m.err = fmt.Errorf("%w: read batch: %w", ErrStorageExhausted, err)
		}
		return "", false
	}
}

func sliceSource(lines []string) func() (string, bool) {
	i := 0
	return func() (string, bool) {
		if i >= len(lines) {
			return "", false
		}
		i++
		return lines[i-1], true
	}
}

// close closes all batch readers. It is safe to call more than once.
func (m *merge) close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for _, r := range m.readers {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
