package join

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/sortjoin/record"
)

// Cursor is a forward-only sequence of records. extsort.Stream implements it.
type Cursor interface {
	Next() bool
	Record() string
	Err() error
}

// LineCursor reads records from an io.Reader, one per line. LF and CR LF
// line endings are accepted and a final line without terminator is kept.
type LineCursor struct {
	r    *bufio.Reader
	cur  string
	err  error
	done bool
}

// NewLineCursor returns a cursor over the lines of r.
func NewLineCursor(r io.Reader) *LineCursor {
	return &LineCursor{r: bufio.NewReaderSize(r, 64<<10)}
}

func (c *LineCursor) Next() bool {
	if c.done {
		return false
	}

	line, err := c.r.ReadString('\n')
	if err != nil {
		c.done = true
		if !errors.Is(err, io.EOF) {
			c.err = fmt.Errorf("%w: %w", record.ErrSourceUnavailable, err)
			return false
		}
		if line == "" {
			return false
		}
	}

	line = strings.TrimSuffix(line, "\n")
	c.cur = strings.TrimSuffix(line, "\r")
	return true
}

func (c *LineCursor) Record() string { return c.cur }

func (c *LineCursor) Err() error { return c.err }

// SliceCursor iterates over records held in memory.
type SliceCursor struct {
	lines []string
	pos   int
}

// NewSliceCursor returns a cursor over lines.
func NewSliceCursor(lines ...string) *SliceCursor {
	return &SliceCursor{lines: lines}
}

func (c *SliceCursor) Next() bool {
	if c.pos >= len(c.lines) {
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) Record() string { return c.lines[c.pos-1] }

func (c *SliceCursor) Err() error { return nil }
