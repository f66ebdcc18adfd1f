package record

import (
	"bufio"
	"io"
)

// GroupWriter writes the output header once followed by one line per group.
type GroupWriter struct {
	w      *bufio.Writer
	delim  string
	header string
	buf    []byte

	headerDone bool
	groups     int64
}

// NewGroupWriter returns a GroupWriter using the delimiter of layout and OutputHeader.
func NewGroupWriter(w io.Writer, layout Layout) *GroupWriter {
	return &GroupWriter{
		w:      bufio.NewWriterSize(w, 64<<10),
		delim:  layout.delimiter(),
		header: OutputHeader,
	}
}

// WriteHeader writes the header line. It is a no-op after the first call.
func (gw *GroupWriter) WriteHeader() error {
	if gw.headerDone {
		return nil
	}
	gw.headerDone = true
	if _, err := gw.w.WriteString(gw.header); err != nil {
		return err
	}
	return gw.w.WriteByte('\n')
}

// Write writes g as one line, emitting the header first if needed.
func (gw *GroupWriter) Write(g Group) error {
	if err := gw.WriteHeader(); err != nil {
		return err
	}
	gw.buf = g.AppendTo(gw.buf[:0], gw.delim)
	gw.buf = append(gw.buf, '\n')
	if _, err := gw.w.Write(gw.buf); err != nil {
		return err
	}
	gw.groups++
	return nil
}

// Flush writes buffered data to the underlying writer.
func (gw *GroupWriter) Flush() error {
	return gw.w.Flush()
}

// Groups returns the number of groups written so far.
func (gw *GroupWriter) Groups() int64 {
	return gw.groups
}
