package record

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable is returned when an input stream cannot be opened or read.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedRecord is returned when a line has fewer fields than its role requires.
	ErrMalformedRecord = errors.New("malformed record")
)

// MalformedError describes a line that could not be decoded.
//
// It matches ErrMalformedRecord via errors.Is.
type MalformedError struct {
	Stream string // "entities" or "facts"; empty when decoded outside a stream
	Line   int64  // 1-based position in the sorted stream; 0 when unknown
	Record string
	Fields int
	Want   int
}

func (e *MalformedError) Error() string {
	if e.Stream == "" {
		return fmt.Sprintf("malformed record %q: %d fields, want at least %d", e.Record, e.Fields, e.Want)
	}
	return fmt.Sprintf("malformed record in %s at line %d %q: %d fields, want at least %d",
		e.Stream, e.Line, e.Record, e.Fields, e.Want)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedRecord }
