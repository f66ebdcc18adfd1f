package extsort

import "errors"

// ErrRecordTooLarge is returned when an input line is longer than
// Options.MaxRecordBytes.
var ErrRecordTooLarge = errors.New("record too large")

// ErrStorageExhausted is returned when temporary batch storage cannot be
// allocated, written or read back, or when the memory budget cannot hold a
// single record.
var ErrStorageExhausted = errors.New("storage exhausted")
