package sortjoin

import (
	"errors"
	"fmt"

	"github.com/hupe1980/sortjoin/extsort"
	"github.com/hupe1980/sortjoin/join"
	"github.com/hupe1980/sortjoin/record"
)

var (
	// ErrSourceUnavailable is returned when an input cannot be opened or read.
	ErrSourceUnavailable = record.ErrSourceUnavailable

	// ErrStorageExhausted is returned when temporary batch storage cannot be
	// allocated or written, or the memory budget cannot hold a single record.
	ErrStorageExhausted = extsort.ErrStorageExhausted

	// ErrRecordTooLarge is returned when an input line exceeds the longest
	// record a spill batch can hold.
	ErrRecordTooLarge = extsort.ErrRecordTooLarge

	// ErrMalformedRecord is returned when a line has fewer fields than its role requires.
	ErrMalformedRecord = record.ErrMalformedRecord

	// ErrOrderViolation is returned when a sorted stream goes backwards in key order.
	ErrOrderViolation = join.ErrOrderViolation

	// ErrInvalidArguments is returned when the join is invoked with unusable arguments.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// MalformedError describes a line that could not be decoded.
type MalformedError = record.MalformedError

// Stage names the step of a join that failed.
type Stage string

const (
	StageOpen         Stage = "open"
	StageSortProducts Stage = "sort products"
	StageSortPrices   Stage = "sort prices"
	StageMerge        Stage = "merge"
	StageOutput       Stage = "write output"
)

// StageError wraps the error that aborted a join with the stage it happened in.
//
// The original error can be accessed via errors.Unwrap.
type StageError struct {
	Stage Stage
	cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.cause)
}

func (e *StageError) Unwrap() error { return e.cause }

func stageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, cause: err}
}
