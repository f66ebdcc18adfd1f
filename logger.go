package sortjoin

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/sortjoin/extsort"
	"github.com/hupe1980/sortjoin/join"
)

// Logger wraps slog.Logger with sortjoin-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithStream adds a stream field to the logger.
func (l *Logger) WithStream(stream string) *Logger {
	return &Logger{
		Logger: l.Logger.With("stream", stream),
	}
}

// LogSort logs the outcome of sorting one input.
func (l *Logger) LogSort(ctx context.Context, stream string, stats extsort.Stats, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "sort failed",
			"stream", stream,
			"records", stats.InputRecords,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "sort completed",
		"stream", stream,
		"records", stats.InputRecords,
		"header_lines", stats.HeaderLines,
		"batches", stats.Batches,
		"merge_passes", stats.MergePasses,
		"spilled_bytes", stats.SpilledBytes,
		"in_memory", stats.InMemory,
		"duration", d,
	)
}

// LogJoin logs the outcome of the merge step.
func (l *Logger) LogJoin(ctx context.Context, stats join.Stats, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "join failed",
			"groups", stats.Entities,
			"error", err,
		)
		return
	}
	if stats.Orphans > 0 {
		l.WarnContext(ctx, "facts without matching entity dropped",
			"orphans", stats.Orphans,
		)
	}
	l.InfoContext(ctx, "join completed",
		"groups", stats.Entities,
		"facts", stats.Facts,
		"attached", stats.Attached,
		"empty_groups", stats.EmptyGroups,
		"duration", d,
	)
}
