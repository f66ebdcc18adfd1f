// Command sortjoin joins a product catalog with its price history.
//
//	sortjoin [flags] PRODUCTS PRICES OUTPUT
//
// Both inputs are sorted externally, so they may be larger than memory.
// The output is written to OUTPUT.partial and renamed into place once
// complete. Every flag can also be set through the environment variable
// named in --help.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/hupe1980/sortjoin"
	"github.com/hupe1980/sortjoin/extsort"
	"github.com/hupe1980/sortjoin/metrics/prometheus"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// Options represents command line options.
type Options struct {
	TempDir      string `long:"temp-dir" env:"SORTJOIN_TEMP_DIR" description:"directory for temporary sort batches (default: system temp dir)"`
	BatchBytes   int64  `long:"batch-bytes" env:"SORTJOIN_BATCH_BYTES" default:"67108864" description:"bytes of records per sorted batch"`
	BatchRecords int    `long:"batch-records" env:"SORTJOIN_BATCH_RECORDS" description:"records per sorted batch (0: bounded by bytes only)"`
	MergeWidth   int    `long:"merge-width" env:"SORTJOIN_MERGE_WIDTH" default:"64" description:"batches merged at once"`
	Compression  string `long:"compression" env:"SORTJOIN_COMPRESSION" default:"lz4" choice:"none" choice:"lz4" choice:"zstd" description:"compression of temporary batches"`
	MemoryLimit  int64  `long:"memory-limit" env:"SORTJOIN_MEMORY_LIMIT" description:"bytes of records held in memory by both sorts (0: unlimited)"`
	IOLimit      int64  `long:"io-limit" env:"SORTJOIN_IO_LIMIT" description:"bytes per second written to temporary storage (0: unlimited)"`
	SkipHeader   bool   `long:"skip-header" env:"SORTJOIN_SKIP_HEADER" description:"drop the first line of each input instead of joining the headers"`
	LogLevel     string `long:"log-level" env:"SORTJOIN_LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error"`
	LogFormat    string `long:"log-format" env:"SORTJOIN_LOG_FORMAT" default:"text" choice:"text" choice:"json"`
	MetricsFile  string `long:"metrics-file" env:"SORTJOIN_METRICS_FILE" description:"write Prometheus metrics to this file when done"`

	Args struct {
		Products string `positional-arg-name:"PRODUCTS" description:"product file, lines id,description"`
		Prices   string `positional-arg-name:"PRICES" description:"price file, lines id,date,price"`
		Output   string `positional-arg-name:"OUTPUT" description:"output file"`
	} `positional-args:"yes" required:"yes"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts Options

	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[OPTIONS] PRODUCTS PRICES OUTPUT"

	rest, err := parser.ParseArgs(args)
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, err)
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if len(rest) > 0 {
		fmt.Fprintf(stderr, "%v: unexpected arguments %q\n", sortjoin.ErrInvalidArguments, rest)
		return exitUsage
	}

	if err := checkInputs(opts.Args.Products, opts.Args.Prices); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	logger, err := newLogger(stderr, opts.LogLevel, opts.LogFormat)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	compression, err := extsort.ParseCompression(opts.Compression)
	if err != nil {
		fmt.Fprintf(stderr, "%v: %v\n", sortjoin.ErrInvalidArguments, err)
		return exitUsage
	}

	optFns := []sortjoin.Option{
		sortjoin.WithLogger(logger),
		sortjoin.WithTempDir(opts.TempDir),
		sortjoin.WithBatchBytes(opts.BatchBytes),
		sortjoin.WithBatchSize(opts.BatchRecords),
		sortjoin.WithMaxMergeWidth(opts.MergeWidth),
		sortjoin.WithCompression(compression),
		sortjoin.WithMemoryLimit(opts.MemoryLimit),
		sortjoin.WithIOLimit(opts.IOLimit),
	}
	if opts.SkipHeader {
		optFns = append(optFns, sortjoin.WithHeaderLines(1))
	}

	var collector *prometheus.Collector
	if opts.MetricsFile != "" {
		collector = prometheus.New("sortjoin")
		optFns = append(optFns, sortjoin.WithMetricsCollector(collector))
	}

	_, err = sortjoin.MergeFiles(ctx, opts.Args.Products, opts.Args.Prices, opts.Args.Output, optFns...)

	if collector != nil {
		if werr := collector.WriteTextfile(opts.MetricsFile); werr != nil {
			logger.Error("failed to write metrics", "path", opts.MetricsFile, "error", werr)
		}
	}

	if err != nil {
		fmt.Fprintf(stderr, "sortjoin: %v\n", err)
		if errors.Is(err, sortjoin.ErrInvalidArguments) {
			return exitUsage
		}
		return exitFailure
	}
	return exitOK
}

// checkInputs verifies that both inputs exist and are regular files.
func checkInputs(paths ...string) error {
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%w: %w", sortjoin.ErrInvalidArguments, err)
		}
		if !fi.Mode().IsRegular() {
			return fmt.Errorf("%w: %s is not a regular file", sortjoin.ErrInvalidArguments, p)
		}
	}
	return nil
}

func newLogger(w io.Writer, level, format string) (*sortjoin.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("%w: log level: %w", sortjoin.ErrInvalidArguments, err)
	}

	hopts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "json":
		return sortjoin.NewLogger(slog.NewJSONHandler(w, hopts)), nil
	case "text":
		return sortjoin.NewLogger(slog.NewTextHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", sortjoin.ErrInvalidArguments, format)
	}
}
