package spill

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/sortjoin/internal/fs"
	"github.com/hupe1980/sortjoin/resource"
)

// Config configures a Dir.
type Config struct {
	// FS is the file system batches are written to. Defaults to fs.Default.
	FS fs.FileSystem

	// Parent is the directory the private spill directory is created in.
	// Empty means os.TempDir().
	Parent string

	Compression Compression
	BlockSize   int

	// Resources throttles batch IO. Nil means unlimited.
	Resources *resource.Controller
}

// Batch describes a finished batch file.
type Batch struct {
	Path    string
	Records int64
	Bytes   int64
}

// Dir is a private directory holding the batches of one sort.
type Dir struct {
	cfg  Config
	path string
	seq  int
}

// NewDir creates a new private spill directory below cfg.Parent.
func NewDir(cfg Config) (*Dir, error) {
	if cfg.FS == nil {
		cfg.FS = fs.Default
	}
	if cfg.Parent == "" {
		cfg.Parent = os.TempDir()
	}

	path, err := cfg.FS.MkdirTemp(cfg.Parent, "sortjoin-")
	if err != nil {
		return nil, fmt.Errorf("spill: create directory: %w", err)
	}
	return &Dir{cfg: cfg, path: path}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// Create starts a new batch file. The batch is not visible to Open until
// it has been committed.
func (d *Dir) Create(ctx context.Context) (*BatchWriter, error) {
	d.seq++
	path := filepath.Join(d.path, fmt.Sprintf("batch-%06d.spl", d.seq))

	f, err := d.cfg.FS.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("spill: create batch: %w", err)
	}

	buf := bufio.NewWriterSize(d.cfg.Resources.ThrottleWriter(ctx, f), 64<<10)
	w, err := NewWriter(buf, d.cfg.Compression, d.cfg.BlockSize)
	if err != nil {
		_ = f.Close()
		_ = d.cfg.FS.Remove(path)
		return nil, err
	}

	return &BatchWriter{fs: d.cfg.FS, file: f, buf: buf, w: w, path: path}, nil
}

// Open opens a committed batch for sequential reading.
func (d *Dir) Open(ctx context.Context, b Batch) (*BatchReader, error) {
	f, err := d.cfg.FS.OpenFile(b.Path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("spill: open batch: %w", err)
	}
	_ = fs.AdviseSequential(f)

	r, err := NewReader(bufio.NewReaderSize(d.cfg.Resources.ThrottleReader(ctx, f), 32<<10))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &BatchReader{Reader: r, file: f}, nil
}

// Remove deletes a batch that is no longer needed.
func (d *Dir) Remove(b Batch) error {
	if err := d.cfg.FS.Remove(b.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("spill: remove batch: %w", err)
	}
	return nil
}

// Close removes the directory and every batch left in it.
func (d *Dir) Close() error {
	if err := d.cfg.FS.RemoveAll(d.path); err != nil {
		return fmt.Errorf("spill: remove directory: %w", err)
	}
	return nil
}

// BatchWriter writes one batch file.
type BatchWriter struct {
	fs   fs.FileSystem
	file fs.File
	buf  *bufio.Writer
	w    *Writer
	path string
	done bool
}

// Append adds a record to the batch. Records must be appended in sorted order.
func (bw *BatchWriter) Append(rec string) error {
	return bw.w.Append(rec)
}

// Commit flushes, syncs and closes the file.
func (bw *BatchWriter) Commit() (Batch, error) {
	bw.done = true

	err := bw.w.Flush()
	if err == nil {
		err = bw.buf.Flush()
	}
	if err == nil {
		err = bw.file.Sync()
	}
	if cerr := bw.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = bw.fs.Remove(bw.path)
		return Batch{}, fmt.Errorf("spill: commit batch: %w", err)
	}

	return Batch{Path: bw.path, Records: bw.w.Records(), Bytes: bw.w.BytesWritten()}, nil
}

// Abort closes and deletes an uncommitted batch. It is safe to call after Commit.
func (bw *BatchWriter) Abort() {
	if bw.done {
		return
	}
	bw.done = true
	_ = bw.file.Close()
	_ = bw.fs.Remove(bw.path)
}

// BatchReader reads one batch file.
type BatchReader struct {
	*Reader
	file fs.File
}

// Close closes the underlying file.
func (br *BatchReader) Close() error {
	return br.file.Close()
}
