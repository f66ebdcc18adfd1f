package spill

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

var (
	// ErrInvalidMagic is returned when a file is not a batch file.
	ErrInvalidMagic = errors.New("spill: invalid magic bytes - not a batch file")

	// ErrCorrupt is returned when a block fails validation.
	ErrCorrupt = errors.New("spill: corrupt batch")
)

var magic = [4]byte{'S', 'J', 'B', '1'}

const (
	fileHeaderSize  = len(magic) + 1
	blockHeaderSize = 12

	// DefaultBlockSize is the raw size at which a block is cut.
	DefaultBlockSize = 64 << 10

	// maxBlockSize guards readers against absurd lengths in damaged headers.
	maxBlockSize = 256 << 20

	// MaxBlockSize is the largest block size a Writer cuts at.
	MaxBlockSize = maxBlockSize / 2

	// MaxRecordSize is the longest record a batch file can hold. Together
	// with MaxBlockSize it keeps every block below the reader's limit.
	MaxRecordSize = maxBlockSize/2 - binary.MaxVarintLen64
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Writer encodes records into blocks.
type Writer struct {
	w           io.Writer
	compression Compression
	blockSize   int

	raw     []byte
	scratch []byte
	header  [blockHeaderSize]byte

	records int64
	written int64
}

// NewWriter writes the file header to w and returns a Writer.
// blockSize <= 0 selects DefaultBlockSize; larger sizes are capped at MaxBlockSize.
func NewWriter(w io.Writer, c Compression, blockSize int) (*Writer, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	blockSize = min(blockSize, MaxBlockSize)

	var hdr [fileHeaderSize]byte
	copy(hdr[:], magic[:])
	hdr[len(magic)] = byte(c)
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("spill: write header: %w", err)
	}

	return &Writer{
		w:           w,
		compression: c,
		blockSize:   blockSize,
		raw:         make([]byte, 0, min(blockSize, DefaultBlockSize)+binary.MaxVarintLen64),
		written:     int64(fileHeaderSize),
	}, nil
}

// Append adds one record. Blocks are cut once they reach the block size,
// so a single oversized record forms a block of its own.
func (w *Writer) Append(rec string) error {
	w.raw = binary.AppendUvarint(w.raw, uint64(len(rec)))
	w.raw = append(w.raw, rec...)
	w.records++

	if len(w.raw) >= w.blockSize {
		return w.Flush()
	}
	return nil
}

// Flush writes the pending block, if any.
func (w *Writer) Flush() error {
	if len(w.raw) == 0 {
		return nil
	}
	if len(w.raw) > maxBlockSize {
		return fmt.Errorf("spill: block of %d bytes exceeds limit", len(w.raw))
	}

	payload, err := compress(w.scratch, w.raw, w.compression)
	if err != nil {
		return fmt.Errorf("spill: compress block: %w", err)
	}
	stored := uint32(len(payload))
	if payload == nil {
		payload = w.raw
	} else {
		w.scratch = payload[:0]
	}

	binary.LittleEndian.PutUint32(w.header[0:], uint32(len(w.raw)))
	binary.LittleEndian.PutUint32(w.header[4:], stored)
	binary.LittleEndian.PutUint32(w.header[8:], crc32.Checksum(w.raw, castagnoli))

	if _, err := w.w.Write(w.header[:]); err != nil {
		return fmt.Errorf("spill: write block header: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("spill: write block: %w", err)
	}

	w.written += int64(blockHeaderSize + len(payload))
	w.raw = w.raw[:0]
	return nil
}

// Records returns the number of records appended.
func (w *Writer) Records() int64 { return w.records }

// BytesWritten returns the number of bytes handed to the underlying writer.
func (w *Writer) BytesWritten() int64 { return w.written }

// Reader decodes records written by Writer, one block at a time.
type Reader struct {
	r           *bufio.Reader
	compression Compression

	header [blockHeaderSize]byte
	stored []byte
	raw    []byte
	pos    int

	cur string
	err error
}

// NewReader reads and validates the file header.
func NewReader(r io.Reader) (*Reader, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 32<<10)
	}

	var hdr [fileHeaderSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("spill: read header: %w", err)
	}
	if [4]byte(hdr[:4]) != magic {
		return nil, ErrInvalidMagic
	}

	c := Compression(hdr[len(magic)])
	if c > CompressionZSTD {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, c)
	}
	return &Reader{r: br, compression: c}, nil
}

// Compression returns the compression recorded in the file header.
func (r *Reader) Compression() Compression { return r.compression }

// Next advances to the next record. It returns false at the end of the
// file or on error; Err distinguishes the two.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	if r.pos >= len(r.raw) {
		if err := r.readBlock(); err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = err
			}
			return false
		}
	}

	n, size := binary.Uvarint(r.raw[r.pos:])
	if size <= 0 || uint64(len(r.raw)-r.pos-size) < n {
		r.err = fmt.Errorf("%w: bad record length", ErrCorrupt)
		return false
	}
	start := r.pos + size
	r.cur = string(r.raw[start : start+int(n)])
	r.pos = start + int(n)
	return true
}

// Record returns the current record.
func (r *Reader) Record() string { return r.cur }

// Err returns the first error other than io.EOF.
func (r *Reader) Err() error { return r.err }

func (r *Reader) readBlock() error {
	if _, err := io.ReadFull(r.r, r.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("%w: truncated block header: %w", ErrCorrupt, err)
	}

	rawLen := binary.LittleEndian.Uint32(r.header[0:])
	storedLen := binary.LittleEndian.Uint32(r.header[4:])
	sum := binary.LittleEndian.Uint32(r.header[8:])
	if rawLen == 0 || rawLen > maxBlockSize || storedLen > maxBlockSize {
		return fmt.Errorf("%w: block length %d/%d", ErrCorrupt, rawLen, storedLen)
	}

	r.raw = grow(r.raw, int(rawLen))
	if storedLen == 0 {
		if _, err := io.ReadFull(r.r, r.raw); err != nil {
			return fmt.Errorf("%w: truncated block: %w", ErrCorrupt, err)
		}
	} else {
		r.stored = grow(r.stored, int(storedLen))
		if _, err := io.ReadFull(r.r, r.stored); err != nil {
			return fmt.Errorf("%w: truncated block: %w", ErrCorrupt, err)
		}
		raw, err := decompress(r.raw, r.stored, r.compression)
		if err != nil {
			return fmt.Errorf("%w: decompress block: %w", ErrCorrupt, err)
		}
		r.raw = raw
	}

	if crc32.Checksum(r.raw, castagnoli) != sum {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	r.pos = 0
	return nil
}

// grow returns b resized to n bytes, reusing its backing array when possible.
func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}
