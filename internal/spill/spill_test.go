package spill

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sortjoin/internal/fs"
	"github.com/hupe1980/sortjoin/resource"
)

func sampleRecords(n int) []string {
	recs := make([]string, n)
	for i := range recs {
		recs[i] = fmt.Sprintf("%08d,product description %d,%d.99", i, i%17, i%100)
	}
	return recs
}

func readAll(t *testing.T, r *Reader) []string {
	t.Helper()
	var out []string
	for r.Next() {
		out = append(out, r.Record())
	}
	require.NoError(t, r.Err())
	return out
}

func TestWriterReader_RoundTrip(t *testing.T) {
	recs := sampleRecords(5000)
	recs = append(recs, "", strings.Repeat("x", 200<<10), "tail")

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, c, 4<<10)
			require.NoError(t, err)

			for _, rec := range recs {
				require.NoError(t, w.Append(rec))
			}
			require.NoError(t, w.Flush())
			assert.Equal(t, int64(len(recs)), w.Records())
			assert.Equal(t, int64(buf.Len()), w.BytesWritten())

			r, err := NewReader(&buf)
			require.NoError(t, err)
			assert.Equal(t, c, r.Compression())
			assert.Equal(t, recs, readAll(t, r))

			// Reading past the end stays at the end.
			assert.False(t, r.Next())
			assert.NoError(t, r.Err())
		})
	}
}

func TestCompression_ShrinksRepetitiveData(t *testing.T) {
	recs := sampleRecords(2000)

	sizes := map[Compression]int{}
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		var buf bytes.Buffer
		w, err := NewWriter(&buf, c, 0)
		require.NoError(t, err)
		for _, rec := range recs {
			require.NoError(t, w.Append(rec))
		}
		require.NoError(t, w.Flush())
		sizes[c] = buf.Len()
	}

	assert.Less(t, sizes[CompressionLZ4], sizes[CompressionNone])
	assert.Less(t, sizes[CompressionZSTD], sizes[CompressionNone])
}

func TestReader_EmptyFile(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, CompressionLZ4, 0)
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
}

func TestReader_InvalidMagic(t *testing.T) {
	_, err := NewReader(strings.NewReader("NOPE\x00"))
	assert.ErrorIs(t, err, ErrInvalidMagic)

	_, err = NewReader(strings.NewReader("SJ"))
	assert.Error(t, err)

	_, err = NewReader(strings.NewReader("SJB1\x09"))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReader_DetectsCorruption(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, c, 0)
			require.NoError(t, err)
			for _, rec := range sampleRecords(100) {
				require.NoError(t, w.Append(rec))
			}
			require.NoError(t, w.Flush())

			data := buf.Bytes()
			data[len(data)-3] ^= 0xff

			r, err := NewReader(bytes.NewReader(data))
			require.NoError(t, err)
			for r.Next() {
			}
			assert.ErrorIs(t, r.Err(), ErrCorrupt)
		})
	}
}

func TestReader_Truncated(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, CompressionNone, 0)
	require.NoError(t, err)
	for _, rec := range sampleRecords(10) {
		require.NoError(t, w.Append(rec))
	}
	require.NoError(t, w.Flush())

	data := buf.Bytes()[:buf.Len()-5]
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.False(t, r.Next())
	assert.ErrorIs(t, r.Err(), ErrCorrupt)
}

func TestParseCompression(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want Compression
	}{
		{"none", CompressionNone},
		{"", CompressionNone},
		{"LZ4", CompressionLZ4},
		{"zstd", CompressionZSTD},
	} {
		got, err := ParseCompression(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseCompression("gzip")
	assert.Error(t, err)
	assert.Equal(t, "compression(7)", Compression(7).String())
}

func TestDir_Lifecycle(t *testing.T) {
	ctx := context.Background()
	parent := t.TempDir()

	d, err := NewDir(Config{Parent: parent, Compression: CompressionZSTD, BlockSize: 1 << 10})
	require.NoError(t, err)
	assert.Equal(t, parent, filepath.Dir(d.Path()))

	recs := sampleRecords(300)
	bw, err := d.Create(ctx)
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, bw.Append(rec))
	}
	b, err := bw.Commit()
	require.NoError(t, err)
	bw.Abort() // no-op after commit

	assert.Equal(t, int64(len(recs)), b.Records)
	info, err := os.Stat(b.Path)
	require.NoError(t, err)
	assert.Equal(t, b.Bytes, info.Size())

	br, err := d.Open(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, recs, readAll(t, br.Reader))
	require.NoError(t, br.Close())

	require.NoError(t, d.Remove(b))
	require.NoError(t, d.Remove(b)) // already gone
	_, err = os.Stat(b.Path)
	assert.True(t, os.IsNotExist(err))

	// Close removes the directory including batches that were never removed.
	bw2, err := d.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, bw2.Append("left behind"))
	_, err = bw2.Commit()
	require.NoError(t, err)

	require.NoError(t, d.Close())
	_, err = os.Stat(d.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestDir_AbortRemovesFile(t *testing.T) {
	d, err := NewDir(Config{Parent: t.TempDir()})
	require.NoError(t, err)
	defer d.Close()

	bw, err := d.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, bw.Append("x"))
	bw.Abort()

	entries, err := os.ReadDir(d.Path())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDir_CommitFailureRemovesFile(t *testing.T) {
	errFull := errors.New("no space left on device")
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("batch-", fs.Fault{FailAfterBytes: 100, Err: errFull})

	d, err := NewDir(Config{FS: ffs, Parent: t.TempDir(), Compression: CompressionNone})
	require.NoError(t, err)
	defer d.Close()

	bw, err := d.Create(context.Background())
	require.NoError(t, err)
	for _, rec := range sampleRecords(100) {
		require.NoError(t, bw.Append(rec)) // buffered, nothing hits the file yet
	}
	_, err = bw.Commit()
	require.ErrorIs(t, err, errFull)

	entries, err := ffs.ReadDir(d.Path())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDir_MkdirFailure(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.FailMkdirTemp = true

	_, err := NewDir(Config{FS: ffs, Parent: t.TempDir()})
	assert.Error(t, err)
}

func TestDir_RateLimited(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 30})

	d, err := NewDir(Config{Parent: t.TempDir(), Resources: rc, Compression: CompressionLZ4})
	require.NoError(t, err)
	defer d.Close()

	bw, err := d.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, bw.Append("a"))
	require.NoError(t, bw.Append("b"))
	b, err := bw.Commit()
	require.NoError(t, err)

	br, err := d.Open(ctx, b)
	require.NoError(t, err)
	defer br.Close()
	assert.Equal(t, []string{"a", "b"}, readAll(t, br.Reader))
}

func TestNewWriter_CapsBlockSize(t *testing.T) {
	w, err := NewWriter(&bytes.Buffer{}, CompressionNone, 1<<30)
	require.NoError(t, err)
	assert.Equal(t, MaxBlockSize, w.blockSize)

	// The largest block a writer can cut still passes the reader's limit.
	assert.LessOrEqual(t, MaxBlockSize-1+binary.MaxVarintLen64+MaxRecordSize, maxBlockSize)
}
