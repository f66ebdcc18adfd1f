package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	productsFile = "\"ID\",\"DESCRIPTION\"\n3,cherry\n1,apple\n2,banana\n1,apple\n"
	pricesFile   = "\"ID\",\"DATE\",\"VALUE\"\n3,2024-01-01,4.20\n1,2024-01-01,0.50\n9,2024-01-01,9.99\n1,2024-01-02,0.55\n"
)

type fixture struct {
	dir      string
	products string
	prices   string
	output   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:      dir,
		products: filepath.Join(dir, "products.csv"),
		prices:   filepath.Join(dir, "prices.csv"),
		output:   filepath.Join(dir, "out.csv"),
	}
	require.NoError(t, os.WriteFile(f.products, []byte(productsFile), 0o644))
	require.NoError(t, os.WriteFile(f.prices, []byte(pricesFile), 0o644))
	return f
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	tmp := t.TempDir()

	code, _, stderr := runCLI(t,
		"--skip-header",
		"--batch-records", "2",
		"--temp-dir", tmp,
		"--compression", "zstd",
		f.products, f.prices, f.output,
	)
	require.Equal(t, exitOK, code, stderr)

	data, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Equal(t,
		"\"PRODUCT_ID\",\"PRODUCT_DESCRIPTION\",\"PRICE\"\n1,apple,0.50,0.55\n2,banana\n3,cherry,4.20\n",
		string(data),
	)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoFileExists(t, f.output+".partial")
}

func TestRun_HeadersJoinWithoutSkip(t *testing.T) {
	f := newFixture(t)

	code, _, stderr := runCLI(t, f.products, f.prices, f.output)
	require.Equal(t, exitOK, code, stderr)

	data, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"ID\",\"DESCRIPTION\",\"VALUE\"\n")
}

func TestRun_Environment(t *testing.T) {
	f := newFixture(t)
	t.Setenv("SORTJOIN_SKIP_HEADER", "true")
	t.Setenv("SORTJOIN_LOG_FORMAT", "json")
	t.Setenv("SORTJOIN_LOG_LEVEL", "debug")

	code, _, stderr := runCLI(t, f.products, f.prices, f.output)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stderr, `"msg":"join completed"`)

	data, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "DESCRIPTION\",\"VALUE")
}

func TestRun_MetricsFile(t *testing.T) {
	f := newFixture(t)
	metrics := filepath.Join(f.dir, "sortjoin.prom")

	code, _, stderr := runCLI(t, "--skip-header", "--metrics-file", metrics, f.products, f.prices, f.output)
	require.Equal(t, exitOK, code, stderr)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sortjoin_groups_total 3")
	assert.Contains(t, string(data), `sortjoin_duplicates_removed_total{stream="products"} 1`)
}

func TestRun_Help(t *testing.T) {
	code, stdout, _ := runCLI(t, "--help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "PRODUCTS PRICES OUTPUT")
	assert.Contains(t, stdout, "--memory-limit")
}

func TestRun_InvalidArguments(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"missing output", []string{f.products, f.prices}},
		{"too many", []string{f.products, f.prices, f.output, "extra"}},
		{"missing products", []string{filepath.Join(f.dir, "nope.csv"), f.prices, f.output}},
		{"prices is a directory", []string{f.products, f.dir, f.output}},
		{"unknown flag", []string{"--fast", f.products, f.prices, f.output}},
		{"bad compression", []string{"--compression", "gzip", f.products, f.prices, f.output}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, exitUsage, code)
			assert.NotEmpty(t, stderr)
			assert.NoFileExists(t, f.output)
		})
	}
}

func TestRun_Failure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.output, []byte("previous\n"), 0o644))
	require.NoError(t, os.WriteFile(f.prices, []byte("\"ID\",\"DATE\",\"VALUE\"\n1,2024-01-01\n"), 0o644))

	code, _, stderr := runCLI(t, "--skip-header", f.products, f.prices, f.output)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "malformed record")

	data, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Equal(t, "previous\n", string(data))
	assert.NoFileExists(t, f.output+".partial")
}
