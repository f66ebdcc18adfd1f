package testutil

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"os"
	"slices"
	"strings"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Intn returns a uniform value in [0, n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Shuffle shuffles lines in place.
func (r *RNG) Shuffle(lines []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Shuffle(len(lines), func(i, j int) {
		lines[i], lines[j] = lines[j], lines[i]
	})
}

// Zipf returns a Zipfian-distributed value in [0, n).
// P(k) ∝ 1/k^s: small values are common, large ones rare.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

// zipfLocked is the internal implementation (caller must hold lock).
func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1
		}
	}

	return n - 1
}

// Group is the expected join result of one product.
type Group struct {
	Descriptor string
	Values     []string // sorted
}

// DatasetConfig sizes a generated dataset.
type DatasetConfig struct {
	Products  int // distinct products
	MaxPrices int // upper bound of prices per product, Zipf distributed
	Orphans   int // prices whose id matches no product

	// Duplicates repeats that many product lines verbatim.
	Duplicates int
}

// Dataset is a generated product and price dataset with its join result.
type Dataset struct {
	Products []string // shuffled `id,description` lines
	Prices   []string // shuffled `id,date,price` lines
	Expected map[string]Group
}

// Dataset generates a dataset. Product ids are even numbers without
// padding, so lexicographic and numeric order differ. Orphan prices use
// odd ids and fall between product ids.
func (r *RNG) Dataset(cfg DatasetConfig) Dataset {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds := Dataset{Expected: make(map[string]Group, cfg.Products)}

	ids := r.rand.Perm(cfg.Products * 10)[:cfg.Products]
	for _, n := range ids {
		id := fmt.Sprint(n * 2)
		desc := fmt.Sprintf("product %d", n)
		ds.Products = append(ds.Products, id+","+desc)

		g := Group{Descriptor: desc}
		for range r.zipfLocked(cfg.MaxPrices+1, 1.1) {
			v := r.price()
			g.Values = append(g.Values, v)
			ds.Prices = append(ds.Prices, id+","+r.date()+","+v)
		}
		slices.Sort(g.Values)
		ds.Expected[id] = g
	}

	for i := range cfg.Duplicates {
		ds.Products = append(ds.Products, ds.Products[i%len(ds.Products)])
	}

	for range cfg.Orphans {
		id := fmt.Sprint(r.rand.Intn(cfg.Products*10)*2 + 1)
		ds.Prices = append(ds.Prices, id+","+r.date()+","+r.price())
	}

	r.rand.Shuffle(len(ds.Products), func(i, j int) {
		ds.Products[i], ds.Products[j] = ds.Products[j], ds.Products[i]
	})
	r.rand.Shuffle(len(ds.Prices), func(i, j int) {
		ds.Prices[i], ds.Prices[j] = ds.Prices[j], ds.Prices[i]
	})
	return ds
}

func (r *RNG) date() string {
	return fmt.Sprintf("2024-%02d-%02d", r.rand.Intn(12)+1, r.rand.Intn(28)+1)
}

func (r *RNG) price() string {
	return fmt.Sprintf("%d.%02d", r.rand.Intn(1000), r.rand.Intn(100))
}

// WriteLines writes header (if not empty) and lines to path, one per line.
func WriteLines(path, header string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if header != "" {
		_, _ = w.WriteString(header + "\n")
	}
	for _, line := range lines {
		_, _ = w.WriteString(line + "\n")
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Output is parsed joiner output.
type Output struct {
	Header string
	Keys   []string // in output order
	Groups map[string]Group
}

// ParseOutput parses joiner output with comma separated fields. Values of
// each group are sorted. A key appearing twice is an error.
func ParseOutput(data string) (Output, error) {
	lines := strings.Split(strings.TrimSuffix(data, "\n"), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return Output{}, fmt.Errorf("missing header")
	}

	out := Output{Header: lines[0], Groups: make(map[string]Group)}
	for i, line := range lines[1:] {
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			return Output{}, fmt.Errorf("line %d: %q has %d fields", i+2, line, len(fields))
		}

		key := fields[0]
		if _, ok := out.Groups[key]; ok {
			return Output{}, fmt.Errorf("line %d: duplicate key %q", i+2, key)
		}

		var values []string
		if len(fields) > 2 {
			values = slices.Sorted(slices.Values(fields[2:]))
		}
		out.Keys = append(out.Keys, key)
		out.Groups[key] = Group{Descriptor: fields[1], Values: values}
	}
	return out, nil
}
