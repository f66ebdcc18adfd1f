package sortjoin

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/sortjoin/extsort"
	"github.com/hupe1980/sortjoin/join"
)

// Stream names passed to MetricsCollector and Logger.
const (
	StreamProducts = "products"
	StreamPrices   = "prices"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; package
// metrics/prometheus provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordSort is called once per input after the join finished or failed.
	// stream is StreamProducts or StreamPrices, duration covers the batch phase.
	RecordSort(stream string, stats extsort.Stats, duration time.Duration, err error)

	// RecordSpill is called after each batch written to temporary storage.
	RecordSpill(stream string, records, bytes int64, duration time.Duration)

	// RecordJoin is called after the merge step.
	RecordJoin(stats join.Stats, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSort(string, extsort.Stats, time.Duration, error) {}
func (NoopMetricsCollector) RecordSpill(string, int64, int64, time.Duration)        {}
func (NoopMetricsCollector) RecordJoin(join.Stats, time.Duration, error)            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SortCount         atomic.Int64
	SortErrors        atomic.Int64
	SortTotalNanos    atomic.Int64
	RecordsSorted     atomic.Int64
	DuplicatesRemoved atomic.Int64
	MergePasses       atomic.Int64
	SpillCount        atomic.Int64
	SpilledRecords    atomic.Int64
	SpilledBytes      atomic.Int64
	JoinCount         atomic.Int64
	JoinErrors        atomic.Int64
	JoinTotalNanos    atomic.Int64
	Groups            atomic.Int64
	FactsAttached     atomic.Int64
	OrphanFacts       atomic.Int64
}

// RecordSort implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSort(_ string, stats extsort.Stats, duration time.Duration, err error) {
	b.SortCount.Add(1)
	b.SortTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SortErrors.Add(1)
		return
	}
	b.RecordsSorted.Add(stats.InputRecords)
	b.DuplicatesRemoved.Add(stats.DuplicatesRemoved)
	b.MergePasses.Add(int64(stats.MergePasses))
}

// RecordSpill implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSpill(_ string, records, bytes int64, _ time.Duration) {
	b.SpillCount.Add(1)
	b.SpilledRecords.Add(records)
	b.SpilledBytes.Add(bytes)
}

// RecordJoin implements MetricsCollector.
func (b *BasicMetricsCollector) RecordJoin(stats join.Stats, duration time.Duration, err error) {
	b.JoinCount.Add(1)
	b.JoinTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.JoinErrors.Add(1)
		return
	}
	b.Groups.Add(stats.Entities)
	b.FactsAttached.Add(stats.Attached)
	b.OrphanFacts.Add(stats.Orphans)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SortCount:         b.SortCount.Load(),
		SortErrors:        b.SortErrors.Load(),
		SortAvgNanos:      avg(b.SortTotalNanos.Load(), b.SortCount.Load()),
		RecordsSorted:     b.RecordsSorted.Load(),
		DuplicatesRemoved: b.DuplicatesRemoved.Load(),
		MergePasses:       b.MergePasses.Load(),
		SpillCount:        b.SpillCount.Load(),
		SpilledRecords:    b.SpilledRecords.Load(),
		SpilledBytes:      b.SpilledBytes.Load(),
		JoinCount:         b.JoinCount.Load(),
		JoinErrors:        b.JoinErrors.Load(),
		JoinAvgNanos:      avg(b.JoinTotalNanos.Load(), b.JoinCount.Load()),
		Groups:            b.Groups.Load(),
		FactsAttached:     b.FactsAttached.Load(),
		OrphanFacts:       b.OrphanFacts.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SortCount         int64
	SortErrors        int64
	SortAvgNanos      int64
	RecordsSorted     int64
	DuplicatesRemoved int64
	MergePasses       int64
	SpillCount        int64
	SpilledRecords    int64
	SpilledBytes      int64
	JoinCount         int64
	JoinErrors        int64
	JoinAvgNanos      int64
	Groups            int64
	FactsAttached     int64
	OrphanFacts       int64
}
