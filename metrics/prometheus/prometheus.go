// Package prometheus exports join metrics to Prometheus.
//
// The Collector owns its registry, so several collectors can coexist in one
// process. Serve Registry() over HTTP with promhttp, or write a snapshot for
// the node exporter textfile collector with WriteTextfile.
package prometheus

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/sortjoin"
	"github.com/hupe1980/sortjoin/extsort"
	"github.com/hupe1980/sortjoin/join"
)

var _ sortjoin.MetricsCollector = (*Collector)(nil)

// Collector implements sortjoin.MetricsCollector with Prometheus metrics.
type Collector struct {
	registry *prom.Registry

	sortDuration  *prom.HistogramVec
	records       *prom.CounterVec
	duplicates    *prom.CounterVec
	mergePasses   *prom.CounterVec
	spills        *prom.CounterVec
	spilledBytes  *prom.CounterVec
	spillDuration *prom.HistogramVec

	joinDuration *prom.HistogramVec
	groups       prom.Counter
	emptyGroups  prom.Counter
	attached     prom.Counter
	orphans      prom.Counter
}

// New creates a Collector whose metric names start with namespace.
// An empty namespace defaults to "sortjoin".
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = "sortjoin"
	}

	c := &Collector{
		registry: prom.NewRegistry(),
		sortDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "sort_duration_seconds",
			Help:      "Duration of the batch phase of a sort",
			Buckets:   prom.DefBuckets,
		}, []string{"stream", "status"}),
		records: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sorted_records_total",
			Help:      "Records read by sorts, header lines excluded",
		}, []string{"stream"}),
		duplicates: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_removed_total",
			Help:      "Exact duplicate lines removed by sorts",
		}, []string{"stream"}),
		mergePasses: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "merge_passes_total",
			Help:      "Intermediate merge passes",
		}, []string{"stream"}),
		spills: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "spilled_batches_total",
			Help:      "Batches written to temporary storage",
		}, []string{"stream"}),
		spilledBytes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "spilled_bytes_total",
			Help:      "Bytes written to temporary storage by the batch phase",
		}, []string{"stream"}),
		spillDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "spill_duration_seconds",
			Help:      "Time to sort and write one batch",
			Buckets:   prom.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stream"}),
		joinDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "join_duration_seconds",
			Help:      "Duration of the merge step",
			Buckets:   prom.DefBuckets,
		}, []string{"status"}),
		groups: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "groups_total",
			Help:      "Groups written, one per product",
		}),
		emptyGroups: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "empty_groups_total",
			Help:      "Groups written without any price",
		}),
		attached: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "attached_facts_total",
			Help:      "Prices attached to a product",
		}),
		orphans: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_facts_total",
			Help:      "Prices dropped because no product matched",
		}),
	}

	c.registry.MustRegister(
		c.sortDuration,
		c.records,
		c.duplicates,
		c.mergePasses,
		c.spills,
		c.spilledBytes,
		c.spillDuration,
		c.joinDuration,
		c.groups,
		c.emptyGroups,
		c.attached,
		c.orphans,
	)
	return c
}

// Registry returns the registry holding all metrics of c.
func (c *Collector) Registry() *prom.Registry { return c.registry }

// WriteTextfile writes the current metrics in text format to path,
// atomically replacing an existing file.
func (c *Collector) WriteTextfile(path string) error {
	return prom.WriteToTextfile(path, c.registry)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordSort implements sortjoin.MetricsCollector.
func (c *Collector) RecordSort(stream string, stats extsort.Stats, d time.Duration, err error) {
	c.sortDuration.WithLabelValues(stream, status(err)).Observe(d.Seconds())
	c.records.WithLabelValues(stream).Add(float64(stats.InputRecords))
	c.duplicates.WithLabelValues(stream).Add(float64(stats.DuplicatesRemoved))
	c.mergePasses.WithLabelValues(stream).Add(float64(stats.MergePasses))
}

// RecordSpill implements sortjoin.MetricsCollector.
func (c *Collector) RecordSpill(stream string, _ int64, bytes int64, d time.Duration) {
	c.spills.WithLabelValues(stream).Inc()
	c.spilledBytes.WithLabelValues(stream).Add(float64(bytes))
	c.spillDuration.WithLabelValues(stream).Observe(d.Seconds())
}

// RecordJoin implements sortjoin.MetricsCollector.
func (c *Collector) RecordJoin(stats join.Stats, d time.Duration, err error) {
	c.joinDuration.WithLabelValues(status(err)).Observe(d.Seconds())
	c.groups.Add(float64(stats.Entities))
	c.emptyGroups.Add(float64(stats.EmptyGroups))
	c.attached.Add(float64(stats.Attached))
	c.orphans.Add(float64(stats.Orphans))
}
