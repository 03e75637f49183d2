// Package metrics exposes heap statistics as Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quill-lang/quill/heap"
)

// Collector adapts a heap to the prometheus.Collector interface. Register
// it with a registry owned by the embedding process; the heap itself is
// single-threaded, so scrapes must happen from the mutator thread (for
// example through a snapshotting exporter).
type Collector struct {
	heap *heap.Heap

	nodesInUse    *prometheus.Desc
	nodeTrigger   *prometheus.Desc
	vectorTrigger *prometheus.Desc
	vectorCells   *prometheus.Desc
	vectorFree    *prometheus.Desc
	collections   *prometheus.Desc
	pages         *prometheus.Desc
	finalizerRuns *prometheus.Desc
}

// NewCollector builds a Collector over h.
func NewCollector(h *heap.Heap) *Collector {
	return &Collector{
		heap: h,
		nodesInUse: prometheus.NewDesc(
			"quill_heap_nodes_in_use",
			"Number of nodes currently in use.",
			nil, nil),
		nodeTrigger: prometheus.NewDesc(
			"quill_heap_node_trigger",
			"Node count that triggers the next collection.",
			nil, nil),
		vectorTrigger: prometheus.NewDesc(
			"quill_heap_vector_trigger_cells",
			"Vector heap size in cells that triggers the next collection.",
			nil, nil),
		vectorCells: prometheus.NewDesc(
			"quill_heap_vector_cells_allocated",
			"Allocated vector cells by size class.",
			[]string{"class"}, nil),
		vectorFree: prometheus.NewDesc(
			"quill_heap_vector_cells_free",
			"Unallocated portion of the vector trigger, in cells.",
			nil, nil),
		collections: prometheus.NewDesc(
			"quill_heap_collections_total",
			"Completed collections by level.",
			[]string{"level"}, nil),
		pages: prometheus.NewDesc(
			"quill_heap_pages",
			"Slab pages currently allocated, by node class.",
			[]string{"class"}, nil),
		finalizerRuns: prometheus.NewDesc(
			"quill_heap_finalizer_runs_total",
			"Finalizers invoked since startup.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.nodesInUse
	ch <- c.nodeTrigger
	ch <- c.vectorTrigger
	ch <- c.vectorCells
	ch <- c.vectorFree
	ch <- c.collections
	ch <- c.pages
	ch <- c.finalizerRuns
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var st heap.Stats
	c.heap.ReadStats(&st)

	ch <- prometheus.MustNewConstMetric(c.nodesInUse, prometheus.GaugeValue,
		float64(st.NodesInUse))
	ch <- prometheus.MustNewConstMetric(c.nodeTrigger, prometheus.GaugeValue,
		float64(st.NSize))
	ch <- prometheus.MustNewConstMetric(c.vectorTrigger, prometheus.GaugeValue,
		float64(st.VSize))
	ch <- prometheus.MustNewConstMetric(c.vectorCells, prometheus.GaugeValue,
		float64(st.SmallVallocSize), "small")
	ch <- prometheus.MustNewConstMetric(c.vectorCells, prometheus.GaugeValue,
		float64(st.LargeVallocSize), "large")
	ch <- prometheus.MustNewConstMetric(c.vectorFree, prometheus.GaugeValue,
		float64(st.VHeapFree))
	for level, n := range st.CollectionsByLevel {
		ch <- prometheus.MustNewConstMetric(c.collections, prometheus.CounterValue,
			float64(n), strconv.Itoa(level))
	}
	for class, n := range st.PageCounts {
		ch <- prometheus.MustNewConstMetric(c.pages, prometheus.GaugeValue,
			float64(n), strconv.Itoa(class))
	}
	ch <- prometheus.MustNewConstMetric(c.finalizerRuns, prometheus.CounterValue,
		float64(st.FinalizerRuns))
}
