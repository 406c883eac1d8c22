package chunkalloc

import (
	"sync"

	"github.com/dolthub/swiss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vkngwrapper/chunkmem/memutils"
	"github.com/vkngwrapper/chunkmem/memutils/defrag"
)

const (
	descMemoryTotal = iota
	descMemoryUsed
	descMemoryFragmented
	descChunkCount
	descDefragCycles
	descDefragAllocationsMoved
	descDefragBytesMoved
	descDefragOperationsDiscarded
)

var (
	descriptors = []*prometheus.Desc{
		descMemoryTotal: prometheus.NewDesc(
			"chunkmem_memory_total_bytes",
			"Bytes held in chunks obtained from the driver.",
			[]string{"allocator"},
			nil,
		),
		descMemoryUsed: prometheus.NewDesc(
			"chunkmem_memory_used_bytes",
			"Bytes handed out to live allocations.",
			[]string{"allocator"},
			nil,
		),
		descMemoryFragmented: prometheus.NewDesc(
			"chunkmem_memory_fragmented_bytes",
			"Free bytes outside the last free range of each chunk.",
			[]string{"allocator"},
			nil,
		),
		descChunkCount: prometheus.NewDesc(
			"chunkmem_chunk_count",
			"Number of chunks held by an allocator.",
			[]string{"allocator"},
			nil,
		),
		descDefragCycles: prometheus.NewDesc(
			"chunkmem_defrag_cycles_total",
			"Number of defragmentation cycles run.",
			[]string{"allocator"},
			nil,
		),
		descDefragAllocationsMoved: prometheus.NewDesc(
			"chunkmem_defrag_allocations_moved_total",
			"Number of allocations relocated by defragmentation.",
			[]string{"allocator"},
			nil,
		),
		descDefragBytesMoved: prometheus.NewDesc(
			"chunkmem_defrag_bytes_moved_total",
			"Number of bytes relocated by defragmentation.",
			[]string{"allocator"},
			nil,
		),
		descDefragOperationsDiscarded: prometheus.NewDesc(
			"chunkmem_defrag_operations_discarded_total",
			"Number of proposed relocations that were examined but not performed.",
			[]string{"allocator"},
			nil,
		),
	}
)

// StatsSource is anything that can report its memory usage. Allocator and DedicatedAllocator
// both qualify.
type StatsSource interface {
	CollectMemoryStats() memutils.MemoryStats
	ChunkCount() int
}

// DefragStatsSource is anything that reports defragmentation totals, such as a Defragger
type DefragStatsSource interface {
	Stats() defrag.Stats
}

// StatsCollector is a prometheus.Collector that reports the memory usage of named allocators and
// the progress of their defraggers
type StatsCollector struct {
	lock       sync.Mutex
	allocators *swiss.Map[string, StatsSource]
	defraggers *swiss.Map[string, DefragStatsSource]
}

var _ prometheus.Collector = &StatsCollector{}

func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		allocators: swiss.NewMap[string, StatsSource](4),
		defraggers: swiss.NewMap[string, DefragStatsSource](4),
	}
}

// AddAllocator reports source under the allocator label name, replacing any source already
// registered with that name
func (c *StatsCollector) AddAllocator(name string, source StatsSource) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.allocators.Put(name, source)
}

// AddDefragger reports source's defragmentation totals under the allocator label name
func (c *StatsCollector) AddDefragger(name string, source DefragStatsSource) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.defraggers.Put(name, source)
}

// Remove stops reporting everything registered under name
func (c *StatsCollector) Remove(name string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.allocators.Delete(name)
	c.defraggers.Delete(name)
}

func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range descriptors {
		ch <- desc
	}
}

func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.allocators.Iter(func(name string, source StatsSource) bool {
		stats := source.CollectMemoryStats()

		ch <- prometheus.MustNewConstMetric(descriptors[descMemoryTotal], prometheus.GaugeValue, float64(stats.Total), name)
		ch <- prometheus.MustNewConstMetric(descriptors[descMemoryUsed], prometheus.GaugeValue, float64(stats.Used), name)
		ch <- prometheus.MustNewConstMetric(descriptors[descMemoryFragmented], prometheus.GaugeValue, float64(stats.Fragmented), name)
		ch <- prometheus.MustNewConstMetric(descriptors[descChunkCount], prometheus.GaugeValue, float64(source.ChunkCount()), name)
		return false
	})

	c.defraggers.Iter(func(name string, source DefragStatsSource) bool {
		stats := source.Stats()

		ch <- prometheus.MustNewConstMetric(descriptors[descDefragCycles], prometheus.CounterValue, float64(stats.Cycles), name)
		ch <- prometheus.MustNewConstMetric(descriptors[descDefragAllocationsMoved], prometheus.CounterValue, float64(stats.AllocationsMoved), name)
		ch <- prometheus.MustNewConstMetric(descriptors[descDefragBytesMoved], prometheus.CounterValue, float64(stats.BytesMoved), name)
		ch <- prometheus.MustNewConstMetric(descriptors[descDefragOperationsDiscarded], prometheus.CounterValue, float64(stats.OperationsDiscarded), name)
		return false
	})
}
