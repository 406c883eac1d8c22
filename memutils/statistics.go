package memutils

import "math"

// MemoryStats is the coarse summary an allocator reports for observability: the bytes held from the
// driver, the bytes handed out to live allocations, and the free bytes that sit in holes behind
// the last free range of each chunk.
type MemoryStats struct {
	Total      int `json:"total"`
	Used       int `json:"used"`
	Fragmented int `json:"fragmented"`
}

// Free is the number of bytes held from the driver that no allocation is using
func (s MemoryStats) Free() int {
	return s.Total - s.Used
}

func (s *MemoryStats) Add(other MemoryStats) {
	s.Total += other.Total
	s.Used += other.Used
	s.Fragmented += other.Fragmented
}

// Statistics counts chunks and the allocations placed in them
type Statistics struct {
	ChunkCount      int
	AllocationCount int
	ChunkBytes      int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	*s = Statistics{}
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.ChunkCount += other.ChunkCount
	s.ChunkBytes += other.ChunkBytes
	s.AllocationCount += other.AllocationCount
	s.AllocationBytes += other.AllocationBytes
}

// DetailedStatistics extends Statistics with the size extremes of allocations and free ranges.
// Call Clear before accumulating into it: the minimums start at math.MaxInt.
type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	AllocationSizeMin  int
	AllocationSizeMax  int
	UnusedRangeSizeMin int
	UnusedRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	*s = DetailedStatistics{
		AllocationSizeMin:  math.MaxInt,
		UnusedRangeSizeMin: math.MaxInt,
	}
}

func widen(min, max *int, low, high int) {
	if low < *min {
		*min = low
	}
	if high > *max {
		*max = high
	}
}

// AddUnusedRange records one free range of the given size
func (s *DetailedStatistics) AddUnusedRange(size int) {
	s.UnusedRangeCount++
	widen(&s.UnusedRangeSizeMin, &s.UnusedRangeSizeMax, size, size)
}

// AddAllocation records one live allocation of the given size
func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationCount++
	s.AllocationBytes += size
	widen(&s.AllocationSizeMin, &s.AllocationSizeMax, size, size)
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.AddStatistics(&other.Statistics)
	s.UnusedRangeCount += other.UnusedRangeCount
	widen(&s.AllocationSizeMin, &s.AllocationSizeMax, other.AllocationSizeMin, other.AllocationSizeMax)
	widen(&s.UnusedRangeSizeMin, &s.UnusedRangeSizeMax, other.UnusedRangeSizeMin, other.UnusedRangeSizeMax)
}
