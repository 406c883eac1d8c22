package metadata

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/chunkmem/memutils"
	"golang.org/x/exp/slices"
)

// FreeListEntry describes a range of a chunk that is available for new allocations
type FreeListEntry struct {
	Offset int
	Size   int
}

// End is the offset one past the last byte of the range
func (e FreeListEntry) End() int {
	return e.Offset + e.Size
}

// Contains returns true if other lies entirely inside this range
func (e FreeListEntry) Contains(other FreeListEntry) bool {
	return other.Offset >= e.Offset && other.End() <= e.End()
}

func (e FreeListEntry) String() string {
	return fmt.Sprintf("{%d, %d}", e.Offset, e.Size)
}

// FreeList tracks the unused ranges of a single chunk. Entries are kept sorted by offset and
// maximally coalesced: no two entries are ever adjacent. The largest entry is cached after
// every change so that callers can decide in constant time whether a chunk could satisfy
// a request.
type FreeList struct {
	size     int
	entries  []FreeListEntry
	maxIndex int
}

var _ memutils.Validatable = &FreeList{}

// Init resets the free list to a single entry spanning size bytes
func (l *FreeList) Init(size int) {
	if size <= 0 {
		panic(fmt.Sprintf("attempted to initialize a free list with invalid size %d", size))
	}

	l.size = size
	l.entries = append(l.entries[:0], FreeListEntry{Offset: 0, Size: size})
	l.maxIndex = 0
}

// Size is the capacity of the chunk this list describes
func (l *FreeList) Size() int {
	return l.size
}

// Len is the number of free ranges
func (l *FreeList) Len() int {
	return len(l.entries)
}

// Entry returns the free range at index
func (l *FreeList) Entry(index int) FreeListEntry {
	return l.entries[index]
}

// MaxFreeRange returns the largest free range. When the list is empty, the returned entry has
// a size of 0.
func (l *FreeList) MaxFreeRange() FreeListEntry {
	if l.maxIndex < 0 {
		return FreeListEntry{}
	}

	return l.entries[l.maxIndex]
}

// IsEmpty returns true when the whole chunk is free
func (l *FreeList) IsEmpty() bool {
	return len(l.entries) == 1 && l.entries[0].Size == l.size
}

// TotalFree is the sum of all free range sizes
func (l *FreeList) TotalFree() int {
	var total int
	for _, entry := range l.entries {
		total += entry.Size
	}
	return total
}

// FragmentedFree is the sum of all free range sizes except the last one
func (l *FreeList) FragmentedFree() int {
	if len(l.entries) == 0 {
		return 0
	}

	var total int
	for _, entry := range l.entries[:len(l.entries)-1] {
		total += entry.Size
	}
	return total
}

func (l *FreeList) search(offset int) (int, bool) {
	return slices.BinarySearchFunc(l.entries, offset, func(entry FreeListEntry, target int) int {
		switch {
		case entry.Offset < target:
			return -1
		case entry.Offset > target:
			return 1
		default:
			return 0
		}
	})
}

// Find returns the index of the free range matching entry exactly, or -1 if no free range
// has both the same offset and the same size
func (l *FreeList) Find(entry FreeListEntry) int {
	index, found := l.search(entry.Offset)
	if !found || l.entries[index].Size != entry.Size {
		return -1
	}

	return index
}

// Covers returns true if some free range contains all of entry
func (l *FreeList) Covers(entry FreeListEntry) bool {
	index, found := l.search(entry.Offset)
	if found {
		return l.entries[index].Contains(entry)
	}

	return index > 0 && l.entries[index-1].Contains(entry)
}

// Take claims size bytes from the front of the free range at index and returns the offset
// of the claimed bytes. A fully-consumed range is removed from the list.
func (l *FreeList) Take(index int, size int) int {
	if index < 0 || index >= len(l.entries) {
		panic(fmt.Sprintf("attempted to take from free range %d of a list with %d ranges", index, len(l.entries)))
	}

	entry := l.entries[index]
	if size <= 0 || size > entry.Size {
		panic(fmt.Sprintf("attempted to take %d bytes from free range %s", size, entry))
	}

	if size == entry.Size {
		l.entries = slices.Delete(l.entries, index, index+1)
	} else {
		l.entries[index] = FreeListEntry{Offset: entry.Offset + size, Size: entry.Size - size}
	}

	l.updateMaxFreeRange()
	return entry.Offset
}

// Release returns a range to the free list, merging it with the preceding range and then the
// following range when they are contiguous with it. Releasing a range that overlaps a free
// range or lies outside the chunk panics.
func (l *FreeList) Release(offset int, size int) {
	if size <= 0 || offset < 0 || offset+size > l.size {
		panic(fmt.Sprintf("attempted to release range {%d, %d} in a chunk of size %d", offset, size, l.size))
	}

	index, found := l.search(offset)
	if found {
		panic(fmt.Sprintf("attempted to release range {%d, %d} but free range %s starts at the same offset", offset, size, l.entries[index]))
	}

	end := offset + size
	if index > 0 && l.entries[index-1].End() > offset {
		panic(fmt.Sprintf("attempted to release range {%d, %d} which overlaps free range %s", offset, size, l.entries[index-1]))
	}
	if index < len(l.entries) && end > l.entries[index].Offset {
		panic(fmt.Sprintf("attempted to release range {%d, %d} which overlaps free range %s", offset, size, l.entries[index]))
	}

	mergePrev := index > 0 && l.entries[index-1].End() == offset
	mergeNext := index < len(l.entries) && l.entries[index].Offset == end

	switch {
	case mergePrev && mergeNext:
		l.entries[index-1].Size += size + l.entries[index].Size
		l.entries = slices.Delete(l.entries, index, index+1)
	case mergePrev:
		l.entries[index-1].Size += size
	case mergeNext:
		l.entries[index] = FreeListEntry{Offset: offset, Size: size + l.entries[index].Size}
	default:
		l.entries = slices.Insert(l.entries, index, FreeListEntry{Offset: offset, Size: size})
	}

	l.updateMaxFreeRange()
}

func (l *FreeList) updateMaxFreeRange() {
	l.maxIndex = -1
	maxSize := 0
	for index, entry := range l.entries {
		if entry.Size > maxSize {
			maxSize = entry.Size
			l.maxIndex = index
		}
	}
}

// AddDetailedStatistics adds every free range of this list to stats as an unused range
func (l *FreeList) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	for _, entry := range l.entries {
		stats.AddUnusedRange(entry.Size)
	}
}

// Validate verifies that the free ranges are in bounds, sorted, non-overlapping and coalesced,
// and that the cached largest range is correct
func (l *FreeList) Validate() error {
	expectedMax := -1
	maxSize := 0

	for index, entry := range l.entries {
		if entry.Size <= 0 {
			return errors.Errorf("free range %d at offset %d has invalid size %d", index, entry.Offset, entry.Size)
		}

		if entry.Offset < 0 || entry.End() > l.size {
			return errors.Errorf("free range %s lies outside a chunk of size %d", entry, l.size)
		}

		if index > 0 {
			prev := l.entries[index-1]
			if prev.End() > entry.Offset {
				return errors.Errorf("free range %s overlaps or is out of order with free range %s", entry, prev)
			}

			if prev.End() == entry.Offset {
				return errors.Errorf("free ranges %s and %s are adjacent but were not merged", prev, entry)
			}
		}

		if entry.Size > maxSize {
			maxSize = entry.Size
			expectedMax = index
		}
	}

	if expectedMax != l.maxIndex {
		return errors.Errorf("cached largest free range is %d but should be %d", l.maxIndex, expectedMax)
	}

	return nil
}
