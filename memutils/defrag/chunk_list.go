package defrag

//go:generate mockgen -source chunk_list.go -destination ./mocks/chunk_list.go -package mock_defrag

import "github.com/vkngwrapper/chunkmem/memutils/metadata"

// Allocation is a read-only view of one live allocation as seen by a scan
type Allocation struct {
	ID     uint64
	Offset int
	Size   int
	Static bool
}

// End is the offset one past the last byte of the allocation
func (a Allocation) End() int {
	return a.Offset + a.Size
}

// ChunkList is the memory a Scanner searches for relocations. Chunks are ordered oldest first,
// and the allocations of each chunk are ordered by offset. Implementations must not change
// while a scan is running.
type ChunkList interface {
	metadata.FreeSpaceList
	ChunkID(chunkIndex int) uint64
	AllocationCount(chunkIndex int) int
	Allocation(chunkIndex int, allocationIndex int) Allocation
}
