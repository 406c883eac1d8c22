package defrag

import (
	"github.com/vkngwrapper/chunkmem/memutils/metadata"
)

// Scanner proposes relocations for the allocations in a ChunkList. Chunks are visited newest
// first and allocations from the end of each chunk backwards, so that the data most likely to
// empty out a chunk is considered first. An allocation is only ever proposed to move into its
// own chunk or an older one, and within its own chunk only to a lower offset.
type Scanner struct {
	// Strategy chooses the destination range for each allocation
	Strategy metadata.FitStrategy
	// Penalties weights each proposed relocation
	Penalties Penalties
	// Chunks is the memory being scanned
	Chunks ChunkList
}

// FindOperations adds a relocation for every movable allocation to ops and returns the number
// of operations added. If interrupted is not nil, it is checked before each allocation is
// examined and the scan ends early when it returns true.
func (s *Scanner) FindOperations(ops *OperationSet, interrupted func() bool) int {
	chunkCount := s.Chunks.ChunkCount()
	var added int

	for chunkIndex := chunkCount - 1; chunkIndex >= 0; chunkIndex-- {
		allocCount := s.Chunks.AllocationCount(chunkIndex)

		for allocIndex := allocCount - 1; allocIndex >= 0; allocIndex-- {
			if interrupted != nil && interrupted() {
				return added
			}

			source := s.Chunks.Allocation(chunkIndex, allocIndex)
			if source.Static {
				continue
			}

			targetChunk, targetEntry, found := s.Strategy.FindRange(s.Chunks, chunkIndex+1, source.Size)
			if !found {
				continue
			}

			target := s.Chunks.ChunkFreeList(targetChunk).Entry(targetEntry)
			if targetChunk == chunkIndex && target.Offset >= source.Offset {
				continue
			}

			candidate := MoveCandidate{
				Size:                 source.Size,
				Target:               target,
				SameChunk:            targetChunk == chunkIndex,
				SourceFlanked:        s.isFlanked(chunkIndex, allocIndex, allocCount, source),
				SourceLastAllocation: allocIndex == allocCount-1,
				SourceLastChunk:      chunkIndex == chunkCount-1,
			}

			ops.Insert(Operation{
				SourceID:      source.ID,
				SourceSize:    source.Size,
				TargetChunkID: s.Chunks.ChunkID(targetChunk),
				Target:        target,
				Weight:        s.Penalties.Weight(candidate),
			})
			added++
		}
	}

	return added
}

func (s *Scanner) isFlanked(chunkIndex, allocIndex, allocCount int, source Allocation) bool {
	if allocIndex == 0 || allocIndex == allocCount-1 {
		return false
	}

	prev := s.Chunks.Allocation(chunkIndex, allocIndex-1)
	next := s.Chunks.Allocation(chunkIndex, allocIndex+1)

	return prev.Offset+prev.Size == source.Offset && source.Offset+source.Size == next.Offset
}
