package defrag

import (
	"github.com/vkngwrapper/chunkmem/memutils/metadata"
	"golang.org/x/exp/slices"
)

// Operation is a proposed relocation of one allocation into a free range of a chunk
type Operation struct {
	// SourceID identifies the allocation to be moved
	SourceID uint64
	// SourceSize is the size in bytes of the allocation to be moved
	SourceSize int
	// TargetChunkID identifies the chunk the allocation will be moved into
	TargetChunkID uint64
	// Target is the free range the allocation will be moved to the front of
	Target metadata.FreeListEntry
	// Weight orders operations: lower weights are performed first
	Weight float32
}

func compareOperations(left, right Operation) int {
	switch {
	case left.Weight < right.Weight:
		return -1
	case left.Weight > right.Weight:
		return 1
	case left.SourceID < right.SourceID:
		return -1
	case left.SourceID > right.SourceID:
		return 1
	default:
		return 0
	}
}

// OperationSet holds proposed operations ordered by ascending weight. Operations of equal
// weight are ordered by SourceID, so the order is reproducible for a given allocator state.
// An OperationSet is not safe for concurrent use.
type OperationSet struct {
	operations []Operation
}

// Insert adds an operation in weight order. Operations comparing equal keep insertion order.
func (s *OperationSet) Insert(operation Operation) {
	index, _ := slices.BinarySearchFunc(s.operations, operation, compareOperations)
	for index < len(s.operations) && compareOperations(s.operations[index], operation) == 0 {
		index++
	}

	s.operations = slices.Insert(s.operations, index, operation)
}

// Len is the number of pending operations
func (s *OperationSet) Len() int {
	return len(s.operations)
}

// Front returns the lightest pending operation without removing it
func (s *OperationSet) Front() (Operation, bool) {
	if len(s.operations) == 0 {
		return Operation{}, false
	}

	return s.operations[0], true
}

// PopFront removes and returns the lightest pending operation
func (s *OperationSet) PopFront() (Operation, bool) {
	operation, ok := s.Front()
	if ok {
		s.operations = slices.Delete(s.operations, 0, 1)
	}

	return operation, ok
}

// RemoveSource drops every operation that would move the allocation sourceID and returns the number dropped
func (s *OperationSet) RemoveSource(sourceID uint64) int {
	before := len(s.operations)
	s.operations = slices.DeleteFunc(s.operations, func(operation Operation) bool {
		return operation.SourceID == sourceID
	})
	return before - len(s.operations)
}

// RemoveTargets drops every operation whose destination chunk matches and returns the number dropped
func (s *OperationSet) RemoveTargets(matches func(chunkID uint64) bool) int {
	before := len(s.operations)
	s.operations = slices.DeleteFunc(s.operations, func(operation Operation) bool {
		return matches(operation.TargetChunkID)
	})
	return before - len(s.operations)
}

// Clear drops every pending operation
func (s *OperationSet) Clear() {
	s.operations = s.operations[:0]
}

// Operations returns a copy of the pending operations in the order they will be performed
func (s *OperationSet) Operations() []Operation {
	return slices.Clone(s.operations)
}
