package chunkalloc

import (
	"sync"
	"sync/atomic"
)

// SafeAllocator serializes calls into a driver's memory allocation entry point. Drivers commonly
// require that allocations are not made from several threads at once, and chunks are created both
// by the goroutines that allocate and by defragmentation workers, so every backend that talks to
// the same device should share one SafeAllocator.
//
// A SafeAllocator is reference counted: NewSafeAllocator returns one with a single reference, and
// each additional owner should call Ref and later Release.
type SafeAllocator struct {
	mutex      sync.Mutex
	references atomic.Int32
}

func NewSafeAllocator() *SafeAllocator {
	allocator := &SafeAllocator{}
	allocator.references.Store(1)
	return allocator
}

// Ref adds a reference and returns the allocator so that it can be handed to a new owner
func (s *SafeAllocator) Ref() *SafeAllocator {
	s.references.Add(1)
	return s
}

// Release drops a reference and returns true when the last one was dropped
func (s *SafeAllocator) Release() bool {
	remaining := s.references.Add(-1)
	if remaining < 0 {
		panic("released a SafeAllocator more times than it was referenced")
	}

	return remaining == 0
}

func (s *SafeAllocator) References() int {
	return int(s.references.Load())
}

// Allocate runs allocate while no other call through this SafeAllocator is running. It is not
// reentrant: allocate must not call Allocate on the same SafeAllocator. Backends take it inside
// CreateChunk, so callers of CreateChunk must not hold it.
func (s *SafeAllocator) Allocate(allocate func() error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return allocate()
}
