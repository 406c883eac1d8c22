package chunkalloc

//go:generate mockgen -source memory.go -destination ./mocks/memory.go -package mock_chunkalloc

import "unsafe"

// Memory is one chunk's worth of driver memory, along with whatever resource is bound across it
type Memory interface {
	// Size is the number of bytes that can be suballocated from this memory
	Size() int
	// MappedData is the host address of the start of the memory, or nil if it is not mapped
	MappedData() unsafe.Pointer
}

// ChunkCreator obtains chunks of memory from the driver. Implementations must serialize their
// calls into the driver's allocation entry point, since chunks are created both from the
// goroutines that allocate and from defragmentation workers.
type ChunkCreator interface {
	// CreateChunk obtains a new chunk of at least size bytes
	CreateChunk(size int) (Memory, error)
	// DestroyChunk releases a chunk obtained from CreateChunk
	DestroyChunk(memory Memory) error
}

// Backend is the set of driver operations an Allocator needs for one kind of resource. Buffer-backed
// and image-backed allocators use different backends.
type Backend[D any] interface {
	ChunkCreator

	// Alignment is the alignment in bytes the driver requires of chunk sizes. It must be a power of two.
	Alignment() int
	// ReleaseData destroys any per-allocation resources held in the location's data. It is called
	// when the location is freed and must tolerate a zero-valued payload.
	ReleaseData(location *Location[D]) error
	// PostMove is called after a location has taken over a new offset and memory so that resources
	// derived from them can be fixed up
	PostMove(location *Location[D]) error
}

// Mover copies the contents of one location into another on the device. It is used by a
// Defragger to relocate allocations.
type Mover[D any] interface {
	// Prepare creates whatever resources target needs before data can be copied into it
	Prepare(target, source *Location[D]) error
	// Copy copies source's contents into target and blocks until the copy is complete. Source's
	// range and data stay alive until Copy returns, even if it is freed meanwhile, so Copy should
	// read what it needs from source and then copy without holding source's lock. A false
	// result with a nil error means the copy was not performed and the relocation should be
	// abandoned.
	Copy(target, source *Location[D]) (bool, error)
}
