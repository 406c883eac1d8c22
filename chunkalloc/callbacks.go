package chunkalloc

// ChunkCallback is called when an allocator obtains a chunk from its backend or gives one back
type ChunkCallback func(
	chunkID uint64,
	memory Memory,
	size int,
	userData any,
)

// ChunkCallbackOptions is an optional set of callbacks executed whenever an allocator creates or
// destroys a chunk. Allocations and frees made through the allocator do not map 1:1 with chunk
// creation, so these are only called when the allocator's footprint changes.
type ChunkCallbackOptions struct {
	Allocate ChunkCallback
	Free     ChunkCallback
	UserData any
}

type chunkCallbacks struct {
	Callbacks *ChunkCallbackOptions
}

func (c *chunkCallbacks) Allocate(chunkID uint64, memory Memory, size int) {
	if c.Callbacks != nil && c.Callbacks.Allocate != nil {
		c.Callbacks.Allocate(chunkID, memory, size, c.Callbacks.UserData)
	}
}

func (c *chunkCallbacks) Free(chunkID uint64, memory Memory, size int) {
	if c.Callbacks != nil && c.Callbacks.Free != nil {
		c.Callbacks.Free(chunkID, memory, size, c.Callbacks.UserData)
	}
}
