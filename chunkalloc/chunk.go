package chunkalloc

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/chunkmem/memutils"
	"github.com/vkngwrapper/chunkmem/memutils/metadata"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// chunk is one piece of driver memory, subdivided into live allocations and free ranges. The
// allocations are kept sorted by offset, and together with the free list they cover the chunk
// exactly.
type chunk[D any] struct {
	id     uint64
	memory Memory
	logger *slog.Logger

	freeList    metadata.FreeList
	allocations []*Location[D]
	allocated   int
}

var _ memutils.Validatable = &chunk[struct{}]{}

func (c *chunk[D]) Init(logger *slog.Logger, id uint64, memory Memory) {
	if c.memory != nil {
		panic("attempting to initialize a chunk that is already in use")
	}

	c.id = id
	c.memory = memory
	c.logger = logger
	c.allocations = c.allocations[:0]
	c.allocated = 0
	c.freeList.Init(memory.Size())
}

func (c *chunk[D]) Size() int {
	return c.freeList.Size()
}

func (c *chunk[D]) IsEmpty() bool {
	return len(c.allocations) == 0
}

func (c *chunk[D]) findAllocation(offset int) (int, bool) {
	return slices.BinarySearchFunc(c.allocations, offset, func(location *Location[D], target int) int {
		switch {
		case location.offset < target:
			return -1
		case location.offset > target:
			return 1
		default:
			return 0
		}
	})
}

// indexOf returns the index of location in the allocation list and panics if it is not there
func (c *chunk[D]) indexOf(location *Location[D]) int {
	index, found := c.findAllocation(location.offset)
	if !found || c.allocations[index] != location {
		panic(fmt.Sprintf("%s is not allocated in chunk %d", location, c.id))
	}

	return index
}

// suballocate claims size bytes from the front of the free range at entryIndex for location
func (c *chunk[D]) suballocate(location *Location[D], entryIndex int) {
	offset := c.freeList.Take(entryIndex, location.size)

	location.offset = offset
	location.memory = c.memory
	location.chunk = c

	index, found := c.findAllocation(offset)
	if found {
		panic(fmt.Sprintf("chunk %d already has an allocation at offset %d", c.id, offset))
	}

	c.allocations = slices.Insert(c.allocations, index, location)
	c.allocated += location.size

	memutils.DebugValidate(c)
}

// release returns the range held by the allocation at index to the free list
func (c *chunk[D]) release(index int) *Location[D] {
	location := c.allocations[index]

	c.freeList.Release(location.offset, location.size)
	c.allocations = slices.Delete(c.allocations, index, index+1)
	c.allocated -= location.size
	location.chunk = nil

	memutils.DebugValidate(c)
	return location
}

func (c *chunk[D]) memoryStats() memutils.MemoryStats {
	return memutils.MemoryStats{
		Total:      c.Size(),
		Used:       c.allocated,
		Fragmented: c.freeList.FragmentedFree(),
	}
}

func (c *chunk[D]) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.ChunkCount++
	stats.ChunkBytes += c.Size()

	for _, location := range c.allocations {
		stats.AddAllocation(location.size)
	}

	c.freeList.AddDetailedStatistics(stats)
}

func (c *chunk[D]) Destroy(creator ChunkCreator) error {
	if c.memory == nil {
		panic("attempting to destroy a chunk, but it did not have a backing memory handle")
	}

	var err error
	if !c.IsEmpty() {
		for _, location := range c.allocations {
			c.logUnreleasedMemory(location)
		}

		err = errors.Newf("%d allocations in chunk %d were not freed before the chunk was destroyed", len(c.allocations), c.id)
	}

	destroyErr := creator.DestroyChunk(c.memory)
	if destroyErr != nil {
		destroyErr = errors.Wrapf(destroyErr, "failed to destroy chunk %d", c.id)
		err = errors.CombineErrors(err, destroyErr)
	}

	c.memory = nil
	c.allocations = c.allocations[:0]
	c.allocated = 0
	return err
}

func (c *chunk[D]) logUnreleasedMemory(location *Location[D]) {
	name := location.name
	if name == "" {
		name = "empty"
	}

	c.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
		slog.Uint64("chunk.id", c.id),
		slog.Uint64("id", location.id),
		slog.Int("offset", location.offset),
		slog.Int("size", location.size),
		slog.Any("userData", location.userData),
		slog.String("name", name),
	)
}

// Validate checks that the allocations and free ranges partition the chunk without gaps or
// overlaps, and that the allocated byte count matches the allocations
func (c *chunk[D]) Validate() error {
	if c.memory == nil {
		return errors.New("no valid memory for this chunk")
	}

	err := c.freeList.Validate()
	if err != nil {
		return err
	}

	var allocated int
	offset := 0
	freeIndex := 0
	for _, location := range c.allocations {
		for freeIndex < c.freeList.Len() && c.freeList.Entry(freeIndex).Offset == offset {
			offset = c.freeList.Entry(freeIndex).End()
			freeIndex++
		}

		if location.offset != offset {
			return errors.Newf("chunk %d has allocation %d at offset %d but the previous range ends at %d", c.id, location.id, location.offset, offset)
		}

		if location.chunk != c || location.memory != c.memory {
			return errors.Newf("allocation %d in chunk %d does not point back at its chunk", location.id, c.id)
		}

		offset += location.size
		allocated += location.size
	}

	for freeIndex < c.freeList.Len() && c.freeList.Entry(freeIndex).Offset == offset {
		offset = c.freeList.Entry(freeIndex).End()
		freeIndex++
	}

	if offset != c.Size() || freeIndex != c.freeList.Len() {
		return errors.Newf("allocations and free ranges of chunk %d cover %d bytes of %d", c.id, offset, c.Size())
	}

	if allocated != c.allocated {
		return errors.Newf("chunk %d has %d bytes allocated but its counter says %d", c.id, allocated, c.allocated)
	}

	if allocated+c.freeList.TotalFree() != c.Size() {
		return errors.Newf("chunk %d allocated and free bytes do not sum to its size", c.id)
	}

	return nil
}

func (c *chunk[D]) printDetailedMap(json *jwriter.ObjectState) {
	chunkObj := json.Name(strconv.FormatUint(c.id, 10)).Object()
	defer chunkObj.End()

	stats := c.memoryStats()
	chunkObj.Name("TotalBytes").Int(stats.Total)
	chunkObj.Name("UnusedBytes").Int(stats.Free())
	chunkObj.Name("FragmentedBytes").Int(stats.Fragmented)
	chunkObj.Name("Allocations").Int(len(c.allocations))
	chunkObj.Name("UnusedRanges").Int(c.freeList.Len())

	arrayState := chunkObj.Name("Suballocations").Array()
	defer arrayState.End()

	freeIndex := 0
	printFree := func(entry metadata.FreeListEntry) {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(entry.Offset)
		obj.Name("Type").String("FREE")
		obj.Name("Size").Int(entry.Size)
	}

	for _, location := range c.allocations {
		for freeIndex < c.freeList.Len() && c.freeList.Entry(freeIndex).Offset < location.offset {
			printFree(c.freeList.Entry(freeIndex))
			freeIndex++
		}

		obj := arrayState.Object()
		obj.Name("Offset").Int(location.offset)
		obj.Name("Type").String("ALLOCATION")
		location.printParameters(&obj)
		obj.End()
	}

	for ; freeIndex < c.freeList.Len(); freeIndex++ {
		printFree(c.freeList.Entry(freeIndex))
	}
}
