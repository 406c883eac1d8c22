package chunkalloc

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/hashicorp/go-multierror"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/chunkmem/chunkalloc/internal/utils"
	"github.com/vkngwrapper/chunkmem/memutils"
	"github.com/vkngwrapper/chunkmem/memutils/defrag"
	"github.com/vkngwrapper/chunkmem/memutils/metadata"
	"golang.org/x/exp/slog"
)

// allocatorListener is notified of changes that void pending relocations. Listeners are called
// with the allocator's lock held and must not call back into the allocator.
type allocatorListener interface {
	locationFreed(locationID uint64)
	chunkRetired(chunkID uint64)
}

// Allocator suballocates Locations out of large chunks obtained from a Backend. Chunks are created
// on demand when no existing chunk has a free range large enough for a request, and retired from
// the end of the chunk list once the last two chunks are both empty, so that one spare chunk is
// kept around.
//
// All methods are safe to call from multiple goroutines unless the allocator was created with
// AllocatorCreateExternallySynchronized.
type Allocator[D any] struct {
	logger    *slog.Logger
	backend   Backend[D]
	strategy  metadata.FitStrategy
	chunkSize int
	alignment uint
	callbacks chunkCallbacks

	mutex          utils.OptionalMutex
	chunks         []*chunk[D]
	chunksByMemory *swiss.Map[Memory, *chunk[D]]
	chunksByID     *swiss.Map[uint64, *chunk[D]]
	locations      *swiss.Map[uint64, *Location[D]]
	nextChunkID    uint64
	nextLocationID uint64
	listeners      []allocatorListener
	destroyed      bool

	chunkPool sync.Pool
}

// Allocate suballocates size bytes, rounded up to the allocator's alignment. The returned Location
// may be relocated by a Defragger.
func (a *Allocator[D]) Allocate(size int) (*Location[D], error) {
	return a.allocate(size, false)
}

// AllocateStatic suballocates size bytes, rounded up to the allocator's alignment. The returned
// Location will never be relocated by a Defragger.
func (a *Allocator[D]) AllocateStatic(size int) (*Location[D], error) {
	return a.allocate(size, true)
}

func (a *Allocator[D]) allocate(size int, static bool) (*Location[D], error) {
	if size <= 0 {
		return nil, errors.Wrapf(memutils.InvalidSizeError, "requested %d bytes", size)
	}

	size = memutils.AlignUp(size, a.alignment)

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.destroyed {
		return nil, memutils.ClosedError
	}

	chunkIndex, entryIndex, found := a.strategy.FindRange(a.freeSpace(), len(a.chunks), size)
	if !found {
		_, err := a.createChunk(size)
		if err != nil {
			return nil, err
		}

		chunkIndex = len(a.chunks) - 1
		entryIndex = 0
	}

	location := a.newLocation(size, static)
	a.chunks[chunkIndex].suballocate(location, entryIndex)

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocated location",
		slog.Uint64("id", location.id),
		slog.Uint64("chunk.id", a.chunks[chunkIndex].id),
		slog.Int("offset", location.offset),
		slog.Int("size", size),
		slog.Bool("static", static),
	)

	return location, nil
}

func (a *Allocator[D]) newLocation(size int, static bool) *Location[D] {
	location := &Location[D]{}
	location.init(a.nextLocationID, size, static)
	a.nextLocationID++
	a.locations.Put(location.id, location)

	return location
}

func (a *Allocator[D]) createChunk(size int) (*chunk[D], error) {
	memutils.DebugCheckPow2(a.backend.Alignment(), "backend alignment")
	chunkSize := memutils.AlignUp(memutils.Max(a.chunkSize, size), uint(a.backend.Alignment()))

	memory, err := a.backend.CreateChunk(chunkSize)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create a chunk of %d bytes", chunkSize)
	}

	if memory.Size() < size {
		destroyErr := a.backend.DestroyChunk(memory)
		return nil, errors.CombineErrors(
			errors.Newf("backend created a chunk of %d bytes, but %d bytes were requested", memory.Size(), size),
			destroyErr,
		)
	}

	c := a.chunkPool.Get().(*chunk[D])
	c.Init(a.logger, a.nextChunkID, memory)
	a.nextChunkID++

	a.chunks = append(a.chunks, c)
	a.chunksByMemory.Put(memory, c)
	a.chunksByID.Put(c.id, c)

	a.callbacks.Allocate(c.id, memory, c.Size())
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Created chunk",
		slog.Uint64("chunk.id", c.id),
		slog.Int("size", c.Size()),
		slog.Int("chunks", len(a.chunks)),
	)

	return c, nil
}

func (a *Allocator[D]) destroyChunk(c *chunk[D]) error {
	a.chunksByMemory.Delete(c.memory)
	a.chunksByID.Delete(c.id)

	a.callbacks.Free(c.id, c.memory, c.Size())
	for _, listener := range a.listeners {
		listener.chunkRetired(c.id)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Destroying chunk",
		slog.Uint64("chunk.id", c.id),
		slog.Int("size", c.Size()),
	)

	err := c.Destroy(a.backend)
	a.chunkPool.Put(c)
	return err
}

// retireEmptyChunks destroys chunks from the end of the chunk list while the last two are both
// empty, which leaves a single empty chunk in reserve
func (a *Allocator[D]) retireEmptyChunks() error {
	var err error

	for len(a.chunks) >= 2 && a.chunks[len(a.chunks)-1].IsEmpty() && a.chunks[len(a.chunks)-2].IsEmpty() {
		last := a.chunks[len(a.chunks)-1]
		a.chunks[len(a.chunks)-1] = nil
		a.chunks = a.chunks[:len(a.chunks)-1]

		destroyErr := a.destroyChunk(last)
		if destroyErr != nil {
			err = multierror.Append(err, destroyErr)
		}
	}

	return err
}

func (a *Allocator[D]) chunkForLocation(location *Location[D]) *chunk[D] {
	if location == nil {
		panic("attempted to use a nil location")
	}

	c, ok := a.chunksByMemory.Get(location.memory)
	if !ok {
		panic(fmt.Sprintf("%s does not belong to any chunk in this allocator", location))
	}

	return c
}

// Free releases the location's range and any resources held in its data. The location must not be
// used after this call. If the last two chunks are empty afterward, the last one is destroyed.
func (a *Allocator[D]) Free(location *Location[D]) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.free(location)
}

func (a *Allocator[D]) free(location *Location[D]) error {
	if location.relocating {
		return a.orphan(location)
	}

	return a.release(location)
}

// orphan forgets a location whose data a Defragger is still copying. Its range and resources stay
// in place until the relocation ends, so the copy never reads released memory and Free does not
// wait for it.
func (a *Allocator[D]) orphan(location *Location[D]) error {
	if location.orphaned {
		panic(fmt.Sprintf("%s was freed twice", location))
	}

	location.orphaned = true
	a.locations.Delete(location.id)
	a.notifyFreed(location.id)

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Freed location during relocation",
		slog.Uint64("id", location.id),
		slog.Int("size", location.size),
	)

	return nil
}

// release returns the location's range to its chunk and releases its data
func (a *Allocator[D]) release(location *Location[D]) error {
	c := a.chunkForLocation(location)
	index := c.indexOf(location)

	// Detach first so that later readers see the location as gone before its resources are
	// released
	location.guard.Lock()
	location.memory = nil
	location.guard.Unlock()

	var err error
	releaseErr := a.backend.ReleaseData(location)
	if releaseErr != nil {
		err = multierror.Append(err, errors.Wrapf(releaseErr, "failed to release data of %s", location))
	}

	c.release(index)
	a.locations.Delete(location.id)

	location.guard.Lock()
	var zero D
	location.data = zero
	location.guard.Unlock()

	if !location.orphaned {
		a.notifyFreed(location.id)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Freed location",
		slog.Uint64("id", location.id),
		slog.Uint64("chunk.id", c.id),
		slog.Int("size", location.size),
	)

	retireErr := a.retireEmptyChunks()
	if retireErr != nil {
		err = multierror.Append(err, retireErr)
	}

	return err
}

func (a *Allocator[D]) notifyFreed(locationID uint64) {
	for _, listener := range a.listeners {
		listener.locationFreed(locationID)
	}
}

// ReserveSpace claims the first size bytes of the free range entry in memory and returns a
// movable Location describing them. entry must exactly match a free range of that chunk.
func (a *Allocator[D]) ReserveSpace(memory Memory, entry metadata.FreeListEntry, size int) *Location[D] {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.reserveSpace(memory, entry, size)
}

func (a *Allocator[D]) reserveSpace(memory Memory, entry metadata.FreeListEntry, size int) *Location[D] {
	c, ok := a.chunksByMemory.Get(memory)
	if !ok {
		panic(fmt.Sprintf("attempted to reserve %s in memory that does not belong to this allocator", entry))
	}

	entryIndex := c.freeList.Find(entry)
	if entryIndex < 0 {
		panic(fmt.Sprintf("attempted to reserve %s in chunk %d, but it is not a free range", entry, c.id))
	}

	if size > entry.Size {
		panic(fmt.Sprintf("attempted to reserve %d bytes of %s in chunk %d", size, entry, c.id))
	}

	location := a.newLocation(size, false)
	c.suballocate(location, entryIndex)

	return location
}

// MemoryIsFree returns true if entry is exactly one of the free ranges of memory
func (a *Allocator[D]) MemoryIsFree(memory Memory, entry metadata.FreeListEntry) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	c, ok := a.chunksByMemory.Get(memory)
	if !ok {
		return false
	}

	return c.freeList.Find(entry) >= 0
}

func (a *Allocator[D]) checkTarget(chunkID uint64, entry metadata.FreeListEntry) defrag.TargetStatus {
	c, ok := a.chunksByID.Get(chunkID)
	if !ok {
		return defrag.TargetGone
	}

	if c.freeList.Find(entry) >= 0 {
		return defrag.TargetFree
	}

	if c.freeList.Covers(entry) {
		return defrag.TargetCovered
	}

	return defrag.TargetGone
}

// Swap exchanges the placement of two locations of equal size: their offsets, memory, and data
// trade places, as do their slots in the chunks' allocation lists. Both locations' generations are
// incremented and the backend is given a chance to fix up source.
func (a *Allocator[D]) Swap(target, source *Location[D]) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.swap(target, source)
}

func (a *Allocator[D]) swap(target, source *Location[D]) error {
	if target == source {
		panic(fmt.Sprintf("attempted to swap %s with itself", target))
	}

	if target.size != source.size {
		panic(fmt.Sprintf("attempted to swap %s with %s, but their sizes differ", target, source))
	}

	targetChunk := a.chunkForLocation(target)
	sourceChunk := a.chunkForLocation(source)
	targetIndex := targetChunk.indexOf(target)
	sourceIndex := sourceChunk.indexOf(source)

	first, second := target, source
	if second.id < first.id {
		first, second = second, first
	}

	first.guard.Lock()
	second.guard.Lock()

	target.offset, source.offset = source.offset, target.offset
	target.memory, source.memory = source.memory, target.memory
	target.chunk, source.chunk = source.chunk, target.chunk
	target.data, source.data = source.data, target.data
	target.generation++
	source.generation++

	second.guard.Unlock()
	first.guard.Unlock()

	targetChunk.allocations[targetIndex] = source
	sourceChunk.allocations[sourceIndex] = target

	memutils.DebugValidate(targetChunk)
	memutils.DebugValidate(sourceChunk)

	err := a.backend.PostMove(source)
	if err != nil {
		return errors.Wrapf(err, "failed to fix up %s after it was moved", source)
	}

	return nil
}

// MoveAllocation moves source into the range held by target and then frees target, which by then
// describes source's old range
func (a *Allocator[D]) MoveAllocation(target, source *Location[D]) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.moveAllocation(target, source)
}

func (a *Allocator[D]) moveAllocation(target, source *Location[D]) error {
	err := a.swap(target, source)
	if err != nil {
		return err
	}

	return a.free(target)
}

// commitMove finishes a relocation whose data has already been copied into target. If the
// source was freed while the copy was running, both are released and false is returned.
func (a *Allocator[D]) commitMove(target, source *Location[D]) (bool, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	source.relocating = false
	if source.orphaned {
		return false, multierror.Append(a.release(target), a.release(source)).ErrorOrNil()
	}

	return true, a.moveAllocation(target, source)
}

// abandonMove releases the reservation made for a relocation that could not be copied, along
// with the source if it was freed in the meantime
func (a *Allocator[D]) abandonMove(target, source *Location[D]) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	source.relocating = false
	err := a.release(target)
	if source.orphaned {
		err = multierror.Append(err, a.release(source)).ErrorOrNil()
	}

	return err
}

// CollectMemoryStats returns the total size of all chunks, the bytes in use, and the free bytes
// that are not part of the last free range of their chunk
func (a *Allocator[D]) CollectMemoryStats() memutils.MemoryStats {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var stats memutils.MemoryStats
	for _, c := range a.chunks {
		stats.Add(c.memoryStats())
	}

	return stats
}

// CalculateStatistics replaces the contents of stats with detailed statistics for every chunk
func (a *Allocator[D]) CalculateStatistics(stats *memutils.DetailedStatistics) {
	stats.Clear()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	for _, c := range a.chunks {
		c.AddDetailedStatistics(stats)
	}
}

func (a *Allocator[D]) ChunkCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return len(a.chunks)
}

// AllocationCount is the number of live locations, including reservations made by a Defragger
func (a *Allocator[D]) AllocationCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.locations.Count()
}

// PrintDetailedMap writes a JSON object keyed by chunk ID, listing every allocation and free range
// of each chunk in offset order
func (a *Allocator[D]) PrintDetailedMap(writer *jwriter.Writer) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	objState := writer.Object()
	defer objState.End()

	for _, c := range a.chunks {
		c.printDetailedMap(&objState)
	}
}

// BuildStatsString returns a JSON document describing the allocator's memory usage. If detailedMap
// is true, the per-chunk map from PrintDetailedMap is included.
func (a *Allocator[D]) BuildStatsString(detailedMap bool) string {
	var stats memutils.DetailedStatistics
	a.CalculateStatistics(&stats)
	memoryStats := a.CollectMemoryStats()

	writer := jwriter.NewWriter()
	objState := writer.Object()

	totalObj := objState.Name("Total").Object()
	totalObj.Name("ChunkCount").Int(stats.ChunkCount)
	totalObj.Name("ChunkBytes").Int(stats.ChunkBytes)
	totalObj.Name("AllocationCount").Int(stats.AllocationCount)
	totalObj.Name("AllocationBytes").Int(stats.AllocationBytes)
	totalObj.Name("UnusedRangeCount").Int(stats.UnusedRangeCount)
	totalObj.Name("FragmentedBytes").Int(memoryStats.Fragmented)

	if stats.AllocationCount > 0 {
		totalObj.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		totalObj.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}

	if stats.UnusedRangeCount > 0 {
		totalObj.Name("UnusedRangeSizeMin").Int(stats.UnusedRangeSizeMin)
		totalObj.Name("UnusedRangeSizeMax").Int(stats.UnusedRangeSizeMax)
	}
	totalObj.End()

	if detailedMap {
		objState.Name("Chunks")
		a.PrintDetailedMap(&writer)
	}

	objState.End()
	return string(writer.Bytes())
}

// Destroy destroys every chunk. Allocations that were never freed are logged and reported in the
// returned error. The allocator cannot be used afterward.
func (a *Allocator[D]) Destroy() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.destroyed {
		return memutils.ClosedError
	}
	a.destroyed = true

	var err error
	for i := len(a.chunks) - 1; i >= 0; i-- {
		destroyErr := a.destroyChunk(a.chunks[i])
		if destroyErr != nil {
			err = multierror.Append(err, destroyErr)
		}
		a.chunks[i] = nil
	}

	a.chunks = nil
	a.locations.Clear()
	a.listeners = nil

	return err
}

func (a *Allocator[D]) addListener(listener allocatorListener) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.listeners = append(a.listeners, listener)
}

func (a *Allocator[D]) removeListener(listener allocatorListener) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	for i, existing := range a.listeners {
		if existing == listener {
			a.listeners = append(a.listeners[:i], a.listeners[i+1:]...)
			return
		}
	}
}

func (a *Allocator[D]) chunkIDForMemory(memory Memory) (uint64, bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	c, ok := a.chunksByMemory.Get(memory)
	if !ok {
		return 0, false
	}

	return c.id, true
}

func (a *Allocator[D]) freeSpace() lockedChunks[D] {
	return lockedChunks[D]{allocator: a}
}

// lockedChunks exposes the chunk list to fit strategies and defragmentation scans. It must only
// be used while the allocator's lock is held.
type lockedChunks[D any] struct {
	allocator *Allocator[D]
}

var _ defrag.ChunkList = lockedChunks[struct{}]{}

func (l lockedChunks[D]) ChunkCount() int {
	return len(l.allocator.chunks)
}

func (l lockedChunks[D]) ChunkFreeList(chunkIndex int) *metadata.FreeList {
	return &l.allocator.chunks[chunkIndex].freeList
}

func (l lockedChunks[D]) ChunkID(chunkIndex int) uint64 {
	return l.allocator.chunks[chunkIndex].id
}

func (l lockedChunks[D]) AllocationCount(chunkIndex int) int {
	return len(l.allocator.chunks[chunkIndex].allocations)
}

func (l lockedChunks[D]) Allocation(chunkIndex int, allocationIndex int) defrag.Allocation {
	location := l.allocator.chunks[chunkIndex].allocations[allocationIndex]

	return defrag.Allocation{
		ID:     location.id,
		Offset: location.offset,
		Size:   location.size,
		Static: location.static,
	}
}
