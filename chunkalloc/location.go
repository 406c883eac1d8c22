package chunkalloc

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Location is one live allocation made by an Allocator or DedicatedAllocator. The allocator owns
// it: the pointer returned from Allocate remains valid until it is passed to Free, and must not be
// used after.
//
// A Defragger may relocate a Location at any time. Its offset, memory, and data change together
// under the location's own lock, so the accessors below always return a consistent view, but
// anything cached from an earlier read is stale once Generation changes.
type Location[D any] struct {
	guard sync.RWMutex

	id       uint64
	size     int
	static   bool
	name     string
	userData any

	offset     int
	memory     Memory
	data       D
	generation uint64

	// Only accessed under the owning allocator's lock
	chunk *chunk[D]
	// relocating is set while a Defragger copies this location elsewhere. Freeing it then only
	// orphans it, and the Defragger releases it once the copy has finished.
	relocating bool
	orphaned   bool
}

func (l *Location[D]) init(id uint64, size int, static bool) {
	l.id = id
	l.size = size
	l.static = static
}

// ID uniquely identifies this location within its allocator
func (l *Location[D]) ID() uint64 { return l.id }

// Size is the number of bytes allocated
func (l *Location[D]) Size() int { return l.size }

// Static returns true if defragmentation will never move this location
func (l *Location[D]) Static() bool { return l.static }

func (l *Location[D]) SetName(name string) {
	l.guard.Lock()
	defer l.guard.Unlock()

	l.name = name
}

func (l *Location[D]) Name() string {
	l.guard.RLock()
	defer l.guard.RUnlock()

	return l.name
}

func (l *Location[D]) SetUserData(userData any) {
	l.guard.Lock()
	defer l.guard.Unlock()

	l.userData = userData
}

func (l *Location[D]) UserData() any {
	l.guard.RLock()
	defer l.guard.RUnlock()

	return l.userData
}

// Offset is the location's byte offset within its Memory
func (l *Location[D]) Offset() int {
	l.guard.RLock()
	defer l.guard.RUnlock()

	return l.offset
}

// Memory is the chunk the location currently lives in
func (l *Location[D]) Memory() Memory {
	l.guard.RLock()
	defer l.guard.RUnlock()

	return l.memory
}

// Data returns the per-location payload, such as the image bound at this location
func (l *Location[D]) Data() D {
	l.guard.RLock()
	defer l.guard.RUnlock()

	return l.data
}

// SetData replaces the per-location payload. The payload's resources belong to the location from
// then on and are released by the allocator's backend when the location is freed.
func (l *Location[D]) SetData(data D) {
	l.guard.Lock()
	defer l.guard.Unlock()

	l.data = data
}

// Generation increases each time the location is moved
func (l *Location[D]) Generation() uint64 {
	l.guard.RLock()
	defer l.guard.RUnlock()

	return l.generation
}

// MappedData is the host address of the start of this location, or nil if its memory is not mapped
func (l *Location[D]) MappedData() unsafe.Pointer {
	l.guard.RLock()
	defer l.guard.RUnlock()

	return l.mappedData()
}

func (l *Location[D]) mappedData() unsafe.Pointer {
	if l.memory == nil {
		return nil
	}

	base := l.memory.MappedData()
	if base == nil {
		return nil
	}

	return unsafe.Add(base, l.offset)
}

// Read calls read with a consistent view of the location's offset, memory, and payload. The
// location cannot be moved until read returns.
func (l *Location[D]) Read(read func(offset int, memory Memory, data D)) {
	l.guard.RLock()
	defer l.guard.RUnlock()

	read(l.offset, l.memory, l.data)
}

func (l *Location[D]) String() string {
	return fmt.Sprintf("Location{ID: %d, Offset: %d, Size: %d}", l.id, l.Offset(), l.size)
}

func (l *Location[D]) printParameters(json *jwriter.ObjectState) {
	json.Name("ID").Int(int(l.id))
	json.Name("Size").Int(l.size)
	json.Name("Static").Bool(l.static)
	json.Name("Generation").Int(int(l.generation))

	if l.userData != nil {
		json.Name("CustomData").String(fmt.Sprintf("%+v", l.userData))
	}

	if l.name != "" {
		json.Name("Name").String(l.name)
	}
}
