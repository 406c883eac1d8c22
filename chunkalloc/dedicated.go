package chunkalloc

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/hashicorp/go-multierror"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/chunkmem/chunkalloc/internal/utils"
	"github.com/vkngwrapper/chunkmem/memutils"
	"golang.org/x/exp/slog"
)

// DedicatedAllocator gives every allocation a Memory of its own. It suits a small number of large,
// long-lived resources that would waste most of a shared chunk. Its locations are always static.
type DedicatedAllocator[D any] struct {
	logger    *slog.Logger
	backend   Backend[D]
	callbacks chunkCallbacks

	mutex     utils.OptionalMutex
	locations *swiss.Map[uint64, *Location[D]]
	nextID    uint64
	totalSize int
	destroyed bool
}

// NewDedicated creates a DedicatedAllocator over backend. Driver calls are serialized by the
// backend itself, so backend may be shared with an Allocator. Only options.Flags and
// options.ChunkCallbacks are used.
func NewDedicated[D any](logger *slog.Logger, backend Backend[D], options CreateOptions) (*DedicatedAllocator[D], error) {
	if backend == nil {
		return nil, errors.New("attempted to create an allocator without a backend")
	}

	err := memutils.CheckPow2(backend.Alignment(), "backend alignment")
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = newDiscardLogger()
	}

	return &DedicatedAllocator[D]{
		logger:    logger,
		backend:   backend,
		callbacks: chunkCallbacks{Callbacks: options.ChunkCallbacks},
		mutex: utils.OptionalMutex{
			UseMutex: options.Flags&AllocatorCreateExternallySynchronized == 0,
		},
		locations: swiss.NewMap[uint64, *Location[D]](16),
		nextID:    1,
	}, nil
}

// Allocate obtains a new Memory of at least size bytes and returns a static Location covering it
func (a *DedicatedAllocator[D]) Allocate(size int) (*Location[D], error) {
	if size <= 0 {
		return nil, errors.Wrapf(memutils.InvalidSizeError, "requested %d bytes", size)
	}

	memorySize := memutils.AlignUp(size, uint(a.backend.Alignment()))

	memory, err := a.backend.CreateChunk(memorySize)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create dedicated memory of %d bytes", memorySize)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.destroyed {
		return nil, errors.CombineErrors(memutils.ClosedError, a.backend.DestroyChunk(memory))
	}

	location := &Location[D]{}
	location.init(a.nextID, size, true)
	location.memory = memory
	a.nextID++

	a.locations.Put(location.id, location)
	a.totalSize += memory.Size()
	a.callbacks.Allocate(location.id, memory, memory.Size())

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocated dedicated memory",
		slog.Uint64("id", location.id),
		slog.Int("size", memory.Size()),
	)

	return location, nil
}

// Free releases the location's data and destroys its memory
func (a *DedicatedAllocator[D]) Free(location *Location[D]) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if _, ok := a.locations.Get(location.id); !ok {
		panic(fmt.Sprintf("%s was not allocated by this allocator", location))
	}

	return a.free(location)
}

func (a *DedicatedAllocator[D]) free(location *Location[D]) error {
	var err error

	releaseErr := a.backend.ReleaseData(location)
	if releaseErr != nil {
		err = multierror.Append(err, errors.Wrapf(releaseErr, "failed to release data of %s", location))
	}

	memory := location.memory
	a.locations.Delete(location.id)
	a.totalSize -= memory.Size()
	a.callbacks.Free(location.id, memory, memory.Size())

	location.guard.Lock()
	var zero D
	location.data = zero
	location.memory = nil
	location.guard.Unlock()

	destroyErr := a.backend.DestroyChunk(memory)
	if destroyErr != nil {
		err = multierror.Append(err, errors.Wrapf(destroyErr, "failed to destroy dedicated memory of %s", location))
	}

	return err
}

// CollectMemoryStats reports the memory held by live allocations. Dedicated memory is never
// fragmented.
func (a *DedicatedAllocator[D]) CollectMemoryStats() memutils.MemoryStats {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return memutils.MemoryStats{
		Total: a.totalSize,
		Used:  a.totalSize,
	}
}

func (a *DedicatedAllocator[D]) ChunkCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.locations.Count()
}

// BuildStatsString writes a JSON array describing each live allocation
func (a *DedicatedAllocator[D]) BuildStatsString(writer *jwriter.Writer) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	s := writer.Array()
	defer s.End()

	a.locations.Iter(func(id uint64, location *Location[D]) bool {
		o := s.Object()
		location.printParameters(&o)
		o.End()
		return false
	})
}

// Destroy frees every remaining allocation, logging each one as a leak
func (a *DedicatedAllocator[D]) Destroy() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.destroyed {
		return memutils.ClosedError
	}
	a.destroyed = true

	var leaked []*Location[D]
	a.locations.Iter(func(id uint64, location *Location[D]) bool {
		leaked = append(leaked, location)
		return false
	})

	var err error
	for _, location := range leaked {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed dedicated allocation",
			slog.Uint64("id", location.id),
			slog.Int("size", location.size),
			slog.Any("userData", location.userData),
			slog.String("name", location.name),
		)

		freeErr := a.free(location)
		if freeErr != nil {
			err = multierror.Append(err, freeErr)
		}
	}

	if len(leaked) > 0 {
		err = multierror.Append(err, errors.Newf("%d dedicated allocations were not freed before the allocator was destroyed", len(leaked)))
	}

	return err
}
