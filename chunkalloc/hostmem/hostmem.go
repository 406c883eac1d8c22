// Package hostmem implements the chunkalloc capability interfaces over ordinary host memory. It
// backs the allocation simulator and is useful for exercising allocators and defraggers without a
// device.
package hostmem

import (
	"context"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/chunkmem/chunkalloc"
	"github.com/vkngwrapper/chunkmem/memutils"
	"golang.org/x/exp/slog"
)

// OutOfMemoryError is returned from CreateChunk when a Backend's MaxBytes would be exceeded
var OutOfMemoryError error = errors.New("host memory budget exhausted")

// Memory is a chunk of host memory
type Memory struct {
	bytes []byte
}

var _ chunkalloc.Memory = &Memory{}

func (m *Memory) Size() int {
	return len(m.bytes)
}

func (m *Memory) MappedData() unsafe.Pointer {
	if len(m.bytes) == 0 {
		return nil
	}

	return unsafe.Pointer(&m.bytes[0])
}

// Bytes returns the chunk's contents
func (m *Memory) Bytes() []byte {
	return m.bytes
}

// Bytes returns the contents of location. The returned slice aliases the location's memory and
// becomes stale when the location is moved or freed.
func Bytes[D any](location *chunkalloc.Location[D]) []byte {
	var bytes []byte

	location.Read(func(offset int, memory chunkalloc.Memory, data D) {
		hostMemory, ok := memory.(*Memory)
		if !ok {
			return
		}

		bytes = hostMemory.bytes[offset : offset+location.Size()]
	})

	return bytes
}

// BackendOptions contains optional settings for a Backend
type BackendOptions struct {
	// Alignment is the granularity chunk sizes are rounded up to. It must be a power of two and
	// defaults to 256.
	Alignment int `json:"alignment"`
	// MaxBytes limits the total size of live chunks. Zero means no limit.
	MaxBytes int `json:"maxBytes"`
}

// Backend hands out chunks of host memory. It carries no per-location data, so D is whatever
// payload the consumer wants to attach to locations.
type Backend[D any] struct {
	logger    *slog.Logger
	safe      *chunkalloc.SafeAllocator
	alignment int
	maxBytes  int

	liveBytes    atomic.Int64
	liveChunks   atomic.Int32
	releaseCalls atomic.Int32
	moves        atomic.Int32
}

var _ chunkalloc.Backend[struct{}] = &Backend[struct{}]{}

// NewBackend creates a Backend. Chunk creation is serialized through safe, which may be shared; if
// it is nil, a new one is created.
func NewBackend[D any](logger *slog.Logger, safe *chunkalloc.SafeAllocator, options BackendOptions) (*Backend[D], error) {
	alignment := options.Alignment
	if alignment == 0 {
		alignment = 256
	}

	err := memutils.CheckPow2(alignment, "BackendOptions.Alignment")
	if err != nil {
		return nil, err
	}

	if options.MaxBytes < 0 {
		return nil, errors.Newf("BackendOptions.MaxBytes must not be negative, but was %d", options.MaxBytes)
	}

	if logger == nil {
		logger = slog.Default()
	}

	if safe == nil {
		safe = chunkalloc.NewSafeAllocator()
	} else {
		safe.Ref()
	}

	return &Backend[D]{
		logger:    logger,
		safe:      safe,
		alignment: alignment,
		maxBytes:  options.MaxBytes,
	}, nil
}

func (b *Backend[D]) Alignment() int {
	return b.alignment
}

func (b *Backend[D]) CreateChunk(size int) (chunkalloc.Memory, error) {
	var memory *Memory

	err := b.safe.Allocate(func() error {
		if b.maxBytes > 0 && int(b.liveBytes.Load())+size > b.maxBytes {
			return errors.Wrapf(OutOfMemoryError, "%d bytes requested with %d of %d in use", size, b.liveBytes.Load(), b.maxBytes)
		}

		memory = &Memory{bytes: make([]byte, size)}
		b.liveBytes.Add(int64(size))
		b.liveChunks.Add(1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.LogAttrs(context.Background(), slog.LevelDebug, "Created host chunk",
		slog.Int("size", size),
		slog.Int64("liveBytes", b.liveBytes.Load()),
	)

	return memory, nil
}

func (b *Backend[D]) DestroyChunk(memory chunkalloc.Memory) error {
	hostMemory, ok := memory.(*Memory)
	if !ok || hostMemory == nil {
		return errors.Newf("attempted to destroy memory of type %T that was not created by this backend", memory)
	}

	if hostMemory.bytes == nil {
		return errors.New("attempted to destroy host memory twice")
	}

	b.liveBytes.Add(-int64(len(hostMemory.bytes)))
	b.liveChunks.Add(-1)
	hostMemory.bytes = nil
	return nil
}

func (b *Backend[D]) ReleaseData(location *chunkalloc.Location[D]) error {
	b.releaseCalls.Add(1)
	return nil
}

func (b *Backend[D]) PostMove(location *chunkalloc.Location[D]) error {
	b.moves.Add(1)
	return nil
}

// LiveChunks is the number of chunks that have been created and not yet destroyed
func (b *Backend[D]) LiveChunks() int {
	return int(b.liveChunks.Load())
}

// LiveBytes is the total size of the live chunks
func (b *Backend[D]) LiveBytes() int {
	return int(b.liveBytes.Load())
}

// Moves is the number of times PostMove has been called
func (b *Backend[D]) Moves() int {
	return int(b.moves.Load())
}

// Releases is the number of times ReleaseData has been called
func (b *Backend[D]) Releases() int {
	return int(b.releaseCalls.Load())
}

// Close drops the backend's reference to its SafeAllocator
func (b *Backend[D]) Close() {
	b.safe.Release()
}

// Mover copies location contents between host chunks
type Mover[D any] struct{}

var _ chunkalloc.Mover[struct{}] = Mover[struct{}]{}

// Prepare carries the source's payload over to the target, since host locations have no
// placement-dependent resources
func (Mover[D]) Prepare(target, source *chunkalloc.Location[D]) error {
	target.SetData(source.Data())
	return nil
}

// Copy copies source's bytes into target. It returns false if either location no longer has
// host memory.
func (Mover[D]) Copy(target, source *chunkalloc.Location[D]) (bool, error) {
	if target.Size() != source.Size() {
		return false, errors.Newf("attempted to copy %s into %s, but their sizes differ", source, target)
	}

	dst := Bytes(target)
	src := Bytes(source)
	if dst == nil || src == nil {
		return false, nil
	}

	copy(dst, src)
	return true, nil
}
