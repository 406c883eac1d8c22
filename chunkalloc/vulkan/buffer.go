package vulkan

import (
	"context"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/chunkmem/chunkalloc"
	"github.com/vkngwrapper/chunkmem/memutils"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"golang.org/x/exp/slog"
)

// BufferOptions describes the buffers a BufferBackend creates for its chunks
type BufferOptions struct {
	// Usage is the usage of each chunk's buffer. Transfer source and destination are always added
	// so that locations can be relocated.
	Usage core1_0.BufferUsageFlags `json:"usage"`
	// MemoryProperties are the property flags the chunk memory type must have
	MemoryProperties core1_0.MemoryPropertyFlags `json:"memoryProperties"`
	// Priority is passed to VK_EXT_memory_priority when it is active. It must be between 0 and 1.
	Priority float32 `json:"priority"`
	// Mapped causes each chunk to be persistently mapped when it is created. MemoryProperties
	// must include MemoryPropertyHostVisible.
	Mapped bool `json:"mapped"`

	AllocationCallbacks *driver.AllocationCallbacks `json:"-"`
}

// BufferChunk is a buffer bound across an entire device memory allocation
type BufferChunk struct {
	buffer     core1_0.Buffer
	memory     core1_0.DeviceMemory
	size       int
	mappedData unsafe.Pointer
}

var _ chunkalloc.Memory = &BufferChunk{}

func (c *BufferChunk) Size() int {
	return c.size
}

func (c *BufferChunk) MappedData() unsafe.Pointer {
	return c.mappedData
}

func (c *BufferChunk) Buffer() core1_0.Buffer {
	return c.buffer
}

func (c *BufferChunk) DeviceMemory() core1_0.DeviceMemory {
	return c.memory
}

// BufferBackend creates BufferChunk memory for an Allocator. Locations are plain ranges of the
// chunk's buffer, so D carries no resources the backend needs to manage.
type BufferBackend[D any] struct {
	logger  *slog.Logger
	device  core1_0.Device
	safe    *chunkalloc.SafeAllocator
	options BufferOptions

	memoryTypeIndex int
	alignment       int
	usePriority     bool
}

var _ chunkalloc.Backend[struct{}] = &BufferBackend[struct{}]{}

// NewBufferBackend picks a memory type for buffers described by options. Chunk memory is allocated
// through safe, which should be shared with every other backend on the same device; if it is nil,
// a new one is created.
func NewBufferBackend[D any](
	logger *slog.Logger,
	device core1_0.Device,
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties,
	safe *chunkalloc.SafeAllocator,
	options BufferOptions,
) (*BufferBackend[D], error) {
	err := checkPriority(options.Priority)
	if err != nil {
		return nil, err
	}

	if options.Mapped && options.MemoryProperties&core1_0.MemoryPropertyHostVisible == 0 {
		return nil, errors.New("BufferOptions.Mapped was set, but BufferOptions.MemoryProperties does not include MemoryPropertyHostVisible")
	}

	options.Usage |= core1_0.BufferUsageTransferSrc | core1_0.BufferUsageTransferDst

	// Query the requirements with a throwaway buffer
	template, _, err := device.CreateBuffer(options.AllocationCallbacks, core1_0.BufferCreateInfo{
		Size:  1,
		Usage: options.Usage,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create a buffer to query memory requirements")
	}
	requirements := template.MemoryRequirements()
	template.Destroy(options.AllocationCallbacks)

	err = memutils.CheckPow2(requirements.Alignment, "buffer memory alignment")
	if err != nil {
		return nil, err
	}

	memoryTypeIndex, err := FindMemoryType(memoryProperties, requirements.MemoryTypeBits, options.MemoryProperties)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	if safe == nil {
		safe = chunkalloc.NewSafeAllocator()
	} else {
		safe.Ref()
	}

	return &BufferBackend[D]{
		logger:  logger,
		device:  device,
		safe:    safe,
		options: options,

		memoryTypeIndex: memoryTypeIndex,
		alignment:       requirements.Alignment,
		usePriority:     UseMemoryPriority(device),
	}, nil
}

func (b *BufferBackend[D]) Alignment() int {
	return b.alignment
}

// MemoryTypeIndex is the memory type chunks are allocated from
func (b *BufferBackend[D]) MemoryTypeIndex() int {
	return b.memoryTypeIndex
}

func (b *BufferBackend[D]) CreateChunk(size int) (chunkalloc.Memory, error) {
	buffer, _, err := b.device.CreateBuffer(b.options.AllocationCallbacks, core1_0.BufferCreateInfo{
		Size:  size,
		Usage: b.options.Usage,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create a %d-byte chunk buffer", size)
	}

	requirements := buffer.MemoryRequirements()
	allocInfo := memoryAllocateInfo(b.usePriority, b.options.Priority, b.memoryTypeIndex, requirements.Size)

	var memory core1_0.DeviceMemory
	err = b.safe.Allocate(func() error {
		var allocErr error
		memory, _, allocErr = b.device.AllocateMemory(b.options.AllocationCallbacks, allocInfo)
		return allocErr
	})
	if err != nil {
		buffer.Destroy(b.options.AllocationCallbacks)
		return nil, errors.Wrapf(err, "failed to allocate %d bytes of device memory", requirements.Size)
	}

	chunk := &BufferChunk{
		buffer: buffer,
		memory: memory,
		size:   size,
	}

	_, err = buffer.BindBufferMemory(memory, 0)
	if err != nil {
		b.destroy(chunk)
		return nil, errors.Wrap(err, "failed to bind chunk memory")
	}

	if b.options.Mapped {
		// -1 maps the whole allocation
		chunk.mappedData, _, err = memory.Map(0, -1, 0)
		if err != nil {
			b.destroy(chunk)
			return nil, errors.Wrap(err, "failed to map chunk memory")
		}
	}

	b.logger.LogAttrs(context.Background(), slog.LevelDebug, "Created buffer chunk",
		slog.Int("size", size),
		slog.Int("allocationSize", requirements.Size),
		slog.Int("memoryTypeIndex", b.memoryTypeIndex),
	)

	return chunk, nil
}

func (b *BufferBackend[D]) destroy(chunk *BufferChunk) {
	if chunk.mappedData != nil {
		chunk.memory.Unmap()
		chunk.mappedData = nil
	}

	chunk.buffer.Destroy(b.options.AllocationCallbacks)
	chunk.memory.Free(b.options.AllocationCallbacks)
	chunk.buffer = nil
	chunk.memory = nil
}

func (b *BufferBackend[D]) DestroyChunk(memory chunkalloc.Memory) error {
	chunk, ok := memory.(*BufferChunk)
	if !ok || chunk == nil {
		return errors.Newf("attempted to destroy memory of type %T that was not created by a buffer backend", memory)
	}

	if chunk.memory == nil {
		return errors.New("attempted to destroy a buffer chunk twice")
	}

	b.destroy(chunk)
	return nil
}

func (b *BufferBackend[D]) ReleaseData(location *chunkalloc.Location[D]) error {
	return nil
}

func (b *BufferBackend[D]) PostMove(location *chunkalloc.Location[D]) error {
	return nil
}

// Close drops the backend's reference to its SafeAllocator
func (b *BufferBackend[D]) Close() {
	b.safe.Release()
}

// BufferOf returns the buffer and byte offset that location currently occupies
func BufferOf[D any](location *chunkalloc.Location[D]) (buffer core1_0.Buffer, offset int) {
	location.Read(func(locationOffset int, memory chunkalloc.Memory, data D) {
		chunk, ok := memory.(*BufferChunk)
		if !ok {
			return
		}

		buffer = chunk.buffer
		offset = locationOffset
	})

	return buffer, offset
}

// BufferMover relocates buffer locations with a device-side buffer copy
type BufferMover[D any] struct {
	queue *CopyQueue
}

var _ chunkalloc.Mover[struct{}] = &BufferMover[struct{}]{}

func NewBufferMover[D any](queue *CopyQueue) *BufferMover[D] {
	return &BufferMover[D]{queue: queue}
}

// Prepare carries the source's payload over to the target
func (m *BufferMover[D]) Prepare(target, source *chunkalloc.Location[D]) error {
	target.SetData(source.Data())
	return nil
}

// Copy copies source's range into target's and waits for the copy to finish. If source was freed
// before the copy began, nothing is copied and Copy returns false.
func (m *BufferMover[D]) Copy(target, source *chunkalloc.Location[D]) (bool, error) {
	if target.Size() != source.Size() {
		return false, errors.Newf("attempted to copy %s into %s, but their sizes differ", source, target)
	}

	dstBuffer, dstOffset := BufferOf(target)
	srcBuffer, srcOffset := BufferOf(source)
	if dstBuffer == nil || srcBuffer == nil {
		return false, nil
	}

	err := m.queue.Submit(func(commandBuffer core1_0.CommandBuffer) error {
		return commandBuffer.CmdCopyBuffer(srcBuffer, dstBuffer, []core1_0.BufferCopy{
			{
				SrcOffset: srcOffset,
				DstOffset: dstOffset,
				Size:      source.Size(),
			},
		})
	})
	if err != nil {
		return false, err
	}

	return true, nil
}
