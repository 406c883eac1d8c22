package vulkan

import (
	"io"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/chunkmem/chunkalloc"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/mocks"
	"github.com/vkngwrapper/extensions/v2/ext_memory_priority"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

const testBufferUsage = core1_0.BufferUsageStorageBuffer | core1_0.BufferUsageTransferSrc | core1_0.BufferUsageTransferDst

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func readyBufferBackend(t *testing.T, ctrl *gomock.Controller, deviceExtensions []string, options BufferOptions) (*mocks.MockDevice, *BufferBackend[struct{}]) {
	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, deviceExtensions)

	template := mocks.NewMockBuffer(ctrl)
	device.EXPECT().CreateBuffer(gomock.Any(), core1_0.BufferCreateInfo{
		Size:  1,
		Usage: testBufferUsage,
	}).Return(template, core1_0.VKSuccess, nil)
	template.EXPECT().MemoryRequirements().Return(&core1_0.MemoryRequirements{
		Size:           256,
		Alignment:      256,
		MemoryTypeBits: 0x3,
	})
	template.EXPECT().Destroy(gomock.Any())

	backend, err := NewBufferBackend[struct{}](testLogger(), device, testMemoryProperties, nil, options)
	require.NoError(t, err)

	return device, backend
}

// expectChunk sets up the driver calls for one mapped buffer chunk and returns its buffer and
// backing bytes
func expectChunk(ctrl *gomock.Controller, device *mocks.MockDevice, size int, allocInfo core1_0.MemoryAllocateInfo) (*mocks.MockBuffer, *mocks.MockDeviceMemory, []byte) {
	buffer := mocks.NewMockBuffer(ctrl)
	device.EXPECT().CreateBuffer(gomock.Any(), core1_0.BufferCreateInfo{
		Size:  size,
		Usage: testBufferUsage,
	}).Return(buffer, core1_0.VKSuccess, nil)
	buffer.EXPECT().MemoryRequirements().Return(&core1_0.MemoryRequirements{
		Size:           size,
		Alignment:      256,
		MemoryTypeBits: 0x3,
	})

	memory := mocks.EasyMockDeviceMemory(ctrl)
	device.EXPECT().AllocateMemory(gomock.Any(), allocInfo).Return(memory, core1_0.VKSuccess, nil)
	buffer.EXPECT().BindBufferMemory(memory, 0).Return(core1_0.VKSuccess, nil)

	data := make([]byte, size)
	memory.EXPECT().Map(0, -1, core1_0.MemoryMapFlags(0)).Return(unsafe.Pointer(&data[0]), core1_0.VKSuccess, nil)

	return buffer, memory, data
}

func TestBufferBackend_MappedChunks(t *testing.T) {
	ctrl := gomock.NewController(t)

	device, backend := readyBufferBackend(t, ctrl, []string{ext_memory_priority.ExtensionName}, BufferOptions{
		Usage:            core1_0.BufferUsageStorageBuffer,
		MemoryProperties: core1_0.MemoryPropertyHostVisible,
		Priority:         0.5,
		Mapped:           true,
	})
	require.Equal(t, 256, backend.Alignment())
	require.Equal(t, 1, backend.MemoryTypeIndex())

	buffer, memory, data := expectChunk(ctrl, device, 1024, core1_0.MemoryAllocateInfo{
		AllocationSize:  1024,
		MemoryTypeIndex: 1,
		NextOptions: common.NextOptions{
			Next: ext_memory_priority.MemoryPriorityAllocateInfo{
				Priority: 0.5,
			},
		},
	})

	allocator, err := chunkalloc.New[struct{}](testLogger(), backend, chunkalloc.CreateOptions{ChunkSize: 1024})
	require.NoError(t, err)

	first, err := allocator.Allocate(256)
	require.NoError(t, err)
	second, err := allocator.Allocate(256)
	require.NoError(t, err)

	require.Equal(t, unsafe.Pointer(&data[256]), second.MappedData())

	boundBuffer, offset := BufferOf(second)
	require.Same(t, buffer, boundBuffer)
	require.Equal(t, 256, offset)

	chunk, ok := first.Memory().(*BufferChunk)
	require.True(t, ok)
	require.Same(t, memory, chunk.DeviceMemory())

	memory.EXPECT().Unmap()
	buffer.EXPECT().Destroy(gomock.Any())
	memory.EXPECT().Free(gomock.Any())

	require.NoError(t, allocator.Free(first))
	require.NoError(t, allocator.Free(second))
	require.NoError(t, allocator.Destroy())
	backend.Close()
}

func TestBufferBackend_AllocationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)

	device, backend := readyBufferBackend(t, ctrl, []string{}, BufferOptions{
		Usage: core1_0.BufferUsageStorageBuffer,
	})
	require.Equal(t, 0, backend.MemoryTypeIndex())

	buffer := mocks.NewMockBuffer(ctrl)
	device.EXPECT().CreateBuffer(gomock.Any(), core1_0.BufferCreateInfo{
		Size:  2048,
		Usage: testBufferUsage,
	}).Return(buffer, core1_0.VKSuccess, nil)
	buffer.EXPECT().MemoryRequirements().Return(&core1_0.MemoryRequirements{
		Size:           2048,
		Alignment:      256,
		MemoryTypeBits: 0x3,
	})
	device.EXPECT().AllocateMemory(gomock.Any(), core1_0.MemoryAllocateInfo{
		AllocationSize:  2048,
		MemoryTypeIndex: 0,
	}).Return(nil, core1_0.VKErrorOutOfDeviceMemory, core1_0.VKErrorOutOfDeviceMemory.ToError())
	buffer.EXPECT().Destroy(gomock.Any())

	_, err := backend.CreateChunk(2048)
	require.ErrorContains(t, err, "failed to allocate 2048 bytes of device memory")
}

func TestNewBufferBackend_InvalidOptions(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	_, err := NewBufferBackend[struct{}](testLogger(), device, testMemoryProperties, nil, BufferOptions{
		Priority: 2,
	})
	require.Error(t, err)

	_, err = NewBufferBackend[struct{}](testLogger(), device, testMemoryProperties, nil, BufferOptions{
		Mapped:           true,
		MemoryProperties: core1_0.MemoryPropertyDeviceLocal,
	})
	require.ErrorContains(t, err, "MemoryPropertyHostVisible")
}

func TestBufferMover_Copy(t *testing.T) {
	ctrl := gomock.NewController(t)

	device, backend := readyBufferBackend(t, ctrl, []string{}, BufferOptions{
		Usage:            core1_0.BufferUsageStorageBuffer,
		MemoryProperties: core1_0.MemoryPropertyHostVisible,
		Mapped:           true,
	})
	buffer, _, _ := expectChunk(ctrl, device, 1024, core1_0.MemoryAllocateInfo{
		AllocationSize:  1024,
		MemoryTypeIndex: 1,
	})

	allocator, err := chunkalloc.New[struct{}](testLogger(), backend, chunkalloc.CreateOptions{ChunkSize: 1024})
	require.NoError(t, err)

	target, err := allocator.Allocate(256)
	require.NoError(t, err)
	source, err := allocator.Allocate(256)
	require.NoError(t, err)

	queue := mocks.NewMockQueue(ctrl)
	commandPool := mocks.NewMockCommandPool(ctrl)
	device.EXPECT().CreateCommandPool(gomock.Any(), core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateTransient,
		QueueFamilyIndex: 2,
	}).Return(commandPool, core1_0.VKSuccess, nil)

	copyQueue, err := NewCopyQueue(device, queue, 2, nil)
	require.NoError(t, err)

	commandBuffer := mocks.NewMockCommandBuffer(ctrl)
	device.EXPECT().AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        commandPool,
		Level:              core1_0.LevelPrimary,
		CommandBufferCount: 1,
	}).Return([]core1_0.CommandBuffer{commandBuffer}, core1_0.VKSuccess, nil)
	commandBuffer.EXPECT().Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	}).Return(core1_0.VKSuccess, nil)
	commandBuffer.EXPECT().CmdCopyBuffer(buffer, buffer, []core1_0.BufferCopy{
		{
			SrcOffset: 256,
			DstOffset: 0,
			Size:      256,
		},
	}).Return(nil)
	commandBuffer.EXPECT().End().Return(core1_0.VKSuccess, nil)
	queue.EXPECT().Submit(nil, []core1_0.SubmitInfo{
		{
			CommandBuffers: []core1_0.CommandBuffer{commandBuffer},
		},
	}).Return(core1_0.VKSuccess, nil)
	queue.EXPECT().WaitIdle().Return(core1_0.VKSuccess, nil)
	device.EXPECT().FreeCommandBuffers([]core1_0.CommandBuffer{commandBuffer})

	mover := NewBufferMover[struct{}](copyQueue)
	require.NoError(t, mover.Prepare(target, source))
	copied, err := mover.Copy(target, source)
	require.NoError(t, err)
	require.True(t, copied)

	// A freed source is not copied
	require.NoError(t, allocator.Free(source))
	copied, err = mover.Copy(target, source)
	require.NoError(t, err)
	require.False(t, copied)

	commandPool.EXPECT().Destroy(gomock.Any())
	copyQueue.Destroy()
}
