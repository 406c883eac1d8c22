// Package vulkan implements the chunkalloc capability interfaces on top of vkngwrapper. Buffer
// chunks are a single buffer bound across a device memory allocation, with locations suballocated
// from the buffer's range. Image chunks are bare device memory, and each location carries its own
// image, view, and sampler bound at the location's offset.
package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/ext_memory_priority"
)

// NoSuitableMemoryTypeError is returned when no memory type on the device satisfies both the
// resource's memory requirements and the requested property flags
var NoSuitableMemoryTypeError error = errors.New("no suitable memory type")

// FindMemoryType returns the index of the first memory type permitted by typeBits that has every
// flag in properties
func FindMemoryType(memoryProperties *core1_0.PhysicalDeviceMemoryProperties, typeBits uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	for memTypeIndex, memoryType := range memoryProperties.MemoryTypes {
		memTypeBit := uint32(1 << memTypeIndex)
		if typeBits&memTypeBit == 0 {
			continue
		}

		if memoryType.PropertyFlags&properties == properties {
			return memTypeIndex, nil
		}
	}

	return -1, errors.Wrapf(NoSuitableMemoryTypeError, "type bits %#x, properties %v", typeBits, properties)
}

// UseMemoryPriority returns true if device has VK_EXT_memory_priority active, which is required
// for the Priority fields of BufferOptions and ImageOptions to have any effect
func UseMemoryPriority(device core1_0.Device) bool {
	return device.IsDeviceExtensionActive(ext_memory_priority.ExtensionName)
}

func checkPriority(priority float32) error {
	if priority < 0 || priority > 1 {
		return errors.Newf("memory priority must be between 0 and 1, inclusive, but was %f", priority)
	}

	return nil
}

// memoryAllocateInfo builds the allocation request for a chunk, chaining a priority when the
// extension is active
func memoryAllocateInfo(usePriority bool, priority float32, memoryTypeIndex int, size int) core1_0.MemoryAllocateInfo {
	var allocInfo core1_0.MemoryAllocateInfo
	allocInfo.MemoryTypeIndex = memoryTypeIndex
	allocInfo.AllocationSize = size

	if usePriority {
		priorityInfo := ext_memory_priority.MemoryPriorityAllocateInfo{
			Priority: priority,
		}
		priorityInfo.Next = allocInfo.Next
		allocInfo.Next = priorityInfo
	}

	return allocInfo
}
