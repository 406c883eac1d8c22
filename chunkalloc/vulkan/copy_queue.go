package vulkan

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

// CopyQueue records one-shot command buffers, submits them to a queue, and waits for the queue to
// go idle. It is used by movers to copy data on the device from a defragmentation worker.
// Submissions through one CopyQueue are serialized.
type CopyQueue struct {
	mutex sync.Mutex

	device              core1_0.Device
	queue               core1_0.Queue
	commandPool         core1_0.CommandPool
	allocationCallbacks *driver.AllocationCallbacks
}

// NewCopyQueue creates a transient command pool for queueFamilyIndex. queue must belong to that
// family and support transfer operations.
func NewCopyQueue(device core1_0.Device, queue core1_0.Queue, queueFamilyIndex int, allocationCallbacks *driver.AllocationCallbacks) (*CopyQueue, error) {
	commandPool, _, err := device.CreateCommandPool(allocationCallbacks, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateTransient,
		QueueFamilyIndex: queueFamilyIndex,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create the copy command pool")
	}

	return &CopyQueue{
		device:              device,
		queue:               queue,
		commandPool:         commandPool,
		allocationCallbacks: allocationCallbacks,
	}, nil
}

// Submit records a single command buffer with record, submits it, and blocks until the queue is
// idle
func (q *CopyQueue) Submit(record func(commandBuffer core1_0.CommandBuffer) error) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	commandBuffers, _, err := q.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        q.commandPool,
		Level:              core1_0.LevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return errors.Wrap(err, "failed to allocate a copy command buffer")
	}
	defer q.device.FreeCommandBuffers(commandBuffers)

	commandBuffer := commandBuffers[0]
	_, err = commandBuffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "failed to begin the copy command buffer")
	}

	err = record(commandBuffer)
	if err != nil {
		return err
	}

	_, err = commandBuffer.End()
	if err != nil {
		return errors.Wrap(err, "failed to end the copy command buffer")
	}

	_, err = q.queue.Submit(nil, []core1_0.SubmitInfo{
		{
			CommandBuffers: commandBuffers,
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to submit the copy command buffer")
	}

	_, err = q.queue.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "failed waiting for the copy queue")
	}

	return nil
}

// Destroy destroys the command pool. The queue must be idle.
func (q *CopyQueue) Destroy() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.commandPool.Destroy(q.allocationCallbacks)
}
