package vulkan

import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkbridge/engine/core"
)

// VulkanBuffer is a host visible, coherent buffer that stays mapped for
// its whole lifetime. The attached fence tracks the last submission
// reading from it.
type VulkanBuffer struct {
	context *VulkanContext

	Handle vk.Buffer
	Memory vk.DeviceMemory

	size  uint64
	data  []byte
	fence *VulkanFence

	mu       sync.Mutex
	released bool
}

func NewVulkanBuffer(context *VulkanContext, size uint64, usage vk.BufferUsageFlags) (*VulkanBuffer, error) {
	buffer := &VulkanBuffer{
		context: context,
		size:    size,
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	if err := context.lockPool.SafeCall(BufferManagement, func() error {
		var handle vk.Buffer
		result := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &handle)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkCreateBuffer failed with %s", VulkanResultString(result, true))
		}
		buffer.Handle = handle
		return nil
	}); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buffer.Handle, &requirements)
	requirements.Deref()

	memoryFlags := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	memoryIndex := context.FindMemoryIndex(requirements.MemoryTypeBits, memoryFlags)
	if memoryIndex == -1 {
		buffer.destroy()
		return nil, fmt.Errorf("no host visible memory type for a %d byte buffer", size)
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}

	if err := context.lockPool.SafeCall(MemoryManagement, func() error {
		var memory vk.DeviceMemory
		result := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkAllocateMemory failed with %s", VulkanResultString(result, true))
		}
		buffer.Memory = memory

		result = vk.BindBufferMemory(context.Device.LogicalDevice, buffer.Handle, buffer.Memory, 0)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkBindBufferMemory failed with %s", VulkanResultString(result, true))
		}

		var pData unsafe.Pointer
		result = vk.MapMemory(context.Device.LogicalDevice, buffer.Memory, 0, vk.DeviceSize(size), 0, &pData)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkMapMemory failed with %s", VulkanResultString(result, true))
		}
		buffer.data = unsafe.Slice((*byte)(pData), size)
		return nil
	}); err != nil {
		buffer.destroy()
		return nil, err
	}

	fence, err := NewFence(context, true)
	if err != nil {
		buffer.destroy()
		return nil, err
	}
	buffer.fence = fence

	core.LogDebug("host buffer created: %d bytes, memory type %d", size, memoryIndex)
	return buffer, nil
}

func (b *VulkanBuffer) Size() uint64 {
	return b.size
}

func (b *VulkanBuffer) Data() []byte {
	return b.data
}

// InUse reports whether the last submission referencing the buffer is
// still pending.
func (b *VulkanBuffer) InUse() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released || b.fence == nil {
		return false
	}
	return !b.fence.FenceStatus(b.context)
}

// Submitted resets the buffer's fence and returns it. The caller passes
// it to the queue submission that reads the buffer.
func (b *VulkanBuffer) Submitted() (vk.Fence, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return nil, fmt.Errorf("buffer already released")
	}
	if err := b.fence.FenceReset(b.context); err != nil {
		return nil, err
	}
	return b.fence.Handle, nil
}

// Release waits for pending work and frees the buffer.
func (b *VulkanBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return
	}
	b.released = true
	if b.fence != nil {
		b.fence.FenceWait(b.context, math.MaxUint64)
	}
	b.destroy()
}

func (b *VulkanBuffer) destroy() {
	device := b.context.Device.LogicalDevice
	if b.fence != nil {
		b.fence.FenceDestroy(b.context)
		b.fence = nil
	}
	_ = b.context.lockPool.SafeCall(BufferManagement, func() error {
		if b.Handle != nil {
			vk.DestroyBuffer(device, b.Handle, b.context.Allocator)
			b.Handle = nil
		}
		return nil
	})
	_ = b.context.lockPool.SafeCall(MemoryManagement, func() error {
		if b.data != nil {
			vk.UnmapMemory(device, b.Memory)
			b.data = nil
		}
		if b.Memory != nil {
			vk.FreeMemory(device, b.Memory, b.context.Allocator)
			b.Memory = nil
		}
		return nil
	})
}
