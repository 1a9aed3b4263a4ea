package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/** @brief A host visible buffer, mapped for its whole lifetime. */
type buffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	mapped unsafe.Pointer
}

func (b *Backend) newBuffer(size uint64, usage vk.BufferUsageFlags) (*buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer of zero size")
	}
	dev := b.device.logical
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	buf := &buffer{size: size}
	if err := resultError("vkCreateBuffer", vk.CreateBuffer(dev, &createInfo, b.allocator, &buf.handle)); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev, buf.handle, &reqs)
	reqs.Deref()
	index, err := b.device.findMemoryIndex(reqs.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		vk.DestroyBuffer(dev, buf.handle, b.allocator)
		return nil, err
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}
	if err := resultError("vkAllocateMemory", vk.AllocateMemory(dev, &allocateInfo, b.allocator, &buf.memory)); err != nil {
		vk.DestroyBuffer(dev, buf.handle, b.allocator)
		return nil, err
	}
	if err := resultError("vkBindBufferMemory", vk.BindBufferMemory(dev, buf.handle, buf.memory, 0)); err != nil {
		buf.release(b)
		return nil, err
	}
	if err := resultError("vkMapMemory", vk.MapMemory(dev, buf.memory, 0, vk.DeviceSize(size), 0, &buf.mapped)); err != nil {
		buf.release(b)
		return nil, err
	}
	return buf, nil
}

func (buf *buffer) release(b *Backend) {
	dev := b.device.logical
	if buf.mapped != nil {
		vk.UnmapMemory(dev, buf.memory)
		buf.mapped = nil
	}
	vk.DestroyBuffer(dev, buf.handle, b.allocator)
	vk.FreeMemory(dev, buf.memory, b.allocator)
}

func (buf *buffer) write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d bytes", len(data), offset, buf.size)
	}
	if len(data) == 0 {
		return nil
	}
	vk.Memcopy(unsafe.Add(buf.mapped, offset), data)
	return nil
}

func (b *Backend) CreateBuffer(size uint64, usage metadata.BufferUsage) (metadata.Buffer, error) {
	buf, err := b.newBuffer(size, toVkBufferUsage(usage))
	if err != nil {
		core.LogError("create buffer: %s", err.Error())
		return 0, err
	}
	return metadata.Buffer(b.buffers.Insert(buf)), nil
}

func (b *Backend) DestroyBuffer(buffer metadata.Buffer) {
	buf, err := b.buffers.Remove(uint32(buffer))
	if err != nil {
		core.LogWarn("destroy buffer: %s", err.Error())
		return
	}
	buf.release(b)
}

func (b *Backend) WriteBuffer(buffer metadata.Buffer, offset uint64, data []byte) error {
	buf, ok := b.buffers.Get(uint32(buffer))
	if !ok {
		return fmt.Errorf("buffer %d: %w", buffer, core.ErrInvalidHandle)
	}
	return buf.write(offset, data)
}
