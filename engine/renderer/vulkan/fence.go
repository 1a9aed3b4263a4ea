package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// CreateFence creates a fence. A fence created signaled lets the first wait
// on a fresh frame slot return at once.
func (b *Backend) CreateFence(signaled bool) (metadata.Fence, error) {
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if err := resultError("vkCreateFence", vk.CreateFence(b.device.logical, &createInfo, b.allocator, &f)); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return metadata.Fence(b.fences.Insert(f)), nil
}

func (b *Backend) DestroyFence(fence metadata.Fence) {
	f, err := b.fences.Remove(uint32(fence))
	if err != nil {
		core.LogWarn("destroy fence: %s", err.Error())
		return
	}
	vk.DestroyFence(b.device.logical, f, b.allocator)
}

func (b *Backend) WaitForFence(fence metadata.Fence) error {
	f, ok := b.fences.Get(uint32(fence))
	if !ok {
		return fmt.Errorf("fence %d: %w", fence, core.ErrInvalidHandle)
	}
	res := vk.WaitForFences(b.device.logical, 1, []vk.Fence{f}, vk.True, math.MaxUint64)
	if res == vk.Timeout {
		core.LogWarn("fence %d wait timed out", fence)
	}
	return resultError("vkWaitForFences", res)
}

func (b *Backend) ResetFence(fence metadata.Fence) error {
	f, ok := b.fences.Get(uint32(fence))
	if !ok {
		return fmt.Errorf("fence %d: %w", fence, core.ErrInvalidHandle)
	}
	return resultError("vkResetFences", vk.ResetFences(b.device.logical, 1, []vk.Fence{f}))
}

func (b *Backend) CreateSemaphore() (metadata.Semaphore, error) {
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var s vk.Semaphore
	if err := resultError("vkCreateSemaphore", vk.CreateSemaphore(b.device.logical, &createInfo, b.allocator, &s)); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return metadata.Semaphore(b.semaphores.Insert(s)), nil
}

func (b *Backend) DestroySemaphore(semaphore metadata.Semaphore) {
	s, err := b.semaphores.Remove(uint32(semaphore))
	if err != nil {
		core.LogWarn("destroy semaphore: %s", err.Error())
		return
	}
	vk.DestroySemaphore(b.device.logical, s, b.allocator)
}
