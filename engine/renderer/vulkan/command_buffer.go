package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func (b *Backend) allocateCommandBuffer() (vk.CommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.device.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if err := resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(b.device.logical, &allocateInfo, buffers)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return buffers[0], nil
}

func (b *Backend) AllocateCommandBuffer() (metadata.CommandBuffer, error) {
	cb, err := b.allocateCommandBuffer()
	if err != nil {
		return 0, err
	}
	return metadata.CommandBuffer(b.commandBuffers.Insert(cb)), nil
}

func (b *Backend) FreeCommandBuffer(cb metadata.CommandBuffer) {
	handle, err := b.commandBuffers.Remove(uint32(cb))
	if err != nil {
		core.LogWarn("free command buffer: %s", err.Error())
		return
	}
	vk.FreeCommandBuffers(b.device.logical, b.device.commandPool, 1, []vk.CommandBuffer{handle})
}

// BeginCommandBuffer resets cb and starts a one time submit recording.
func (b *Backend) BeginCommandBuffer(cb metadata.CommandBuffer) (metadata.CommandRecorder, error) {
	handle, ok := b.commandBuffers.Get(uint32(cb))
	if !ok {
		return nil, fmt.Errorf("command buffer %d: %w", cb, core.ErrInvalidHandle)
	}
	if err := resultError("vkResetCommandBuffer", vk.ResetCommandBuffer(handle, 0)); err != nil {
		return nil, err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(handle, &beginInfo)); err != nil {
		return nil, err
	}
	return &recorder{backend: b, handle: handle}, nil
}

func (b *Backend) Submit(info *metadata.SubmitInfo) error {
	cb, ok := b.commandBuffers.Get(uint32(info.CommandBuffer))
	if !ok {
		return fmt.Errorf("command buffer %d: %w", info.CommandBuffer, core.ErrInvalidHandle)
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb},
	}
	if info.WaitSemaphore != 0 {
		sem, ok := b.semaphores.Get(uint32(info.WaitSemaphore))
		if !ok {
			return fmt.Errorf("wait semaphore %d: %w", info.WaitSemaphore, core.ErrInvalidHandle)
		}
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{sem}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{toVkStages(info.WaitStage)}
	}
	if info.Signal != 0 {
		sem, ok := b.semaphores.Get(uint32(info.Signal))
		if !ok {
			return fmt.Errorf("signal semaphore %d: %w", info.Signal, core.ErrInvalidHandle)
		}
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{sem}
	}
	fence := vk.NullFence
	if info.Fence != 0 {
		f, ok := b.fences.Get(uint32(info.Fence))
		if !ok {
			return fmt.Errorf("fence %d: %w", info.Fence, core.ErrInvalidHandle)
		}
		fence = f
	}
	return b.locks.SafeCall(QueueManagement, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(b.device.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence))
	})
}

// beginSingleUse allocates a throwaway command buffer for uploads.
func (b *Backend) beginSingleUse() (vk.CommandBuffer, error) {
	cb, err := b.allocateCommandBuffer()
	if err != nil {
		return nil, err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(cb, &beginInfo)); err != nil {
		vk.FreeCommandBuffers(b.device.logical, b.device.commandPool, 1, []vk.CommandBuffer{cb})
		return nil, err
	}
	return cb, nil
}

// endSingleUse submits cb, waits for the queue to drain and frees it.
func (b *Backend) endSingleUse(cb vk.CommandBuffer) error {
	defer vk.FreeCommandBuffers(b.device.logical, b.device.commandPool, 1, []vk.CommandBuffer{cb})
	if err := resultError("vkEndCommandBuffer", vk.EndCommandBuffer(cb)); err != nil {
		return err
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb},
	}
	return b.locks.SafeCall(QueueManagement, func() error {
		if err := resultError("vkQueueSubmit", vk.QueueSubmit(b.device.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)); err != nil {
			return err
		}
		return resultError("vkQueueWaitIdle", vk.QueueWaitIdle(b.device.graphicsQueue))
	})
}

/** @brief Records into a Vulkan command buffer. Unknown handles are logged and the command dropped. */
type recorder struct {
	backend *Backend
	handle  vk.CommandBuffer
}

func (r *recorder) BeginRenderPass(pass metadata.RenderPass, framebuffer metadata.Framebuffer, area metadata.Extent2D, clears []metadata.ClearValue) {
	rp, ok := r.backend.renderPasses.Get(uint32(pass))
	if !ok {
		core.LogWarn("begin render pass: unknown render pass %d", pass)
		return
	}
	fb, ok := r.backend.framebuffers.Get(uint32(framebuffer))
	if !ok {
		core.LogWarn("begin render pass: unknown framebuffer %d", framebuffer)
		return
	}
	clearValues := make([]vk.ClearValue, len(clears))
	for i, c := range clears {
		if i < len(rp.depth) && rp.depth[i] {
			clearValues[i].SetDepthStencil(c.Depth, c.Stencil)
		} else {
			clearValues[i].SetColor(c.Color[:])
		}
	}
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.handle,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: area.Width, Height: area.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(r.handle, &beginInfo, vk.SubpassContentsInline)
}

func (r *recorder) EndRenderPass() {
	vk.CmdEndRenderPass(r.handle)
}

func (r *recorder) SetViewport(viewport metadata.Viewport) {
	vk.CmdSetViewport(r.handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (r *recorder) SetScissor(scissor metadata.Rect2D) {
	vk.CmdSetScissor(r.handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: scissor.X, Y: scissor.Y},
		Extent: vk.Extent2D{Width: scissor.Extent.Width, Height: scissor.Extent.Height},
	}})
}

func (r *recorder) BindPipeline(p metadata.Pipeline) {
	pl, ok := r.backend.pipelines.Get(uint32(p))
	if !ok {
		core.LogWarn("bind pipeline: unknown pipeline %d", p)
		return
	}
	vk.CmdBindPipeline(r.handle, vk.PipelineBindPointGraphics, pl.handle)
}

func (r *recorder) BindDescriptorSet(p metadata.Pipeline, set metadata.DescriptorSet) {
	pl, ok := r.backend.pipelines.Get(uint32(p))
	if !ok {
		core.LogWarn("bind descriptor set: unknown pipeline %d", p)
		return
	}
	ds, ok := r.backend.sets.Get(uint32(set))
	if !ok {
		core.LogWarn("bind descriptor set: unknown set %d", set)
		return
	}
	vk.CmdBindDescriptorSets(r.handle, vk.PipelineBindPointGraphics, pl.layout, ds.index, 1, []vk.DescriptorSet{ds.handle}, 0, nil)
}

func (r *recorder) PushConstants(p metadata.Pipeline, stages metadata.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	pl, ok := r.backend.pipelines.Get(uint32(p))
	if !ok {
		core.LogWarn("push constants: unknown pipeline %d", p)
		return
	}
	vk.CmdPushConstants(r.handle, pl.layout, toVkShaderStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (r *recorder) BindVertexBuffers(buffers []metadata.Buffer, offsets []uint64) {
	handles := make([]vk.Buffer, 0, len(buffers))
	sizes := make([]vk.DeviceSize, 0, len(buffers))
	for i, buf := range buffers {
		vb, ok := r.backend.buffers.Get(uint32(buf))
		if !ok {
			core.LogWarn("bind vertex buffers: unknown buffer %d", buf)
			return
		}
		handles = append(handles, vb.handle)
		var off uint64
		if i < len(offsets) {
			off = offsets[i]
		}
		sizes = append(sizes, vk.DeviceSize(off))
	}
	if len(handles) == 0 {
		return
	}
	vk.CmdBindVertexBuffers(r.handle, 0, uint32(len(handles)), handles, sizes)
}

func (r *recorder) BindIndexBuffer(buffer metadata.Buffer, offset uint64) {
	ib, ok := r.backend.buffers.Get(uint32(buffer))
	if !ok {
		core.LogWarn("bind index buffer: unknown buffer %d", buffer)
		return
	}
	vk.CmdBindIndexBuffer(r.handle, ib.handle, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (r *recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32) {
	vk.CmdDrawIndexed(r.handle, indexCount, instanceCount, firstIndex, 0, 0)
}

func (r *recorder) End() error {
	return resultError("vkEndCommandBuffer", vk.EndCommandBuffer(r.handle))
}
