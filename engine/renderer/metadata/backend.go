package metadata

/** @brief The presentable images of the swap surface and their negotiated properties. */
type Swapchain struct {
	Extent Extent2D
	Format Format
	// One view per presentable image, in acquisition index order.
	Images []Image
	// Bumped every time the swapchain is recreated.
	Generation uint32
}

/** @brief Parameters of one queue submission. */
type SubmitInfo struct {
	CommandBuffer CommandBuffer
	WaitSemaphore Semaphore
	WaitStage     PipelineStage
	Signal        Semaphore
	Fence         Fence
}

// RendererBackend is the graphics device as seen by the frame orchestrator,
// the material binders and the render pass graph. Every method is called from
// the render thread only.
//
// Errors wrapping core.ErrDeviceLost or core.ErrOutOfDeviceMemory are fatal.
// AcquireNextImage and Present report a stale swap surface by wrapping
// core.ErrSwapchainOutOfDate or core.ErrSwapchainSuboptimal.
type RendererBackend interface {
	// SurfaceExtent returns the extent the surface currently reports. It may
	// differ from the window framebuffer size while a resize is in progress.
	SurfaceExtent() Extent2D
	DepthFormat() Format
	MaxSampleCount() SampleCount
	WaitIdle() error

	CreateSwapchain(extent Extent2D) (*Swapchain, error)
	DestroySwapchain()
	AcquireNextImage(signal Semaphore) (uint32, error)
	Present(imageIndex uint32, wait Semaphore) error

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(fence Fence)
	WaitForFence(fence Fence) error
	ResetFence(fence Fence) error
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(semaphore Semaphore)

	AllocateCommandBuffer() (CommandBuffer, error)
	FreeCommandBuffer(cb CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer) (CommandRecorder, error)
	Submit(info *SubmitInfo) error

	CreateBuffer(size uint64, usage BufferUsage) (Buffer, error)
	DestroyBuffer(buffer Buffer)
	WriteBuffer(buffer Buffer, offset uint64, data []byte) error

	CreateImage(desc *ImageDescription) (Image, error)
	DestroyImage(image Image)
	WriteImage(image Image, pixels []byte) error
	CreateSampler(desc *SamplerDescription) (Sampler, error)
	DestroySampler(sampler Sampler)

	CreateRenderPass(desc *RenderPassDescription) (RenderPass, error)
	DestroyRenderPass(pass RenderPass)
	CreateFramebuffer(pass RenderPass, attachments []Image, extent Extent2D, layers uint32) (Framebuffer, error)
	DestroyFramebuffer(framebuffer Framebuffer)

	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	AllocateDescriptorSet(layout DescriptorSetLayout) (DescriptorSet, error)
	FreeDescriptorSet(set DescriptorSet)
	UpdateDescriptorSet(set DescriptorSet, writes []DescriptorWrite) error

	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(module ShaderModule)
	CreatePipeline(desc *PipelineDescription) (Pipeline, error)
	DestroyPipeline(pipeline Pipeline)
}

// CommandRecorder records into a command buffer between
// RendererBackend.BeginCommandBuffer and End.
type CommandRecorder interface {
	BeginRenderPass(pass RenderPass, framebuffer Framebuffer, area Extent2D, clears []ClearValue)
	EndRenderPass()
	SetViewport(viewport Viewport)
	SetScissor(scissor Rect2D)
	BindPipeline(pipeline Pipeline)
	BindDescriptorSet(pipeline Pipeline, set DescriptorSet)
	PushConstants(pipeline Pipeline, stages ShaderStage, offset uint32, data []byte)
	BindVertexBuffers(buffers []Buffer, offsets []uint64)
	BindIndexBuffer(buffer Buffer, offset uint64)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32)
	End() error
}
