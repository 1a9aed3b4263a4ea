package metadata

// Handles name objects owned by a RendererBackend. They are plain integers so
// they can be copied, compared and stored in maps freely; zero is never a
// valid handle.
type (
	Fence               uint32
	Semaphore           uint32
	CommandBuffer       uint32
	Buffer              uint32
	Image               uint32
	Sampler             uint32
	RenderPass          uint32
	Framebuffer         uint32
	DescriptorSetLayout uint32
	DescriptorSet       uint32
	ShaderModule        uint32
	Pipeline            uint32
)

/** @brief Value of a handle that does not name anything. */
const InvalidHandle uint32 = 0
