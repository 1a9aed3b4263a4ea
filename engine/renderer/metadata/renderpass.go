package metadata

/** @brief Describes one attachment of a render pass. */
type AttachmentDescription struct {
	Format         Format
	Samples        SampleCount
	LoadOp         LoadOp
	StoreOp        StoreOp
	StencilLoadOp  LoadOp
	StencilStoreOp StoreOp
	InitialLayout  ImageLayout
	FinalLayout    ImageLayout
}

/** @brief References an attachment, by index, from a subpass. */
type AttachmentReference struct {
	Attachment uint32
	Layout     ImageLayout
}

type SubpassDescription struct {
	ColorAttachments   []AttachmentReference
	ResolveAttachments []AttachmentReference
	DepthAttachment    *AttachmentReference
}

/** @brief Index used by SubpassDependency for operations outside the render pass. */
const SubpassExternal uint32 = ^uint32(0)

type SubpassDependency struct {
	SrcSubpass    uint32
	DstSubpass    uint32
	SrcStageMask  PipelineStage
	DstStageMask  PipelineStage
	SrcAccessMask Access
	DstAccessMask Access
}

type RenderPassDescription struct {
	Name         string
	Attachments  []AttachmentDescription
	Subpasses    []SubpassDescription
	Dependencies []SubpassDependency
}
