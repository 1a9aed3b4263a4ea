package metadata

type CullMode uint8

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
	CullModeFrontAndBack
)

type FrontFace uint8

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type PolygonMode uint8

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
)

type CompareOp uint8

const (
	CompareOpLess CompareOp = iota
	CompareOpLessOrEqual
	CompareOpGreater
	CompareOpAlways
)

type BlendMode uint8

const (
	BlendModeOpaque BlendMode = iota
	BlendModeAlpha
	BlendModeAdditive
)

/** @brief Fixed function state baked into a pipeline. */
type RasterState struct {
	CullMode       CullMode
	FrontFace      FrontFace
	PolygonMode    PolygonMode
	DepthTest      bool
	DepthWrite     bool
	DepthCompare   CompareOp
	DepthBias      bool
	DepthBiasConst float32
	DepthBiasSlope float32
	Blend          BlendMode
}

/** @brief One vertex buffer binding. Every attribute stream gets its own binding. */
type VertexBindingDescription struct {
	Binding uint32
	Stride  uint32
}

type VertexAttributeDescription struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type ShaderStageModule struct {
	Stage      ShaderStage
	Module     ShaderModule
	EntryPoint string
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

/** @brief Everything a backend needs to create an immutable graphics pipeline. */
type PipelineDescription struct {
	Name             string
	RenderPass       RenderPass
	Subpass          uint32
	Samples          SampleCount
	ColorAttachments uint32
	Stages           []ShaderStageModule
	SetLayouts       []DescriptorSetLayout
	PushConstants    []PushConstantRange
	VertexBindings   []VertexBindingDescription
	VertexAttributes []VertexAttributeDescription
	Raster           RasterState
}
