package metadata

/** @brief Width and height of a surface, image or framebuffer, in pixels. */
type Extent2D struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero, which means there is
// nothing to render into.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

type Rect2D struct {
	X, Y   int32
	Extent Extent2D
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// FullViewport covers the whole extent with the default depth range.
func FullViewport(e Extent2D) Viewport {
	return Viewport{Width: float32(e.Width), Height: float32(e.Height), MinDepth: 0, MaxDepth: 1}
}

/** @brief Clear value of one attachment. Color is used for color attachments, Depth and Stencil otherwise. */
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

type Format uint32

const (
	FormatUndefined Format = iota
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8Srgb
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatR32Sfloat
	FormatR32G32Sfloat
	FormatR32G32B32Sfloat
	FormatR32G32B32A32Sfloat
	FormatD16Unorm
	FormatD32Sfloat
	FormatD24UnormS8Uint
	FormatD32SfloatS8Uint
)

// IsDepth reports whether the format carries depth.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD16Unorm, FormatD32Sfloat, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// HasStencil reports whether the format carries a stencil component.
func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32SfloatS8Uint
}

// Size returns the number of bytes of one texel or vertex element.
func (f Format) Size() uint32 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb,
		FormatR32Sfloat, FormatD32Sfloat, FormatD24UnormS8Uint:
		return 4
	case FormatR32G32Sfloat, FormatD32SfloatS8Uint:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Sfloat:
		return 16
	case FormatD16Unorm:
		return 2
	}
	return 0
}

type SampleCount uint32

const (
	SampleCount1 SampleCount = 1
	SampleCount2 SampleCount = 2
	SampleCount4 SampleCount = 4
	SampleCount8 SampleCount = 8
)

type LoadOp uint8

const (
	LoadOpDontCare LoadOp = iota
	LoadOpLoad
	LoadOpClear
)

type StoreOp uint8

const (
	StoreOpDontCare StoreOp = iota
	StoreOpStore
)

type ImageLayout uint8

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutColorAttachment
	ImageLayoutDepthStencilAttachment
	ImageLayoutShaderReadOnly
	ImageLayoutTransferDst
	ImageLayoutPresentSrc
)

type PipelineStage uint32

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageVertexShader
	PipelineStageFragmentShader
	PipelineStageEarlyFragmentTests
	PipelineStageLateFragmentTests
	PipelineStageColorAttachmentOutput
	PipelineStageBottomOfPipe
)

type Access uint32

const (
	AccessShaderRead Access = 1 << iota
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessMemoryRead
)

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageTessellationControl
	ShaderStageTessellationEvaluation
	ShaderStageGeometry
	ShaderStageFragment
	ShaderStageCompute
)

func (s ShaderStage) String() string {
	names := []string{"vertex", "tess-control", "tess-eval", "geometry", "fragment", "compute"}
	out := ""
	for i, n := range names {
		if s&(1<<i) != 0 {
			if out != "" {
				out += "|"
			}
			out += n
		}
	}
	if out == "" {
		return "none"
	}
	return out
}

type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageTransferSrc
)

type ImageUsage uint32

const (
	ImageUsageColorAttachment ImageUsage = 1 << iota
	ImageUsageDepthAttachment
	ImageUsageSampled
	ImageUsageTransient
	ImageUsageTransferDst
)
