package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

var formats = []struct {
	format metadata.Format
	vk     vk.Format
}{
	{metadata.FormatR8G8B8A8Unorm, vk.FormatR8g8b8a8Unorm},
	{metadata.FormatR8G8B8A8Srgb, vk.FormatR8g8b8a8Srgb},
	{metadata.FormatB8G8R8A8Unorm, vk.FormatB8g8r8a8Unorm},
	{metadata.FormatB8G8R8A8Srgb, vk.FormatB8g8r8a8Srgb},
	{metadata.FormatR32Sfloat, vk.FormatR32Sfloat},
	{metadata.FormatR32G32Sfloat, vk.FormatR32g32Sfloat},
	{metadata.FormatR32G32B32Sfloat, vk.FormatR32g32b32Sfloat},
	{metadata.FormatR32G32B32A32Sfloat, vk.FormatR32g32b32a32Sfloat},
	{metadata.FormatD16Unorm, vk.FormatD16Unorm},
	{metadata.FormatD32Sfloat, vk.FormatD32Sfloat},
	{metadata.FormatD24UnormS8Uint, vk.FormatD24UnormS8Uint},
	{metadata.FormatD32SfloatS8Uint, vk.FormatD32SfloatS8Uint},
}

func toVkFormat(f metadata.Format) vk.Format {
	for _, e := range formats {
		if e.format == f {
			return e.vk
		}
	}
	return vk.FormatUndefined
}

func fromVkFormat(f vk.Format) metadata.Format {
	for _, e := range formats {
		if e.vk == f {
			return e.format
		}
	}
	return metadata.FormatUndefined
}

func toVkSamples(s metadata.SampleCount) vk.SampleCountFlagBits {
	switch s {
	case metadata.SampleCount2:
		return vk.SampleCount2Bit
	case metadata.SampleCount4:
		return vk.SampleCount4Bit
	case metadata.SampleCount8:
		return vk.SampleCount8Bit
	}
	return vk.SampleCount1Bit
}

func toVkLayout(l metadata.ImageLayout) vk.ImageLayout {
	switch l {
	case metadata.ImageLayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case metadata.ImageLayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case metadata.ImageLayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case metadata.ImageLayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case metadata.ImageLayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func toVkLoadOp(op metadata.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case metadata.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case metadata.LoadOpClear:
		return vk.AttachmentLoadOpClear
	}
	return vk.AttachmentLoadOpDontCare
}

func toVkStoreOp(op metadata.StoreOp) vk.AttachmentStoreOp {
	if op == metadata.StoreOpStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func toVkStages(s metadata.PipelineStage) vk.PipelineStageFlags {
	var out vk.PipelineStageFlags
	bits := []struct {
		stage metadata.PipelineStage
		vk    vk.PipelineStageFlagBits
	}{
		{metadata.PipelineStageTopOfPipe, vk.PipelineStageTopOfPipeBit},
		{metadata.PipelineStageVertexShader, vk.PipelineStageVertexShaderBit},
		{metadata.PipelineStageFragmentShader, vk.PipelineStageFragmentShaderBit},
		{metadata.PipelineStageEarlyFragmentTests, vk.PipelineStageEarlyFragmentTestsBit},
		{metadata.PipelineStageLateFragmentTests, vk.PipelineStageLateFragmentTestsBit},
		{metadata.PipelineStageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
		{metadata.PipelineStageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
	}
	for _, b := range bits {
		if s&b.stage != 0 {
			out |= vk.PipelineStageFlags(b.vk)
		}
	}
	return out
}

func toVkAccess(a metadata.Access) vk.AccessFlags {
	var out vk.AccessFlags
	bits := []struct {
		access metadata.Access
		vk     vk.AccessFlagBits
	}{
		{metadata.AccessShaderRead, vk.AccessShaderReadBit},
		{metadata.AccessColorAttachmentRead, vk.AccessColorAttachmentReadBit},
		{metadata.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
		{metadata.AccessDepthStencilAttachmentRead, vk.AccessDepthStencilAttachmentReadBit},
		{metadata.AccessDepthStencilAttachmentWrite, vk.AccessDepthStencilAttachmentWriteBit},
		{metadata.AccessMemoryRead, vk.AccessMemoryReadBit},
	}
	for _, b := range bits {
		if a&b.access != 0 {
			out |= vk.AccessFlags(b.vk)
		}
	}
	return out
}

func toVkShaderStages(s metadata.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlags
	bits := []struct {
		stage metadata.ShaderStage
		vk    vk.ShaderStageFlagBits
	}{
		{metadata.ShaderStageVertex, vk.ShaderStageVertexBit},
		{metadata.ShaderStageTessellationControl, vk.ShaderStageTessellationControlBit},
		{metadata.ShaderStageTessellationEvaluation, vk.ShaderStageTessellationEvaluationBit},
		{metadata.ShaderStageGeometry, vk.ShaderStageGeometryBit},
		{metadata.ShaderStageFragment, vk.ShaderStageFragmentBit},
		{metadata.ShaderStageCompute, vk.ShaderStageComputeBit},
	}
	for _, b := range bits {
		if s&b.stage != 0 {
			out |= vk.ShaderStageFlags(b.vk)
		}
	}
	return out
}

func toVkDescriptorType(k metadata.DescriptorKind) vk.DescriptorType {
	switch k {
	case metadata.DescriptorKindSampledImage:
		return vk.DescriptorTypeSampledImage
	case metadata.DescriptorKindSampler:
		return vk.DescriptorTypeSampler
	case metadata.DescriptorKindCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case metadata.DescriptorKindStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case metadata.DescriptorKindStorageImage:
		return vk.DescriptorTypeStorageImage
	}
	return vk.DescriptorTypeUniformBuffer
}

func toVkBufferUsage(u metadata.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlags
	if u&metadata.BufferUsageVertex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if u&metadata.BufferUsageIndex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if u&metadata.BufferUsageUniform != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if u&metadata.BufferUsageStorage != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if u&metadata.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	return out
}

func toVkImageUsage(u metadata.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlags
	if u&metadata.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	if u&metadata.ImageUsageDepthAttachment != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	if u&metadata.ImageUsageSampled != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if u&metadata.ImageUsageTransient != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransientAttachmentBit)
	}
	if u&metadata.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	return out
}

func toVkViewType(t metadata.ImageViewType) vk.ImageViewType {
	switch t {
	case metadata.ImageViewType2DArray:
		return vk.ImageViewType2dArray
	case metadata.ImageViewTypeCube:
		return vk.ImageViewTypeCube
	}
	return vk.ImageViewType2d
}

func toVkCullMode(m metadata.CullMode) vk.CullModeFlags {
	switch m {
	case metadata.CullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case metadata.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.CullModeFrontAndBack:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

func toVkCompareOp(op metadata.CompareOp) vk.CompareOp {
	switch op {
	case metadata.CompareOpLessOrEqual:
		return vk.CompareOpLessOrEqual
	case metadata.CompareOpGreater:
		return vk.CompareOpGreater
	case metadata.CompareOpAlways:
		return vk.CompareOpAlways
	}
	return vk.CompareOpLess
}

func toVkFilter(f metadata.Filter) vk.Filter {
	if f == metadata.FilterNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func toVkAddressMode(m metadata.AddressMode) vk.SamplerAddressMode {
	switch m {
	case metadata.AddressModeClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case metadata.AddressModeClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	}
	return vk.SamplerAddressModeRepeat
}

// blendAttachment returns the color blend state of one attachment for mode.
func blendAttachment(mode metadata.BlendMode) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		BlendEnable:  vk.False,
		ColorBlendOp: vk.BlendOpAdd,
		AlphaBlendOp: vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	switch mode {
	case metadata.BlendModeAlpha:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	case metadata.BlendModeAdditive:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOne
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOne
	}
	return state
}

func aspectOf(f metadata.Format, sampled bool) vk.ImageAspectFlags {
	if !f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if f.HasStencil() && !sampled {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return aspect
}
