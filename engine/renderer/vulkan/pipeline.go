package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type pipeline struct {
	handle vk.Pipeline
	layout vk.PipelineLayout
	name   string
}

func (b *Backend) CreateShaderModule(code []byte) (metadata.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, fmt.Errorf("%w: %d bytes", core.ErrInvalidShader, len(code))
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    spirvWords(code),
	}
	var module vk.ShaderModule
	if err := resultError("vkCreateShaderModule", vk.CreateShaderModule(b.device.logical, &createInfo, b.allocator, &module)); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return metadata.ShaderModule(b.shaders.Insert(module)), nil
}

func (b *Backend) DestroyShaderModule(m metadata.ShaderModule) {
	module, err := b.shaders.Remove(uint32(m))
	if err != nil {
		core.LogWarn("destroy shader module: %s", err.Error())
		return
	}
	vk.DestroyShaderModule(b.device.logical, module, b.allocator)
}

// CreatePipeline builds a graphics pipeline with dynamic viewport and
// scissor, so one pipeline serves every framebuffer size.
func (b *Backend) CreatePipeline(desc *metadata.PipelineDescription) (metadata.Pipeline, error) {
	rp, ok := b.renderPasses.Get(uint32(desc.RenderPass))
	if !ok {
		return 0, fmt.Errorf("pipeline `%s`: render pass %d: %w", desc.Name, desc.RenderPass, core.ErrInvalidHandle)
	}
	dev := b.device.logical

	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, s := range desc.Stages {
		module, ok := b.shaders.Get(uint32(s.Module))
		if !ok {
			return 0, fmt.Errorf("pipeline `%s`: shader module %d: %w", desc.Name, s.Module, core.ErrInvalidHandle)
		}
		entry := s.EntryPoint
		if entry == "" {
			entry = "main"
		}
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(toVkShaderStages(s.Stage)),
			Module: module,
			PName:  safeString(entry),
		}
	}

	setLayouts := make([]vk.DescriptorSetLayout, len(desc.SetLayouts))
	for i, l := range desc.SetLayouts {
		layout, ok := b.setLayouts.Get(uint32(l))
		if !ok {
			return 0, fmt.Errorf("pipeline `%s`: set layout %d: %w", desc.Name, l, core.ErrInvalidHandle)
		}
		setLayouts[i] = layout.handle
	}
	pushRanges := make([]vk.PushConstantRange, len(desc.PushConstants))
	for i, r := range desc.PushConstants {
		pushRanges[i] = vk.PushConstantRange{
			StageFlags: toVkShaderStages(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	layoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(pushRanges)),
		PPushConstantRanges:    pushRanges,
	}
	p := &pipeline{name: desc.Name}
	if err := resultError("vkCreatePipelineLayout", vk.CreatePipelineLayout(dev, &layoutCreateInfo, b.allocator, &p.layout)); err != nil {
		core.LogError("pipeline `%s`: %s", desc.Name, err.Error())
		return 0, err
	}

	bindings := make([]vk.VertexInputBindingDescription, len(desc.VertexBindings))
	for i, vb := range desc.VertexBindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   vb.Binding,
			Stride:    vb.Stride,
			InputRate: vk.VertexInputRateVertex,
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.VertexAttributes))
	for i, a := range desc.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   toVkFormat(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	raster := desc.Raster
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		CullMode:                toVkCullMode(raster.CullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		LineWidth:               1.0,
		DepthBiasEnable:         vk.False,
	}
	if raster.PolygonMode == metadata.PolygonModeLine {
		rasterizer.PolygonMode = vk.PolygonModeLine
	}
	if raster.FrontFace == metadata.FrontFaceClockwise {
		rasterizer.FrontFace = vk.FrontFaceClockwise
	}
	if raster.DepthBias {
		rasterizer.DepthBiasEnable = vk.True
		rasterizer.DepthBiasConstantFactor = raster.DepthBiasConst
		rasterizer.DepthBiasSlopeFactor = raster.DepthBiasSlope
	}

	samples := desc.Samples
	if samples == 0 {
		samples = metadata.SampleCount1
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: toVkSamples(samples),
		SampleShadingEnable:  vk.False,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		DepthCompareOp:    toVkCompareOp(raster.DepthCompare),
		StencilTestEnable: vk.False,
	}
	if raster.DepthTest {
		depthStencil.DepthTestEnable = vk.True
	}
	if raster.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	blends := make([]vk.PipelineColorBlendAttachmentState, desc.ColorAttachments)
	for i := range blends {
		blends[i] = blendAttachment(raster.Blend)
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blends)),
		PAttachments:    blends,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamic,
		Layout:              p.layout,
		RenderPass:          rp.handle,
		Subpass:             desc.Subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := resultError("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(dev, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{createInfo}, b.allocator, pipelines)); err != nil {
		vk.DestroyPipelineLayout(dev, p.layout, b.allocator)
		core.LogError("pipeline `%s`: %s", desc.Name, err.Error())
		return 0, err
	}
	p.handle = pipelines[0]
	core.LogDebug("graphics pipeline `%s` created", desc.Name)
	return metadata.Pipeline(b.pipelines.Insert(p)), nil
}

func (b *Backend) DestroyPipeline(h metadata.Pipeline) {
	p, err := b.pipelines.Remove(uint32(h))
	if err != nil {
		core.LogWarn("destroy pipeline: %s", err.Error())
		return
	}
	vk.DestroyPipeline(b.device.logical, p.handle, b.allocator)
	vk.DestroyPipelineLayout(b.device.logical, p.layout, b.allocator)
}
