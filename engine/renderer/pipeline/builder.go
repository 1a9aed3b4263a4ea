package pipeline

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/reflection"
)

/** @brief A compiled shader stage and what reflection found in it. */
type ShaderStage struct {
	Stage      metadata.ShaderStage
	Module     metadata.ShaderModule
	EntryPoint string
	Reflection *reflection.Module
}

/** @brief The render pass a pipeline is compatible with. */
type RenderPassSignature struct {
	Pass             metadata.RenderPass
	Subpass          uint32
	Samples          metadata.SampleCount
	ColorAttachments uint32
}

/** @brief A vertex stream consumed by a pipeline, in vertex binding order. */
type VertexStream struct {
	Attribute Attribute
	Location  uint32
	Binding   uint32
}

// Pipeline is immutable once built. Changing any of its state means building
// a new one.
type Pipeline struct {
	Name      string
	Handle    metadata.Pipeline
	Signature RenderPassSignature
	Raster    metadata.RasterState
	// Streams lists the mesh attributes to bind, binding i being Streams[i].
	Streams []VertexStream
	// PushConstants is nil when no stage declares a push constant block.
	PushConstants      *reflection.BindingLayout
	PushConstantStages metadata.ShaderStage
}

// Description carries everything Build needs.
type Description struct {
	Name      string
	Stages    []ShaderStage
	SetLayout metadata.DescriptorSetLayout
	// Attributes are the streams the meshes drawn with this pipeline can
	// supply.
	Attributes AttributeSet
	Signature  RenderPassSignature
	Raster     metadata.RasterState
}

// Build creates the pipeline. Every vertex input of the vertex stage must
// name an attribute in desc.Attributes; attributes the shader does not read
// are left out of the vertex layout.
func Build(backend metadata.RendererBackend, desc *Description) (*Pipeline, error) {
	if len(desc.Stages) == 0 {
		err := fmt.Errorf("pipeline `%s` has no shader stage", desc.Name)
		core.LogError("%s", err.Error())
		return nil, err
	}

	streams, err := VertexStreams(desc.Name, desc.Stages, desc.Attributes)
	if err != nil {
		core.LogError("%s", err.Error())
		return nil, err
	}

	push, pushStages, err := pushConstants(desc.Name, desc.Stages)
	if err != nil {
		core.LogError("%s", err.Error())
		return nil, err
	}

	info := &metadata.PipelineDescription{
		Name:             desc.Name,
		RenderPass:       desc.Signature.Pass,
		Subpass:          desc.Signature.Subpass,
		Samples:          desc.Signature.Samples,
		ColorAttachments: desc.Signature.ColorAttachments,
		Raster:           desc.Raster,
	}
	for _, s := range desc.Stages {
		info.Stages = append(info.Stages, metadata.ShaderStageModule{
			Stage:      s.Stage,
			Module:     s.Module,
			EntryPoint: s.EntryPoint,
		})
	}
	if desc.SetLayout != 0 {
		info.SetLayouts = []metadata.DescriptorSetLayout{desc.SetLayout}
	}
	if push != nil {
		info.PushConstants = []metadata.PushConstantRange{{Stages: pushStages, Offset: 0, Size: push.Size}}
	}

	inputs := vertexInputs(desc.Stages)
	for _, s := range streams {
		info.VertexBindings = append(info.VertexBindings, metadata.VertexBindingDescription{
			Binding: s.Binding,
			Stride:  s.Attribute.Stride(),
		})
		format := s.Attribute.Format()
		if in, ok := inputs[s.Location]; ok && in.Format != metadata.FormatUndefined {
			format = in.Format
		}
		info.VertexAttributes = append(info.VertexAttributes, metadata.VertexAttributeDescription{
			Location: s.Location,
			Binding:  s.Binding,
			Format:   format,
			Offset:   0,
		})
	}

	handle, err := backend.CreatePipeline(info)
	if err != nil {
		core.LogError("failed to create pipeline `%s`: %s", desc.Name, err.Error())
		return nil, err
	}
	core.LogDebug("pipeline `%s` created with %d stage(s) and vertex streams %s", desc.Name, len(info.Stages), streamSet(streams))

	return &Pipeline{
		Name:               desc.Name,
		Handle:             handle,
		Signature:          desc.Signature,
		Raster:             desc.Raster,
		Streams:            streams,
		PushConstants:      push,
		PushConstantStages: pushStages,
	}, nil
}

// Destroy releases the device pipeline.
func (p *Pipeline) Destroy(backend metadata.RendererBackend) {
	if p.Handle != 0 {
		backend.DestroyPipeline(p.Handle)
		p.Handle = 0
	}
}

// Requires returns the attributes the pipeline reads.
func (p *Pipeline) Requires() AttributeSet {
	return streamSet(p.Streams)
}

func streamSet(streams []VertexStream) AttributeSet {
	var s AttributeSet
	for _, st := range streams {
		s = s.With(st.Attribute)
	}
	return s
}

func vertexInputs(stages []ShaderStage) map[uint32]reflection.VertexInput {
	out := make(map[uint32]reflection.VertexInput)
	for _, s := range stages {
		if s.Stage != metadata.ShaderStageVertex || s.Reflection == nil {
			continue
		}
		for _, in := range s.Reflection.Inputs {
			out[in.Location] = in
		}
	}
	return out
}

// VertexStreams matches the vertex stage inputs against the symbolic
// attribute names. An input with no matching name, or one naming an
// attribute outside supplied, fails.
func VertexStreams(name string, stages []ShaderStage, supplied AttributeSet) ([]VertexStream, error) {
	var streams []VertexStream
	var seen AttributeSet
	for _, s := range stages {
		if s.Stage != metadata.ShaderStageVertex || s.Reflection == nil {
			continue
		}
		for _, in := range s.Reflection.Inputs {
			attr, ok := MatchAttribute(in.Name)
			if !ok {
				return nil, fmt.Errorf("%w: pipeline `%s` input `%s` at location %d", core.ErrUnknownVertexAttribute, name, in.Name, in.Location)
			}
			if !supplied.Has(attr) {
				return nil, fmt.Errorf("%w: pipeline `%s` reads %s (input `%s`), meshes supply %s", core.ErrMissingVertexAttribute, name, attr, in.Name, supplied)
			}
			if seen.Has(attr) {
				return nil, fmt.Errorf("%w: pipeline `%s` reads %s twice", core.ErrUnsupportedShader, name, attr)
			}
			seen = seen.With(attr)
			streams = append(streams, VertexStream{
				Attribute: attr,
				Location:  in.Location,
				Binding:   uint32(len(streams)),
			})
		}
	}
	return streams, nil
}

// pushConstants returns the push constant block shared by the stages. All
// stages declaring one must agree on its size.
func pushConstants(name string, stages []ShaderStage) (*reflection.BindingLayout, metadata.ShaderStage, error) {
	var block *reflection.BindingLayout
	var mask metadata.ShaderStage
	for _, s := range stages {
		if s.Reflection == nil || s.Reflection.PushConstants == nil {
			continue
		}
		pc := s.Reflection.PushConstants
		if block != nil && pc.Size != block.Size {
			return nil, 0, fmt.Errorf("%w: pipeline `%s` push constant blocks differ in size (%d and %d)", core.ErrUnsupportedShader, name, block.Size, pc.Size)
		}
		if block == nil || pc.Size > block.Size {
			block = pc
		}
		mask |= s.Stage
	}
	return block, mask, nil
}
