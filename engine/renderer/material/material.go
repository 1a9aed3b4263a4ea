package material

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
	"github.com/spaghettifunk/prism/engine/renderer/reflection"
	"github.com/spaghettifunk/prism/engine/renderer/renderpass"
)

// Type selects how a material is drawn. It is a closed set: the frame
// recorder switches on it instead of calling into the material.
type Type uint8

const (
	// TypeShading draws lit or unlit geometry in the forward pass.
	TypeShading Type = iota
	// TypeShadow renders depth into the shadow map and has no fragment stage.
	TypeShadow
	// TypeSkybox is drawn last, behind everything, without writing depth.
	TypeSkybox
)

func (t Type) String() string {
	switch t {
	case TypeShading:
		return "shading"
	case TypeShadow:
		return "shadow"
	case TypeSkybox:
		return "skybox"
	}
	return fmt.Sprintf("Type(%d)", t)
}

// Queue orders draws within a frame: lower queues are recorded first.
type Queue int

const (
	QueueShadow      Queue = 0
	QueueOpaque      Queue = 1000
	QueueTransparent Queue = 2000
	QueueSkybox      Queue = 3000
)

// The descriptor set every material binds its resources to.
const materialSet uint32 = 0

/** @brief Source of one shader stage of a material. */
type StageSource struct {
	Stage metadata.ShaderStage
	// Code is a SPIR-V binary.
	Code []byte
	// EntryPoint defaults to the entry point reflection finds for Stage.
	EntryPoint string
}

type Config struct {
	Name   string
	Type   Type
	Stages []StageSource
	// Queue defaults to the queue matching Type and Raster.Blend when zero.
	Queue Queue
	// Attributes are the vertex streams meshes drawn with this material
	// supply. Zero means any attribute.
	Attributes pipeline.AttributeSet
	// Raster overrides the default fixed function state of Type.
	Raster *metadata.RasterState
}

// Material is the immutable template shared by every Instance created from
// it: the pipeline, the merged descriptor bindings and the uniform block
// layouts.
type Material struct {
	Name     string
	Type     Type
	Queue    Queue
	Pipeline *pipeline.Pipeline
	// Bindings are the descriptor bindings of set 0, ordered by binding.
	Bindings []metadata.DescriptorBinding
	// Blocks holds the layout of every uniform block binding, ordered by
	// binding.
	Blocks     []*reflection.BindingLayout
	SetLayout  metadata.DescriptorSetLayout
	Attributes pipeline.AttributeSet

	modules []metadata.ShaderModule
}

// DefaultRaster returns the fixed function state a material type uses unless
// the config overrides it.
func DefaultRaster(t Type) metadata.RasterState {
	switch t {
	case TypeShadow:
		return metadata.RasterState{
			CullMode:       metadata.CullModeNone,
			DepthTest:      true,
			DepthWrite:     true,
			DepthCompare:   metadata.CompareOpLessOrEqual,
			DepthBias:      true,
			DepthBiasConst: 1.25,
			DepthBiasSlope: 1.75,
		}
	case TypeSkybox:
		return metadata.RasterState{
			CullMode:     metadata.CullModeFront,
			DepthTest:    true,
			DepthWrite:   false,
			DepthCompare: metadata.CompareOpLessOrEqual,
		}
	}
	return metadata.RasterState{
		CullMode:     metadata.CullModeBack,
		DepthTest:    true,
		DepthWrite:   true,
		DepthCompare: metadata.CompareOpLess,
	}
}

func defaultQueue(t Type, raster metadata.RasterState) Queue {
	switch t {
	case TypeShadow:
		return QueueShadow
	case TypeSkybox:
		return QueueSkybox
	}
	if raster.Blend != metadata.BlendModeOpaque {
		return QueueTransparent
	}
	return QueueOpaque
}

// New reflects the shader stages, merges their bindings, creates the
// descriptor set layout and builds the pipeline against pass. Every failure
// here is a load time error.
func New(backend metadata.RendererBackend, pass *renderpass.RenderPass, config *Config) (*Material, error) {
	m, err := newMaterial(backend, pass, config)
	if err != nil {
		core.LogError("material `%s`: %s", config.Name, err.Error())
		return nil, err
	}
	core.LogDebug("material `%s` (%s, queue %d) loaded with %d binding(s)", m.Name, m.Type, m.Queue, len(m.Bindings))
	return m, nil
}

func newMaterial(backend metadata.RendererBackend, pass *renderpass.RenderPass, config *Config) (*Material, error) {
	if err := checkStages(config); err != nil {
		return nil, err
	}

	raster := DefaultRaster(config.Type)
	if config.Raster != nil {
		raster = *config.Raster
	}
	m := &Material{
		Name:       config.Name,
		Type:       config.Type,
		Queue:      config.Queue,
		Attributes: config.Attributes,
	}
	if m.Queue == 0 {
		m.Queue = defaultQueue(config.Type, raster)
	}
	if m.Attributes == 0 {
		m.Attributes = pipeline.AllAttributes
	}

	stages := make([]pipeline.ShaderStage, 0, len(config.Stages))
	reflected := make([]*reflection.Module, 0, len(config.Stages))
	for _, src := range config.Stages {
		mod, err := reflection.Parse(src.Code)
		if err != nil {
			m.Destroy(backend)
			return nil, err
		}
		if mod.Stages&src.Stage == 0 {
			m.Destroy(backend)
			return nil, fmt.Errorf("%w: binary declared as %s has entry points for %s", core.ErrUnsupportedShader, src.Stage, mod.Stages)
		}
		entry := src.EntryPoint
		if entry == "" {
			entry, _ = mod.EntryPoint(src.Stage)
		}
		module, err := backend.CreateShaderModule(src.Code)
		if err != nil {
			m.Destroy(backend)
			return nil, err
		}
		m.modules = append(m.modules, module)
		stages = append(stages, pipeline.ShaderStage{Stage: src.Stage, Module: module, EntryPoint: entry, Reflection: mod})
		reflected = append(reflected, mod)
	}

	bindings, blocks, err := mergeBindings(config.Stages, reflected)
	if err != nil {
		m.Destroy(backend)
		return nil, err
	}
	m.Bindings = bindings
	m.Blocks = blocks

	if len(bindings) > 0 {
		layout, err := backend.CreateDescriptorSetLayout(bindings)
		if err != nil {
			m.Destroy(backend)
			return nil, err
		}
		m.SetLayout = layout
	}

	p, err := pipeline.Build(backend, &pipeline.Description{
		Name:       config.Name,
		Stages:     stages,
		SetLayout:  m.SetLayout,
		Attributes: m.Attributes,
		Signature:  pass.Signature(),
		Raster:     raster,
	})
	if err != nil {
		m.Destroy(backend)
		return nil, err
	}
	m.Pipeline = p
	return m, nil
}

func checkStages(config *Config) error {
	var have metadata.ShaderStage
	for _, s := range config.Stages {
		if have&s.Stage != 0 {
			return fmt.Errorf("%w: stage %s given twice", core.ErrUnsupportedShader, s.Stage)
		}
		have |= s.Stage
	}
	if have&metadata.ShaderStageVertex == 0 {
		return fmt.Errorf("%w: no vertex stage", core.ErrUnsupportedShader)
	}
	switch config.Type {
	case TypeShadow:
		if have != metadata.ShaderStageVertex {
			return fmt.Errorf("%w: shadow materials only have a vertex stage, have %s", core.ErrUnsupportedShader, have)
		}
	case TypeShading, TypeSkybox:
		if have&metadata.ShaderStageFragment == 0 {
			return fmt.Errorf("%w: %s materials need a fragment stage", core.ErrUnsupportedShader, config.Type)
		}
	}
	return nil
}

// mergeBindings joins the bindings of every stage. A binding declared by
// several stages becomes one binding visible to all of them; declaring it
// with different kinds, or a uniform block with different sizes, fails.
func mergeBindings(sources []StageSource, modules []*reflection.Module) ([]metadata.DescriptorBinding, []*reflection.BindingLayout, error) {
	merged := make(map[uint32]*metadata.DescriptorBinding)
	blocks := make(map[uint32]*reflection.BindingLayout)

	for i, mod := range modules {
		stage := sources[i].Stage
		for _, b := range mod.Bindings {
			if b.Set != materialSet {
				return nil, nil, fmt.Errorf("%w: binding `%s` uses set %d, materials only bind set %d", core.ErrUnsupportedShader, b.Name, b.Set, materialSet)
			}
			if have, ok := merged[b.Binding]; ok {
				if have.Kind != b.Kind {
					return nil, nil, fmt.Errorf("%w: binding %d is %s (`%s`) in one stage and %s (`%s`) in %s", core.ErrBindingKindMismatch, b.Binding, have.Kind, have.Name, b.Kind, b.Name, stage)
				}
				if have.Count != b.Count {
					return nil, nil, fmt.Errorf("%w: binding %d has %d and %d elements", core.ErrBindingKindMismatch, b.Binding, have.Count, b.Count)
				}
				have.Stages |= stage
				continue
			}
			b.Stages = stage
			merged[b.Binding] = &b
		}
		for _, block := range mod.Blocks {
			if have, ok := blocks[block.Binding]; ok {
				if have.Size != block.Size {
					return nil, nil, fmt.Errorf("%w: uniform block at binding %d is %d bytes in one stage and %d in %s", core.ErrBindingKindMismatch, block.Binding, have.Size, block.Size, stage)
				}
				continue
			}
			blocks[block.Binding] = block
		}
	}

	bindings := make([]metadata.DescriptorBinding, 0, len(merged))
	for _, b := range merged {
		bindings = append(bindings, *b)
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].Binding < bindings[j].Binding })

	layouts := make([]*reflection.BindingLayout, 0, len(blocks))
	for _, b := range bindings {
		if l, ok := blocks[b.Binding]; ok {
			layouts = append(layouts, l)
		}
	}
	return bindings, layouts, nil
}

// Binding returns the descriptor binding called name.
func (m *Material) Binding(name string) (metadata.DescriptorBinding, bool) {
	for _, b := range m.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return metadata.DescriptorBinding{}, false
}

// Block returns the uniform block whose variable or type is called name.
func (m *Material) Block(name string) (*reflection.BindingLayout, bool) {
	for _, b := range m.Blocks {
		if b.Name == name || b.TypeName == name {
			return b, true
		}
	}
	return nil, false
}

// String dumps the bindings and block layouts.
func (m *Material) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "material %s (%s, queue %d)\n", m.Name, m.Type, m.Queue)
	for _, b := range m.Bindings {
		fmt.Fprintf(&sb, "  binding %d: %s %s x%d [%s]\n", b.Binding, b.Name, b.Kind, b.Count, b.Stages)
	}
	for _, l := range m.Blocks {
		sb.WriteString(l.String())
	}
	return sb.String()
}

// Destroy releases the pipeline, the set layout and the shader modules.
// Instances must be destroyed first.
func (m *Material) Destroy(backend metadata.RendererBackend) {
	if m.Pipeline != nil {
		m.Pipeline.Destroy(backend)
		m.Pipeline = nil
	}
	if m.SetLayout != 0 {
		backend.DestroyDescriptorSetLayout(m.SetLayout)
		m.SetLayout = 0
	}
	for _, module := range m.modules {
		backend.DestroyShaderModule(module)
	}
	m.modules = nil
}
