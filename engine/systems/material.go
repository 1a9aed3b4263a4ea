package systems

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/material"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
	"github.com/spaghettifunk/prism/engine/resources"
)

type MaterialSystemConfig struct {
	/** @brief The maximum number of material templates loaded at once. */
	MaxMaterialCount uint32
}

type materialInstance struct {
	instance *material.Instance
	textures []string
}

// MaterialSystem builds material templates from definitions in the asset
// tree, caches them by name, and hands out registered instances.
type MaterialSystem struct {
	Config    *MaterialSystemConfig
	templates map[string]*material.Material
	instances map[renderer.MaterialHandle]*materialInstance
	// sub systems
	assetManager  *assets.AssetManager
	shaderSystem  *ShaderSystem
	textureSystem *TextureSystem
	renderer      *renderer.Renderer
}

func NewMaterialSystem(config *MaterialSystemConfig, am *assets.AssetManager, ss *ShaderSystem, ts *TextureSystem, r *renderer.Renderer) (*MaterialSystem, error) {
	if config.MaxMaterialCount == 0 {
		err := fmt.Errorf("func NewMaterialSystem - config.MaxMaterialCount must be > 0")
		core.LogError("%s", err.Error())
		return nil, err
	}
	return &MaterialSystem{
		Config:        config,
		templates:     make(map[string]*material.Material),
		instances:     make(map[renderer.MaterialHandle]*materialInstance),
		assetManager:  am,
		shaderSystem:  ss,
		textureSystem: ts,
		renderer:      r,
	}, nil
}

// Shutdown releases every instance and destroys the templates.
func (ms *MaterialSystem) Shutdown() error {
	for h := range ms.instances {
		if err := ms.Release(h); err != nil {
			return err
		}
	}
	for name, m := range ms.templates {
		m.Destroy(ms.renderer.Backend())
		delete(ms.templates, name)
	}
	return nil
}

// Template returns a loaded template by name.
func (ms *MaterialSystem) Template(name string) (*material.Material, bool) {
	m, ok := ms.templates[name]
	return m, ok
}

/**
 * @brief Builds a template from config and caches it under config.Name. A
 * template of the same name already loaded is returned instead, with a
 * warning.
 */
func (ms *MaterialSystem) BuildTemplate(config *material.Config) (*material.Material, error) {
	if m, ok := ms.templates[config.Name]; ok {
		core.LogWarn("material `%s` is already loaded, keeping the existing one", config.Name)
		return m, nil
	}
	if uint32(len(ms.templates)) >= ms.Config.MaxMaterialCount {
		err := fmt.Errorf("material system is full (%d materials), cannot load `%s`", ms.Config.MaxMaterialCount, config.Name)
		core.LogError("%s", err.Error())
		return nil, err
	}
	graph := ms.renderer.Graph()
	if graph == nil {
		return nil, core.ErrNotInitialized
	}
	pass := graph.Forward.RenderPass
	if config.Type == material.TypeShadow {
		pass = graph.Shadow.RenderPass
	}
	m, err := material.New(ms.renderer.Backend(), pass, config)
	if err != nil {
		return nil, err
	}
	ms.templates[config.Name] = m
	return m, nil
}

/**
 * @brief Loads the named material definition, building its template on
 * first use, and returns a registered instance with the definition's
 * uniforms and textures applied.
 */
func (ms *MaterialSystem) Acquire(name string) (renderer.MaterialHandle, error) {
	res, err := ms.assetManager.LoadAsset(name, resources.ResourceTypeMaterial, nil)
	if err != nil {
		return 0, err
	}
	defer ms.assetManager.UnloadAsset(res)
	def, ok := res.Data.(*resources.MaterialDefinition)
	if !ok {
		return 0, fmt.Errorf("material `%s` loaded as %T", name, res.Data)
	}
	if def.Name == "" {
		def.Name = name
	}
	return ms.FromDefinition(def)
}

// FromDefinition is Acquire for a definition already in memory.
func (ms *MaterialSystem) FromDefinition(def *resources.MaterialDefinition) (renderer.MaterialHandle, error) {
	m, ok := ms.templates[def.Name]
	if !ok {
		config, err := ms.configFrom(def)
		if err != nil {
			core.LogError("material `%s`: %s", def.Name, err.Error())
			return 0, err
		}
		if m, err = ms.BuildTemplate(config); err != nil {
			return 0, err
		}
	}

	h, inst, err := ms.NewInstance(m, "")
	if err != nil {
		return 0, err
	}

	names := make([]string, 0, len(def.Uniforms))
	for path := range def.Uniforms {
		names = append(names, path)
	}
	sort.Strings(names)
	for _, path := range names {
		v, err := loaders.UniformValue(def.Uniforms[path])
		if err != nil {
			core.LogWarn("material `%s`: uniform `%s`: %s", def.Name, path, err.Error())
			continue
		}
		// SetUniform logs and drops bad writes.
		_ = inst.SetUniform(path, v)
	}

	bindings := make([]string, 0, len(def.Textures))
	for b := range def.Textures {
		bindings = append(bindings, b)
	}
	sort.Strings(bindings)
	for _, binding := range bindings {
		if err := ms.SetTexture(h, binding, def.Textures[binding]); err != nil {
			core.LogWarn("material `%s`: %s", def.Name, err.Error())
		}
	}
	return h, nil
}

/**
 * @brief Creates an instance of m with one slot per frame in flight and
 * registers it with the renderer.
 */
func (ms *MaterialSystem) NewInstance(m *material.Material, name string) (renderer.MaterialHandle, *material.Instance, error) {
	inst, err := material.NewInstance(ms.renderer.Backend(), m, ms.renderer.FramesInFlight(), ms.textureSystem.Defaults(), name)
	if err != nil {
		return 0, nil, err
	}
	h, err := ms.renderer.RegisterMaterial(inst)
	if err != nil {
		inst.Destroy()
		return 0, nil, err
	}
	ms.instances[h] = &materialInstance{instance: inst}
	return h, inst, nil
}

// SetTexture binds the named texture to an image binding of the instance,
// falling back to the default texture when it can not be loaded.
func (ms *MaterialSystem) SetTexture(h renderer.MaterialHandle, binding, texture string) error {
	mi, ok := ms.instances[h]
	if !ok {
		return fmt.Errorf("%w: material %d", core.ErrInvalidHandle, h)
	}
	t, err := ms.textureSystem.Acquire(texture)
	if err != nil {
		core.LogWarn("texture `%s` for `%s` unavailable, using the default", texture, binding)
		t = ms.textureSystem.DefaultTexture
	} else if texture != DefaultTextureName {
		mi.textures = append(mi.textures, texture)
	}
	return mi.instance.SetTexture(binding, t.Image)
}

// Release unregisters the instance and drops its texture references. The
// template stays cached until Shutdown.
func (ms *MaterialSystem) Release(h renderer.MaterialHandle) error {
	mi, ok := ms.instances[h]
	if !ok {
		return fmt.Errorf("%w: material %d", core.ErrInvalidHandle, h)
	}
	if err := ms.renderer.ReleaseMaterial(h); err != nil {
		return err
	}
	delete(ms.instances, h)
	for _, name := range mi.textures {
		ms.textureSystem.Release(name)
	}
	return nil
}

func (ms *MaterialSystem) configFrom(def *resources.MaterialDefinition) (*material.Config, error) {
	config := &material.Config{Name: def.Name, Queue: material.Queue(def.Queue)}

	switch def.Type {
	case "", "shading":
		config.Type = material.TypeShading
	case "shadow":
		config.Type = material.TypeShadow
	case "skybox":
		config.Type = material.TypeSkybox
	default:
		return nil, fmt.Errorf("unknown material type `%s`", def.Type)
	}

	raster := material.DefaultRaster(config.Type)
	switch def.Blend {
	case "", "opaque":
		raster.Blend = metadata.BlendModeOpaque
	case "alpha":
		raster.Blend = metadata.BlendModeAlpha
	case "additive":
		raster.Blend = metadata.BlendModeAdditive
	default:
		return nil, fmt.Errorf("unknown blend mode `%s`", def.Blend)
	}
	config.Raster = &raster

	for _, name := range def.Attributes {
		a, ok := pipeline.MatchAttribute(name)
		if !ok {
			return nil, fmt.Errorf("%w: `%s`", core.ErrUnknownVertexAttribute, name)
		}
		config.Attributes = config.Attributes.With(a)
	}

	for _, s := range def.Stages {
		stage := metadata.ShaderStageVertex
		if s.Stage == "fragment" {
			stage = metadata.ShaderStageFragment
		}
		code, err := ms.shaderSystem.Acquire(s.Shader)
		if err != nil {
			return nil, err
		}
		config.Stages = append(config.Stages, material.StageSource{Stage: stage, Code: code, EntryPoint: s.EntryPoint})
	}
	return config, nil
}
