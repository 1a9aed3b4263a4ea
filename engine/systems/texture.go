package systems

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/material"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/resources"
)

/** @brief The name of the 1x1 white texture bound wherever nothing else is. */
const DefaultTextureName = "default"

type TextureSystemConfig struct {
	/** @brief The maximum number of textures that can be loaded at once. */
	MaxTextureCount uint32
}

/** @brief A sampled 2D image on the device. */
type Texture struct {
	Name   string
	Image  metadata.Image
	Width  uint32
	Height uint32

	referenceCount uint32
}

type TextureSystem struct {
	Config         *TextureSystemConfig
	DefaultTexture *Texture
	DefaultSampler metadata.Sampler
	// Registered textures by name.
	textures map[string]*Texture
	// sub systems
	jobSystem    *JobSystem
	assetManager *assets.AssetManager
	backend      metadata.RendererBackend
}

func NewTextureSystem(config *TextureSystemConfig, js *JobSystem, am *assets.AssetManager, backend metadata.RendererBackend) (*TextureSystem, error) {
	if config.MaxTextureCount == 0 {
		err := fmt.Errorf("func NewTextureSystem - config.MaxTextureCount must be > 0")
		core.LogError("%s", err.Error())
		return nil, err
	}
	return &TextureSystem{
		Config:       config,
		textures:     make(map[string]*Texture),
		jobSystem:    js,
		assetManager: am,
		backend:      backend,
	}, nil
}

// Initialize creates the default texture and sampler.
func (ts *TextureSystem) Initialize() error {
	white := []uint8{255, 255, 255, 255}
	t, err := ts.create(DefaultTextureName, 1, 1, white)
	if err != nil {
		return err
	}
	ts.DefaultTexture = t

	sampler, err := ts.backend.CreateSampler(&metadata.SamplerDescription{
		Name:        "default",
		Filter:      metadata.FilterLinear,
		AddressMode: metadata.AddressModeRepeat,
		Anisotropy:  1,
	})
	if err != nil {
		core.LogError("failed to create default sampler: %s", err.Error())
		return err
	}
	ts.DefaultSampler = sampler
	return nil
}

func (ts *TextureSystem) Shutdown() error {
	for name, t := range ts.textures {
		ts.backend.DestroyImage(t.Image)
		delete(ts.textures, name)
	}
	if ts.DefaultTexture != nil {
		ts.backend.DestroyImage(ts.DefaultTexture.Image)
		ts.DefaultTexture = nil
	}
	if ts.DefaultSampler != 0 {
		ts.backend.DestroySampler(ts.DefaultSampler)
		ts.DefaultSampler = 0
	}
	return nil
}

// Defaults returns what material instances bind to image and sampler
// bindings nobody set.
func (ts *TextureSystem) Defaults() material.Defaults {
	d := material.Defaults{Sampler: ts.DefaultSampler}
	if ts.DefaultTexture != nil {
		d.Texture = ts.DefaultTexture.Image
	}
	return d
}

func (ts *TextureSystem) create(name string, width, height uint32, pixels []uint8) (*Texture, error) {
	if uint32(len(pixels)) != 4*width*height {
		return nil, fmt.Errorf("texture `%s`: %d bytes of pixels for %dx%d RGBA", name, len(pixels), width, height)
	}
	img, err := ts.backend.CreateImage(&metadata.ImageDescription{
		Name:     name,
		Width:    width,
		Height:   height,
		Layers:   1,
		Format:   metadata.FormatR8G8B8A8Srgb,
		Samples:  metadata.SampleCount1,
		Usage:    metadata.ImageUsageSampled | metadata.ImageUsageTransferDst,
		ViewType: metadata.ImageViewType2D,
	})
	if err != nil {
		core.LogError("failed to create texture `%s`: %s", name, err.Error())
		return nil, err
	}
	if err := ts.backend.WriteImage(img, pixels); err != nil {
		ts.backend.DestroyImage(img)
		core.LogError("failed to upload texture `%s`: %s", name, err.Error())
		return nil, err
	}
	return &Texture{Name: name, Image: img, Width: width, Height: height}, nil
}

func (ts *TextureSystem) register(t *Texture) error {
	if uint32(len(ts.textures)) >= ts.Config.MaxTextureCount {
		ts.backend.DestroyImage(t.Image)
		err := fmt.Errorf("texture system is full (%d textures), cannot register `%s`", ts.Config.MaxTextureCount, t.Name)
		core.LogError("%s", err.Error())
		return err
	}
	ts.textures[t.Name] = t
	core.LogDebug("texture `%s` (%dx%d) created", t.Name, t.Width, t.Height)
	return nil
}

/**
 * @brief Creates a texture from RGBA8 pixels and registers it under name
 * with one reference.
 */
func (ts *TextureSystem) CreateTexture(name string, width, height uint32, pixels []uint8) (*Texture, error) {
	if _, ok := ts.textures[name]; ok || name == DefaultTextureName {
		return nil, fmt.Errorf("texture `%s` already exists", name)
	}
	t, err := ts.create(name, width, height, pixels)
	if err != nil {
		return nil, err
	}
	if err := ts.register(t); err != nil {
		return nil, err
	}
	t.referenceCount = 1
	return t, nil
}

/**
 * @brief Acquires a texture by name, loading it from the asset tree on
 * first use. Every call increments the reference count.
 */
func (ts *TextureSystem) Acquire(name string) (*Texture, error) {
	if name == DefaultTextureName {
		return ts.DefaultTexture, nil
	}
	if t, ok := ts.textures[name]; ok {
		t.referenceCount++
		return t, nil
	}
	res, err := ts.assetManager.LoadAsset(name, resources.ResourceTypeImage, &resources.ImageResourceParams{})
	if err != nil {
		return nil, err
	}
	defer ts.assetManager.UnloadAsset(res)
	return ts.fromResource(name, res)
}

func (ts *TextureSystem) fromResource(name string, res *resources.Resource) (*Texture, error) {
	data, ok := res.Data.(*resources.ImageResourceData)
	if !ok {
		return nil, fmt.Errorf("texture `%s` loaded as %T", name, res.Data)
	}
	t, err := ts.create(name, data.Width, data.Height, data.Pixels)
	if err != nil {
		return nil, err
	}
	if err := ts.register(t); err != nil {
		return nil, err
	}
	t.referenceCount = 1
	return t, nil
}

/**
 * @brief Decodes the named texture on a worker and uploads it on the next
 * JobSystem.Update. done receives the texture, or the default texture when
 * loading failed.
 */
func (ts *TextureSystem) AcquireAsync(name string, done func(*Texture)) {
	if t, ok := ts.textures[name]; ok || name == DefaultTextureName {
		if ok {
			t.referenceCount++
		} else {
			t = ts.DefaultTexture
		}
		done(t)
		return
	}
	ts.jobSystem.Submit(JobTask{
		Name: "texture:" + name,
		Run: func() (interface{}, error) {
			return ts.assetManager.LoadAsset(name, resources.ResourceTypeImage, &resources.ImageResourceParams{})
		},
		OnComplete: func(result interface{}) {
			res := result.(*resources.Resource)
			defer ts.assetManager.UnloadAsset(res)
			// Another request for the same name may have finished first.
			if t, ok := ts.textures[name]; ok {
				t.referenceCount++
				done(t)
				return
			}
			t, err := ts.fromResource(name, res)
			if err != nil {
				done(ts.DefaultTexture)
				return
			}
			done(t)
		},
		OnFailure: func(err error) {
			core.LogWarn("texture `%s` failed to load, using the default texture", name)
			done(ts.DefaultTexture)
		},
	})
}

/**
 * @brief Releases a texture by name. Its image is destroyed once the
 * reference count reaches zero; the caller must make sure no frame in
 * flight still samples it.
 */
func (ts *TextureSystem) Release(name string) {
	if name == DefaultTextureName {
		return
	}
	t, ok := ts.textures[name]
	if !ok {
		core.LogWarn("texture `%s` is not registered, nothing was done", name)
		return
	}
	t.referenceCount--
	if t.referenceCount == 0 {
		ts.backend.DestroyImage(t.Image)
		delete(ts.textures, name)
		core.LogDebug("texture `%s` destroyed", name)
	}
}

// Get returns a registered texture without touching its reference count.
func (ts *TextureSystem) Get(name string) (*Texture, bool) {
	if name == DefaultTextureName {
		return ts.DefaultTexture, ts.DefaultTexture != nil
	}
	t, ok := ts.textures[name]
	return t, ok
}
