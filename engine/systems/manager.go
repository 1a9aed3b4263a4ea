package systems

import (
	"runtime"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type SystemManager struct {
	AssetManager   *assets.AssetManager
	CameraSystem   *CameraSystem
	JobSystem      *JobSystem
	RendererSystem *RendererSystem
	ShaderSystem   *ShaderSystem
	TextureSystem  *TextureSystem
	MaterialSystem *MaterialSystem
	MeshSystem     *MeshSystem
}

func NewSystemManager(cfg *config.Config, backend metadata.RendererBackend) (*SystemManager, error) {
	am := assets.NewAssetManager()
	if err := am.Initialize(cfg.Assets.Dir); err != nil {
		return nil, err
	}
	js, err := NewJobSystem(max(1, runtime.NumCPU()/2), 64)
	if err != nil {
		return nil, err
	}
	cs, err := NewCameraSystem(&CameraSystemConfig{
		MaxCameraCount: 100,
	})
	if err != nil {
		return nil, err
	}
	rs, err := NewRendererSystem(backend, cfg)
	if err != nil {
		return nil, err
	}
	ss, err := NewShaderSystem(am)
	if err != nil {
		return nil, err
	}
	ts, err := NewTextureSystem(&TextureSystemConfig{
		MaxTextureCount: 1000,
	}, js, am, backend)
	if err != nil {
		return nil, err
	}
	ms, err := NewMaterialSystem(&MaterialSystemConfig{
		MaxMaterialCount: 1000,
	}, am, ss, ts, rs.Renderer())
	if err != nil {
		return nil, err
	}
	mesh, err := NewMeshSystem(rs.Renderer())
	if err != nil {
		return nil, err
	}
	return &SystemManager{
		AssetManager:   am,
		CameraSystem:   cs,
		JobSystem:      js,
		RendererSystem: rs,
		ShaderSystem:   ss,
		TextureSystem:  ts,
		MaterialSystem: ms,
		MeshSystem:     mesh,
	}, nil
}

// Initialize brings up the renderer on window and creates the default
// resources.
func (sm *SystemManager) Initialize(window renderer.Window) error {
	if err := sm.RendererSystem.Initialize(window); err != nil {
		return err
	}
	return sm.TextureSystem.Initialize()
}

// Update runs the completions of background jobs.
func (sm *SystemManager) Update() {
	sm.JobSystem.Update()
}

func (sm *SystemManager) Shutdown() error {
	// Nothing may be destroyed while a frame still reads it.
	if err := sm.RendererSystem.Backend().WaitIdle(); err != nil {
		core.LogError("failed to wait for the device: %s", err.Error())
		return err
	}
	if err := sm.JobSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.MaterialSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.MeshSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.TextureSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.ShaderSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.CameraSystem.Shutdown(); err != nil {
		return err
	}
	return sm.RendererSystem.Shutdown()
}
