package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/platform"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything
	EngineStageShutdown
)

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	config        *config.Config
	platform      *platform.Platform
	backend       *vulkan.Backend
	systemManager *systems.SystemManager
	clock         *core.Clock
	metrics       *core.Metrics
	lastTime      float64

	stopRequested atomic.Bool
	width         uint32
	height        uint32
}

func New(g *Game) (*Engine, error) {
	cfg := config.Default()
	if path := g.ApplicationConfig.ConfigPath; path != "" {
		c, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if g.ApplicationConfig.Name != "" {
		cfg.Window.Title = g.ApplicationConfig.Name
	}
	if g.ApplicationConfig.LogLevel != "" {
		cfg.Log.Level = g.ApplicationConfig.LogLevel
	}
	core.SetLogLevel(cfg.Log.Level)

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		platform:     platform.New(),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine initialized twice")
	}
	e.currentStage = EngineStageInitializing
	w := e.config.Window

	if err := e.platform.Startup(w.Title, w.X, w.Y, w.Width, w.Height); err != nil {
		return err
	}
	e.platform.OnResize = e.onResized
	e.platform.OnKey = e.onKey

	e.backend = vulkan.New(e.platform, vulkan.Config{
		ApplicationName: w.Title,
		Validation:      e.config.Renderer.Validation,
		VSync:           e.config.Renderer.VSync,
	})
	if err := e.backend.Initialize(); err != nil {
		return err
	}

	sm, err := systems.NewSystemManager(e.config, e.backend)
	if err != nil {
		return err
	}
	if err := sm.Initialize(e.platform); err != nil {
		return err
	}
	e.systemManager = sm
	e.gameInstance.SystemManager = sm

	if err := e.gameInstance.FnInitialize(); err != nil {
		return err
	}

	extent := e.platform.FramebufferExtent()
	e.width, e.height = extent.Width, extent.Height
	if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
		return err
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Stop asks the main loop to exit after the current frame. Safe to call from
// any goroutine.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.ErrNotInitialized
	}
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	var fpsLogTimer float64
	for !e.stopRequested.Load() {
		if !e.platform.PumpMessages() {
			break
		}
		e.systemManager.Update()

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := e.platform.GetAbsoluteTime()

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("game update failed, shutting down: %s", err.Error())
			return err
		}

		packet := &renderer.RenderPacket{
			DeltaTime: delta,
			Time:      currentTime,
		}
		if err := e.gameInstance.FnRender(packet, delta); err != nil {
			core.LogError("game render failed, shutting down: %s", err.Error())
			return err
		}
		if err := e.systemManager.RendererSystem.DrawFrame(packet); err != nil {
			if core.IsDeviceFatal(err) {
				core.LogError("%s", err.Error())
				return err
			}
			core.LogWarn("frame dropped: %s", err.Error())
		}

		e.metrics.Update(e.platform.GetAbsoluteTime() - frameStartTime)
		fpsLogTimer += delta
		if fpsLogTimer >= 5 {
			fps, ms := e.metrics.Frame()
			core.LogDebug("%.0f fps, %.2f ms/frame, frame %d", fps, ms, e.systemManager.RendererSystem.Renderer().FrameCounter())
			fpsLogTimer = 0
		}
		e.lastTime = currentTime
	}
	return nil
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.clock.Stop()

	if e.systemManager != nil && e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError("game shutdown failed: %s", err.Error())
		}
	}
	if e.systemManager != nil {
		if err := e.systemManager.Shutdown(); err != nil {
			core.LogError("system shutdown failed: %s", err.Error())
		}
	}
	if e.backend != nil {
		if err := e.backend.Shutdown(); err != nil {
			core.LogError("backend shutdown failed: %s", err.Error())
		}
	}
	if err := e.platform.Shutdown(); err != nil {
		return err
	}
	e.currentStage = EngineStageShutdown
	core.LogInfo("engine shut down")
	return nil
}

func (e *Engine) onResized(width, height uint32) {
	if width == e.width && height == e.height {
		return
	}
	e.width, e.height = width, height
	if width == 0 || height == 0 {
		core.LogDebug("window minimized, suspending rendering")
	}
	if e.systemManager != nil {
		e.systemManager.RendererSystem.OnResize(width, height)
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError("game resize failed: %s", err.Error())
		}
	}
}

func (e *Engine) onKey(key glfw.Key, action glfw.Action) {
	if key == glfw.KeyEscape && action == glfw.Press {
		e.platform.RequestClose()
	}
}
