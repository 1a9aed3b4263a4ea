package systems

import (
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// RendererSystem owns the frame orchestrator and the device it records
// against.
type RendererSystem struct {
	backend        metadata.RendererBackend
	renderer       *renderer.Renderer
	framesInFlight uint32

	// The current window framebuffer size, as last reported by OnResize.
	FramebufferWidth  uint32
	FramebufferHeight uint32
}

func NewRendererSystem(backend metadata.RendererBackend, cfg *config.Config) (*RendererSystem, error) {
	samples := metadata.SampleCount(cfg.Renderer.MSAASamples)
	if limit := backend.MaxSampleCount(); samples > limit {
		core.LogWarn("%d MSAA samples requested, device supports %d", samples, limit)
		samples = limit
	}
	rc := renderer.ConfigFrom(cfg)
	rc.Samples = samples
	return &RendererSystem{
		backend:           backend,
		renderer:          renderer.New(backend, rc),
		framesInFlight:    cfg.Renderer.FramesInFlight,
		FramebufferWidth:  cfg.Window.Width,
		FramebufferHeight: cfg.Window.Height,
	}, nil
}

func (r *RendererSystem) Initialize(window renderer.Window) error {
	return r.renderer.Init(window, r.framesInFlight)
}

func (r *RendererSystem) Shutdown() error {
	return r.renderer.Shutdown()
}

func (r *RendererSystem) OnResize(width, height uint32) {
	r.FramebufferWidth = width
	r.FramebufferHeight = height
	r.renderer.NotifyResize(width, height)
}

/**
 * @brief Draws one frame.
 *
 * @param packet The drawables, view and timing of the frame.
 * @return An error only when the device can not continue.
 */
func (r *RendererSystem) DrawFrame(packet *renderer.RenderPacket) error {
	return r.renderer.Render(packet)
}

func (r *RendererSystem) Renderer() *renderer.Renderer {
	return r.renderer
}

func (r *RendererSystem) Backend() metadata.RendererBackend {
	return r.backend
}

// AspectRatio of the framebuffer, 1 while it has no area.
func (r *RendererSystem) AspectRatio() float32 {
	if r.FramebufferHeight == 0 {
		return 1
	}
	return float32(r.FramebufferWidth) / float32(r.FramebufferHeight)
}
