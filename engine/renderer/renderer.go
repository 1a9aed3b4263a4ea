package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/containers"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/material"
	"github.com/spaghettifunk/prism/engine/renderer/mesh"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/renderpass"
)

// Window is the part of the platform window the renderer looks at.
type Window interface {
	// FramebufferExtent is the drawable size in pixels, zero while minimized
	// on most platforms.
	FramebufferExtent() metadata.Extent2D
	Minimized() bool
}

type Config struct {
	Samples       metadata.SampleCount
	ClearColor    [4]float32
	ShadowMapSize uint32
	Lights        renderpass.LightCounts
	// IdleSleep is how long Render sleeps when there is nothing to draw into.
	IdleSleep time.Duration
}

// ConfigFrom maps the on-disk configuration to the renderer's.
func ConfigFrom(cfg *config.Config) *Config {
	return &Config{
		Samples:       metadata.SampleCount(cfg.Renderer.MSAASamples),
		ClearColor:    cfg.Renderer.ClearColor,
		ShadowMapSize: cfg.Shadows.MapSize,
		Lights: renderpass.LightCounts{
			Directional: cfg.Shadows.MaxDirectionalLights,
			Spot:        cfg.Shadows.MaxSpotLights,
			Point:       cfg.Shadows.MaxPointLights,
		},
		IdleSleep: cfg.Renderer.IdleSleep(),
	}
}

// Renderer drives the acquire, record, submit and present loop over N frame
// slots and owns the meshes and material instances drawables refer to. All
// methods must be called from the render goroutine.
type Renderer struct {
	backend metadata.RendererBackend
	config  *Config
	window  Window

	swapchain *metadata.Swapchain
	graph     *renderpass.Graph
	frames    *containers.Ring[*frameSlot]
	state     FrameState

	meshes    *core.Arena[MeshHandle, *mesh.Mesh]
	materials *core.Arena[MaterialHandle, *material.Instance]

	resizePending bool
	push          pushWriter
	queue         []queuedDraw
	sleep         func(time.Duration)
}

func New(backend metadata.RendererBackend, config *Config) *Renderer {
	return &Renderer{
		backend:   backend,
		config:    config,
		meshes:    core.NewArena[MeshHandle, *mesh.Mesh](64),
		materials: core.NewArena[MaterialHandle, *material.Instance](64),
		sleep:     time.Sleep,
	}
}

// Init creates the swapchain, the render graph and framesInFlight frame
// slots.
func (r *Renderer) Init(window Window, framesInFlight uint32) error {
	if framesInFlight == 0 {
		return fmt.Errorf("renderer needs at least one frame in flight")
	}
	r.window = window

	extent := r.surfaceExtent()
	if extent.IsZero() {
		err := fmt.Errorf("cannot initialize the renderer on a window without a drawable area")
		core.LogError("%s", err.Error())
		return err
	}
	sc, err := r.backend.CreateSwapchain(extent)
	if err != nil {
		core.LogError("failed to create swapchain: %s", err.Error())
		return err
	}
	r.swapchain = sc

	graph, err := renderpass.NewGraph(r.backend, sc, &renderpass.Config{
		Samples:        r.config.Samples,
		ClearColor:     r.config.ClearColor,
		ShadowMapSize:  r.config.ShadowMapSize,
		Lights:         r.config.Lights,
		FramesInFlight: framesInFlight,
	})
	if err != nil {
		r.backend.DestroySwapchain()
		return err
	}
	r.graph = graph

	slots := make([]*frameSlot, 0, framesInFlight)
	for i := uint32(0); i < framesInFlight; i++ {
		s, err := newFrameSlot(r.backend, i)
		if err != nil {
			for _, s := range slots {
				s.destroy(r.backend)
			}
			r.graph.Destroy()
			r.backend.DestroySwapchain()
			core.LogError("failed to create frame slot %d: %s", i, err.Error())
			return err
		}
		slots = append(slots, s)
	}
	r.frames = containers.NewRing(slots)
	r.state = FrameIdle

	core.LogInfo("renderer initialized: %dx%d, %d swap images, %d frames in flight",
		sc.Extent.Width, sc.Extent.Height, len(sc.Images), framesInFlight)
	return nil
}

func (r *Renderer) initialized() bool {
	return r.frames != nil
}

// Shutdown waits for the device and destroys everything the renderer owns,
// including the registered meshes and material instances. Material templates
// belong to whoever created them.
func (r *Renderer) Shutdown() error {
	if !r.initialized() {
		return nil
	}
	if err := r.backend.WaitIdle(); err != nil {
		core.LogError("failed to wait for the device on shutdown: %s", err.Error())
		return err
	}
	r.materials.Each(func(h MaterialHandle, inst *material.Instance) {
		inst.Destroy()
		r.materials.Remove(h)
	})
	r.meshes.Each(func(h MeshHandle, m *mesh.Mesh) {
		m.Destroy(r.backend)
		r.meshes.Remove(h)
	})
	for i := 0; i < r.frames.Len(); i++ {
		r.frames.At(i).destroy(r.backend)
	}
	r.frames = nil
	r.graph.Destroy()
	r.graph = nil
	r.backend.DestroySwapchain()
	r.swapchain = nil
	core.LogInfo("renderer shut down")
	return nil
}

// NotifyResize records that the window changed size. The swapchain is
// rebuilt at the start of the next frame that has something to draw into.
func (r *Renderer) NotifyResize(width, height uint32) {
	core.LogDebug("resize to %dx%d requested", width, height)
	r.resizePending = true
}

// Backend returns the device the renderer records against.
func (r *Renderer) Backend() metadata.RendererBackend { return r.backend }

// Graph returns the render passes materials are built against.
func (r *Renderer) Graph() *renderpass.Graph { return r.graph }

// Swapchain returns the current swapchain. It changes on every resize.
func (r *Renderer) Swapchain() *metadata.Swapchain { return r.swapchain }

// State returns where the frame loop currently is.
func (r *Renderer) State() FrameState { return r.state }

// FramesInFlight returns the number of frame slots.
func (r *Renderer) FramesInFlight() uint32 {
	if !r.initialized() {
		return 0
	}
	return uint32(r.frames.Len())
}

// FrameCounter returns the number of frames submitted so far.
func (r *Renderer) FrameCounter() uint64 {
	if !r.initialized() {
		return 0
	}
	return r.frames.Counter()
}

// SetMaxLights resizes the shadow map behind a device idle barrier.
func (r *Renderer) SetMaxLights(lights renderpass.LightCounts) error {
	if !r.initialized() {
		return core.ErrNotInitialized
	}
	if err := r.graph.SetMaxLights(lights); err != nil {
		return err
	}
	r.materials.Each(func(_ MaterialHandle, inst *material.Instance) {
		r.bindShadowMap(inst)
	})
	return nil
}

func (r *Renderer) surfaceExtent() metadata.Extent2D {
	if e := r.backend.SurfaceExtent(); !e.IsZero() {
		return e
	}
	return r.window.FramebufferExtent()
}

// drawable reports whether there is a surface to render into at all.
func (r *Renderer) drawable() bool {
	if r.window.Minimized() || r.window.FramebufferExtent().IsZero() {
		return false
	}
	return !r.backend.SurfaceExtent().IsZero()
}

// resize rebuilds the swapchain and the forward framebuffers behind a device
// idle barrier. Meshes, pipelines and shadow resources are untouched.
func (r *Renderer) resize() error {
	extent := r.surfaceExtent()
	if extent.IsZero() {
		return nil
	}
	if err := r.backend.WaitIdle(); err != nil {
		return err
	}
	sc, err := r.backend.CreateSwapchain(extent)
	if err != nil {
		core.LogError("failed to recreate swapchain: %s", err.Error())
		return err
	}
	r.swapchain = sc
	if err := r.graph.OnSwapchainRecreated(sc); err != nil {
		return err
	}
	r.resizePending = false
	core.LogDebug("swapchain recreated at %dx%d (generation %d)", sc.Extent.Width, sc.Extent.Height, sc.Generation)
	return nil
}

func stale(err error) bool {
	return errors.Is(err, core.ErrSwapchainOutOfDate) || errors.Is(err, core.ErrSwapchainSuboptimal)
}

// fail returns to Idle and passes err through, logging it when it is fatal
// for the device.
func (r *Renderer) fail(stage string, err error) error {
	r.state = FrameIdle
	err = fmt.Errorf("%s: %w", stage, err)
	if core.IsDeviceFatal(err) {
		core.LogError("device lost during %s", err.Error())
	}
	return err
}

// Render produces one frame. A minimized window or a zero extent skips the
// frame after a short sleep, and a stale swapchain is rebuilt without
// advancing the frame counter; both return nil. Device loss and out of
// memory are returned wrapped.
func (r *Renderer) Render(packet *RenderPacket) error {
	if !r.initialized() {
		return core.ErrNotInitialized
	}
	if !r.drawable() {
		r.sleep(r.config.IdleSleep)
		return nil
	}
	if r.resizePending {
		if err := r.resize(); err != nil {
			return r.fail("resize", err)
		}
	}

	if err := r.prepare(packet); err != nil {
		return r.fail("upload", err)
	}

	i, slot := r.frames.Current()

	// Acquiring
	r.state = FrameAcquiring
	if slot.submitted {
		if err := r.backend.WaitForFence(slot.fence); err != nil {
			return r.fail("fence wait", err)
		}
	}
	imageIndex, err := r.backend.AcquireNextImage(slot.imageAcquired)
	if err != nil {
		if stale(err) {
			r.state = FrameIdle
			if err := r.resize(); err != nil {
				return r.fail("resize", err)
			}
			return nil
		}
		return r.fail("acquire", err)
	}

	// Recording
	r.state = FrameRecording
	if err := r.record(uint32(i), slot, imageIndex, packet); err != nil {
		return r.fail("record", err)
	}

	// Submitted
	if err := r.backend.ResetFence(slot.fence); err != nil {
		return r.fail("fence reset", err)
	}
	slot.submitted = false
	if err := r.backend.Submit(&metadata.SubmitInfo{
		CommandBuffer: slot.commandBuffer,
		WaitSemaphore: slot.imageAcquired,
		WaitStage:     metadata.PipelineStageColorAttachmentOutput,
		Signal:        slot.renderFinished,
		Fence:         slot.fence,
	}); err != nil {
		return r.fail("submit", err)
	}
	slot.submitted = true
	r.state = FrameSubmitted

	// Presenting
	r.state = FramePresenting
	presentErr := r.backend.Present(imageIndex, slot.renderFinished)
	r.frames.Advance()
	r.state = FrameIdle
	if presentErr != nil {
		if stale(presentErr) {
			if err := r.resize(); err != nil {
				return r.fail("resize", err)
			}
			return nil
		}
		return r.fail("present", presentErr)
	}
	return nil
}
