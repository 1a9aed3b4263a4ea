package renderpass

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type Config struct {
	Samples        metadata.SampleCount
	ClearColor     [4]float32
	ShadowMapSize  uint32
	Lights         LightCounts
	FramesInFlight uint32
}

// Graph owns the two passes a frame records: the shadow pass first, then
// the forward pass into the acquired swap image.
type Graph struct {
	// ID tags the images of this graph in debug names.
	ID      uuid.UUID
	Forward *ForwardPass
	Shadow  *ShadowPass

	backend metadata.RendererBackend
}

func NewGraph(backend metadata.RendererBackend, swapchain *metadata.Swapchain, config *Config) (*Graph, error) {
	g := &Graph{ID: uuid.New(), backend: backend}
	label := g.ID.String()[:8]

	shadow, err := newShadowPass(backend, label, config.ShadowMapSize, config.Lights, config.FramesInFlight)
	if err != nil {
		return nil, err
	}
	g.Shadow = shadow

	forward, err := newForwardPass(backend, label, swapchain, config.Samples, config.ClearColor)
	if err != nil {
		g.Shadow.Destroy()
		return nil, err
	}
	g.Forward = forward

	core.LogInfo("render graph %s created: forward %dx%d with %d samples, shadow map %d with %d layers",
		label, forward.Extent.Width, forward.Extent.Height, forward.Samples, config.ShadowMapSize, config.Lights.Layers())
	return g, nil
}

// Framebuffer returns the forward framebuffer bound to swap image i.
func (g *Graph) Framebuffer(imageIndex uint32) (metadata.Framebuffer, error) {
	return g.Forward.Framebuffer(imageIndex)
}

// ShadowFramebuffer returns the shadow framebuffer of frame slot i.
func (g *Graph) ShadowFramebuffer(slot uint32) (metadata.Framebuffer, error) {
	return g.Shadow.Framebuffer(slot)
}

// OnSwapchainRecreated rebuilds the forward framebuffers. Shadow resources
// do not depend on the swapchain and are left alone.
func (g *Graph) OnSwapchainRecreated(swapchain *metadata.Swapchain) error {
	return g.Forward.Recreate(swapchain)
}

// SetMaxLights resizes the shadow map.
func (g *Graph) SetMaxLights(lights LightCounts) error {
	return g.Shadow.SetMaxLights(lights)
}

func (g *Graph) Destroy() {
	if g.Forward != nil {
		g.Forward.Destroy()
		g.Forward = nil
	}
	if g.Shadow != nil {
		g.Shadow.Destroy()
		g.Shadow = nil
	}
}
