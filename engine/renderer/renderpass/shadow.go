package renderpass

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/** @brief The maximum number of shadow casting lights of each kind. */
type LightCounts struct {
	Directional uint32
	Spot        uint32
	Point       uint32
}

// Layers returns the number of shadow map layers: one per directional and
// spot light and six per point light.
func (l LightCounts) Layers() uint32 {
	return l.Directional + l.Spot + 6*l.Point
}

// ShadowPass renders depth into one layered image shared by every shadow
// casting light. It has one framebuffer per frame in flight, independent of
// the swapchain.
type ShadowPass struct {
	*RenderPass
	Lights         LightCounts
	MapSize        uint32
	DepthFormat    metadata.Format
	FramesInFlight uint32
	label          string
	image          metadata.Image
}

func shadowDescription(depth metadata.Format) *metadata.RenderPassDescription {
	return &metadata.RenderPassDescription{
		Name: "shadow",
		Attachments: []metadata.AttachmentDescription{{
			Format:         depth,
			Samples:        metadata.SampleCount1,
			LoadOp:         metadata.LoadOpClear,
			StoreOp:        metadata.StoreOpStore,
			StencilLoadOp:  metadata.LoadOpDontCare,
			StencilStoreOp: metadata.StoreOpDontCare,
			InitialLayout:  metadata.ImageLayoutUndefined,
			FinalLayout:    metadata.ImageLayoutShaderReadOnly,
		}},
		Subpasses: []metadata.SubpassDescription{{
			DepthAttachment: &metadata.AttachmentReference{Attachment: 0, Layout: metadata.ImageLayoutDepthStencilAttachment},
		}},
		Dependencies: []metadata.SubpassDependency{
			{
				SrcSubpass:    metadata.SubpassExternal,
				DstSubpass:    0,
				SrcStageMask:  metadata.PipelineStageFragmentShader,
				DstStageMask:  metadata.PipelineStageEarlyFragmentTests,
				SrcAccessMask: metadata.AccessShaderRead,
				DstAccessMask: metadata.AccessDepthStencilAttachmentWrite,
			},
			{
				SrcSubpass:    0,
				DstSubpass:    metadata.SubpassExternal,
				SrcStageMask:  metadata.PipelineStageLateFragmentTests,
				DstStageMask:  metadata.PipelineStageFragmentShader,
				SrcAccessMask: metadata.AccessDepthStencilAttachmentWrite,
				DstAccessMask: metadata.AccessShaderRead,
			},
		},
	}
}

func newShadowPass(backend metadata.RendererBackend, label string, mapSize uint32, lights LightCounts, framesInFlight uint32) (*ShadowPass, error) {
	depth := backend.DepthFormat()
	rp, err := newRenderPass(backend, shadowDescription(depth), metadata.SampleCount1, []metadata.ClearValue{{Depth: 1}})
	if err != nil {
		return nil, err
	}
	sp := &ShadowPass{
		RenderPass:     rp,
		Lights:         lights,
		MapSize:        mapSize,
		DepthFormat:    depth,
		FramesInFlight: framesInFlight,
		label:          label,
	}
	if err := sp.createTargets(); err != nil {
		sp.Destroy()
		return nil, err
	}
	return sp, nil
}

// Enabled reports whether any light can cast a shadow.
func (sp *ShadowPass) Enabled() bool {
	return sp.Lights.Layers() > 0
}

// Image is the layered shadow map, zero while no light can cast a shadow.
func (sp *ShadowPass) Image() metadata.Image {
	return sp.image
}

func (sp *ShadowPass) createTargets() error {
	layers := sp.Lights.Layers()
	sp.Extent = metadata.Extent2D{Width: sp.MapSize, Height: sp.MapSize}
	sp.image = 0
	if layers == 0 {
		return nil
	}

	img, err := sp.createImage(&metadata.ImageDescription{
		Name:     fmt.Sprintf("shadow.depth.%s", sp.label),
		Width:    sp.MapSize,
		Height:   sp.MapSize,
		Layers:   layers,
		Format:   sp.DepthFormat,
		Samples:  metadata.SampleCount1,
		Usage:    metadata.ImageUsageDepthAttachment | metadata.ImageUsageSampled,
		ViewType: metadata.ImageViewType2DArray,
	})
	if err != nil {
		return err
	}
	sp.image = img

	for i := uint32(0); i < sp.FramesInFlight; i++ {
		if err := sp.createFramebuffer([]metadata.Image{img}, layers); err != nil {
			return err
		}
	}
	sp.State = READY
	return nil
}

// SetMaxLights resizes the shadow map for a new set of light maxima. It is a
// no-op when the layer count does not change; otherwise it waits for the
// device to go idle and rebuilds the image and framebuffers.
func (sp *ShadowPass) SetMaxLights(lights LightCounts) error {
	if lights.Layers() == sp.Lights.Layers() {
		sp.Lights = lights
		return nil
	}
	if err := sp.backend.WaitIdle(); err != nil {
		return err
	}
	sp.destroyTargets()
	sp.Lights = lights
	if err := sp.createTargets(); err != nil {
		return err
	}
	core.LogDebug("shadow map rebuilt with %d layers", lights.Layers())
	return nil
}
