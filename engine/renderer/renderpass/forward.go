package renderpass

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// ForwardPass renders the scene into the swap images. With more than one
// sample it draws into a transient multisampled color image and resolves into
// the swap image at the end of the subpass.
type ForwardPass struct {
	*RenderPass
	ColorFormat metadata.Format
	DepthFormat metadata.Format
	label       string
	generation  uint32
}

func forwardDescription(name string, color, depth metadata.Format, samples metadata.SampleCount) *metadata.RenderPassDescription {
	desc := &metadata.RenderPassDescription{Name: name}
	subpass := metadata.SubpassDescription{
		ColorAttachments: []metadata.AttachmentReference{{Attachment: 0, Layout: metadata.ImageLayoutColorAttachment}},
		DepthAttachment:  &metadata.AttachmentReference{Attachment: 1, Layout: metadata.ImageLayoutDepthStencilAttachment},
	}

	colorAttachment := metadata.AttachmentDescription{
		Format:         color,
		Samples:        samples,
		LoadOp:         metadata.LoadOpClear,
		StoreOp:        metadata.StoreOpStore,
		StencilLoadOp:  metadata.LoadOpDontCare,
		StencilStoreOp: metadata.StoreOpDontCare,
		InitialLayout:  metadata.ImageLayoutUndefined,
		FinalLayout:    metadata.ImageLayoutPresentSrc,
	}
	if samples > metadata.SampleCount1 {
		// The multisampled image is never read after the resolve.
		colorAttachment.StoreOp = metadata.StoreOpDontCare
		colorAttachment.FinalLayout = metadata.ImageLayoutColorAttachment
	}
	depthAttachment := metadata.AttachmentDescription{
		Format:         depth,
		Samples:        samples,
		LoadOp:         metadata.LoadOpClear,
		StoreOp:        metadata.StoreOpDontCare,
		StencilLoadOp:  metadata.LoadOpDontCare,
		StencilStoreOp: metadata.StoreOpDontCare,
		InitialLayout:  metadata.ImageLayoutUndefined,
		FinalLayout:    metadata.ImageLayoutDepthStencilAttachment,
	}
	desc.Attachments = []metadata.AttachmentDescription{colorAttachment, depthAttachment}

	if samples > metadata.SampleCount1 {
		desc.Attachments = append(desc.Attachments, metadata.AttachmentDescription{
			Format:         color,
			Samples:        metadata.SampleCount1,
			LoadOp:         metadata.LoadOpDontCare,
			StoreOp:        metadata.StoreOpStore,
			StencilLoadOp:  metadata.LoadOpDontCare,
			StencilStoreOp: metadata.StoreOpDontCare,
			InitialLayout:  metadata.ImageLayoutUndefined,
			FinalLayout:    metadata.ImageLayoutPresentSrc,
		})
		subpass.ResolveAttachments = []metadata.AttachmentReference{{Attachment: 2, Layout: metadata.ImageLayoutColorAttachment}}
	}
	desc.Subpasses = []metadata.SubpassDescription{subpass}

	desc.Dependencies = []metadata.SubpassDependency{{
		SrcSubpass:    metadata.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  metadata.PipelineStageColorAttachmentOutput | metadata.PipelineStageEarlyFragmentTests,
		DstStageMask:  metadata.PipelineStageColorAttachmentOutput | metadata.PipelineStageEarlyFragmentTests,
		SrcAccessMask: 0,
		DstAccessMask: metadata.AccessColorAttachmentWrite | metadata.AccessDepthStencilAttachmentWrite,
	}}
	return desc
}

func newForwardPass(backend metadata.RendererBackend, label string, swapchain *metadata.Swapchain, samples metadata.SampleCount, clearColor [4]float32) (*ForwardPass, error) {
	if limit := backend.MaxSampleCount(); samples > limit {
		core.LogWarn("%d samples requested, device supports %d", samples, limit)
		samples = limit
	}
	if samples == 0 {
		samples = metadata.SampleCount1
	}

	depth := backend.DepthFormat()
	desc := forwardDescription("forward", swapchain.Format, depth, samples)
	clears := []metadata.ClearValue{{Color: clearColor}, {Depth: 1, Stencil: 0}}
	if samples > metadata.SampleCount1 {
		clears = append(clears, metadata.ClearValue{Color: clearColor})
	}

	rp, err := newRenderPass(backend, desc, samples, clears)
	if err != nil {
		return nil, err
	}
	fp := &ForwardPass{
		RenderPass:  rp,
		ColorFormat: swapchain.Format,
		DepthFormat: depth,
		label:       label,
	}
	if err := fp.createTargets(swapchain); err != nil {
		fp.Destroy()
		return nil, err
	}
	return fp, nil
}

// createTargets builds the attachments sized to the swapchain and one
// framebuffer per swap image.
func (fp *ForwardPass) createTargets(swapchain *metadata.Swapchain) error {
	fp.Extent = swapchain.Extent
	fp.generation = swapchain.Generation

	depth, err := fp.createImage(&metadata.ImageDescription{
		Name:    fmt.Sprintf("forward.depth.%s", fp.label),
		Width:   fp.Extent.Width,
		Height:  fp.Extent.Height,
		Layers:  1,
		Format:  fp.DepthFormat,
		Samples: fp.Samples,
		Usage:   metadata.ImageUsageDepthAttachment,
	})
	if err != nil {
		return err
	}

	var msaa metadata.Image
	if fp.Samples > metadata.SampleCount1 {
		msaa, err = fp.createImage(&metadata.ImageDescription{
			Name:    fmt.Sprintf("forward.color.%s", fp.label),
			Width:   fp.Extent.Width,
			Height:  fp.Extent.Height,
			Layers:  1,
			Format:  fp.ColorFormat,
			Samples: fp.Samples,
			Usage:   metadata.ImageUsageColorAttachment | metadata.ImageUsageTransient,
		})
		if err != nil {
			return err
		}
	}

	for _, swapImage := range swapchain.Images {
		attachments := []metadata.Image{swapImage, depth}
		if msaa != 0 {
			attachments = []metadata.Image{msaa, depth, swapImage}
		}
		if err := fp.createFramebuffer(attachments, 1); err != nil {
			return err
		}
	}
	fp.State = READY
	return nil
}

// Recreate rebuilds the attachments and framebuffers for a new swapchain.
// The caller must have waited for the device to go idle.
func (fp *ForwardPass) Recreate(swapchain *metadata.Swapchain) error {
	if swapchain.Format != fp.ColorFormat {
		return fmt.Errorf("swapchain format changed from %d to %d, forward pass can not be reused", fp.ColorFormat, swapchain.Format)
	}
	fp.destroyTargets()
	if err := fp.createTargets(swapchain); err != nil {
		return err
	}
	core.LogDebug("forward pass framebuffers rebuilt for %dx%d (swapchain generation %d)", fp.Extent.Width, fp.Extent.Height, fp.generation)
	return nil
}

// Generation is the swapchain generation the framebuffers were built for.
func (fp *ForwardPass) Generation() uint32 {
	return fp.generation
}
