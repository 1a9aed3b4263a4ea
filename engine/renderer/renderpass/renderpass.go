package renderpass

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
)

type RenderPassState int

const (
	READY RenderPassState = iota
	IN_RENDER_PASS
	NOT_ALLOCATED
)

// RenderPass is a device render pass together with the framebuffers and
// images it owns.
type RenderPass struct {
	Name        string
	Handle      metadata.RenderPass
	Description metadata.RenderPassDescription
	Samples     metadata.SampleCount
	Extent      metadata.Extent2D
	Clears      []metadata.ClearValue
	State       RenderPassState

	backend      metadata.RendererBackend
	framebuffers []metadata.Framebuffer
	images       []metadata.Image
}

func newRenderPass(backend metadata.RendererBackend, desc *metadata.RenderPassDescription, samples metadata.SampleCount, clears []metadata.ClearValue) (*RenderPass, error) {
	handle, err := backend.CreateRenderPass(desc)
	if err != nil {
		core.LogError("failed to create render pass `%s`: %s", desc.Name, err.Error())
		return nil, err
	}
	return &RenderPass{
		Name:        desc.Name,
		Handle:      handle,
		Description: *desc,
		Samples:     samples,
		Clears:      clears,
		State:       NOT_ALLOCATED,
		backend:     backend,
	}, nil
}

// Framebuffer returns framebuffer i. For the forward pass i is the swap
// image index; for the shadow pass it is the frame slot.
func (rp *RenderPass) Framebuffer(i uint32) (metadata.Framebuffer, error) {
	if int(i) >= len(rp.framebuffers) {
		return 0, fmt.Errorf("%w: render pass `%s` has %d framebuffers, asked for %d", core.ErrInvalidHandle, rp.Name, len(rp.framebuffers), i)
	}
	return rp.framebuffers[i], nil
}

// FramebufferCount returns the number of framebuffers currently alive.
func (rp *RenderPass) FramebufferCount() int {
	return len(rp.framebuffers)
}

// Signature describes the pass to pipelines built against it.
func (rp *RenderPass) Signature() pipeline.RenderPassSignature {
	colors := uint32(0)
	if len(rp.Description.Subpasses) > 0 {
		colors = uint32(len(rp.Description.Subpasses[0].ColorAttachments))
	}
	return pipeline.RenderPassSignature{
		Pass:             rp.Handle,
		Subpass:          0,
		Samples:          rp.Samples,
		ColorAttachments: colors,
	}
}

// Begin starts the pass on framebuffer i and sets a viewport and scissor
// covering the whole extent.
func (rp *RenderPass) Begin(rec metadata.CommandRecorder, i uint32) error {
	fb, err := rp.Framebuffer(i)
	if err != nil {
		return err
	}
	rec.BeginRenderPass(rp.Handle, fb, rp.Extent, rp.Clears)
	rec.SetViewport(metadata.FullViewport(rp.Extent))
	rec.SetScissor(metadata.Rect2D{Extent: rp.Extent})
	rp.State = IN_RENDER_PASS
	return nil
}

func (rp *RenderPass) End(rec metadata.CommandRecorder) {
	rec.EndRenderPass()
	rp.State = READY
}

func (rp *RenderPass) createImage(desc *metadata.ImageDescription) (metadata.Image, error) {
	img, err := rp.backend.CreateImage(desc)
	if err != nil {
		core.LogError("failed to create image `%s` for render pass `%s`: %s", desc.Name, rp.Name, err.Error())
		return 0, err
	}
	rp.images = append(rp.images, img)
	return img, nil
}

func (rp *RenderPass) createFramebuffer(attachments []metadata.Image, layers uint32) error {
	fb, err := rp.backend.CreateFramebuffer(rp.Handle, attachments, rp.Extent, layers)
	if err != nil {
		core.LogError("failed to create framebuffer for render pass `%s`: %s", rp.Name, err.Error())
		return err
	}
	rp.framebuffers = append(rp.framebuffers, fb)
	return nil
}

// destroyTargets releases the framebuffers and owned images but keeps the
// render pass, so pipelines built against it stay valid.
func (rp *RenderPass) destroyTargets() {
	for _, fb := range rp.framebuffers {
		rp.backend.DestroyFramebuffer(fb)
	}
	rp.framebuffers = rp.framebuffers[:0]
	for _, img := range rp.images {
		rp.backend.DestroyImage(img)
	}
	rp.images = rp.images[:0]
	rp.State = NOT_ALLOCATED
}

func (rp *RenderPass) Destroy() {
	rp.destroyTargets()
	if rp.Handle != 0 {
		rp.backend.DestroyRenderPass(rp.Handle)
		rp.Handle = 0
	}
}
