package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type renderPass struct {
	handle vk.RenderPass
	name   string
	// Per attachment, whether its clear value is a depth/stencil one.
	depth []bool
}

func toVkReferences(refs []metadata.AttachmentReference) []vk.AttachmentReference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]vk.AttachmentReference, len(refs))
	for i, r := range refs {
		out[i] = vk.AttachmentReference{Attachment: r.Attachment, Layout: toVkLayout(r.Layout)}
	}
	return out
}

func (b *Backend) CreateRenderPass(desc *metadata.RenderPassDescription) (metadata.RenderPass, error) {
	rp := &renderPass{name: desc.Name, depth: make([]bool, len(desc.Attachments))}

	attachments := make([]vk.AttachmentDescription, len(desc.Attachments))
	for i, a := range desc.Attachments {
		rp.depth[i] = a.Format.IsDepth()
		samples := a.Samples
		if samples == 0 {
			samples = metadata.SampleCount1
		}
		attachments[i] = vk.AttachmentDescription{
			Format:         toVkFormat(a.Format),
			Samples:        toVkSamples(samples),
			LoadOp:         toVkLoadOp(a.LoadOp),
			StoreOp:        toVkStoreOp(a.StoreOp),
			StencilLoadOp:  toVkLoadOp(a.StencilLoadOp),
			StencilStoreOp: toVkStoreOp(a.StencilStoreOp),
			InitialLayout:  toVkLayout(a.InitialLayout),
			FinalLayout:    toVkLayout(a.FinalLayout),
		}
	}

	subpasses := make([]vk.SubpassDescription, len(desc.Subpasses))
	for i, s := range desc.Subpasses {
		subpass := vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(s.ColorAttachments)),
			PColorAttachments:    toVkReferences(s.ColorAttachments),
			PResolveAttachments:  toVkReferences(s.ResolveAttachments),
		}
		if s.DepthAttachment != nil {
			subpass.PDepthStencilAttachment = &vk.AttachmentReference{
				Attachment: s.DepthAttachment.Attachment,
				Layout:     toVkLayout(s.DepthAttachment.Layout),
			}
		}
		subpasses[i] = subpass
	}

	dependencies := make([]vk.SubpassDependency, len(desc.Dependencies))
	for i, d := range desc.Dependencies {
		dependencies[i] = vk.SubpassDependency{
			SrcSubpass:    d.SrcSubpass,
			DstSubpass:    d.DstSubpass,
			SrcStageMask:  toVkStages(d.SrcStageMask),
			DstStageMask:  toVkStages(d.DstStageMask),
			SrcAccessMask: toVkAccess(d.SrcAccessMask),
			DstAccessMask: toVkAccess(d.DstAccessMask),
		}
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
	if err := resultError("vkCreateRenderPass", vk.CreateRenderPass(b.device.logical, &createInfo, b.allocator, &rp.handle)); err != nil {
		core.LogError("create render pass `%s`: %s", desc.Name, err.Error())
		return 0, err
	}
	core.LogDebug("render pass `%s` created with %d attachments", desc.Name, len(attachments))
	return metadata.RenderPass(b.renderPasses.Insert(rp)), nil
}

func (b *Backend) DestroyRenderPass(pass metadata.RenderPass) {
	rp, err := b.renderPasses.Remove(uint32(pass))
	if err != nil {
		core.LogWarn("destroy render pass: %s", err.Error())
		return
	}
	vk.DestroyRenderPass(b.device.logical, rp.handle, b.allocator)
}

func (b *Backend) CreateFramebuffer(pass metadata.RenderPass, attachments []metadata.Image, extent metadata.Extent2D, layers uint32) (metadata.Framebuffer, error) {
	rp, ok := b.renderPasses.Get(uint32(pass))
	if !ok {
		return 0, fmt.Errorf("render pass %d: %w", pass, core.ErrInvalidHandle)
	}
	views := make([]vk.ImageView, len(attachments))
	for i, a := range attachments {
		img, ok := b.images.Get(uint32(a))
		if !ok {
			return 0, fmt.Errorf("framebuffer attachment %d: image %d: %w", i, a, core.ErrInvalidHandle)
		}
		views[i] = img.view
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          max(1, layers),
	}
	var fb vk.Framebuffer
	if err := resultError("vkCreateFramebuffer", vk.CreateFramebuffer(b.device.logical, &createInfo, b.allocator, &fb)); err != nil {
		core.LogError("create framebuffer for `%s`: %s", rp.name, err.Error())
		return 0, err
	}
	return metadata.Framebuffer(b.framebuffers.Insert(fb)), nil
}

func (b *Backend) DestroyFramebuffer(framebuffer metadata.Framebuffer) {
	fb, err := b.framebuffers.Remove(uint32(framebuffer))
	if err != nil {
		core.LogWarn("destroy framebuffer: %s", err.Error())
		return
	}
	vk.DestroyFramebuffer(b.device.logical, fb, b.allocator)
}
