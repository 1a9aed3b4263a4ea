package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	engmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type swapchain struct {
	handle vk.Swapchain
	format vk.SurfaceFormat
	extent vk.Extent2D
	// Image handles registered in the image arena, one per swapchain image.
	images []uint32
	// Set when an acquire reported VK_SUBOPTIMAL_KHR; the next present
	// reports it to the caller.
	suboptimal bool
}

type swapchainSupport struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func (b *Backend) querySwapchainSupport() (*swapchainSupport, error) {
	pd := b.device.physical
	s := &swapchainSupport{}
	if err := resultError("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(pd, b.surface, &s.capabilities)); err != nil {
		return nil, err
	}
	s.capabilities.Deref()
	s.capabilities.CurrentExtent.Deref()
	s.capabilities.MinImageExtent.Deref()
	s.capabilities.MaxImageExtent.Deref()

	var count uint32
	if err := resultError("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(pd, b.surface, &count, nil)); err != nil {
		return nil, err
	}
	s.formats = make([]vk.SurfaceFormat, count)
	if err := resultError("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(pd, b.surface, &count, s.formats)); err != nil {
		return nil, err
	}
	for i := range s.formats {
		s.formats[i].Deref()
	}

	if err := resultError("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(pd, b.surface, &count, nil)); err != nil {
		return nil, err
	}
	s.presentModes = make([]vk.PresentMode, count)
	if err := resultError("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(pd, b.surface, &count, s.presentModes)); err != nil {
		return nil, err
	}
	return s, nil
}

// chooseFormat prefers an sRGB BGRA surface and falls back to the first
// format the engine knows about.
func (s *swapchainSupport) chooseFormat() (vk.SurfaceFormat, bool) {
	for _, f := range s.formats {
		if f.Format == vk.FormatB8g8r8a8Srgb && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f, true
		}
	}
	for _, f := range s.formats {
		if fromVkFormat(f.Format) != metadata.FormatUndefined {
			return f, true
		}
	}
	return vk.SurfaceFormat{}, false
}

func (s *swapchainSupport) choosePresentMode(vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	mode := vk.PresentModeFifo
	for _, m := range s.presentModes {
		if m == vk.PresentModeMailbox {
			return m
		}
		if m == vk.PresentModeImmediate {
			mode = m
		}
	}
	return mode
}

// CreateSwapchain builds a swapchain of extent, replacing the current one.
func (b *Backend) CreateSwapchain(extent metadata.Extent2D) (*metadata.Swapchain, error) {
	support, err := b.querySwapchainSupport()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	caps := support.capabilities

	surfaceFormat, ok := support.chooseFormat()
	if !ok {
		err := fmt.Errorf("surface offers no supported color format")
		core.LogError(err.Error())
		return nil, err
	}

	chosen := vk.Extent2D{Width: extent.Width, Height: extent.Height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		chosen = caps.CurrentExtent
	}
	chosen.Width = engmath.Clamp(chosen.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	chosen.Height = engmath.Clamp(chosen.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	if chosen.Width == 0 || chosen.Height == 0 {
		err := fmt.Errorf("swapchain with zero extent %dx%d", chosen.Width, chosen.Height)
		core.LogError(err.Error())
		return nil, err
	}

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          b.surface,
		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      chosen,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      support.choosePresentMode(b.config.VSync),
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if b.device.graphicsQueueIndex != b.device.presentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{b.device.graphicsQueueIndex, b.device.presentQueueIndex}
	}
	if b.swapchain != nil {
		createInfo.OldSwapchain = b.swapchain.handle
	}

	sc := &swapchain{format: surfaceFormat, extent: chosen}
	if err := resultError("vkCreateSwapchain", vk.CreateSwapchain(b.device.logical, &createInfo, b.allocator, &sc.handle)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	// The old swapchain is retired by the create call and can go now.
	b.destroySwapchain()

	var count uint32
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(b.device.logical, sc.handle, &count, nil)); err != nil {
		vk.DestroySwapchain(b.device.logical, sc.handle, b.allocator)
		return nil, err
	}
	vkImages := make([]vk.Image, count)
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(b.device.logical, sc.handle, &count, vkImages)); err != nil {
		vk.DestroySwapchain(b.device.logical, sc.handle, b.allocator)
		return nil, err
	}

	format := fromVkFormat(surfaceFormat.Format)
	out := &metadata.Swapchain{
		Extent: metadata.Extent2D{Width: chosen.Width, Height: chosen.Height},
		Format: format,
	}
	b.swapchain = sc
	for i, handle := range vkImages {
		img := &image{
			handle: handle,
			desc: metadata.ImageDescription{
				Name:   fmt.Sprintf("swapchain_%d", i),
				Width:  chosen.Width,
				Height: chosen.Height,
				Layers: 1,
				Format: format,
			},
		}
		if err := b.createView(img); err != nil {
			b.destroySwapchain()
			return nil, err
		}
		h := b.images.Insert(img)
		sc.images = append(sc.images, h)
		out.Images = append(out.Images, metadata.Image(h))
	}

	b.generation++
	out.Generation = b.generation
	core.LogInfo("Swapchain created: %dx%d, %d images.", chosen.Width, chosen.Height, count)
	return out, nil
}

func (b *Backend) DestroySwapchain() {
	b.destroySwapchain()
}

func (b *Backend) destroySwapchain() {
	if b.swapchain == nil {
		return
	}
	// Only the views belong to the engine, the images go with the swapchain.
	for _, h := range b.swapchain.images {
		if img, err := b.images.Remove(h); err == nil {
			vk.DestroyImageView(b.device.logical, img.view, b.allocator)
		}
	}
	vk.DestroySwapchain(b.device.logical, b.swapchain.handle, b.allocator)
	b.swapchain = nil
}

// AcquireNextImage returns the index of the next presentable image and
// arranges for signal to be signaled once it is ready. A suboptimal acquire
// still hands out an image: the semaphore is pending, so the frame must go
// through, and the following Present reports the stale surface.
func (b *Backend) AcquireNextImage(signal metadata.Semaphore) (uint32, error) {
	if b.swapchain == nil {
		return 0, fmt.Errorf("acquire without swapchain: %w", core.ErrSwapchainOutOfDate)
	}
	sem, ok := b.semaphores.Get(uint32(signal))
	if !ok {
		return 0, fmt.Errorf("semaphore %d: %w", signal, core.ErrInvalidHandle)
	}
	var index uint32
	res := vk.AcquireNextImage(b.device.logical, b.swapchain.handle, math.MaxUint64, sem, vk.NullFence, &index)
	switch res {
	case vk.Success:
		return index, nil
	case vk.Suboptimal:
		b.swapchain.suboptimal = true
		return index, nil
	}
	return 0, resultError("vkAcquireNextImage", res)
}

func (b *Backend) Present(imageIndex uint32, wait metadata.Semaphore) error {
	if b.swapchain == nil {
		return fmt.Errorf("present without swapchain: %w", core.ErrSwapchainOutOfDate)
	}
	sem, ok := b.semaphores.Get(uint32(wait))
	if !ok {
		return fmt.Errorf("semaphore %d: %w", wait, core.ErrInvalidHandle)
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sem},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{b.swapchain.handle},
		PImageIndices:      []uint32{imageIndex},
	}
	var res vk.Result
	_ = b.locks.SafeCall(QueueManagement, func() error {
		res = vk.QueuePresent(b.device.presentQueue, &presentInfo)
		return nil
	})
	if res == vk.Success && b.swapchain.suboptimal {
		res = vk.Suboptimal
	}
	return resultError("vkQueuePresent", res)
}
