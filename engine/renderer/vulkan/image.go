package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/** @brief An image and the single view created with it. */
type image struct {
	handle vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	desc   metadata.ImageDescription
	// False for swapchain images, whose storage belongs to the swapchain.
	owned bool
}

func (img *image) layers() uint32 {
	return max(1, img.desc.Layers)
}

func (b *Backend) createView(img *image) error {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: toVkViewType(img.desc.ViewType),
		Format:   toVkFormat(img.desc.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectOf(img.desc.Format, img.desc.Usage&metadata.ImageUsageSampled != 0),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     img.layers(),
		},
	}
	return resultError("vkCreateImageView", vk.CreateImageView(b.device.logical, &viewInfo, b.allocator, &img.view))
}

func (b *Backend) CreateImage(desc *metadata.ImageDescription) (metadata.Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return 0, fmt.Errorf("image `%s` has zero extent", desc.Name)
	}
	format := toVkFormat(desc.Format)
	if format == vk.FormatUndefined {
		return 0, fmt.Errorf("image `%s` has an unsupported format %d", desc.Name, desc.Format)
	}
	img := &image{desc: *desc, owned: true}
	samples := desc.Samples
	if samples == 0 {
		samples = metadata.SampleCount1
	}

	dev := b.device.logical
	createInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        format,
		Extent:        vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   img.layers(),
		Samples:       toVkSamples(samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         toVkImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if desc.ViewType == metadata.ImageViewTypeCube {
		createInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	if err := resultError("vkCreateImage", vk.CreateImage(dev, &createInfo, b.allocator, &img.handle)); err != nil {
		core.LogError("create image `%s`: %s", desc.Name, err.Error())
		return 0, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, img.handle, &reqs)
	reqs.Deref()
	index, err := b.device.findMemoryIndex(reqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(dev, img.handle, b.allocator)
		return 0, err
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}
	if err := resultError("vkAllocateMemory", vk.AllocateMemory(dev, &allocateInfo, b.allocator, &img.memory)); err != nil {
		vk.DestroyImage(dev, img.handle, b.allocator)
		core.LogError("allocate image `%s`: %s", desc.Name, err.Error())
		return 0, err
	}
	if err := resultError("vkBindImageMemory", vk.BindImageMemory(dev, img.handle, img.memory, 0)); err != nil {
		img.release(b)
		return 0, err
	}
	if err := b.createView(img); err != nil {
		img.release(b)
		return 0, err
	}
	return metadata.Image(b.images.Insert(img)), nil
}

func (img *image) release(b *Backend) {
	dev := b.device.logical
	if img.view != vk.NullImageView {
		vk.DestroyImageView(dev, img.view, b.allocator)
	}
	if img.owned {
		vk.DestroyImage(dev, img.handle, b.allocator)
		vk.FreeMemory(dev, img.memory, b.allocator)
	}
}

func (b *Backend) DestroyImage(h metadata.Image) {
	img, ok := b.images.Get(uint32(h))
	if !ok {
		core.LogWarn("destroy image: unknown image %d", h)
		return
	}
	if !img.owned {
		core.LogWarn("destroy image: %s belongs to the swapchain", img.desc.Name)
		return
	}
	_, _ = b.images.Remove(uint32(h))
	img.release(b)
}

// WriteImage uploads tightly packed pixels for every layer through a staging
// buffer and leaves the image ready for sampling.
func (b *Backend) WriteImage(h metadata.Image, pixels []byte) error {
	img, ok := b.images.Get(uint32(h))
	if !ok || !img.owned {
		return fmt.Errorf("image %d: %w", h, core.ErrInvalidHandle)
	}
	want := uint64(img.desc.Width) * uint64(img.desc.Height) * uint64(img.layers()) * uint64(img.desc.Format.Size())
	if uint64(len(pixels)) != want {
		return fmt.Errorf("image `%s` expects %d bytes, have %d", img.desc.Name, want, len(pixels))
	}

	staging, err := b.newBuffer(want, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit))
	if err != nil {
		return err
	}
	defer staging.release(b)
	if err := staging.write(0, pixels); err != nil {
		return err
	}

	cb, err := b.beginSingleUse()
	if err != nil {
		return err
	}
	aspect := aspectOf(img.desc.Format, true)
	b.transition(cb, img, aspect, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspect,
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     img.layers(),
		},
		ImageExtent: vk.Extent3D{Width: img.desc.Width, Height: img.desc.Height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cb, staging.handle, img.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
	b.transition(cb, img, aspect, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	return b.endSingleUse(cb)
}

func (b *Backend) transition(cb vk.CommandBuffer, img *image, aspect vk.ImageAspectFlags, from, to vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     img.layers(),
		},
	}
	var src, dst vk.PipelineStageFlags
	switch {
	case from == vk.ImageLayoutUndefined && to == vk.ImageLayoutTransferDstOptimal:
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		src = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dst = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	default:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		src = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dst = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	}
	vk.CmdPipelineBarrier(cb, src, dst, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (b *Backend) CreateSampler(desc *metadata.SamplerDescription) (metadata.Sampler, error) {
	filter := toVkFilter(desc.Filter)
	address := toVkAddressMode(desc.AddressMode)
	createInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		BorderColor:             vk.BorderColorFloatOpaqueWhite,
		UnnormalizedCoordinates: vk.False,
	}
	if desc.Anisotropy > 1 && b.device.maxAnisotropy > 0 {
		createInfo.AnisotropyEnable = vk.True
		createInfo.MaxAnisotropy = min(desc.Anisotropy, b.device.maxAnisotropy)
	}
	if desc.Compare {
		createInfo.CompareEnable = vk.True
		createInfo.CompareOp = toVkCompareOp(desc.CompareOp)
	}
	var s vk.Sampler
	if err := resultError("vkCreateSampler", vk.CreateSampler(b.device.logical, &createInfo, b.allocator, &s)); err != nil {
		core.LogError("create sampler `%s`: %s", desc.Name, err.Error())
		return 0, err
	}
	return metadata.Sampler(b.samplers.Insert(s)), nil
}

func (b *Backend) DestroySampler(sampler metadata.Sampler) {
	s, err := b.samplers.Remove(uint32(sampler))
	if err != nil {
		core.LogWarn("destroy sampler: %s", err.Error())
		return
	}
	vk.DestroySampler(b.device.logical, s, b.allocator)
}
