package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const (
	maxDescriptorSets       = 1024
	descriptorsPerKindLimit = 2048
)

type setLayout struct {
	handle vk.DescriptorSetLayout
	// Set index the layout is bound at, taken from its bindings.
	index    uint32
	bindings map[uint32]metadata.DescriptorBinding
}

type descriptorSet struct {
	handle vk.DescriptorSet
	index  uint32
	layout *setLayout
}

// createDescriptorPool creates the single pool every set is allocated from.
// Sets can be freed one by one.
func (b *Backend) createDescriptorPool() error {
	kinds := []vk.DescriptorType{
		vk.DescriptorTypeUniformBuffer,
		vk.DescriptorTypeSampledImage,
		vk.DescriptorTypeSampler,
		vk.DescriptorTypeCombinedImageSampler,
		vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeStorageImage,
	}
	sizes := make([]vk.DescriptorPoolSize, len(kinds))
	for i, k := range kinds {
		sizes[i] = vk.DescriptorPoolSize{Type: k, DescriptorCount: descriptorsPerKindLimit}
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxDescriptorSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	if err := resultError("vkCreateDescriptorPool", vk.CreateDescriptorPool(b.device.logical, &createInfo, b.allocator, &b.descriptorPool)); err != nil {
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (b *Backend) CreateDescriptorSetLayout(bindings []metadata.DescriptorBinding) (metadata.DescriptorSetLayout, error) {
	layout := &setLayout{bindings: make(map[uint32]metadata.DescriptorBinding, len(bindings))}
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, binding := range bindings {
		if i == 0 {
			layout.index = binding.Set
		} else if binding.Set != layout.index {
			return 0, fmt.Errorf("binding `%s` is in set %d, layout is for set %d", binding.Name, binding.Set, layout.index)
		}
		layout.bindings[binding.Binding] = binding
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         binding.Binding,
			DescriptorType:  toVkDescriptorType(binding.Kind),
			DescriptorCount: max(1, binding.Count),
			StageFlags:      toVkShaderStages(binding.Stages),
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	if err := resultError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(b.device.logical, &createInfo, b.allocator, &layout.handle)); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return metadata.DescriptorSetLayout(b.setLayouts.Insert(layout)), nil
}

func (b *Backend) DestroyDescriptorSetLayout(l metadata.DescriptorSetLayout) {
	layout, err := b.setLayouts.Remove(uint32(l))
	if err != nil {
		core.LogWarn("destroy descriptor set layout: %s", err.Error())
		return
	}
	vk.DestroyDescriptorSetLayout(b.device.logical, layout.handle, b.allocator)
}

func (b *Backend) AllocateDescriptorSet(l metadata.DescriptorSetLayout) (metadata.DescriptorSet, error) {
	layout, ok := b.setLayouts.Get(uint32(l))
	if !ok {
		return 0, fmt.Errorf("descriptor set layout %d: %w", l, core.ErrInvalidHandle)
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     b.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.handle},
	}
	set := &descriptorSet{index: layout.index, layout: layout}
	err := b.locks.SafeCall(DescriptorManagement, func() error {
		return resultError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(b.device.logical, &allocateInfo, &set.handle))
	})
	if err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return metadata.DescriptorSet(b.sets.Insert(set)), nil
}

func (b *Backend) FreeDescriptorSet(s metadata.DescriptorSet) {
	set, err := b.sets.Remove(uint32(s))
	if err != nil {
		core.LogWarn("free descriptor set: %s", err.Error())
		return
	}
	_ = b.locks.SafeCall(DescriptorManagement, func() error {
		return resultError("vkFreeDescriptorSets", vk.FreeDescriptorSets(b.device.logical, b.descriptorPool, 1, &set.handle))
	})
}

// UpdateDescriptorSet writes every entry of writes into s. Each write must
// match the kind its binding was declared with.
func (b *Backend) UpdateDescriptorSet(s metadata.DescriptorSet, writes []metadata.DescriptorWrite) error {
	set, ok := b.sets.Get(uint32(s))
	if !ok {
		return fmt.Errorf("descriptor set %d: %w", s, core.ErrInvalidHandle)
	}
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		binding, ok := set.layout.bindings[w.Binding]
		if !ok {
			return fmt.Errorf("binding %d: %w", w.Binding, core.ErrBindingNotFound)
		}
		if binding.Kind != w.Kind {
			return fmt.Errorf("binding %d is %s, write is %s: %w", w.Binding, binding.Kind, w.Kind, core.ErrBindingKindMismatch)
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.handle,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  toVkDescriptorType(w.Kind),
		}
		switch w.Kind {
		case metadata.DescriptorKindUniformBlock, metadata.DescriptorKindStorageBuffer:
			buf, ok := b.buffers.Get(uint32(w.Buffer))
			if !ok {
				return fmt.Errorf("binding %d: buffer %d: %w", w.Binding, w.Buffer, core.ErrInvalidHandle)
			}
			size := vk.DeviceSize(vk.WholeSize)
			if w.Range != 0 {
				size = vk.DeviceSize(w.Range)
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf.handle,
				Offset: vk.DeviceSize(w.Offset),
				Range:  size,
			}}
		default:
			info, err := b.imageInfo(w)
			if err != nil {
				return err
			}
			write.PImageInfo = []vk.DescriptorImageInfo{info}
		}
		vkWrites = append(vkWrites, write)
	}
	if len(vkWrites) == 0 {
		return nil
	}
	vk.UpdateDescriptorSets(b.device.logical, uint32(len(vkWrites)), vkWrites, 0, nil)
	return nil
}

func (b *Backend) imageInfo(w metadata.DescriptorWrite) (vk.DescriptorImageInfo, error) {
	info := vk.DescriptorImageInfo{}
	if w.Kind.UsesImage() {
		img, ok := b.images.Get(uint32(w.Image))
		if !ok {
			return info, fmt.Errorf("binding %d: image %d: %w", w.Binding, w.Image, core.ErrInvalidHandle)
		}
		info.ImageView = img.view
		info.ImageLayout = vk.ImageLayoutShaderReadOnlyOptimal
		if w.Kind == metadata.DescriptorKindStorageImage {
			info.ImageLayout = vk.ImageLayoutGeneral
		}
	}
	if w.Kind.UsesSampler() {
		s, ok := b.samplers.Get(uint32(w.Sampler))
		if !ok {
			return info, fmt.Errorf("binding %d: sampler %d: %w", w.Binding, w.Sampler, core.ErrInvalidHandle)
		}
		info.Sampler = s
	}
	return info, nil
}
