package metadata

import "fmt"

type DescriptorKind uint8

const (
	DescriptorKindUniformBlock DescriptorKind = iota
	DescriptorKindSampledImage
	DescriptorKindSampler
	DescriptorKindCombinedImageSampler
	DescriptorKindStorageBuffer
	DescriptorKindStorageImage
)

func (k DescriptorKind) String() string {
	switch k {
	case DescriptorKindUniformBlock:
		return "uniform-block"
	case DescriptorKindSampledImage:
		return "sampled-image"
	case DescriptorKindSampler:
		return "sampler"
	case DescriptorKindCombinedImageSampler:
		return "combined-image-sampler"
	case DescriptorKindStorageBuffer:
		return "storage-buffer"
	case DescriptorKindStorageImage:
		return "storage-image"
	}
	return fmt.Sprintf("DescriptorKind(%d)", k)
}

// UsesImage reports whether a write for this kind carries an image.
func (k DescriptorKind) UsesImage() bool {
	return k == DescriptorKindSampledImage || k == DescriptorKindCombinedImageSampler || k == DescriptorKindStorageImage
}

// UsesSampler reports whether a write for this kind carries a sampler.
func (k DescriptorKind) UsesSampler() bool {
	return k == DescriptorKindSampler || k == DescriptorKindCombinedImageSampler
}

/** @brief One entry of a descriptor set layout, as declared by the shaders. */
type DescriptorBinding struct {
	Name    string
	Set     uint32
	Binding uint32
	Kind    DescriptorKind
	Stages  ShaderStage
	// Number of array elements, 1 for non arrays.
	Count uint32
}

/** @brief A single descriptor update. Only the fields matching the binding kind are read. */
type DescriptorWrite struct {
	Binding uint32
	Kind    DescriptorKind
	Buffer  Buffer
	Offset  uint64
	Range   uint64
	Image   Image
	Sampler Sampler
}
