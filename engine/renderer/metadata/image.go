package metadata

type ImageViewType uint8

const (
	ImageViewType2D ImageViewType = iota
	ImageViewType2DArray
	ImageViewTypeCube
)

/** @brief Describes an image and the single view created alongside it. */
type ImageDescription struct {
	Name     string
	Width    uint32
	Height   uint32
	Layers   uint32
	Format   Format
	Samples  SampleCount
	Usage    ImageUsage
	ViewType ImageViewType
}

type Filter uint8

const (
	FilterLinear Filter = iota
	FilterNearest
)

type AddressMode uint8

const (
	AddressModeRepeat AddressMode = iota
	AddressModeClampToEdge
	AddressModeClampToBorder
)

type SamplerDescription struct {
	Name        string
	Filter      Filter
	AddressMode AddressMode
	// Enables depth comparison, used to sample shadow maps.
	Compare    bool
	CompareOp  CompareOp
	Anisotropy float32
}
