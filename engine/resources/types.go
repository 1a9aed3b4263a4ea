package resources

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	ResourceTypeNone ResourceType = iota
	/** @brief Raw bytes. */
	ResourceTypeBinary
	/** @brief Image resource type, decoded to RGBA8. */
	ResourceTypeImage
	/** @brief Material definition. */
	ResourceTypeMaterial
	/** @brief Shader resource type, always SPIR-V once loaded. */
	ResourceTypeShader
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeBinary:
		return "binary"
	case ResourceTypeImage:
		return "image"
	case ResourceTypeMaterial:
		return "material"
	case ResourceTypeShader:
		return "shader"
	}
	return "none"
}

/** @brief The first word of every SPIR-V binary, in little endian. */
const SPIRVMagic uint32 = 0x07230203

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	Name string
	Type ResourceType
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the file the resource was loaded from. */
	DataSize uint64
	/** @brief The resource data, typed by Type. */
	Data interface{}
}

/**
 * @brief A structure to hold image resource data.
 */
type ImageResourceData struct {
	Width  uint32
	Height uint32
	/** @brief Tightly packed RGBA8 rows, top to bottom. */
	Pixels []uint8
}

/** @brief Parameters used when loading an image. */
type ImageResourceParams struct {
	/** @brief Indicates if the image should be flipped on the y-axis when loaded. */
	FlipY bool
}

type ShaderSource int

const (
	ShaderSourceSPIRV ShaderSource = iota
	ShaderSourceWGSL
)

/** @brief A shader ready for reflection: Code is SPIR-V whatever the source was. */
type ShaderResourceData struct {
	Source ShaderSource
	Code   []byte
}

/** @brief One stage of a material definition. */
type MaterialStageDefinition struct {
	/** @brief vertex or fragment. */
	Stage string `toml:"stage"`
	/** @brief Shader name relative to the shader directory, without extension. */
	Shader     string `toml:"shader"`
	EntryPoint string `toml:"entry_point"`
}

/**
 * @brief A material as described on disk. Uniform values are kept as
 * decoded from the file and converted when applied.
 */
type MaterialDefinition struct {
	Name string `toml:"name"`
	/** @brief shading, shadow or skybox. */
	Type string `toml:"type"`
	/** @brief Render queue, zero picks the default of the type. */
	Queue int `toml:"queue"`
	/** @brief opaque, alpha or additive. */
	Blend string `toml:"blend"`
	/** @brief Vertex attributes meshes drawn with it provide; empty means any. */
	Attributes []string                  `toml:"attributes"`
	Stages     []MaterialStageDefinition `toml:"stages"`
	Uniforms   map[string]interface{}    `toml:"uniforms"`
	/** @brief Binding name to texture name. */
	Textures map[string]string `toml:"textures"`
}
