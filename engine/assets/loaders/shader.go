package loaders

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/naga"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/resources"
)

type ShaderLoader struct{}

// Load reads a SPIR-V binary, or compiles WGSL source to SPIR-V, depending on
// the file extension.
func (sl *ShaderLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	res := &resources.Resource{
		Name:     baseName(path),
		Type:     resources.ResourceTypeShader,
		FullPath: path,
		DataSize: uint64(len(data)),
	}

	switch filepath.Ext(path) {
	case ".spv":
		if err := checkSPIRV(data); err != nil {
			err = fmt.Errorf("shader `%s`: %w", path, err)
			core.LogError("%s", err.Error())
			return nil, err
		}
		res.Data = &resources.ShaderResourceData{Source: resources.ShaderSourceSPIRV, Code: data}
	case ".wgsl":
		code, err := CompileWGSL(string(data))
		if err != nil {
			err = fmt.Errorf("shader `%s`: %w", path, err)
			core.LogError("%s", err.Error())
			return nil, err
		}
		res.Data = &resources.ShaderResourceData{Source: resources.ShaderSourceWGSL, Code: code}
	default:
		return nil, fmt.Errorf("%w: unknown shader extension `%s`", core.ErrInvalidShader, filepath.Ext(path))
	}
	return res, nil
}

func (sl *ShaderLoader) Unload(res *resources.Resource) error {
	res.Data = nil
	return nil
}

// CompileWGSL compiles WGSL source into a SPIR-V binary.
func CompileWGSL(source string) ([]byte, error) {
	code, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to compile WGSL: %w", core.ErrInvalidShader, err)
	}
	if err := checkSPIRV(code); err != nil {
		return nil, err
	}
	return code, nil
}

func checkSPIRV(code []byte) error {
	if len(code) < 20 || len(code)%4 != 0 {
		return fmt.Errorf("%w: %d bytes is not a SPIR-V binary", core.ErrInvalidShader, len(code))
	}
	if binary.LittleEndian.Uint32(code) != resources.SPIRVMagic && binary.BigEndian.Uint32(code) != resources.SPIRVMagic {
		return fmt.Errorf("%w: bad magic number", core.ErrInvalidShader)
	}
	return nil
}

// baseName strips the directory and the extension: "shaders/lit.vert.spv"
// becomes "lit.vert".
func baseName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
