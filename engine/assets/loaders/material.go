package loaders

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/resources"
)

type MaterialLoader struct{}

func (ml *MaterialLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := ParseMaterial(data)
	if err != nil {
		err = fmt.Errorf("material file `%s`: %w", path, err)
		core.LogError("%s", err.Error())
		return nil, err
	}
	if def.Name == "" {
		def.Name = baseName(path)
	}
	return &resources.Resource{
		Name:     def.Name,
		Type:     resources.ResourceTypeMaterial,
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     def,
	}, nil
}

func (ml *MaterialLoader) Unload(res *resources.Resource) error {
	res.Data = nil
	return nil
}

// ParseMaterial decodes a TOML material definition.
func ParseMaterial(data []byte) (*resources.MaterialDefinition, error) {
	def := &resources.MaterialDefinition{}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(def); err != nil {
		return nil, err
	}
	if len(def.Stages) == 0 {
		return nil, fmt.Errorf("material `%s` has no stages", def.Name)
	}
	for i, s := range def.Stages {
		if s.Shader == "" {
			return nil, fmt.Errorf("material `%s`: stage %d has no shader", def.Name, i)
		}
		switch s.Stage {
		case "vertex", "fragment":
		default:
			return nil, fmt.Errorf("material `%s`: unknown stage `%s`", def.Name, s.Stage)
		}
	}
	return def, nil
}

// UniformValue converts a value decoded from TOML into one a material
// instance can encode: floats become float32, integers int32 and arrays of
// numbers []float32.
func UniformValue(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		return float32(t), nil
	case int64:
		return int32(t), nil
	case []interface{}:
		out := make([]float32, len(t))
		for i, e := range t {
			switch n := e.(type) {
			case float64:
				out[i] = float32(n)
			case int64:
				out[i] = float32(n)
			default:
				return nil, fmt.Errorf("uniform array element %d is a %T, want a number", i, e)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported uniform value of type %T", v)
}
