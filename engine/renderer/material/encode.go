package material

import (
	"encoding/binary"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Encode turns a uniform value into the bytes stored in a block. Fixed size
// values are written little endian as they are, except that bool becomes a
// 32 bit integer, int becomes int32 and float64 becomes float32, matching
// what shaders declare. Byte slices are copied through untouched.
func Encode(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return append([]byte(nil), v...), nil
	case bool:
		if v {
			return binary.LittleEndian.AppendUint32(nil, 1), nil
		}
		return binary.LittleEndian.AppendUint32(nil, 0), nil
	case int:
		value = int32(v)
	case uint:
		value = uint32(v)
	case float64:
		value = float32(v)
	case []float64:
		out := make([]float32, len(v))
		for i := range v {
			out[i] = float32(v[i])
		}
		value = out
	}
	data, err := binary.Append(nil, binary.LittleEndian, value)
	if err != nil {
		return nil, fmt.Errorf("cannot encode %T as a uniform: %w", value, err)
	}
	return data, nil
}

// encodeFor encodes value for a member of size bytes. A mat3 is stored as
// three vec4 columns in a uniform block, so a tightly packed mgl32.Mat3 is
// widened when the member asks for it.
func encodeFor(value any, size uint32) ([]byte, error) {
	if m, ok := value.(mgl32.Mat3); ok && size == 48 {
		cols := [3]mgl32.Vec4{m.Col(0).Vec4(0), m.Col(1).Vec4(0), m.Col(2).Vec4(0)}
		return Encode(cols)
	}
	return Encode(value)
}
