package loaders

import (
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/reflection"
	"github.com/spaghettifunk/prism/engine/resources"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

const colorShader = `
struct Params {
    color: vec4<f32>,
    intensity: f32,
}

@group(0) @binding(0) var<uniform> params: Params;

@vertex
fn vs_main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position * params.intensity, 1.0);
}
`

func TestCompileWGSL(t *testing.T) {
	code, err := CompileWGSL(colorShader)
	if err != nil {
		if msg := err.Error(); strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
			t.Skipf("Skipping: naga feature not yet implemented: %v", err)
		}
		t.Fatalf("CompileWGSL: %v", err)
	}
	if have := binary.LittleEndian.Uint32(code); have != resources.SPIRVMagic {
		t.Fatalf("magic: have %#x, want %#x", have, resources.SPIRVMagic)
	}

	mod, err := reflection.Parse(code)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if mod.Stages&metadata.ShaderStageVertex == 0 {
		t.Errorf("stages: have %s, want vertex", mod.Stages)
	}
}

func TestCompileWGSLError(t *testing.T) {
	if _, err := CompileWGSL("fn broken( {"); !errors.Is(err, core.ErrInvalidShader) {
		t.Errorf("have %v, want ErrInvalidShader", err)
	}
}

func TestCheckSPIRV(t *testing.T) {
	header := make([]byte, 20)
	binary.LittleEndian.PutUint32(header, resources.SPIRVMagic)
	if err := checkSPIRV(header); err != nil {
		t.Errorf("little endian: %v", err)
	}
	binary.BigEndian.PutUint32(header, resources.SPIRVMagic)
	if err := checkSPIRV(header); err != nil {
		t.Errorf("big endian: %v", err)
	}
	binary.LittleEndian.PutUint32(header, 0xdeadbeef)
	if err := checkSPIRV(header); !errors.Is(err, core.ErrInvalidShader) {
		t.Errorf("bad magic: have %v, want ErrInvalidShader", err)
	}
	if err := checkSPIRV(header[:18]); !errors.Is(err, core.ErrInvalidShader) {
		t.Errorf("odd size: have %v, want ErrInvalidShader", err)
	}
}

func TestParseMaterial(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
		ok   bool
	}{
		{"valid", "name = \"a\"\n[[stages]]\nstage = \"vertex\"\nshader = \"a.vert\"\n", true},
		{"no stages", "name = \"a\"\n", false},
		{"bad stage", "[[stages]]\nstage = \"geometry\"\nshader = \"a.geom\"\n", false},
		{"no shader", "[[stages]]\nstage = \"vertex\"\n", false},
		{"unknown key", "colour = 1\n[[stages]]\nstage = \"vertex\"\nshader = \"a\"\n", false},
	} {
		_, err := ParseMaterial([]byte(tc.data))
		if (err == nil) != tc.ok {
			t.Errorf("%s: have %v, want ok=%v", tc.name, err, tc.ok)
		}
	}
}

func TestUniformValue(t *testing.T) {
	for _, tc := range []struct {
		in   interface{}
		want interface{}
	}{
		{2.5, float32(2.5)},
		{int64(3), int32(3)},
		{true, true},
	} {
		have, err := UniformValue(tc.in)
		if err != nil || have != tc.want {
			t.Errorf("UniformValue(%v): have %v (%T) %v, want %v (%T)", tc.in, have, have, err, tc.want, tc.want)
		}
	}
	have, err := UniformValue([]interface{}{1.0, int64(2)})
	if v, ok := have.([]float32); err != nil || !ok || len(v) != 2 || v[1] != 2 {
		t.Errorf("array: have %v %v", have, err)
	}
	if _, err := UniformValue("red"); err == nil {
		t.Errorf("string accepted")
	}
	if _, err := UniformValue([]interface{}{"x"}); err == nil {
		t.Errorf("string element accepted")
	}
}

func TestTextureLoaderBMP(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	img.Set(1, 0, color.RGBA{0, 255, 0, 255})
	img.Set(0, 1, color.RGBA{0, 0, 255, 255})
	img.Set(1, 1, color.RGBA{255, 255, 255, 255})

	path := filepath.Join(t.TempDir(), "checker.bmp")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := bmp.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	tl := &TextureLoader{}
	res, err := tl.Load(path, &resources.ImageResourceParams{FlipY: true})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	data := res.Data.(*resources.ImageResourceData)
	if data.Width != 2 || data.Height != 2 || len(data.Pixels) != 16 {
		t.Fatalf("have %dx%d with %d bytes, want 2x2 with 16", data.Width, data.Height, len(data.Pixels))
	}
	// Flipped: the first row is the bottom one, blue then white.
	if have := data.Pixels[0:4]; have[0] != 0 || have[1] != 0 || have[2] != 255 || have[3] != 255 {
		t.Errorf("first pixel: have %v, want blue", have)
	}
	if res.Name != "checker" || res.Type != resources.ResourceTypeImage {
		t.Errorf("have %s %v", res.Name, res.Type)
	}
}
