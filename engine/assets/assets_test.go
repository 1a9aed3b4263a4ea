package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/reflection/spirvtest"
	"github.com/spaghettifunk/prism/engine/resources"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

const litMaterial = `
name = "lit"
type = "shading"
attributes = ["position", "normal", "uv0"]

[[stages]]
stage = "vertex"
shader = "lit.vert"

[[stages]]
stage = "fragment"
shader = "lit.frag"

[uniforms]
"params.color" = [1.0, 0.5, 0.25, 1.0]
"params.intensity" = 2.0

[textures]
diffuse = "checker"
`

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func assetTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	vs := spirvtest.New(metadata.ShaderStageVertex)
	vs.Input("in_position", 0, vs.Vec(vs.Float32(), 3))
	writeFile(t, filepath.Join(root, "shaders", "lit.vert.spv"), vs.Bytes())
	writeFile(t, filepath.Join(root, "shaders", "lit.frag.spv"), spirvtest.New(metadata.ShaderStageFragment).Bytes())
	writeFile(t, filepath.Join(root, "shaders", "broken.spv"), []byte{1, 2, 3, 4})
	writeFile(t, filepath.Join(root, "materials", "lit.toml"), []byte(litMaterial))
	writeFile(t, filepath.Join(root, "notes.txt"), []byte("ignored"))

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 1, color.NRGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, "textures", "checker.png"), buf.Bytes())
	return root
}

func newManager(t *testing.T) *AssetManager {
	t.Helper()
	am := NewAssetManager()
	if err := am.Initialize(assetTree(t)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return am
}

func TestIndex(t *testing.T) {
	am := newManager(t)
	if have := len(am.Assets(resources.ResourceTypeShader)); have != 3 {
		t.Errorf("shaders: have %d, want 3", have)
	}
	if have := am.Assets(resources.ResourceTypeMaterial); len(have) != 1 || have[0] != "materials/lit.toml" {
		t.Errorf("materials: have %v, want [materials/lit.toml]", have)
	}
	if have := len(am.Assets(resources.ResourceTypeImage)); have != 1 {
		t.Errorf("images: have %d, want 1", have)
	}
}

func TestLoadShader(t *testing.T) {
	am := newManager(t)
	res, err := am.LoadAsset("lit.vert", resources.ResourceTypeShader, nil)
	if err != nil {
		t.Fatalf("LoadAsset: %v", err)
	}
	data := res.Data.(*resources.ShaderResourceData)
	if res.Name != "lit.vert" || data.Source != resources.ShaderSourceSPIRV || len(data.Code) == 0 {
		t.Errorf("have %+v", res)
	}
	if _, err := am.LoadAsset("broken", resources.ResourceTypeShader, nil); err == nil {
		t.Errorf("broken shader loaded without error")
	}
	if _, err := am.LoadAsset("missing", resources.ResourceTypeShader, nil); err == nil {
		t.Errorf("missing shader loaded without error")
	}
}

func TestLoadMaterial(t *testing.T) {
	am := newManager(t)
	res, err := am.LoadAsset("lit", resources.ResourceTypeMaterial, nil)
	if err != nil {
		t.Fatalf("LoadAsset: %v", err)
	}
	def := res.Data.(*resources.MaterialDefinition)
	if def.Name != "lit" || def.Type != "shading" || len(def.Stages) != 2 {
		t.Fatalf("have %+v", def)
	}
	if def.Stages[1].Shader != "lit.frag" || def.Textures["diffuse"] != "checker" {
		t.Errorf("have %+v", def)
	}
	if _, ok := def.Uniforms["params.color"]; !ok {
		t.Errorf("uniforms: have %v", def.Uniforms)
	}
}

func TestLoadTexture(t *testing.T) {
	am := newManager(t)
	res, err := am.LoadAsset("checker", resources.ResourceTypeImage, &resources.ImageResourceParams{FlipY: true})
	if err != nil {
		t.Fatalf("LoadAsset: %v", err)
	}
	img := res.Data.(*resources.ImageResourceData)
	if img.Width != 2 || img.Height != 2 || len(img.Pixels) != 16 {
		t.Fatalf("have %dx%d with %d bytes", img.Width, img.Height, len(img.Pixels))
	}
	// Flipped: the blue texel at (1, 1) is now on the first row.
	if have := img.Pixels[4:8]; have[2] != 255 || have[3] != 255 {
		t.Errorf("flipped texel: have %v, want blue", have)
	}
	if err := am.UnloadAsset(res); err != nil || res.Data != nil {
		t.Errorf("UnloadAsset: have %v, data %v", err, res.Data)
	}
}
