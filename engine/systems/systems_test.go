package systems

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/backendtest"
	"github.com/spaghettifunk/prism/engine/renderer/material"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/reflection/spirvtest"
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

const glassMaterial = `
type = "shading"
blend = "alpha"

[[stages]]
stage = "vertex"
shader = "lit.vert"

[[stages]]
stage = "fragment"
shader = "lit.frag"

[textures]
diffuse = "missing"
`

type window struct {
	extent    metadata.Extent2D
	minimized bool
}

func (w *window) FramebufferExtent() metadata.Extent2D { return w.extent }
func (w *window) Minimized() bool                       { return w.minimized }

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

	fs := spirvtest.New(metadata.ShaderStageFragment)
	f32 := fs.Float32()
	fs.UniformBlock("params", 0, 0, fs.Struct("Params",
		spirvtest.Field{Name: "color", Type: fs.Vec(f32, 4), Offset: 0},
		spirvtest.Field{Name: "intensity", Type: f32, Offset: 16},
	))
	fs.CombinedImageSampler("diffuse", 0, 1)
	writeFile(t, filepath.Join(root, "shaders", "lit.frag.spv"), fs.Bytes())

	writeFile(t, filepath.Join(root, "materials", "lit.toml"), []byte(litMaterial))
	writeFile(t, filepath.Join(root, "materials", "glass.toml"), []byte(glassMaterial))

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, "textures", "checker.png"), buf.Bytes())
	return root
}

type fixture struct {
	backend *backendtest.Backend
	manager *SystemManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	extent := metadata.Extent2D{Width: 320, Height: 240}
	cfg := config.Default()
	cfg.Assets.Dir = assetTree(t)
	cfg.Window.Width, cfg.Window.Height = extent.Width, extent.Height

	backend := backendtest.New(extent)
	sm, err := NewSystemManager(cfg, backend)
	if err != nil {
		t.Fatalf("NewSystemManager: %v", err)
	}
	if err := sm.Initialize(&window{extent: extent}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return &fixture{backend: backend, manager: sm}
}

func TestMaterialAcquireAppliesDefinition(t *testing.T) {
	f := newFixture(t)
	ms := f.manager.MaterialSystem

	h, err := ms.Acquire("lit")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	inst, ok := f.manager.RendererSystem.Renderer().Material(h)
	if !ok {
		t.Fatal("instance is not registered with the renderer")
	}
	if inst.FramesInFlight() != 2 {
		t.Errorf("have %d slots, want 2", inst.FramesInFlight())
	}

	data, err := inst.Uniform("params.color")
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{1, 0.5, 0.25, 1}
	for i, w := range want {
		if have := math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])); have != w {
			t.Errorf("color[%d]: have %v, want %v", i, have, w)
		}
	}

	set, err := inst.ResolveForFrame(0)
	if err != nil {
		t.Fatal(err)
	}
	checker, ok := f.manager.TextureSystem.Get("checker")
	if !ok {
		t.Fatal("checker texture was not loaded")
	}
	if w := f.backend.DescriptorWrites(set)[1]; w.Image != checker.Image || w.Sampler != f.manager.TextureSystem.DefaultSampler {
		t.Errorf("have diffuse write %+v, want the checker image and default sampler", w)
	}

	again, err := ms.Acquire("lit")
	if err != nil {
		t.Fatal(err)
	}
	other, _ := f.manager.RendererSystem.Renderer().Material(again)
	if again == h || other.Material != inst.Material {
		t.Errorf("a second acquire must create a new instance of the cached template")
	}
}

func TestMaterialDefinitionDefaults(t *testing.T) {
	f := newFixture(t)
	h, err := f.manager.MaterialSystem.Acquire("glass")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	inst, _ := f.manager.RendererSystem.Renderer().Material(h)
	if inst.Material.Name != "glass" {
		t.Errorf("a definition without a name takes the asset name, have `%s`", inst.Material.Name)
	}
	if inst.Material.Queue != material.QueueTransparent {
		t.Errorf("have queue %d, want %d for alpha blending", inst.Material.Queue, material.QueueTransparent)
	}

	set, err := inst.ResolveForFrame(1)
	if err != nil {
		t.Fatal(err)
	}
	if w := f.backend.DescriptorWrites(set)[1]; w.Image != f.manager.TextureSystem.DefaultTexture.Image {
		t.Errorf("a missing texture must fall back to the default, have %+v", w)
	}
}

func TestBuildTemplateKeepsFirst(t *testing.T) {
	f := newFixture(t)
	ms := f.manager.MaterialSystem
	if _, err := ms.Acquire("lit"); err != nil {
		t.Fatal(err)
	}
	first, _ := ms.Template("lit")
	again, err := ms.BuildTemplate(&material.Config{Name: "lit"})
	if err != nil || again != first {
		t.Errorf("have %p, %v, want the cached template %p", again, err, first)
	}
}

func TestTextureReferenceCounting(t *testing.T) {
	f := newFixture(t)
	ts := f.manager.TextureSystem
	images := f.backend.Live("image")

	a, err := ts.Acquire("checker")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b, err := ts.Acquire("checker")
	if err != nil {
		t.Fatal(err)
	}
	if a != b || a.Width != 2 || a.Height != 2 {
		t.Fatalf("have %+v and %+v, want one 2x2 texture", a, b)
	}
	if have := f.backend.Live("image"); have != images+1 {
		t.Errorf("have %d images, want %d", have, images+1)
	}
	if px := f.backend.ImagePixels(a.Image); len(px) != 16 || px[0] != 255 || px[3] != 255 {
		t.Errorf("have pixels %v", px)
	}

	ts.Release("checker")
	if _, ok := ts.Get("checker"); !ok {
		t.Errorf("texture destroyed while still referenced")
	}
	ts.Release("checker")
	if _, ok := ts.Get("checker"); ok {
		t.Errorf("texture still registered after the last release")
	}
	if have := f.backend.Live("image"); have != images {
		t.Errorf("have %d images, want %d", have, images)
	}
	if _, err := ts.Acquire("nope"); err == nil {
		t.Errorf("acquiring a missing texture must fail")
	}
}

func TestTextureAcquireAsync(t *testing.T) {
	f := newFixture(t)
	ts := f.manager.TextureSystem

	var loaded, fallback *Texture
	ts.AcquireAsync("checker", func(t *Texture) { loaded = t })
	ts.AcquireAsync("nope", func(t *Texture) { fallback = t })

	deadline := time.Now().Add(5 * time.Second)
	for f.manager.JobSystem.Pending() > 0 && time.Now().Before(deadline) {
		f.manager.Update()
		time.Sleep(time.Millisecond)
	}
	f.manager.Update()

	if loaded == nil || loaded.Name != "checker" {
		t.Errorf("have %+v, want the checker texture", loaded)
	}
	if fallback != ts.DefaultTexture {
		t.Errorf("a failed load must hand out the default texture")
	}
}

func TestMeshSystem(t *testing.T) {
	f := newFixture(t)
	ms := f.manager.MeshSystem

	a, err := ms.Acquire(QuadMeshName)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ms.Acquire(QuadMeshName)
	if err != nil || a != b {
		t.Errorf("have %d and %d (%v), want the same handle", a, b, err)
	}
	if _, err := ms.Acquire("teapot"); !errors.Is(err, core.ErrInvalidHandle) {
		t.Errorf("have %v, want %v", err, core.ErrInvalidHandle)
	}
	if err := ms.Release(QuadMeshName); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.manager.RendererSystem.Renderer().Mesh(a); !ok {
		t.Errorf("mesh released while still referenced")
	}
	if err := ms.Release(QuadMeshName); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.manager.RendererSystem.Renderer().Mesh(a); ok {
		t.Errorf("mesh still registered after the last release")
	}
}

func TestFrameWithSystems(t *testing.T) {
	f := newFixture(t)
	quad, err := f.manager.MeshSystem.Acquire(QuadMeshName)
	if err != nil {
		t.Fatal(err)
	}
	lit, err := f.manager.MaterialSystem.Acquire("lit")
	if err != nil {
		t.Fatal(err)
	}
	cam := f.manager.CameraSystem.GetDefault()
	packet := &renderer.RenderPacket{
		ViewProjection: cam.ViewProjection(f.manager.RendererSystem.AspectRatio()),
		Drawables:      []renderer.Drawable{{Mesh: quad, Material: lit}},
	}
	for i := 0; i < 3; i++ {
		if err := f.manager.RendererSystem.DrawFrame(packet); err != nil {
			t.Fatalf("DrawFrame: %v", err)
		}
	}
	if have := f.backend.Stats().Submits; have != 3 {
		t.Errorf("have %d submits, want 3", have)
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	f := newFixture(t)
	quad, _ := f.manager.MeshSystem.Acquire(CubeMeshName)
	lit, err := f.manager.MaterialSystem.Acquire("lit")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.RendererSystem.DrawFrame(&renderer.RenderPacket{
		Drawables: []renderer.Drawable{{Mesh: quad, Material: lit}},
	}); err != nil {
		t.Fatal(err)
	}

	if err := f.manager.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if have := f.backend.Live(""); have != 0 {
		t.Errorf("have %d live objects after shutdown, want 0", have)
	}
}

func TestCameraSystem(t *testing.T) {
	cs, err := NewCameraSystem(&CameraSystemConfig{MaxCameraCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	a, _ := cs.Acquire("main")
	b, _ := cs.Acquire("main")
	if a != b {
		t.Errorf("acquiring the same name must return the same camera")
	}
	if _, err := cs.Acquire("second"); err == nil {
		t.Errorf("acquiring past the maximum must fail")
	}
	if c, _ := cs.Acquire(DefaultCameraName); c != cs.GetDefault() {
		t.Errorf("the default name must return the default camera")
	}
	cs.Release("main")
	cs.Release("main")
	if c, _ := cs.Acquire("main"); c == a {
		t.Errorf("a camera released to zero must be recreated")
	}
	if _, err := NewCameraSystem(&CameraSystemConfig{}); err == nil {
		t.Errorf("a zero maximum must fail")
	}
}
