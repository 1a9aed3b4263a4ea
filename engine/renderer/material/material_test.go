package material

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/backendtest"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/reflection/spirvtest"
	"github.com/spaghettifunk/prism/engine/renderer/renderpass"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// paramsBlock declares `uniform Params { vec4 color; float intensity; } params`
// at binding 0.
func paramsBlock(b *spirvtest.Builder) {
	f32 := b.Float32()
	b.UniformBlock("params", 0, 0, b.Struct("Params",
		spirvtest.Field{Name: "color", Type: b.Vec(f32, 4), Offset: 0},
		spirvtest.Field{Name: "intensity", Type: f32, Offset: 16},
	))
}

func vertexShader() *spirvtest.Builder {
	vs := spirvtest.New(metadata.ShaderStageVertex)
	vs.Input("in_position", 0, vs.Vec(vs.Float32(), 3))
	paramsBlock(vs)
	return vs
}

func fragmentShader() *spirvtest.Builder {
	fs := spirvtest.New(metadata.ShaderStageFragment)
	paramsBlock(fs)
	fs.CombinedImageSampler("diffuse", 0, 1)
	fs.SampledImage("normalMap", 0, 2)
	fs.Sampler("linear", 0, 3)
	return fs
}

type fixture struct {
	backend *backendtest.Backend
	graph   *renderpass.Graph
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := backendtest.New(metadata.Extent2D{Width: 320, Height: 240})
	sc, err := backend.CreateSwapchain(backend.SurfaceExtent())
	if err != nil {
		t.Fatal(err)
	}
	g, err := renderpass.NewGraph(backend, sc, &renderpass.Config{
		Samples:        metadata.SampleCount4,
		ShadowMapSize:  256,
		Lights:         renderpass.LightCounts{Directional: 1},
		FramesInFlight: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{backend: backend, graph: g}
}

func (f *fixture) material(t *testing.T, config *Config) *Material {
	t.Helper()
	m, err := New(f.backend, f.graph.Forward.RenderPass, config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func shadingConfig() *Config {
	return &Config{
		Name: "lit",
		Type: TypeShading,
		Stages: []StageSource{
			{Stage: metadata.ShaderStageVertex, Code: vertexShader().Bytes()},
			{Stage: metadata.ShaderStageFragment, Code: fragmentShader().Bytes()},
		},
	}
}

func (f *fixture) instance(t *testing.T, defaults Defaults) *Instance {
	t.Helper()
	inst, err := NewInstance(f.backend, f.material(t, shadingConfig()), 3, defaults, "")
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	return inst
}

func float32At(data []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
}

func TestBindingsMergeAcrossStages(t *testing.T) {
	f := newFixture(t)
	m := f.material(t, shadingConfig())

	have := f.backend.SetLayoutBindings(m.SetLayout)
	want := []metadata.DescriptorBinding{
		{Name: "params", Binding: 0, Kind: metadata.DescriptorKindUniformBlock, Stages: metadata.ShaderStageVertex | metadata.ShaderStageFragment, Count: 1},
		{Name: "diffuse", Binding: 1, Kind: metadata.DescriptorKindCombinedImageSampler, Stages: metadata.ShaderStageFragment, Count: 1},
		{Name: "normalMap", Binding: 2, Kind: metadata.DescriptorKindSampledImage, Stages: metadata.ShaderStageFragment, Count: 1},
		{Name: "linear", Binding: 3, Kind: metadata.DescriptorKindSampler, Stages: metadata.ShaderStageFragment, Count: 1},
	}
	if len(have) != len(want) {
		t.Fatalf("have %d bindings, want %d: %+v", len(have), len(want), have)
	}
	for i := range want {
		if have[i] != want[i] {
			t.Errorf("binding %d: have %+v, want %+v", i, have[i], want[i])
		}
	}
	if len(m.Blocks) != 1 || m.Blocks[0].Size != 32 {
		t.Fatalf("blocks: have %d, want one block of 32 bytes", len(m.Blocks))
	}
	if _, ok := m.Block("Params"); !ok {
		t.Errorf("block not found by type name")
	}
}

func TestBindingKindConflict(t *testing.T) {
	f := newFixture(t)
	vs := vertexShader()
	fs := spirvtest.New(metadata.ShaderStageFragment)
	fs.CombinedImageSampler("diffuse", 0, 0)

	_, err := New(f.backend, f.graph.Forward.RenderPass, &Config{
		Name: "broken",
		Stages: []StageSource{
			{Stage: metadata.ShaderStageVertex, Code: vs.Bytes()},
			{Stage: metadata.ShaderStageFragment, Code: fs.Bytes()},
		},
	})
	if !errors.Is(err, core.ErrBindingKindMismatch) {
		t.Fatalf("have %v, want ErrBindingKindMismatch", err)
	}
	if have := f.backend.Live("shader-module"); have != 0 {
		t.Errorf("shader modules leaked: have %d, want 0", have)
	}
}

func TestNonZeroSetRejected(t *testing.T) {
	f := newFixture(t)
	fs := spirvtest.New(metadata.ShaderStageFragment)
	fs.CombinedImageSampler("diffuse", 1, 0)

	_, err := New(f.backend, f.graph.Forward.RenderPass, &Config{
		Name: "set1",
		Stages: []StageSource{
			{Stage: metadata.ShaderStageVertex, Code: vertexShader().Bytes()},
			{Stage: metadata.ShaderStageFragment, Code: fs.Bytes()},
		},
	})
	if !errors.Is(err, core.ErrUnsupportedShader) {
		t.Fatalf("have %v, want ErrUnsupportedShader", err)
	}
}

func TestMaterialTypesAndQueues(t *testing.T) {
	f := newFixture(t)
	vs := vertexShader().Bytes()
	fs := fragmentShader().Bytes()
	both := []StageSource{
		{Stage: metadata.ShaderStageVertex, Code: vs},
		{Stage: metadata.ShaderStageFragment, Code: fs},
	}
	alpha := DefaultRaster(TypeShading)
	alpha.Blend = metadata.BlendModeAlpha

	for _, tc := range []struct {
		name   string
		config Config
		queue  Queue
	}{
		{"opaque", Config{Type: TypeShading, Stages: both}, QueueOpaque},
		{"transparent", Config{Type: TypeShading, Stages: both, Raster: &alpha}, QueueTransparent},
		{"skybox", Config{Type: TypeSkybox, Stages: both}, QueueSkybox},
		{"shadow", Config{Type: TypeShadow, Stages: both[:1]}, QueueShadow},
		{"explicit", Config{Type: TypeShading, Stages: both, Queue: 1500}, 1500},
	} {
		tc.config.Name = tc.name
		m := f.material(t, &tc.config)
		if m.Queue != tc.queue {
			t.Errorf("%s: have queue %d, want %d", tc.name, m.Queue, tc.queue)
		}
		desc, ok := f.backend.PipelineDescription(m.Pipeline.Handle)
		if !ok {
			t.Fatalf("%s: pipeline not created", tc.name)
		}
		switch m.Type {
		case TypeSkybox:
			if desc.Raster.DepthWrite || desc.Raster.CullMode != metadata.CullModeFront {
				t.Errorf("skybox raster: have %+v", desc.Raster)
			}
		case TypeShadow:
			if !desc.Raster.DepthBias {
				t.Errorf("shadow raster has no depth bias")
			}
		}
	}
}

func TestShadowMaterialRejectsFragmentStage(t *testing.T) {
	f := newFixture(t)
	_, err := New(f.backend, f.graph.Forward.RenderPass, &Config{
		Name:   "shadow",
		Type:   TypeShadow,
		Stages: shadingConfig().Stages,
	})
	if !errors.Is(err, core.ErrUnsupportedShader) {
		t.Fatalf("have %v, want ErrUnsupportedShader", err)
	}
}

func TestSetUniformResolvesPaddedBlock(t *testing.T) {
	f := newFixture(t)
	inst := f.instance(t, Defaults{Texture: 100, Sampler: 200})

	if err := inst.SetUniform("color", mgl32.Vec4{1, 0.5, 0.25, 1}); err != nil {
		t.Fatal(err)
	}
	if err := inst.SetUniform("params.intensity", 2.0); err != nil {
		t.Fatal(err)
	}

	set, err := inst.ResolveForFrame(0)
	if err != nil {
		t.Fatal(err)
	}
	buf := f.backend.DescriptorWrites(set)[0].Buffer
	data := f.backend.BufferData(buf)
	if len(data) != 32 {
		t.Fatalf("buffer size: have %d, want 32", len(data))
	}
	for i, want := range []float32{1, 0.5, 0.25, 1, 2} {
		if have := float32At(data, 4*i); have != want {
			t.Errorf("float %d: have %v, want %v", i, have, want)
		}
	}
	if !bytes.Equal(data[20:], make([]byte, 12)) {
		t.Errorf("padding not zero: %v", data[20:])
	}

	have, err := inst.Uniform("Params.intensity")
	if err != nil || float32At(have, 0) != 2 {
		t.Errorf("Uniform: have %v %v, want 2", have, err)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	inst := f.instance(t, Defaults{Texture: 100, Sampler: 200})

	if _, err := inst.ResolveForFrame(1); err != nil {
		t.Fatal(err)
	}
	before := f.backend.Stats()
	if _, err := inst.ResolveForFrame(1); err != nil {
		t.Fatal(err)
	}
	after := f.backend.Stats()
	if after.BufferWrites != before.BufferWrites || after.DescriptorUpdates != before.DescriptorUpdates {
		t.Errorf("second resolve did device work: have %+v, want %+v", after, before)
	}
}

func TestSetUniformReachesEverySlot(t *testing.T) {
	f := newFixture(t)
	inst := f.instance(t, Defaults{})

	for slot := uint32(0); slot < 3; slot++ {
		if _, err := inst.ResolveForFrame(slot); err != nil {
			t.Fatal(err)
		}
	}
	if err := inst.SetUniform("intensity", float32(0.75)); err != nil {
		t.Fatal(err)
	}

	buffers := map[metadata.Buffer]bool{}
	for slot := uint32(0); slot < 3; slot++ {
		before := f.backend.Stats().BufferWrites
		set, err := inst.ResolveForFrame(slot)
		if err != nil {
			t.Fatal(err)
		}
		if have := f.backend.Stats().BufferWrites - before; have != 1 {
			t.Errorf("slot %d: have %d buffer writes, want 1", slot, have)
		}
		buf := f.backend.DescriptorWrites(set)[0].Buffer
		buffers[buf] = true
		if have := float32At(f.backend.BufferData(buf), 16); have != 0.75 {
			t.Errorf("slot %d: have intensity %v, want 0.75", slot, have)
		}
	}
	if len(buffers) != 3 {
		t.Errorf("slots share uniform buffers: have %d distinct, want 3", len(buffers))
	}
}

func TestSetUniformErrorsDropTheWrite(t *testing.T) {
	f := newFixture(t)
	inst := f.instance(t, Defaults{})
	if _, err := inst.ResolveForFrame(0); err != nil {
		t.Fatal(err)
	}

	if err := inst.SetUniform("intensity", mgl32.Vec4{1, 2, 3, 4}); !errors.Is(err, core.ErrUniformSizeMismatch) {
		t.Errorf("size mismatch: have %v, want ErrUniformSizeMismatch", err)
	}
	if err := inst.SetUniform("lights[0].color", mgl32.Vec4{}); !errors.Is(err, core.ErrUniformNotFound) {
		t.Errorf("unknown path: have %v, want ErrUniformNotFound", err)
	}
	if err := inst.SetUniform("params.missing", float32(1)); !errors.Is(err, core.ErrUniformNotFound) {
		t.Errorf("unknown member: have %v, want ErrUniformNotFound", err)
	}

	before := f.backend.Stats().BufferWrites
	if _, err := inst.ResolveForFrame(0); err != nil {
		t.Fatal(err)
	}
	if have := f.backend.Stats().BufferWrites - before; have != 0 {
		t.Errorf("dropped writes reached the device: have %d writes, want 0", have)
	}
	if have, _ := inst.Uniform("intensity"); !bytes.Equal(have, make([]byte, 4)) {
		t.Errorf("host copy changed: have %v", have)
	}
}

func TestSetTextureAndSampler(t *testing.T) {
	f := newFixture(t)
	inst := f.instance(t, Defaults{Texture: 100, Sampler: 200})

	set, err := inst.ResolveForFrame(2)
	if err != nil {
		t.Fatal(err)
	}
	writes := f.backend.DescriptorWrites(set)
	if w := writes[1]; w.Image != 100 || w.Sampler != 200 {
		t.Errorf("default combined sampler: have %+v", w)
	}
	if w := writes[2]; w.Image != 100 {
		t.Errorf("default image: have %+v", w)
	}
	if w := writes[3]; w.Sampler != 200 {
		t.Errorf("default sampler: have %+v", w)
	}

	if err := inst.SetTexture("diffuse", 7); err != nil {
		t.Fatal(err)
	}
	if err := inst.SetSampler("linear", 9); err != nil {
		t.Fatal(err)
	}
	if err := inst.SetTexture("linear", 7); !errors.Is(err, core.ErrBindingKindMismatch) {
		t.Errorf("texture on sampler: have %v, want ErrBindingKindMismatch", err)
	}
	if err := inst.SetSampler("normalMap", 9); !errors.Is(err, core.ErrBindingKindMismatch) {
		t.Errorf("sampler on image: have %v, want ErrBindingKindMismatch", err)
	}
	if err := inst.SetTexture("albedo", 7); !errors.Is(err, core.ErrBindingNotFound) {
		t.Errorf("unknown binding: have %v, want ErrBindingNotFound", err)
	}

	before := f.backend.Stats()
	if _, err := inst.ResolveForFrame(2); err != nil {
		t.Fatal(err)
	}
	after := f.backend.Stats()
	if after.DescriptorUpdates-before.DescriptorUpdates != 1 || after.BufferWrites != before.BufferWrites {
		t.Errorf("have %d descriptor updates and %d buffer writes, want 1 and 0",
			after.DescriptorUpdates-before.DescriptorUpdates, after.BufferWrites-before.BufferWrites)
	}
	writes = f.backend.DescriptorWrites(set)
	if w := writes[1]; w.Image != 7 || w.Sampler != 200 {
		t.Errorf("diffuse: have %+v", w)
	}
	if w := writes[3]; w.Sampler != 9 {
		t.Errorf("linear: have %+v", w)
	}
}

func TestUnboundImageStaysStale(t *testing.T) {
	f := newFixture(t)
	inst := f.instance(t, Defaults{})

	set, err := inst.ResolveForFrame(0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.backend.DescriptorWrites(set)[1]; ok {
		t.Fatalf("combined sampler written without an image")
	}
	if err := inst.SetTexture("diffuse", 7); err != nil {
		t.Fatal(err)
	}
	if err := inst.SetSampler("diffuse", 9); err != nil {
		t.Fatal(err)
	}
	if _, err := inst.ResolveForFrame(0); err != nil {
		t.Fatal(err)
	}
	if w := f.backend.DescriptorWrites(set)[1]; w.Image != 7 || w.Sampler != 9 {
		t.Errorf("diffuse: have %+v", w)
	}
}

func TestResolveSlotOutOfRange(t *testing.T) {
	f := newFixture(t)
	inst := f.instance(t, Defaults{})
	if _, err := inst.ResolveForFrame(3); !errors.Is(err, core.ErrInvalidHandle) {
		t.Errorf("have %v, want ErrInvalidHandle", err)
	}
}

func TestDestroyReleasesEverything(t *testing.T) {
	f := newFixture(t)
	inst := f.instance(t, Defaults{})
	inst.Destroy()
	inst.Material.Destroy(f.backend)
	f.graph.Destroy()
	f.backend.DestroySwapchain()

	if have := f.backend.Live(""); have != 0 {
		t.Errorf("have %d live objects, want 0", have)
	}
}

func TestEncode(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value any
		want  int
	}{
		{"bool", true, 4},
		{"int", 3, 4},
		{"float64", 1.5, 4},
		{"vec3", mgl32.Vec3{1, 2, 3}, 12},
		{"mat4", mgl32.Ident4(), 64},
		{"floats", []float32{1, 2, 3}, 12},
		{"bytes", []byte{1, 2}, 2},
	} {
		have, err := Encode(tc.value)
		if err != nil || len(have) != tc.want {
			t.Errorf("%s: have %d bytes (%v), want %d", tc.name, len(have), err, tc.want)
		}
	}
	if _, err := Encode("text"); err == nil {
		t.Errorf("string encoded without error")
	}

	padded, err := encodeFor(mgl32.Ident3(), 48)
	if err != nil || len(padded) != 48 {
		t.Fatalf("mat3: have %d bytes (%v), want 48", len(padded), err)
	}
	if float32At(padded, 16+4) != 1 || float32At(padded, 12) != 0 {
		t.Errorf("mat3 columns not padded to vec4: %v", padded)
	}
}
