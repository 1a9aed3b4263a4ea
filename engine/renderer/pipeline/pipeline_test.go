package pipeline

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/backendtest"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/reflection"
	"github.com/spaghettifunk/prism/engine/renderer/reflection/spirvtest"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestMatchAttribute(t *testing.T) {
	for _, tc := range []struct {
		name string
		want Attribute
		ok   bool
	}{
		{"in_position", AttributePosition, true},
		{"inPosition", AttributePosition, true},
		{"a_pos", AttributePosition, true},
		{"in.var.NORMAL", AttributeNormal, true},
		{"in_tangent", AttributeTangent, true},
		{"inColor", AttributeColor, true},
		{"colour", AttributeColor, true},
		{"in_uv", AttributeUV0, true},
		{"inTexCoord", AttributeUV0, true},
		{"in.var.TEXCOORD2", AttributeUV2, true},
		{"uv_3", AttributeUV3, true},
		{"in_uv4", 0, false},
		{"in_weights", 0, false},
		{"", 0, false},
	} {
		have, ok := MatchAttribute(tc.name)
		if ok != tc.ok || (ok && have != tc.want) {
			t.Errorf("MatchAttribute(%q): have %s %v, want %s %v", tc.name, have, ok, tc.want, tc.ok)
		}
	}
}

func TestAttributeSet(t *testing.T) {
	s := AttributesOf(AttributePosition, AttributeUV1)
	if !s.Has(AttributePosition) || !s.Has(AttributeUV1) || s.Has(AttributeNormal) {
		t.Fatalf("membership wrong for %s", s)
	}
	if have := s.String(); have != "{position,uv1}" {
		t.Errorf("String: have %s, want {position,uv1}", have)
	}
	if !AllAttributes.Has(AttributeUV3) || AllAttributes.Has(AttributeCount) {
		t.Errorf("AllAttributes wrong: %b", AllAttributes)
	}
}

func reflect(t *testing.T, b *spirvtest.Builder) *reflection.Module {
	t.Helper()
	mod, err := reflection.Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return mod
}

type fixture struct {
	backend *backendtest.Backend
	pass    metadata.RenderPass
	stages  []ShaderStage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := backendtest.New(metadata.Extent2D{Width: 64, Height: 64})
	pass, err := backend.CreateRenderPass(&metadata.RenderPassDescription{
		Name:        "test",
		Attachments: []metadata.AttachmentDescription{{Format: metadata.FormatB8G8R8A8Srgb, Samples: metadata.SampleCount1}},
		Subpasses:   []metadata.SubpassDescription{{ColorAttachments: []metadata.AttachmentReference{{Attachment: 0}}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	vs := spirvtest.New(metadata.ShaderStageVertex)
	f32 := vs.Float32()
	vec3 := vs.Vec(f32, 3)
	vs.Input("in_position", 0, vec3)
	vs.Input("in_uv", 2, vs.Vec(f32, 2))
	vs.Input("in_normal", 1, vec3)
	mat4 := vs.Mat(vs.Vec(f32, 4), 4)
	vs.PushConstants("pc", vs.Struct("Push",
		spirvtest.Field{Name: "world", Type: mat4, Offset: 0, MatrixStride: 16},
		spirvtest.Field{Name: "time", Type: f32, Offset: 64},
	))

	fs := spirvtest.New(metadata.ShaderStageFragment)
	fs.CombinedImageSampler("diffuse", 0, 0)

	return &fixture{
		backend: backend,
		pass:    pass,
		stages: []ShaderStage{
			{Stage: metadata.ShaderStageVertex, Module: 1, EntryPoint: "main", Reflection: reflect(t, vs)},
			{Stage: metadata.ShaderStageFragment, Module: 2, EntryPoint: "main", Reflection: reflect(t, fs)},
		},
	}
}

func TestBuildVertexLayout(t *testing.T) {
	f := newFixture(t)
	p, err := Build(f.backend, &Description{
		Name:       "lit",
		Stages:     f.stages,
		SetLayout:  7,
		Attributes: AllAttributes,
		Signature:  RenderPassSignature{Pass: f.pass, Samples: metadata.SampleCount4, ColorAttachments: 1},
		Raster:     metadata.RasterState{CullMode: metadata.CullModeBack, DepthTest: true, DepthWrite: true},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantStreams := []VertexStream{
		{Attribute: AttributePosition, Location: 0, Binding: 0},
		{Attribute: AttributeNormal, Location: 1, Binding: 1},
		{Attribute: AttributeUV0, Location: 2, Binding: 2},
	}
	if len(p.Streams) != len(wantStreams) {
		t.Fatalf("streams: have %+v, want %+v", p.Streams, wantStreams)
	}
	for i := range wantStreams {
		if p.Streams[i] != wantStreams[i] {
			t.Errorf("stream %d: have %+v, want %+v", i, p.Streams[i], wantStreams[i])
		}
	}
	if p.Requires() != AttributesOf(AttributePosition, AttributeNormal, AttributeUV0) {
		t.Errorf("Requires: have %s", p.Requires())
	}

	desc, ok := f.backend.PipelineDescription(p.Handle)
	if !ok {
		t.Fatal("pipeline not created on the device")
	}
	if desc.Samples != metadata.SampleCount4 || desc.RenderPass != f.pass {
		t.Errorf("signature not forwarded: %+v", desc)
	}
	if len(desc.SetLayouts) != 1 || desc.SetLayouts[0] != 7 {
		t.Errorf("set layouts: have %v, want [7]", desc.SetLayouts)
	}
	uv := desc.VertexAttributes[2]
	if uv.Format != metadata.FormatR32G32Sfloat || uv.Binding != 2 {
		t.Errorf("uv attribute: have %+v, want the shader's vec2 format on binding 2", uv)
	}
	if desc.VertexBindings[2].Stride != 16 || desc.VertexBindings[0].Stride != 12 {
		t.Errorf("strides follow the mesh streams: have %+v", desc.VertexBindings)
	}
	if len(desc.PushConstants) != 1 || desc.PushConstants[0].Size != 68 || desc.PushConstants[0].Stages != metadata.ShaderStageVertex {
		t.Errorf("push constants: have %+v", desc.PushConstants)
	}
	if p.PushConstants == nil || !p.PushConstants.Has("time") {
		t.Errorf("push constant layout not kept")
	}
}

func TestBuildMissingAttribute(t *testing.T) {
	f := newFixture(t)
	_, err := Build(f.backend, &Description{
		Name:       "lit",
		Stages:     f.stages,
		Attributes: AttributesOf(AttributePosition, AttributeUV0),
		Signature:  RenderPassSignature{Pass: f.pass, Samples: metadata.SampleCount1, ColorAttachments: 1},
	})
	if !errors.Is(err, core.ErrMissingVertexAttribute) {
		t.Fatalf("have %v, want ErrMissingVertexAttribute", err)
	}
	if f.backend.Live("pipeline") != 0 {
		t.Errorf("a pipeline was created despite the error")
	}
}

func TestBuildUnknownAttribute(t *testing.T) {
	f := newFixture(t)
	vs := spirvtest.New(metadata.ShaderStageVertex)
	vs.Input("in_boneWeights", 0, vs.Vec(vs.Float32(), 4))
	f.stages[0].Reflection = reflect(t, vs)

	_, err := Build(f.backend, &Description{
		Name:       "skinned",
		Stages:     f.stages,
		Attributes: AllAttributes,
		Signature:  RenderPassSignature{Pass: f.pass, Samples: metadata.SampleCount1},
	})
	if !errors.Is(err, core.ErrUnknownVertexAttribute) {
		t.Fatalf("have %v, want ErrUnknownVertexAttribute", err)
	}
}

func TestBuildIgnoresUnreadAttributes(t *testing.T) {
	f := newFixture(t)
	vs := spirvtest.New(metadata.ShaderStageVertex)
	vs.Input("in_position", 0, vs.Vec(vs.Float32(), 3))
	f.stages[0].Reflection = reflect(t, vs)

	p, err := Build(f.backend, &Description{
		Name:       "depth",
		Stages:     f.stages[:1],
		Attributes: AllAttributes,
		Signature:  RenderPassSignature{Pass: f.pass, Samples: metadata.SampleCount1},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Requires() != AttributesOf(AttributePosition) {
		t.Errorf("have %s, want {position}", p.Requires())
	}
	desc, _ := f.backend.PipelineDescription(p.Handle)
	if len(desc.PushConstants) != 0 || p.PushConstants != nil {
		t.Errorf("no push constants were declared, have %+v", desc.PushConstants)
	}
	p.Destroy(f.backend)
	if f.backend.Live("pipeline") != 0 || p.Handle != 0 {
		t.Errorf("Destroy left the pipeline alive")
	}
}

func TestBuildWithoutStages(t *testing.T) {
	f := newFixture(t)
	if _, err := Build(f.backend, &Description{Name: "empty"}); err == nil {
		t.Fatal("a pipeline without stages must fail")
	}
}
