package reflection

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/reflection/spirvtest"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func mustParse(t *testing.T, code []byte) *Module {
	t.Helper()
	mod, err := Parse(code)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return mod
}

func mustLookup(t *testing.T, l *BindingLayout, path string) Member {
	t.Helper()
	m, err := l.Lookup(path)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", path, err)
	}
	return m
}

func TestParseColorIntensityBlock(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageFragment)
	f32 := b.Float32()
	st := b.Struct("type.Params",
		spirvtest.Field{Name: "color", Type: b.Vec(f32, 4), Offset: 0},
		spirvtest.Field{Name: "intensity", Type: f32, Offset: 16},
	)
	b.UniformBlock("params", 0, 0, st)

	mod := mustParse(t, b.Bytes())
	if len(mod.Blocks) != 1 {
		t.Fatalf("blocks: have %d, want 1", len(mod.Blocks))
	}
	block := mod.Blocks[0]
	if block.Name != "params" || block.TypeName != "Params" {
		t.Fatalf("block names: have %q/%q, want params/Params", block.Name, block.TypeName)
	}
	if block.Size != 32 {
		t.Fatalf("block size: have %d, want 32", block.Size)
	}

	for _, tc := range []struct {
		path         string
		offset, size uint32
	}{
		{"color", 0, 16},
		{"intensity", 16, 4},
	} {
		m := mustLookup(t, block, tc.path)
		if m.Offset != tc.offset || m.Size != tc.size {
			t.Errorf("%s: have offset %d size %d, want %d %d", tc.path, m.Offset, m.Size, tc.offset, tc.size)
		}
		if !m.IsLeaf() {
			t.Errorf("%s should be a leaf", tc.path)
		}
	}

	if _, ok := mod.Block("Params"); !ok {
		t.Errorf("Block(\"Params\") should match the type name")
	}
	if len(mod.Bindings) != 1 {
		t.Fatalf("bindings: have %d, want 1", len(mod.Bindings))
	}
	want := metadata.DescriptorBinding{
		Name:    "params",
		Set:     0,
		Binding: 0,
		Kind:    metadata.DescriptorKindUniformBlock,
		Stages:  metadata.ShaderStageFragment,
		Count:   1,
	}
	if mod.Bindings[0] != want {
		t.Errorf("binding: have %+v, want %+v", mod.Bindings[0], want)
	}
}

func TestParseArrayOfStructs(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageFragment)
	f32 := b.Float32()
	item := b.Struct("Item",
		spirvtest.Field{Name: "a", Type: f32, Offset: 0},
		spirvtest.Field{Name: "b", Type: b.Vec(f32, 3), Offset: 16},
	)
	arr := b.Array(item, 4, 32)
	st := b.Struct("Block", spirvtest.Field{Name: "x", Type: arr, Offset: 0})
	b.UniformBlock("block", 0, 1, st)

	block := mustParse(t, b.Bytes()).Blocks[0]

	elements, err := block.Children("x")
	if err != nil {
		t.Fatalf("Children(x): %v", err)
	}
	wantElements := []string{"x[0]", "x[1]", "x[2]", "x[3]"}
	if len(elements) != len(wantElements) {
		t.Fatalf("elements: have %v, want %v", elements, wantElements)
	}
	for i := range wantElements {
		if elements[i] != wantElements[i] {
			t.Fatalf("elements: have %v, want %v", elements, wantElements)
		}
	}

	a0 := mustLookup(t, block, "x[0].a")
	b0 := mustLookup(t, block, "x[0].b")
	x0 := mustLookup(t, block, "x[0]")
	stride := x0.Size
	if stride < a0.Size+b0.Size {
		t.Fatalf("stride %d smaller than the fields %d+%d", stride, a0.Size, b0.Size)
	}
	for k := uint32(0); k < 4; k++ {
		elem := elementName("x", k)
		fields, err := block.Children(elem)
		if err != nil {
			t.Fatalf("Children(%s): %v", elem, err)
		}
		if len(fields) != 2 || fields[0] != "a" || fields[1] != "b" {
			t.Fatalf("%s fields: have %v, want [a b]", elem, fields)
		}
		a := mustLookup(t, block, elem+".a")
		if a.Offset != a0.Offset+k*stride {
			t.Errorf("%s.a offset: have %d, want %d", elem, a.Offset, a0.Offset+k*stride)
		}
		bb := mustLookup(t, block, elem+".b")
		if bb.Offset != b0.Offset+k*stride || bb.Size != 12 {
			t.Errorf("%s.b: have offset %d size %d, want %d 12", elem, bb.Offset, bb.Size, b0.Offset+k*stride)
		}
	}
	if block.Size != 128 {
		t.Errorf("block size: have %d, want 128", block.Size)
	}
}

func TestParseStructOfArrays(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageVertex)
	f32 := b.Float32()
	inner := b.Struct("Inner",
		spirvtest.Field{Name: "weights", Type: b.Array(f32, 3, 16), Offset: 0},
		spirvtest.Field{Name: "bias", Type: f32, Offset: 48},
	)
	st := b.Struct("Outer",
		spirvtest.Field{Name: "scale", Type: f32, Offset: 0},
		spirvtest.Field{Name: "inner", Type: inner, Offset: 16},
	)
	b.UniformBlock("outer", 0, 0, st)

	block := mustParse(t, b.Bytes()).Blocks[0]

	for _, tc := range []struct {
		path         string
		offset, size uint32
	}{
		{"scale", 0, 4},
		{"inner", 16, 52},
		{"inner.weights", 16, 48},
		{"inner.weights[0]", 16, 4},
		{"inner.weights[2]", 48, 4},
		{"inner.bias", 64, 4},
	} {
		m := mustLookup(t, block, tc.path)
		if m.Offset != tc.offset || m.Size != tc.size {
			t.Errorf("%s: have offset %d size %d, want %d %d", tc.path, m.Offset, m.Size, tc.offset, tc.size)
		}
	}
	if block.Has("inner[0]") {
		t.Errorf("a struct member must not be indexable")
	}
	if block.Size != 80 {
		t.Errorf("block size: have %d, want 80", block.Size)
	}
}

func TestParseNestedArraysAndMatrices(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageVertex)
	f32 := b.Float32()
	vec4 := b.Vec(f32, 4)
	mat4 := b.Mat(vec4, 4)
	grid := b.Array(b.Array(f32, 3, 16), 2, 48)
	st := b.Struct("Transforms",
		spirvtest.Field{Name: "world", Type: mat4, Offset: 0, MatrixStride: 16},
		spirvtest.Field{Name: "bones", Type: b.Array(mat4, 2, 64), Offset: 64, MatrixStride: 16},
		spirvtest.Field{Name: "grid", Type: grid, Offset: 192},
	)
	b.UniformBlock("transforms", 0, 0, st)

	block := mustParse(t, b.Bytes()).Blocks[0]

	for _, tc := range []struct {
		path         string
		offset, size uint32
	}{
		{"world", 0, 64},
		{"bones", 64, 128},
		{"bones[1]", 128, 64},
		{"grid", 192, 96},
		{"grid[1]", 240, 48},
		{"grid[1][2]", 272, 4},
		{"grid[01][2]", 272, 4},
	} {
		m := mustLookup(t, block, tc.path)
		if m.Offset != tc.offset || m.Size != tc.size {
			t.Errorf("%s: have offset %d size %d, want %d %d", tc.path, m.Offset, m.Size, tc.offset, tc.size)
		}
	}
	if block.Size != 288 {
		t.Errorf("block size: have %d, want 288", block.Size)
	}
}

func TestParseBlockSizeCoversMembers(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageFragment)
	f32 := b.Float32()
	item := b.Struct("Light",
		spirvtest.Field{Name: "position", Type: b.Vec(f32, 3), Offset: 0},
		spirvtest.Field{Name: "range", Type: f32, Offset: 12},
		spirvtest.Field{Name: "color", Type: b.Vec(f32, 4), Offset: 16},
	)
	st := b.Struct("Lights",
		spirvtest.Field{Name: "count", Type: b.Uint32(), Offset: 0},
		spirvtest.Field{Name: "lights", Type: b.Array(item, 3, 32), Offset: 16},
		spirvtest.Field{Name: "ambient", Type: f32, Offset: 112},
	)
	b.UniformBlock("lights", 0, 0, st)

	block := mustParse(t, b.Bytes()).Blocks[0]
	block.Walk(func(path string, m Member) bool {
		if m.Offset+m.Size > block.Size {
			t.Errorf("%s ends at %d past block size %d", path, m.Offset+m.Size, block.Size)
		}
		return true
	})
	if m := mustLookup(t, block, "lights[2].color"); m.Offset != 96 || m.Size != 16 {
		t.Errorf("lights[2].color: have offset %d size %d, want 96 16", m.Offset, m.Size)
	}
}

func TestParseResourceKindsAndOrder(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageFragment)
	f32 := b.Float32()
	st := b.Struct("Material", spirvtest.Field{Name: "tint", Type: b.Vec(f32, 4), Offset: 0})
	b.Sampler("linear", 0, 3)
	b.CombinedImageSampler("diffuse", 0, 1)
	b.UniformBlock("material", 0, 0, st)
	b.SampledImage("normalMap", 0, 2)
	b.SamplerArray("shadowMaps", 1, 0, 4)
	b.StorageImage("target", 1, 1)

	mod := mustParse(t, b.Bytes())
	want := []struct {
		name         string
		set, binding uint32
		kind         metadata.DescriptorKind
		count        uint32
	}{
		{"material", 0, 0, metadata.DescriptorKindUniformBlock, 1},
		{"diffuse", 0, 1, metadata.DescriptorKindCombinedImageSampler, 1},
		{"normalMap", 0, 2, metadata.DescriptorKindSampledImage, 1},
		{"linear", 0, 3, metadata.DescriptorKindSampler, 1},
		{"shadowMaps", 1, 0, metadata.DescriptorKindCombinedImageSampler, 4},
		{"target", 1, 1, metadata.DescriptorKindStorageImage, 1},
	}
	if len(mod.Bindings) != len(want) {
		t.Fatalf("bindings: have %d, want %d", len(mod.Bindings), len(want))
	}
	for i, w := range want {
		have := mod.Bindings[i]
		if have.Name != w.name || have.Set != w.set || have.Binding != w.binding || have.Kind != w.kind || have.Count != w.count {
			t.Errorf("binding %d: have %+v, want %+v", i, have, w)
		}
	}
	if len(mod.Blocks) != 1 {
		t.Errorf("only uniform blocks get a layout, have %d", len(mod.Blocks))
	}
}

func TestParseStorageBlockHasNoLayout(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageVertex)
	st := b.Struct("Particles", spirvtest.Field{Name: "count", Type: b.Uint32(), Offset: 0})
	b.StorageBlock("particles", 0, 0, st)

	mod := mustParse(t, b.Bytes())
	if len(mod.Bindings) != 1 || mod.Bindings[0].Kind != metadata.DescriptorKindStorageBuffer {
		t.Fatalf("have %+v, want one storage buffer", mod.Bindings)
	}
	if len(mod.Blocks) != 0 {
		t.Errorf("storage buffer produced a uniform layout")
	}
}

func TestParseAnonymousBlockUsesTypeName(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageVertex)
	st := b.Struct("type.Globals", spirvtest.Field{Name: "time", Type: b.Float32(), Offset: 0})
	b.UniformBlock("", 0, 0, st)

	mod := mustParse(t, b.Bytes())
	if mod.Blocks[0].Name != "Globals" || mod.Bindings[0].Name != "Globals" {
		t.Errorf("have block %q binding %q, want Globals", mod.Blocks[0].Name, mod.Bindings[0].Name)
	}
}

func TestParsePushConstants(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageVertex)
	f32 := b.Float32()
	mat4 := b.Mat(b.Vec(f32, 4), 4)
	st := b.Struct("PushConstants",
		spirvtest.Field{Name: "world", Type: mat4, Offset: 0, MatrixStride: 16},
		spirvtest.Field{Name: "time", Type: f32, Offset: 64},
	)
	b.PushConstants("pc", st)

	mod := mustParse(t, b.Bytes())
	pc := mod.PushConstants
	if pc == nil {
		t.Fatal("push constant block not reflected")
	}
	if pc.Size != 68 {
		t.Errorf("push constants are not padded: have size %d, want 68", pc.Size)
	}
	if m := mustLookup(t, pc, "time"); m.Offset != 64 || m.Size != 4 {
		t.Errorf("time: have offset %d size %d, want 64 4", m.Offset, m.Size)
	}
	if len(mod.Bindings) != 0 {
		t.Errorf("push constants are not descriptors, have %+v", mod.Bindings)
	}
}

func TestParseVertexInputs(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageVertex)
	f32 := b.Float32()
	b.Input("in_uv", 2, b.Vec(f32, 2))
	b.Input("in_position", 0, b.Vec(f32, 3))
	b.BuiltinInput("gl_VertexIndex", 42, b.Int32())
	b.Input("in_color", 1, b.Vec(f32, 4))

	mod := mustParse(t, b.Bytes())
	want := []VertexInput{
		{Name: "in_position", Location: 0, Format: metadata.FormatR32G32B32Sfloat},
		{Name: "in_color", Location: 1, Format: metadata.FormatR32G32B32A32Sfloat},
		{Name: "in_uv", Location: 2, Format: metadata.FormatR32G32Sfloat},
	}
	if len(mod.Inputs) != len(want) {
		t.Fatalf("inputs: have %+v, want %+v", mod.Inputs, want)
	}
	for i := range want {
		if mod.Inputs[i] != want[i] {
			t.Errorf("input %d: have %+v, want %+v", i, mod.Inputs[i], want[i])
		}
	}
}

func TestParseFragmentInputsAreNotVertexInputs(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageFragment)
	b.Input("in_uv", 0, b.Vec(b.Float32(), 2))

	if mod := mustParse(t, b.Bytes()); len(mod.Inputs) != 0 {
		t.Errorf("have %+v, want no vertex inputs", mod.Inputs)
	}
}

func TestParseMultipleEntryPoints(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageVertex).WithEntryPoint(metadata.ShaderStageFragment, "fs_main")
	st := b.Struct("Globals", spirvtest.Field{Name: "time", Type: b.Float32(), Offset: 0})
	b.UniformBlock("globals", 0, 0, st)

	mod := mustParse(t, b.Bytes())
	if mod.Stages != metadata.ShaderStageVertex|metadata.ShaderStageFragment {
		t.Errorf("stages: have %s, want vertex|fragment", mod.Stages)
	}
	if name, ok := mod.EntryPoint(metadata.ShaderStageFragment); !ok || name != "fs_main" {
		t.Errorf("fragment entry point: have %q %v, want fs_main", name, ok)
	}
	if mod.Bindings[0].Stages != mod.Stages {
		t.Errorf("binding stages: have %s, want %s", mod.Bindings[0].Stages, mod.Stages)
	}
}

func TestParseSwappedByteOrder(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageFragment)
	st := b.Struct("Params", spirvtest.Field{Name: "x", Type: b.Float32(), Offset: 0})
	b.UniformBlock("params", 0, 0, st)

	words := b.Words()
	swapped := make([]byte, len(words)*4)
	for i, w := range words {
		swapped[i*4] = byte(w >> 24)
		swapped[i*4+1] = byte(w >> 16)
		swapped[i*4+2] = byte(w >> 8)
		swapped[i*4+3] = byte(w)
	}
	mod := mustParse(t, swapped)
	if !mod.Blocks[0].Has("x") {
		t.Errorf("big endian module lost its members")
	}
}

func TestParseMalformed(t *testing.T) {
	valid := spirvtest.New(metadata.ShaderStageVertex).Words()

	truncated := append([]uint32(nil), valid...)
	truncated = append(truncated, 9<<16|15)

	zeroLength := append([]uint32(nil), valid...)
	zeroLength = append(zeroLength, 0)

	noEntry := []uint32{0x07230203, 0x00010000, 0, 1, 0}

	badOperands := append([]uint32(nil), valid[:5]...)
	badOperands = append(badOperands, 2<<16|22) // OpTypeFloat without a width

	for _, tc := range []struct {
		name string
		code []byte
	}{
		{"empty", nil},
		{"odd size", []byte{1, 2, 3, 4, 5, 6}},
		{"short header", spirvtest.Encode(valid[:3])},
		{"bad magic", spirvtest.Encode(append([]uint32{0xdeadbeef}, valid[1:]...))},
		{"overrun", spirvtest.Encode(truncated)},
		{"zero length instruction", spirvtest.Encode(zeroLength)},
		{"no entry point", spirvtest.Encode(noEntry)},
		{"missing operands", spirvtest.Encode(badOperands)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.code)
			if !errors.Is(err, core.ErrInvalidShader) {
				t.Fatalf("have %v, want ErrInvalidShader", err)
			}
		})
	}
}

func TestParseRejectsBlocksThatDoNotFit(t *testing.T) {
	for _, tc := range []struct {
		name  string
		build func(b *spirvtest.Builder) spirvtest.Type
	}{
		{"offset past 4 GiB", func(b *spirvtest.Builder) spirvtest.Type {
			vec4 := b.Vec(b.Float32(), 4)
			return b.Struct("Params",
				spirvtest.Field{Name: "y", Type: vec4, Offset: 0},
				spirvtest.Field{Name: "x", Type: vec4, Offset: 0xFFFFFFF0},
			)
		}},
		{"offset within 4 GiB but padding overflows", func(b *spirvtest.Builder) spirvtest.Type {
			return b.Struct("Params",
				spirvtest.Field{Name: "x", Type: b.Float32(), Offset: 0xFFFFFFF4},
			)
		}},
		{"array size past 4 GiB", func(b *spirvtest.Builder) spirvtest.Type {
			return b.Struct("Params",
				spirvtest.Field{Name: "x", Type: b.Array(b.Float32(), 0x40000000, 16), Offset: 0},
			)
		}},
		{"struct contains itself", func(b *spirvtest.Builder) spirvtest.Type {
			self := b.Forward()
			return b.StructAt(self, "Node", spirvtest.Field{Name: "next", Type: self, Offset: 0})
		}},
		{"structs contain each other", func(b *spirvtest.Builder) spirvtest.Type {
			outer := b.Forward()
			inner := b.Struct("Inner", spirvtest.Field{Name: "outer", Type: outer, Offset: 0})
			return b.StructAt(outer, "Outer", spirvtest.Field{Name: "inner", Type: inner, Offset: 0})
		}},
		{"array expands to too many members", func(b *spirvtest.Builder) spirvtest.Type {
			return b.Struct("Params",
				spirvtest.Field{Name: "x", Type: b.Array(b.Float32(), 1<<20, 4), Offset: 0},
			)
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := spirvtest.New(metadata.ShaderStageFragment)
			b.UniformBlock("params", 0, 0, tc.build(b))
			mod, err := Parse(b.Bytes())
			if !errors.Is(err, core.ErrInvalidShader) {
				t.Fatalf("have %v, want ErrInvalidShader", err)
			}
			if mod != nil {
				t.Errorf("have a module for a rejected shader")
			}
		})
	}
}

func TestParsePushConstantOffsetOverflow(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageVertex)
	f32 := b.Float32()
	st := b.Struct("Push",
		spirvtest.Field{Name: "time", Type: f32, Offset: 0},
		spirvtest.Field{Name: "bad", Type: b.Vec(f32, 4), Offset: 0xFFFFFFF8},
	)
	b.PushConstants("push", st)
	if _, err := Parse(b.Bytes()); !errors.Is(err, core.ErrInvalidShader) {
		t.Fatalf("have %v, want ErrInvalidShader", err)
	}
}

func TestParseResourceWithoutBinding(t *testing.T) {
	b := spirvtest.New(metadata.ShaderStageFragment)
	words := b.Words()
	// %1 is the entry point; declare an undecorated sampler variable at %4.
	words[3] = 5
	words = append(words,
		2<<16|26, 2, // OpTypeSampler %2
		4<<16|32, 3, 0, 2, // OpTypePointer %3 UniformConstant %2
		4<<16|59, 3, 4, 0, // OpVariable %3 %4 UniformConstant
	)
	_, err := Parse(spirvtest.Encode(words))
	if !errors.Is(err, core.ErrUnsupportedShader) {
		t.Fatalf("have %v, want ErrUnsupportedShader", err)
	}
}
