package mesh

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/backendtest"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func floatAt(data []byte, offset uint64) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
}

func triangleMesh() *Mesh {
	m := New("tri")
	m.SetPositions([]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	m.SetColors([]mgl32.Vec4{{1, 0, 0, 1}, {0, 1, 0, 1}, {0, 0, 1, 1}})
	m.SetUVs(1, []mgl32.Vec4{{0, 0, 0, 0}, {1, 0, 0, 0}, {0, 1, 0, 0}})
	m.SetTriangles([]Triangle{{0, 1, 2}})
	return m
}

func TestMeshUploadLayout(t *testing.T) {
	backend := backendtest.New(metadata.Extent2D{Width: 1, Height: 1})
	m := triangleMesh()

	if want := pipeline.AttributesOf(pipeline.AttributePosition, pipeline.AttributeColor, pipeline.AttributeUV1); m.Attributes() != want {
		t.Fatalf("attributes: have %s, want %s", m.Attributes(), want)
	}
	if err := m.Upload(backend); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// 3 positions * 12 + 3 colors * 16 + 3 uvs * 16.
	if m.VertexBufferSize() != 132 {
		t.Fatalf("vertex buffer size: have %d, want 132", m.VertexBufferSize())
	}
	data := backend.BufferData(m.VertexBuffer())
	if uint64(len(data)) != m.VertexBufferSize() {
		t.Fatalf("device buffer size: have %d, want %d", len(data), m.VertexBufferSize())
	}

	for _, tc := range []struct {
		attr   pipeline.Attribute
		offset uint64
	}{
		{pipeline.AttributePosition, 0},
		{pipeline.AttributeColor, 36},
		{pipeline.AttributeUV1, 84},
	} {
		have, ok := m.Offset(tc.attr)
		if !ok || have != tc.offset {
			t.Errorf("offset of %s: have %d %v, want %d", tc.attr, have, ok, tc.offset)
		}
	}
	if _, ok := m.Offset(pipeline.AttributeNormal); ok {
		t.Errorf("mesh has no normals")
	}

	if floatAt(data, 12) != 1 {
		t.Errorf("second position x: have %v, want 1", floatAt(data, 12))
	}
	if floatAt(data, 36+16+4) != 1 {
		t.Errorf("second color g: have %v, want 1", floatAt(data, 36+16+4))
	}
	indices := backend.BufferData(m.IndexBuffer())
	if len(indices) != 12 || binary.LittleEndian.Uint32(indices[8:]) != 2 {
		t.Errorf("indices: have %v", indices)
	}
	if backend.BufferUsage(m.IndexBuffer()) != metadata.BufferUsageIndex {
		t.Errorf("index buffer usage wrong")
	}
}

func TestMeshUploadIsLazy(t *testing.T) {
	backend := backendtest.New(metadata.Extent2D{Width: 1, Height: 1})
	m := triangleMesh()
	if err := m.Upload(backend); err != nil {
		t.Fatal(err)
	}
	writes := backend.Stats().BufferWrites
	if err := m.Upload(backend); err != nil {
		t.Fatal(err)
	}
	if backend.Stats().BufferWrites != writes {
		t.Errorf("clean mesh uploaded again")
	}

	// Same size: the buffer is reused.
	vb := m.VertexBuffer()
	m.SetPositions([]mgl32.Vec3{{5, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	if err := m.Upload(backend); err != nil {
		t.Fatal(err)
	}
	if m.VertexBuffer() != vb {
		t.Errorf("equal sized update recreated the buffer")
	}
	if floatAt(backend.BufferData(vb), 0) != 5 {
		t.Errorf("update not written")
	}
	if backend.Stats().WaitIdles == 0 {
		t.Errorf("updating a live mesh must wait for the device")
	}
}

func TestMeshResizeRecreatesBuffer(t *testing.T) {
	backend := backendtest.New(metadata.Extent2D{Width: 1, Height: 1})
	m := Quad("quad")
	if err := m.Upload(backend); err != nil {
		t.Fatal(err)
	}
	vb := m.VertexBuffer()

	m.ComputeNormals()
	m.SetColors(nil)
	m.SetTangents([]mgl32.Vec3{{1, 0, 0}, {1, 0, 0}, {1, 0, 0}, {1, 0, 0}})
	if err := m.Upload(backend); err != nil {
		t.Fatal(err)
	}
	if m.VertexBuffer() == vb {
		t.Fatalf("size change must recreate the vertex buffer")
	}
	if backend.Live("buffer") != 2 {
		t.Errorf("old buffer leaked: %d buffers alive", backend.Live("buffer"))
	}
	if uint64(len(backend.BufferData(m.VertexBuffer()))) != m.VertexBufferSize() {
		t.Errorf("buffer size does not match the streams")
	}
}

func TestMeshValidate(t *testing.T) {
	backend := backendtest.New(metadata.Extent2D{Width: 1, Height: 1})

	m := triangleMesh()
	m.SetNormals([]mgl32.Vec3{{0, 0, 1}})
	if err := m.Upload(backend); err == nil {
		t.Errorf("stream length mismatch accepted")
	}

	m = triangleMesh()
	m.SetTriangles([]Triangle{{0, 1, 3}})
	if err := m.Upload(backend); err == nil {
		t.Errorf("out of range index accepted")
	}

	if err := New("empty").Upload(backend); err == nil {
		t.Errorf("mesh without positions accepted")
	}
	if err := triangleMesh().SetUVs(pipeline.MaxUVChannels, nil); err == nil {
		t.Errorf("uv channel out of range accepted")
	}
	if backend.Live("buffer") != 0 {
		t.Errorf("failed uploads created buffers")
	}
}

func TestMeshBind(t *testing.T) {
	backend := backendtest.New(metadata.Extent2D{Width: 1, Height: 1})
	m := triangleMesh()
	if err := m.Upload(backend); err != nil {
		t.Fatal(err)
	}

	p := &pipeline.Pipeline{Name: "unlit", Streams: []pipeline.VertexStream{
		{Attribute: pipeline.AttributeUV1, Location: 0, Binding: 0},
		{Attribute: pipeline.AttributePosition, Location: 1, Binding: 1},
	}}
	cb, _ := backend.AllocateCommandBuffer()
	rec, _ := backend.BeginCommandBuffer(cb)
	if err := m.Bind(rec, p); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	m.Draw(rec)
	backend.Submit(&metadata.SubmitInfo{CommandBuffer: cb})

	cmds := backend.Submissions()[0].Commands
	if len(cmds) != 3 {
		t.Fatalf("commands: have %+v", cmds)
	}
	if cmds[0].Offsets[0] != 84 || cmds[0].Offsets[1] != 0 {
		t.Errorf("vertex offsets follow the pipeline bindings: have %v, want [84 0]", cmds[0].Offsets)
	}
	if cmds[1].Op != "BindIndexBuffer" || cmds[2].Op != "DrawIndexed" || cmds[2].IndexCount != 3 {
		t.Errorf("have %+v", cmds[1:])
	}

	p.Streams = append(p.Streams, pipeline.VertexStream{Attribute: pipeline.AttributeNormal, Binding: 2})
	if err := m.Bind(rec, p); err == nil {
		t.Errorf("binding a stream the mesh lacks must fail")
	}
}

func TestComputeNormalsAndTransform(t *testing.T) {
	m := Quad("quad")
	m.SetNormals(nil)
	m.ComputeNormals()
	for i, n := range m.Normals() {
		if !n.ApproxEqual(mgl32.Vec3{0, 0, 1}) {
			t.Errorf("normal %d: have %v, want +Z", i, n)
		}
	}

	m.Translate(mgl32.Vec3{0, 0, 2})
	if m.Positions()[0].Z() != 2 {
		t.Errorf("translate: have %v", m.Positions()[0])
	}
	if !m.Normals()[0].ApproxEqual(mgl32.Vec3{0, 0, 1}) {
		t.Errorf("translation changed a normal: %v", m.Normals()[0])
	}

	c := Cube("cube")
	if c.VertexCount() != 24 || c.TriangleCount() != 12 {
		t.Errorf("cube: have %d vertices %d triangles", c.VertexCount(), c.TriangleCount())
	}
	if err := c.Validate(); err != nil {
		t.Errorf("cube invalid: %v", err)
	}
	cp := c.Copy("cube2")
	cp.Positions()[0] = mgl32.Vec3{9, 9, 9}
	if c.Positions()[0] == cp.Positions()[0] {
		t.Errorf("Copy shares position storage")
	}
}

func TestMeshDestroy(t *testing.T) {
	backend := backendtest.New(metadata.Extent2D{Width: 1, Height: 1})
	m := Cube("cube")
	if err := m.Upload(backend); err != nil {
		t.Fatal(err)
	}
	m.Destroy(backend)
	if backend.Live("buffer") != 0 || !m.Dirty() {
		t.Errorf("Destroy must release both buffers and flag the mesh stale")
	}
}

func TestMeshClearingTrianglesReleasesIndexBuffer(t *testing.T) {
	backend := backendtest.New(metadata.Extent2D{Width: 1, Height: 1})
	m := triangleMesh()
	if err := m.Upload(backend); err != nil {
		t.Fatal(err)
	}
	if m.IndexBuffer() == 0 {
		t.Fatalf("triangles must produce an index buffer")
	}

	m.SetTriangles(nil)
	if err := m.Upload(backend); err != nil {
		t.Fatal(err)
	}
	if m.IndexBuffer() != 0 || m.IndexBufferSize() != 0 {
		t.Errorf("have index buffer %d of %d bytes, want none", m.IndexBuffer(), m.IndexBufferSize())
	}
	if backend.Live("buffer") != 1 {
		t.Errorf("have %d buffers alive, want the vertex buffer only", backend.Live("buffer"))
	}
	if m.Dirty() {
		t.Errorf("mesh still stale after upload")
	}
}
