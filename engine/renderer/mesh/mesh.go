package mesh

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
)

type Triangle [3]uint32

// Mesh keeps its vertex streams on the host and mirrors them into one vertex
// buffer and one index buffer. The streams are laid out back to back in the
// vertex buffer in attribute order, and each one is bound as its own vertex
// binding. Setters only flag the device copy as stale; Upload rebuilds it.
type Mesh struct {
	Name string

	positions []mgl32.Vec3
	normals   []mgl32.Vec3
	tangents  []mgl32.Vec3
	colors    []mgl32.Vec4
	uvs       [pipeline.MaxUVChannels][]mgl32.Vec4
	triangles []Triangle

	verticesDirty bool
	indicesDirty  bool

	vertexBuffer     metadata.Buffer
	vertexBufferSize uint64
	indexBuffer      metadata.Buffer
	indexBufferSize  uint64
	offsets          [pipeline.AttributeCount]uint64
}

func New(name string) *Mesh {
	return &Mesh{Name: name}
}

// SetPositions replaces the positions, which also sets the vertex count.
// Optional streams whose length no longer matches are rejected by Upload.
func (m *Mesh) SetPositions(positions []mgl32.Vec3) {
	m.positions = positions
	m.verticesDirty = true
}

func (m *Mesh) SetNormals(normals []mgl32.Vec3) {
	m.normals = normals
	m.verticesDirty = true
}

func (m *Mesh) SetTangents(tangents []mgl32.Vec3) {
	m.tangents = tangents
	m.verticesDirty = true
}

func (m *Mesh) SetColors(colors []mgl32.Vec4) {
	m.colors = colors
	m.verticesDirty = true
}

// SetUniformColor gives every vertex the same color.
func (m *Mesh) SetUniformColor(color mgl32.Vec4) {
	colors := make([]mgl32.Vec4, len(m.positions))
	for i := range colors {
		colors[i] = color
	}
	m.SetColors(colors)
}

// SetUVs replaces texture coordinate channel k.
func (m *Mesh) SetUVs(channel int, uvs []mgl32.Vec4) error {
	if channel < 0 || channel >= pipeline.MaxUVChannels {
		return fmt.Errorf("mesh `%s`: uv channel %d out of range [0, %d)", m.Name, channel, pipeline.MaxUVChannels)
	}
	m.uvs[channel] = uvs
	m.verticesDirty = true
	return nil
}

func (m *Mesh) SetTriangles(triangles []Triangle) {
	m.triangles = triangles
	m.indicesDirty = true
}

func (m *Mesh) Positions() []mgl32.Vec3 { return m.positions }
func (m *Mesh) Normals() []mgl32.Vec3   { return m.normals }
func (m *Mesh) Tangents() []mgl32.Vec3  { return m.tangents }
func (m *Mesh) Colors() []mgl32.Vec4    { return m.colors }
func (m *Mesh) Triangles() []Triangle   { return m.triangles }

func (m *Mesh) UVs(channel int) []mgl32.Vec4 {
	if channel < 0 || channel >= pipeline.MaxUVChannels {
		return nil
	}
	return m.uvs[channel]
}

func (m *Mesh) VertexCount() uint32   { return uint32(len(m.positions)) }
func (m *Mesh) TriangleCount() uint32 { return uint32(len(m.triangles)) }
func (m *Mesh) IndexCount() uint32    { return 3 * uint32(len(m.triangles)) }

// Attributes returns the streams the mesh supplies.
func (m *Mesh) Attributes() pipeline.AttributeSet {
	var s pipeline.AttributeSet
	if len(m.positions) > 0 {
		s = s.With(pipeline.AttributePosition)
	}
	if len(m.normals) > 0 {
		s = s.With(pipeline.AttributeNormal)
	}
	if len(m.tangents) > 0 {
		s = s.With(pipeline.AttributeTangent)
	}
	if len(m.colors) > 0 {
		s = s.With(pipeline.AttributeColor)
	}
	for k := range m.uvs {
		if len(m.uvs[k]) > 0 {
			s = s.With(pipeline.UV(k))
		}
	}
	return s
}

// streamLen returns the element count of a stream.
func (m *Mesh) streamLen(a pipeline.Attribute) int {
	switch a {
	case pipeline.AttributePosition:
		return len(m.positions)
	case pipeline.AttributeNormal:
		return len(m.normals)
	case pipeline.AttributeTangent:
		return len(m.tangents)
	case pipeline.AttributeColor:
		return len(m.colors)
	}
	return len(m.uvs[a-pipeline.AttributeUV0])
}

// VertexBufferSize is the byte size the vertex buffer must have for the
// current streams.
func (m *Mesh) VertexBufferSize() uint64 {
	var size uint64
	m.Attributes().Each(func(a pipeline.Attribute) {
		size += uint64(m.streamLen(a)) * uint64(a.Stride())
	})
	return size
}

func (m *Mesh) IndexBufferSize() uint64 {
	return uint64(m.IndexCount()) * 4
}

// Validate checks that every stream has one element per vertex and that
// every index names a vertex.
func (m *Mesh) Validate() error {
	n := len(m.positions)
	if n == 0 {
		return fmt.Errorf("mesh `%s` has no positions", m.Name)
	}
	var err error
	m.Attributes().Each(func(a pipeline.Attribute) {
		if err == nil && m.streamLen(a) != n {
			err = fmt.Errorf("mesh `%s`: %s has %d elements, want %d", m.Name, a, m.streamLen(a), n)
		}
	})
	if err != nil {
		return err
	}
	for i, t := range m.triangles {
		for _, idx := range t {
			if int(idx) >= n {
				return fmt.Errorf("mesh `%s`: triangle %d references vertex %d of %d", m.Name, i, idx, n)
			}
		}
	}
	return nil
}

// Dirty reports whether the device copy is stale.
func (m *Mesh) Dirty() bool {
	return m.verticesDirty || m.indicesDirty || m.vertexBuffer == 0
}

// Upload mirrors the host streams into device buffers when they changed. A
// buffer whose size no longer matches is destroyed and created again. When
// the mesh already lives on the device the call waits for the device to go
// idle first, since frames in flight may still read the old contents.
func (m *Mesh) Upload(backend metadata.RendererBackend) error {
	if !m.Dirty() {
		return nil
	}
	if err := m.Validate(); err != nil {
		core.LogError("%s", err.Error())
		return err
	}
	if m.vertexBuffer != 0 || m.indexBuffer != 0 {
		if err := backend.WaitIdle(); err != nil {
			return err
		}
	}

	if m.verticesDirty || m.vertexBuffer == 0 {
		size := m.VertexBufferSize()
		buf, err := ensureBuffer(backend, m.vertexBuffer, m.vertexBufferSize, size, metadata.BufferUsageVertex)
		if err != nil {
			return fmt.Errorf("mesh `%s` vertex buffer: %w", m.Name, err)
		}
		m.vertexBuffer, m.vertexBufferSize = buf, size
		if err := backend.WriteBuffer(buf, 0, m.encodeVertices()); err != nil {
			return fmt.Errorf("mesh `%s` vertex upload: %w", m.Name, err)
		}
		m.verticesDirty = false
	}

	if (m.indicesDirty || m.indexBuffer == 0) && len(m.triangles) > 0 {
		size := m.IndexBufferSize()
		buf, err := ensureBuffer(backend, m.indexBuffer, m.indexBufferSize, size, metadata.BufferUsageIndex)
		if err != nil {
			return fmt.Errorf("mesh `%s` index buffer: %w", m.Name, err)
		}
		m.indexBuffer, m.indexBufferSize = buf, size
		if err := backend.WriteBuffer(buf, 0, m.encodeIndices()); err != nil {
			return fmt.Errorf("mesh `%s` index upload: %w", m.Name, err)
		}
	} else if len(m.triangles) == 0 && m.indexBuffer != 0 {
		backend.DestroyBuffer(m.indexBuffer)
		m.indexBuffer, m.indexBufferSize = 0, 0
	}
	m.indicesDirty = false
	return nil
}

func ensureBuffer(backend metadata.RendererBackend, current metadata.Buffer, currentSize, size uint64, usage metadata.BufferUsage) (metadata.Buffer, error) {
	if current != 0 && currentSize == size {
		return current, nil
	}
	if current != 0 {
		backend.DestroyBuffer(current)
	}
	return backend.CreateBuffer(size, usage)
}

func (m *Mesh) encodeVertices() []byte {
	out := make([]byte, 0, m.VertexBufferSize())
	m.Attributes().Each(func(a pipeline.Attribute) {
		m.offsets[a] = uint64(len(out))
		switch a {
		case pipeline.AttributePosition:
			out = appendVec3s(out, m.positions)
		case pipeline.AttributeNormal:
			out = appendVec3s(out, m.normals)
		case pipeline.AttributeTangent:
			out = appendVec3s(out, m.tangents)
		case pipeline.AttributeColor:
			out = appendVec4s(out, m.colors)
		default:
			out = appendVec4s(out, m.uvs[a-pipeline.AttributeUV0])
		}
	})
	return out
}

func (m *Mesh) encodeIndices() []byte {
	out := make([]byte, 0, m.IndexBufferSize())
	for _, t := range m.triangles {
		for _, idx := range t {
			out = binary.LittleEndian.AppendUint32(out, idx)
		}
	}
	return out
}

func appendVec3s(out []byte, vs []mgl32.Vec3) []byte {
	for _, v := range vs {
		for _, c := range v {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(c))
		}
	}
	return out
}

func appendVec4s(out []byte, vs []mgl32.Vec4) []byte {
	for _, v := range vs {
		for _, c := range v {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(c))
		}
	}
	return out
}

// Offset returns where stream a starts inside the vertex buffer.
func (m *Mesh) Offset(a pipeline.Attribute) (uint64, bool) {
	if !m.Attributes().Has(a) {
		return 0, false
	}
	return m.offsets[a], true
}

func (m *Mesh) VertexBuffer() metadata.Buffer { return m.vertexBuffer }
func (m *Mesh) IndexBuffer() metadata.Buffer  { return m.indexBuffer }

// Bind binds the streams p reads, in p's binding order, and the index
// buffer.
func (m *Mesh) Bind(rec metadata.CommandRecorder, p *pipeline.Pipeline) error {
	if m.vertexBuffer == 0 {
		return fmt.Errorf("mesh `%s` is not uploaded", m.Name)
	}
	buffers := make([]metadata.Buffer, len(p.Streams))
	offsets := make([]uint64, len(p.Streams))
	for i, s := range p.Streams {
		offset, ok := m.Offset(s.Attribute)
		if !ok {
			return fmt.Errorf("%w: mesh `%s` has no %s for pipeline `%s`", core.ErrMissingVertexAttribute, m.Name, s.Attribute, p.Name)
		}
		buffers[i] = m.vertexBuffer
		offsets[i] = offset
	}
	if len(buffers) > 0 {
		rec.BindVertexBuffers(buffers, offsets)
	}
	if m.indexBuffer != 0 {
		rec.BindIndexBuffer(m.indexBuffer, 0)
	}
	return nil
}

// Draw issues the indexed draw of the whole mesh.
func (m *Mesh) Draw(rec metadata.CommandRecorder) {
	rec.DrawIndexed(m.IndexCount(), 1, 0)
}

// Destroy releases the device buffers. The host streams are kept, so a
// later Upload recreates them.
func (m *Mesh) Destroy(backend metadata.RendererBackend) {
	if m.vertexBuffer != 0 {
		backend.DestroyBuffer(m.vertexBuffer)
		m.vertexBuffer, m.vertexBufferSize = 0, 0
	}
	if m.indexBuffer != 0 {
		backend.DestroyBuffer(m.indexBuffer)
		m.indexBuffer, m.indexBufferSize = 0, 0
	}
	m.verticesDirty = true
	m.indicesDirty = true
}
