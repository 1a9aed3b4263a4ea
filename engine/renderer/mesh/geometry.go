package mesh

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform applies t to positions and the inverse transpose of its upper
// 3x3 to normals and tangents.
func (m *Mesh) Transform(t mgl32.Mat4) *Mesh {
	for i, p := range m.positions {
		m.positions[i] = mgl32.TransformCoordinate(p, t)
	}
	normalMatrix := t.Mat3().Inv().Transpose()
	for i, n := range m.normals {
		m.normals[i] = normalMatrix.Mul3x1(n).Normalize()
	}
	for i, v := range m.tangents {
		m.tangents[i] = t.Mat3().Mul3x1(v).Normalize()
	}
	m.verticesDirty = true
	return m
}

func (m *Mesh) Translate(offset mgl32.Vec3) *Mesh {
	return m.Transform(mgl32.Translate3D(offset.X(), offset.Y(), offset.Z()))
}

func (m *Mesh) Scale(factor mgl32.Vec3) *Mesh {
	return m.Transform(mgl32.Scale3D(factor.X(), factor.Y(), factor.Z()))
}

// ComputeNormals replaces the normals with area weighted vertex normals.
func (m *Mesh) ComputeNormals() {
	normals := make([]mgl32.Vec3, len(m.positions))
	for _, t := range m.triangles {
		a, b, c := m.positions[t[0]], m.positions[t[1]], m.positions[t[2]]
		// The cross product length is twice the triangle area.
		face := b.Sub(a).Cross(c.Sub(a))
		for _, idx := range t {
			normals[idx] = normals[idx].Add(face)
		}
	}
	for i, n := range normals {
		if n.Len() > 0 {
			normals[i] = n.Normalize()
		}
	}
	m.SetNormals(normals)
}

// Copy returns a mesh with copies of every stream and no device buffers.
func (m *Mesh) Copy(name string) *Mesh {
	out := New(name)
	out.positions = append([]mgl32.Vec3(nil), m.positions...)
	out.normals = append([]mgl32.Vec3(nil), m.normals...)
	out.tangents = append([]mgl32.Vec3(nil), m.tangents...)
	out.colors = append([]mgl32.Vec4(nil), m.colors...)
	for k := range m.uvs {
		out.uvs[k] = append([]mgl32.Vec4(nil), m.uvs[k]...)
	}
	out.triangles = append([]Triangle(nil), m.triangles...)
	out.verticesDirty = true
	out.indicesDirty = true
	return out
}

// Quad is a unit square in the XY plane facing +Z.
func Quad(name string) *Mesh {
	m := New(name)
	m.SetPositions([]mgl32.Vec3{{-0.5, -0.5, 0}, {0.5, -0.5, 0}, {0.5, 0.5, 0}, {-0.5, 0.5, 0}})
	m.SetNormals([]mgl32.Vec3{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}, {0, 0, 1}})
	m.SetUVs(0, []mgl32.Vec4{{0, 1, 0, 0}, {1, 1, 0, 0}, {1, 0, 0, 0}, {0, 0, 0, 0}})
	m.SetTriangles([]Triangle{{0, 1, 2}, {0, 2, 3}})
	return m
}

// Cube is a unit cube centered on the origin with four vertices per face so
// each face gets flat normals.
func Cube(name string) *Mesh {
	faces := []struct {
		normal, u, v mgl32.Vec3
	}{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	var positions, normals, tangents []mgl32.Vec3
	var uvs []mgl32.Vec4
	var triangles []Triangle
	for _, f := range faces {
		base := uint32(len(positions))
		center := f.normal.Mul(0.5)
		for _, c := range corners {
			p := center.Add(f.u.Mul(0.5 * c[0])).Add(f.v.Mul(0.5 * c[1]))
			positions = append(positions, p)
			normals = append(normals, f.normal)
			tangents = append(tangents, f.u)
			uvs = append(uvs, mgl32.Vec4{(c[0] + 1) / 2, 1 - (c[1]+1)/2, 0, 0})
		}
		triangles = append(triangles, Triangle{base, base + 1, base + 2}, Triangle{base, base + 2, base + 3})
	}

	m := New(name)
	m.SetPositions(positions)
	m.SetNormals(normals)
	m.SetTangents(tangents)
	m.SetUVs(0, uvs)
	m.SetTriangles(triangles)
	return m
}
