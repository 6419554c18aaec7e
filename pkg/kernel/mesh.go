package kernel

import "github.com/golang/geo/r3"

// Mesh is a flat triangle mesh suitable for rendering or JSON export.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
// Vertices are not shared between triangles so every triangle carries its
// own face normal.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	PartName string    `json:"partName"` // which scene job (and cell) this came from
}

// AppendTriangle adds one flat-shaded triangle.
func (m *Mesh) AppendTriangle(a, b, c, normal r3.Vector) {
	base := uint32(m.VertexCount())
	nx, ny, nz := float32(normal.X), float32(normal.Y), float32(normal.Z)
	for _, v := range [3]r3.Vector{a, b, c} {
		m.Vertices = append(m.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
		m.Normals = append(m.Normals, nx, ny, nz)
	}
	m.Indices = append(m.Indices, base, base+1, base+2)
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}
