package mesh

import (
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/chazu/shard/pkg/kernel"
)

// NoNeighbor marks an unlinked edge.
const NoNeighbor = -1

// directedEdge keys edge matching during linking.
type directedEdge struct {
	from, to int
}

// edgeRef locates one side of one triangle.
type edgeRef struct {
	tri  int
	edge Edge
}

// Mesh is an arena of linked triangles over a shared point array.
// links[i][e] is the slot of the triangle across edge e of slot i.
type Mesh struct {
	Points []r3.Vector

	tris  []Triangle
	links [][3]int
	alive []bool
	free  []int
	count int
}

// New returns an empty mesh over points. The slice is shared, not copied.
func New(points []r3.Vector) *Mesh {
	return &Mesh{Points: points}
}

// Add stores t in a free slot and returns the slot index. The new triangle
// starts unlinked.
func (m *Mesh) Add(t Triangle) int {
	var i int
	if n := len(m.free); n > 0 {
		i = m.free[n-1]
		m.free = m.free[:n-1]
		m.tris[i] = t
		m.links[i] = [3]int{NoNeighbor, NoNeighbor, NoNeighbor}
		m.alive[i] = true
	} else {
		i = len(m.tris)
		m.tris = append(m.tris, t)
		m.links = append(m.links, [3]int{NoNeighbor, NoNeighbor, NoNeighbor})
		m.alive = append(m.alive, true)
	}
	m.count++
	return i
}

// Remove frees slot i and severs every link pointing at it.
func (m *Mesh) Remove(i int) {
	if !m.Alive(i) {
		return
	}
	for _, e := range Edges {
		n := m.links[i][e]
		if n == NoNeighbor {
			continue
		}
		for _, ne := range Edges {
			if m.links[n][ne] == i {
				m.links[n][ne] = NoNeighbor
			}
		}
		m.links[i][e] = NoNeighbor
	}
	m.alive[i] = false
	m.free = append(m.free, i)
	m.count--
}

// Alive reports whether slot i holds a triangle.
func (m *Mesh) Alive(i int) bool {
	return i >= 0 && i < len(m.alive) && m.alive[i]
}

// Triangle returns the triangle in slot i.
func (m *Mesh) Triangle(i int) Triangle {
	return m.tris[i]
}

// Neighbor returns the slot across edge e of slot i, or NoNeighbor.
func (m *Mesh) Neighbor(i int, e Edge) int {
	return m.links[i][e]
}

// Link connects edge ea of slot a with edge eb of slot b.
func (m *Mesh) Link(a int, ea Edge, b int, eb Edge) {
	m.links[a][ea] = b
	m.links[b][eb] = a
}

// Slots returns the arena size, including free slots.
func (m *Mesh) Slots() int {
	return len(m.tris)
}

// Len returns the number of live triangles.
func (m *Mesh) Len() int {
	return m.count
}

// Each calls fn for every live triangle in slot order.
func (m *Mesh) Each(fn func(i int, t Triangle)) {
	for i, t := range m.tris {
		if m.alive[i] {
			fn(i, t)
		}
	}
}

// Triangles returns the live triangles in slot order.
func (m *Mesh) Triangles() []Triangle {
	out := make([]Triangle, 0, m.count)
	m.Each(func(_ int, t Triangle) {
		out = append(out, t)
	})
	return out
}

// LinkSlots links the given slots to each other wherever two of them share an
// edge with opposite direction. Edges already linked are left alone.
func (m *Mesh) LinkSlots(slots []int) error {
	open := make(map[directedEdge]edgeRef, len(slots)*3)
	for _, i := range slots {
		t := m.tris[i]
		for _, e := range Edges {
			if m.links[i][e] != NoNeighbor {
				continue
			}
			from, to := t.Edge(e)
			key := directedEdge{from, to}
			if _, dup := open[key]; dup {
				return errors.Wrapf(kernel.ErrInvariantViolation,
					"mesh: directed edge %d->%d claimed twice", from, to)
			}
			open[key] = edgeRef{tri: i, edge: e}
		}
	}
	for key, ref := range open {
		if m.links[ref.tri][ref.edge] != NoNeighbor {
			continue
		}
		twin, ok := open[directedEdge{key.to, key.from}]
		if !ok {
			continue
		}
		m.Link(ref.tri, ref.edge, twin.tri, twin.edge)
	}
	return nil
}

// LinkAll links every live triangle to its neighbours by shared-edge matching.
func (m *Mesh) LinkAll() error {
	slots := make([]int, 0, m.count)
	m.Each(func(i int, _ Triangle) {
		slots = append(slots, i)
	})
	return m.LinkSlots(slots)
}

// Validate checks the closed-manifold invariant: every edge of every live
// triangle is linked to a live triangle that traverses it in the opposite
// direction and links back.
func (m *Mesh) Validate() error {
	if m.count == 0 {
		return errors.Wrap(kernel.ErrDegenerateInput, "mesh: no triangles")
	}
	var err error
	m.Each(func(i int, t Triangle) {
		if err != nil {
			return
		}
		for _, e := range Edges {
			n := m.links[i][e]
			if !m.Alive(n) {
				err = errors.Wrapf(kernel.ErrInvariantViolation, "mesh: slot %d %s is open", i, e)
				return
			}
			from, to := t.Edge(e)
			ne, ok := m.tris[n].EdgeOf(to, from)
			if !ok || m.links[n][ne] != i {
				err = errors.Wrapf(kernel.ErrInvariantViolation,
					"mesh: slot %d %s is not mirrored by slot %d", i, e, n)
				return
			}
		}
	})
	return err
}

// Compact returns a copy holding only live triangles in dense slots, with
// links remapped. The point array is shared.
func (m *Mesh) Compact() *Mesh {
	out := New(m.Points)
	remap := make(map[int]int, m.count)
	m.Each(func(i int, t Triangle) {
		remap[i] = out.Add(t)
	})
	m.Each(func(i int, _ Triangle) {
		for _, e := range Edges {
			if n, ok := remap[m.links[i][e]]; ok {
				out.links[remap[i]][e] = n
			}
		}
	})
	return out
}

// VertexIndices returns the sorted point indices used by live triangles.
func (m *Mesh) VertexIndices() []int {
	seen := make(map[int]struct{})
	m.Each(func(_ int, t Triangle) {
		for _, v := range t.V {
			seen[v] = struct{}{}
		}
	})
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Vertices returns the positions of VertexIndices.
func (m *Mesh) Vertices() []r3.Vector {
	idx := m.VertexIndices()
	out := make([]r3.Vector, len(idx))
	for i, v := range idx {
		out[i] = m.Points[v]
	}
	return out
}

// Volume returns the enclosed volume, assuming outward normals.
func (m *Mesh) Volume() float64 {
	var v float64
	m.Each(func(_ int, t Triangle) {
		a, b, c := t.Corners(m.Points)
		area := b.Sub(a).Cross(c.Sub(a)).Norm() / 2
		v += area * t.Normal.Dot(a)
	})
	return v / 3
}

// Contains reports whether p is behind or within eps of every triangle's
// plane. Only meaningful for convex meshes.
func (m *Mesh) Contains(p r3.Vector, eps float64) bool {
	inside := true
	m.Each(func(_ int, t Triangle) {
		if inside && t.Plane(m.Points).Distance(p) > eps {
			inside = false
		}
	})
	return inside
}

// Render flattens the mesh into a kernel.Mesh with per-face normals. The
// emitted winding is counter-clockwise seen from outside, which is the
// reverse of the arena's normal convention.
func (m *Mesh) Render(name string) *kernel.Mesh {
	out := &kernel.Mesh{PartName: name}
	m.Each(func(_ int, t Triangle) {
		a, b, c := t.Corners(m.Points)
		out.AppendTriangle(c, b, a, t.Normal)
	})
	return out
}
