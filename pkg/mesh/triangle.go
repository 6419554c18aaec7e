// Package mesh implements the indexed, linked triangle mesh produced by the
// hull builder. Triangles live in a single arena and refer to each other by
// slot index, so removing a triangle only frees its slot.
package mesh

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/chazu/shard/pkg/geom"
)

// Edge names one side of a triangle by the vertex slots it joins.
type Edge int

const (
	Edge01 Edge = iota // V[0] -> V[1]
	Edge12             // V[1] -> V[2]
	Edge20             // V[2] -> V[0]
)

// Edges lists the three edges in winding order.
var Edges = [3]Edge{Edge01, Edge12, Edge20}

func (e Edge) String() string {
	switch e {
	case Edge01:
		return "edge01"
	case Edge12:
		return "edge12"
	case Edge20:
		return "edge20"
	default:
		return fmt.Sprintf("Edge(%d)", int(e))
	}
}

// Triangle references three points of a shared point array and caches its
// normal, (p0-p1) × (p2-p1) normalized.
type Triangle struct {
	V      [3]int
	Normal r3.Vector
}

// NewTriangle builds a triangle over points[i0], points[i1], points[i2].
func NewTriangle(points []r3.Vector, i0, i1, i2 int) Triangle {
	return Triangle{
		V:      [3]int{i0, i1, i2},
		Normal: geom.TriangleNormal(points[i0], points[i1], points[i2]),
	}
}

// Flipped returns the triangle with reversed winding.
func (t Triangle) Flipped() Triangle {
	return Triangle{V: [3]int{t.V[2], t.V[1], t.V[0]}, Normal: t.Normal.Mul(-1)}
}

// Edge returns the directed vertex pair of edge e.
func (t Triangle) Edge(e Edge) (from, to int) {
	return t.V[e], t.V[(e+1)%3]
}

// Opposite returns the vertex not on edge e.
func (t Triangle) Opposite(e Edge) int {
	return t.V[(e+2)%3]
}

// EdgeOf returns the edge traversed from -> to, if the triangle has it.
func (t Triangle) EdgeOf(from, to int) (Edge, bool) {
	for _, e := range Edges {
		a, b := t.Edge(e)
		if a == from && b == to {
			return e, true
		}
	}
	return 0, false
}

// Has reports whether vertex index i is a corner of t.
func (t Triangle) Has(i int) bool {
	return t.V[0] == i || t.V[1] == i || t.V[2] == i
}

// Equivalent reports whether t and o cover the same three vertices with the
// same cyclic winding.
func (t Triangle) Equivalent(o Triangle) bool {
	for shift := 0; shift < 3; shift++ {
		if t.V[0] == o.V[shift] && t.V[1] == o.V[(shift+1)%3] && t.V[2] == o.V[(shift+2)%3] {
			return true
		}
	}
	return false
}

// Plane returns the supporting plane of t.
func (t Triangle) Plane(points []r3.Vector) geom.Plane {
	return geom.Plane{Normal: t.Normal, Offset: t.Normal.Dot(points[t.V[0]])}
}

// Corners returns the three corner positions.
func (t Triangle) Corners(points []r3.Vector) (a, b, c r3.Vector) {
	return points[t.V[0]], points[t.V[1]], points[t.V[2]]
}
