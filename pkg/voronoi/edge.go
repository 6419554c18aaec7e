// Package voronoi derives the Voronoi diagram dual to a Delaunay
// tetrahedralization and reconstructs each cell's polygonal faces from the
// unordered set of Voronoi edges touching it.
package voronoi

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Edge is one of Segment, Ray or Line.
type Edge interface {
	// touches reports whether vertex v is an endpoint of the edge.
	touches(v int) bool
	fmt.Stringer
}

// Segment joins two Voronoi vertices.
type Segment struct {
	From, To int
}

// Ray starts at a Voronoi vertex and is unbounded along Direction, a unit
// vector.
type Ray struct {
	Origin    int
	Direction r3.Vector
}

// Line is unbounded both ways. It only arises from collinear control points,
// which the diagram builder never produces.
type Line struct {
	Point     r3.Vector
	Direction r3.Vector
}

func (s Segment) touches(v int) bool { return s.From == v || s.To == v }
func (r Ray) touches(v int) bool     { return r.Origin == v }
func (Line) touches(int) bool        { return false }

func (s Segment) String() string { return fmt.Sprintf("segment(%d-%d)", s.From, s.To) }
func (r Ray) String() string     { return fmt.Sprintf("ray(%d %v)", r.Origin, r.Direction) }
func (l Line) String() string    { return fmt.Sprintf("line(%v %v)", l.Point, l.Direction) }

// Other returns the endpoint of s that is not v.
func (s Segment) Other(v int) int {
	if s.From == v {
		return s.To
	}
	return s.From
}

// direction returns the unit direction of edge e leaving vertex v.
func direction(e Edge, v int, vertices []r3.Vector) r3.Vector {
	switch e := e.(type) {
	case Segment:
		return vertices[e.Other(v)].Sub(vertices[v]).Normalize()
	case Ray:
		return e.Direction
	default:
		return r3.Vector{}
	}
}

// Face is one planar side of a Voronoi cell. Edges are ordered along the
// boundary; an open face starts and ends with a Ray.
type Face struct {
	Edges  []int
	Closed bool
	// Cells lists the control points bordering the face.
	Cells []int
}
