package scene

import "github.com/golang/geo/r3"

// ---------------------------------------------------------------------------
// Solids
// ---------------------------------------------------------------------------

// Shape distinguishes between primitive solids.
type Shape int

const (
	ShapeBox Shape = iota
	ShapeCylinder
	ShapeSphere
)

func (s Shape) String() string {
	switch s {
	case ShapeBox:
		return "box"
	case ShapeCylinder:
		return "cylinder"
	case ShapeSphere:
		return "sphere"
	default:
		return "unknown"
	}
}

// SolidData is a primitive solid. Size is used by boxes, Height and Radius
// by cylinders and spheres. Rotation (Euler degrees) is applied before the
// translation At.
type SolidData struct {
	Shape    Shape     `json:"shape"`
	Size     r3.Vector `json:"size,omitempty"`
	Height   float64   `json:"height,omitempty"`
	Radius   float64   `json:"radius,omitempty"`
	At       r3.Vector `json:"at"`
	Rotation r3.Vector `json:"rotation"`
}

func (SolidData) nodeData() {}

// ---------------------------------------------------------------------------
// Seeds
// ---------------------------------------------------------------------------

// SeedsData is a set of Voronoi control points. Either Points is given
// explicitly or Count points are scattered inside the shattered hull using
// the deterministic Seed.
type SeedsData struct {
	Points []r3.Vector `json:"points,omitempty"`
	Count  int         `json:"count,omitempty"`
	Seed   uint64      `json:"seed,omitempty"`
}

func (SeedsData) nodeData() {}

// Scattered reports whether the points are generated at tessellation time.
func (d SeedsData) Scattered() bool { return len(d.Points) == 0 }

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// HullData builds the convex hull of a sampled solid.
type HullData struct {
	Source NodeID `json:"source"`
}

func (HullData) nodeData() {}

// ShatterData fragments the hull of Source along the Voronoi cells of Seeds.
type ShatterData struct {
	Source NodeID `json:"source"`
	Seeds  NodeID `json:"seeds"`
}

func (ShatterData) nodeData() {}
