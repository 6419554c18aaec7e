// Package kernel defines the abstract solid-source interface used by the
// shattering pipeline. Implementations (sdfx) build primitive solids and
// sample them into point clouds that the hull builder consumes. The
// abstraction allows swapping backends without changing the rest of the
// system.
package kernel

import "github.com/golang/geo/r3"

// Solid is an opaque handle to a kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the abstract solid-source interface.
type Kernel interface {
	// Primitives
	Box(x, y, z float64) Solid
	Cylinder(height, radius float64, segments int) Solid
	Sphere(radius float64) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// Sample returns a de-duplicated point cloud on the solid's surface.
	Sample(s Solid) ([]r3.Vector, error)
}
