package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// Plane is the set of points x with Normal·x == Offset. Normal is unit
// length for planes built by the constructors below.
type Plane struct {
	Normal r3.Vector
	Offset float64
}

// PlaneFromTriangle returns the plane through p0, p1, p2 whose normal follows
// TriangleNormal's winding convention.
func PlaneFromTriangle(p0, p1, p2 r3.Vector) Plane {
	n := TriangleNormal(p0, p1, p2)
	return Plane{Normal: n, Offset: n.Dot(p1)}
}

// PlaneFromPointNormal returns the plane through p perpendicular to n.
func PlaneFromPointNormal(p, n r3.Vector) Plane {
	if n.Norm2() != 0 {
		n = n.Normalize()
	}
	return Plane{Normal: n, Offset: n.Dot(p)}
}

// Bisector returns the plane of points equidistant from a and b, oriented
// so that b lies in front of it.
func Bisector(a, b r3.Vector) Plane {
	return PlaneFromPointNormal(a.Add(b).Mul(0.5), b.Sub(a))
}

// Distance returns the signed distance from p to the plane; positive values
// lie on the side the normal points to.
func (pl Plane) Distance(p r3.Vector) float64 {
	return pl.Normal.Dot(p) - pl.Offset
}

// Project returns the orthogonal projection of p onto the plane.
func (pl Plane) Project(p r3.Vector) r3.Vector {
	return p.Sub(pl.Normal.Mul(pl.Distance(p)))
}

// IsDegenerate reports whether the plane has no usable normal.
func (pl Plane) IsDegenerate() bool {
	return pl.Normal.Norm2() == 0
}

// IntersectLine returns the parameter t at which origin + t*dir meets the
// plane. ok is false when the line is parallel to the plane within eps.
func (pl Plane) IntersectLine(origin, dir r3.Vector, eps float64) (t float64, ok bool) {
	denom := pl.Normal.Dot(dir)
	if math.Abs(denom) <= eps {
		return 0, false
	}
	return (pl.Offset - pl.Normal.Dot(origin)) / denom, true
}

// IntersectSegment returns the point where segment ab crosses the plane.
// Endpoints lying on the plane within eps count as crossings.
func (pl Plane) IntersectSegment(a, b r3.Vector, eps float64) (r3.Vector, bool) {
	da := pl.Distance(a)
	db := pl.Distance(b)
	switch {
	case math.Abs(da) <= eps:
		return a, true
	case math.Abs(db) <= eps:
		return b, true
	case (da > 0) == (db > 0):
		return r3.Vector{}, false
	}
	t := da / (da - db)
	return a.Add(b.Sub(a).Mul(t)), true
}
