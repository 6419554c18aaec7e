// Package geom holds the point, vector and plane primitives the hull,
// Voronoi and fragment packages are written against. Vectors are
// github.com/golang/geo/r3 values; every comparison is epsilon tolerant.
package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// DefaultEpsilon is the absolute tolerance used when a caller does not
// supply one. Inputs are expected to be roughly unit to thousand scale.
const DefaultEpsilon = 1e-9

// Near reports whether a and b differ by at most eps.
func Near(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

// NearVector reports whether a and b are within eps of each other.
func NearVector(a, b r3.Vector, eps float64) bool {
	return a.Sub(b).Norm() <= eps
}

// TriangleNormal returns the unit normal (p0-p1) × (p2-p1). The zero
// vector is returned for degenerate triangles.
func TriangleNormal(p0, p1, p2 r3.Vector) r3.Vector {
	n := p0.Sub(p1).Cross(p2.Sub(p1))
	if n.Norm2() == 0 {
		return r3.Vector{}
	}
	return n.Normalize()
}

// TriangleArea returns the area of triangle abc.
func TriangleArea(a, b, c r3.Vector) float64 {
	return b.Sub(a).Cross(c.Sub(a)).Norm() / 2
}

// Centroid returns the arithmetic mean of points.
func Centroid(points ...r3.Vector) r3.Vector {
	var sum r3.Vector
	if len(points) == 0 {
		return sum
	}
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(points)))
}

// Barycentric returns the barycentric coordinates (u, v, w) of p with respect
// to triangle abc, so that p ≈ u*a + v*b + w*c after projection onto the
// triangle's plane. ok is false for degenerate triangles.
func Barycentric(p, a, b, c r3.Vector) (u, v, w float64, ok bool) {
	v0 := b.Sub(a)
	v1 := c.Sub(a)
	v2 := p.Sub(a)
	d00 := v0.Dot(v0)
	d01 := v0.Dot(v1)
	d11 := v1.Dot(v1)
	d20 := v2.Dot(v0)
	d21 := v2.Dot(v1)
	denom := d00*d11 - d01*d01
	if denom == 0 || math.Abs(denom) < 1e-300 {
		return 0, 0, 0, false
	}
	v = (d11*d20 - d01*d21) / denom
	w = (d00*d21 - d01*d20) / denom
	u = 1 - v - w
	return u, v, w, true
}

// InsideTriangle reports whether the projection of p onto the plane of abc
// falls inside the triangle, allowing eps of slack on each coordinate.
func InsideTriangle(p, a, b, c r3.Vector, eps float64) bool {
	u, v, w, ok := Barycentric(p, a, b, c)
	if !ok {
		return false
	}
	return u >= -eps && v >= -eps && w >= -eps
}

// ClosestPointOnLine returns the point on the infinite line through a and b
// closest to p.
func ClosestPointOnLine(p, a, b r3.Vector) r3.Vector {
	d := b.Sub(a)
	l2 := d.Norm2()
	if l2 == 0 {
		return a
	}
	t := p.Sub(a).Dot(d) / l2
	return a.Add(d.Mul(t))
}

// DistanceToLine returns the distance from p to the infinite line through a
// and b.
func DistanceToLine(p, a, b r3.Vector) float64 {
	return p.Sub(ClosestPointOnLine(p, a, b)).Norm()
}

// Flatten removes the component of v along the unit axis.
func Flatten(v, axis r3.Vector) r3.Vector {
	return v.Sub(axis.Mul(v.Dot(axis)))
}

// SignedAngle returns the angle in (-π, π] that rotates from onto to around
// the unit axis, both vectors assumed perpendicular to axis.
func SignedAngle(from, to, axis r3.Vector) float64 {
	return math.Atan2(from.Cross(to).Dot(axis), from.Dot(to))
}
