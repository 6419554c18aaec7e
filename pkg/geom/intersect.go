package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// IntersectRayTriangle returns the parameter t >= 0 at which origin + t*dir
// hits triangle abc (Möller–Trumbore). Hits on the triangle's border count.
func IntersectRayTriangle(origin, dir, a, b, c r3.Vector, eps float64) (float64, bool) {
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	h := dir.Cross(e2)
	det := e1.Dot(h)
	if math.Abs(det) <= eps*eps {
		return 0, false
	}
	inv := 1 / det
	s := origin.Sub(a)
	u := s.Dot(h) * inv
	if u < -eps || u > 1+eps {
		return 0, false
	}
	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < -eps || u+v > 1+eps {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t < -eps {
		return 0, false
	}
	return math.Max(t, 0), true
}

// IntersectSegmentTriangle returns the point where segment pq crosses
// triangle abc.
func IntersectSegmentTriangle(p, q, a, b, c r3.Vector, eps float64) (r3.Vector, bool) {
	dir := q.Sub(p)
	t, ok := IntersectRayTriangle(p, dir, a, b, c, eps)
	if !ok || t > 1+eps {
		return r3.Vector{}, false
	}
	return p.Add(dir.Mul(math.Min(t, 1))), true
}
