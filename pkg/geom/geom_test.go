package geom

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriangleNormalWinding(t *testing.T) {
	p0 := r3.Vector{X: 1, Y: 0, Z: 0}
	p1 := r3.Vector{X: 0, Y: 0, Z: 0}
	p2 := r3.Vector{X: 0, Y: 1, Z: 0}

	n := TriangleNormal(p0, p1, p2)
	assert.InDelta(t, 0.0, n.X, 1e-12)
	assert.InDelta(t, 0.0, n.Y, 1e-12)
	assert.InDelta(t, 1.0, n.Z, 1e-12)

	flipped := TriangleNormal(p2, p1, p0)
	assert.InDelta(t, -1.0, flipped.Z, 1e-12)

	assert.Equal(t, r3.Vector{}, TriangleNormal(p0, p0, p2))
}

func TestBarycentric(t *testing.T) {
	a := r3.Vector{X: 0, Y: 0, Z: 0}
	b := r3.Vector{X: 1, Y: 0, Z: 0}
	c := r3.Vector{X: 0, Y: 1, Z: 0}

	u, v, w, ok := Barycentric(r3.Vector{X: 0.25, Y: 0.25, Z: 3}, a, b, c)
	require.True(t, ok)
	assert.InDelta(t, 0.5, u, 1e-12)
	assert.InDelta(t, 0.25, v, 1e-12)
	assert.InDelta(t, 0.25, w, 1e-12)

	assert.True(t, InsideTriangle(r3.Vector{X: 0.1, Y: 0.1, Z: -2}, a, b, c, 1e-9))
	assert.False(t, InsideTriangle(r3.Vector{X: 1, Y: 1}, a, b, c, 1e-9))

	_, _, _, ok = Barycentric(a, a, a, b)
	assert.False(t, ok)
}

func TestPlaneDistanceAndProjection(t *testing.T) {
	pl := PlaneFromPointNormal(r3.Vector{Z: 2}, r3.Vector{Z: 5})
	assert.InDelta(t, 1.0, pl.Distance(r3.Vector{X: 4, Z: 3}), 1e-12)
	assert.InDelta(t, -2.0, pl.Distance(r3.Vector{}), 1e-12)

	proj := pl.Project(r3.Vector{X: 1, Y: 1, Z: 9})
	assert.True(t, NearVector(r3.Vector{X: 1, Y: 1, Z: 2}, proj, 1e-12))
}

func TestBisector(t *testing.T) {
	pl := Bisector(r3.Vector{}, r3.Vector{X: 2})
	assert.InDelta(t, 0.0, pl.Distance(r3.Vector{X: 1, Y: 7, Z: -3}), 1e-12)
	assert.Greater(t, pl.Distance(r3.Vector{X: 2}), 0.0)
}

func TestPlaneIntersectSegment(t *testing.T) {
	pl := PlaneFromPointNormal(r3.Vector{}, r3.Vector{Z: 1})

	p, ok := pl.IntersectSegment(r3.Vector{Z: -1}, r3.Vector{X: 2, Z: 1}, 1e-9)
	require.True(t, ok)
	assert.True(t, NearVector(r3.Vector{X: 1}, p, 1e-12))

	_, ok = pl.IntersectSegment(r3.Vector{Z: 1}, r3.Vector{Z: 2}, 1e-9)
	assert.False(t, ok)

	_, ok = pl.IntersectLine(r3.Vector{Z: 1}, r3.Vector{X: 1}, 1e-9)
	assert.False(t, ok)
}

func TestIntersectRayTriangle(t *testing.T) {
	a := r3.Vector{X: 0, Y: 0, Z: 1}
	b := r3.Vector{X: 1, Y: 0, Z: 1}
	c := r3.Vector{X: 0, Y: 1, Z: 1}

	tt, ok := IntersectRayTriangle(r3.Vector{X: 0.2, Y: 0.2}, r3.Vector{Z: 1}, a, b, c, 1e-9)
	require.True(t, ok)
	assert.InDelta(t, 1.0, tt, 1e-12)

	_, ok = IntersectRayTriangle(r3.Vector{X: 0.2, Y: 0.2}, r3.Vector{Z: -1}, a, b, c, 1e-9)
	assert.False(t, ok, "ray pointing away must miss")

	_, ok = IntersectSegmentTriangle(r3.Vector{X: 0.2, Y: 0.2}, r3.Vector{X: 0.2, Y: 0.2, Z: 0.5}, a, b, c, 1e-9)
	assert.False(t, ok, "segment too short must miss")

	p, ok := IntersectSegmentTriangle(r3.Vector{X: 0.2, Y: 0.2}, r3.Vector{X: 0.2, Y: 0.2, Z: 2}, a, b, c, 1e-9)
	require.True(t, ok)
	assert.True(t, NearVector(r3.Vector{X: 0.2, Y: 0.2, Z: 1}, p, 1e-12))
}

func TestSignedAngle(t *testing.T) {
	axis := r3.Vector{Z: 1}
	assert.InDelta(t, math.Pi/2, SignedAngle(r3.Vector{X: 1}, r3.Vector{Y: 1}, axis), 1e-12)
	assert.InDelta(t, -math.Pi/2, SignedAngle(r3.Vector{X: 1}, r3.Vector{Y: -1}, axis), 1e-12)

	flat := Flatten(r3.Vector{X: 1, Y: 2, Z: 3}, axis)
	assert.Equal(t, r3.Vector{X: 1, Y: 2}, flat)
}

func TestDistanceToLine(t *testing.T) {
	d := DistanceToLine(r3.Vector{X: 5, Y: 3}, r3.Vector{}, r3.Vector{X: 1})
	assert.InDelta(t, 3.0, d, 1e-12)
}

func TestPointIndexMergesNearPoints(t *testing.T) {
	ix := NewPointIndex(1e-6)

	i, added := ix.Add(r3.Vector{X: 1, Y: 1, Z: 1})
	require.True(t, added)
	assert.Equal(t, 0, i)

	j, added := ix.Add(r3.Vector{X: 1 + 5e-7, Y: 1, Z: 1 - 5e-7})
	assert.False(t, added)
	assert.Equal(t, 0, j)

	k, added := ix.Add(r3.Vector{X: 1.001, Y: 1, Z: 1})
	assert.True(t, added)
	assert.Equal(t, 1, k)

	_, found := ix.Find(r3.Vector{X: 2})
	assert.False(t, found)
	assert.Equal(t, 2, ix.Len())
}

func TestDedupeAcrossCellBoundary(t *testing.T) {
	eps := 1e-3
	// Straddle a bucket boundary so the neighbour scan is exercised.
	pts := []r3.Vector{
		{X: 4*eps - 1e-5},
		{X: 4*eps + 1e-5},
		{X: 1},
	}
	out := Dedupe(pts, eps)
	assert.Len(t, out, 2)
}
