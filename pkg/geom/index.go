package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// cellKey addresses one bucket of a PointIndex.
type cellKey struct {
	x, y, z int64
}

// PointIndex merges points that lie within eps of each other. Points are
// bucketed on a grid of quantized coordinates so a lookup only inspects the
// 27 buckets around the query instead of scanning every stored point.
type PointIndex struct {
	eps     float64
	cell    float64
	buckets map[cellKey][]int
	points  []r3.Vector
}

// NewPointIndex returns an empty index merging points closer than eps.
func NewPointIndex(eps float64) *PointIndex {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	return &PointIndex{
		eps:     eps,
		cell:    eps * 4,
		buckets: make(map[cellKey][]int),
	}
}

func (ix *PointIndex) key(p r3.Vector) cellKey {
	return cellKey{
		x: int64(math.Floor(p.X / ix.cell)),
		y: int64(math.Floor(p.Y / ix.cell)),
		z: int64(math.Floor(p.Z / ix.cell)),
	}
}

// Find returns the index of a stored point within eps of p.
func (ix *PointIndex) Find(p r3.Vector) (int, bool) {
	k := ix.key(p)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				for _, i := range ix.buckets[cellKey{k.x + dx, k.y + dy, k.z + dz}] {
					if NearVector(ix.points[i], p, ix.eps) {
						return i, true
					}
				}
			}
		}
	}
	return -1, false
}

// Add stores p unless an equivalent point already exists. It returns the
// index of the stored point and whether p was new.
func (ix *PointIndex) Add(p r3.Vector) (int, bool) {
	if i, ok := ix.Find(p); ok {
		return i, false
	}
	i := len(ix.points)
	ix.points = append(ix.points, p)
	k := ix.key(p)
	ix.buckets[k] = append(ix.buckets[k], i)
	return i, true
}

// Points returns the merged points in insertion order.
func (ix *PointIndex) Points() []r3.Vector {
	return ix.points
}

// Len returns the number of distinct points.
func (ix *PointIndex) Len() int {
	return len(ix.points)
}

// Dedupe returns points with near-duplicates merged, preserving first
// occurrences.
func Dedupe(points []r3.Vector, eps float64) []r3.Vector {
	ix := NewPointIndex(eps)
	for _, p := range points {
		ix.Add(p)
	}
	return ix.Points()
}
