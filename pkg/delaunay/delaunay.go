// Package delaunay is the boundary between the Voronoi reconstruction and
// whatever produces a Delaunay tetrahedralization. Callers depend on the
// Tetrahedralizer interface; BowyerWatson is the default implementation.
package delaunay

import (
	"fmt"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/chazu/shard/pkg/kernel"
)

// NoNeighbor marks a tetrahedron face on the boundary.
const NoNeighbor = -1

// Tetrahedron holds four point indices. Face i is the face opposite V[i] and
// Neighbors[i] is the tetrahedron across it, or NoNeighbor.
type Tetrahedron struct {
	V         [4]int
	Neighbors [4]int
}

// Face returns the three point indices of face i.
func (t Tetrahedron) Face(i int) [3]int {
	var f [3]int
	k := 0
	for j, v := range t.V {
		if j != i {
			f[k] = v
			k++
		}
	}
	return f
}

// Has reports whether point index p is a corner of t.
func (t Tetrahedron) Has(p int) bool {
	return t.V[0] == p || t.V[1] == p || t.V[2] == p || t.V[3] == p
}

// Tetrahedralization is the read-only output of a Tetrahedralizer.
type Tetrahedralization struct {
	Points     []r3.Vector
	Tetrahedra []Tetrahedron
}

// Tetrahedralizer produces a Delaunay tetrahedralization of points.
type Tetrahedralizer interface {
	Tetrahedralize(points []r3.Vector) (*Tetrahedralization, error)
}

// Func adapts a plain function to the Tetrahedralizer interface.
type Func func(points []r3.Vector) (*Tetrahedralization, error)

// Tetrahedralize calls f.
func (f Func) Tetrahedralize(points []r3.Vector) (*Tetrahedralization, error) {
	return f(points)
}

type faceKey [3]int

func keyOf(f [3]int) faceKey {
	s := []int{f[0], f[1], f[2]}
	sort.Ints(s)
	return faceKey{s[0], s[1], s[2]}
}

type faceRef struct {
	tet, face int
}

// Link fills in Neighbors by matching shared faces. A face claimed by more
// than two tetrahedra is an invariant violation.
func Link(tets []Tetrahedron) error {
	open := make(map[faceKey]faceRef, len(tets)*2)
	for i := range tets {
		tets[i].Neighbors = [4]int{NoNeighbor, NoNeighbor, NoNeighbor, NoNeighbor}
	}
	for i := range tets {
		for f := 0; f < 4; f++ {
			key := keyOf(tets[i].Face(f))
			other, ok := open[key]
			if !ok {
				open[key] = faceRef{tet: i, face: f}
				continue
			}
			if other.tet < 0 {
				return errors.Wrapf(kernel.ErrInvariantViolation,
					"delaunay: face %v shared by more than two tetrahedra", key)
			}
			tets[i].Neighbors[f] = other.tet
			tets[other.tet].Neighbors[other.face] = i
			open[key] = faceRef{tet: -1}
		}
	}
	return nil
}

// Validate checks index bounds and neighbor symmetry.
func (t *Tetrahedralization) Validate() error {
	if len(t.Tetrahedra) == 0 {
		return errors.Wrap(kernel.ErrTransientDegeneracy, "delaunay: empty tetrahedralization")
	}
	for i, tet := range t.Tetrahedra {
		for _, v := range tet.V {
			if v < 0 || v >= len(t.Points) {
				return errors.Wrapf(kernel.ErrInvariantViolation,
					"delaunay: tetrahedron %d references point %d of %d", i, v, len(t.Points))
			}
		}
		for f, n := range tet.Neighbors {
			if n == NoNeighbor {
				continue
			}
			back := false
			for _, m := range t.Tetrahedra[n].Neighbors {
				if m == i {
					back = true
				}
			}
			if !back {
				return errors.Wrapf(kernel.ErrInvariantViolation,
					"delaunay: tetrahedron %d face %d links to %d which does not link back", i, f, n)
			}
		}
	}
	return nil
}

// Circumcenter returns the center of the sphere through a, b, c and d. A
// flat tetrahedron yields kernel.ErrTransientDegeneracy.
func Circumcenter(a, b, c, d r3.Vector) (r3.Vector, error) {
	ab, ac, ad := b.Sub(a), c.Sub(a), d.Sub(a)
	A := mat.NewDense(3, 3, []float64{
		ab.X, ab.Y, ab.Z,
		ac.X, ac.Y, ac.Z,
		ad.X, ad.Y, ad.Z,
	})
	rhs := mat.NewVecDense(3, []float64{
		ab.Norm2() / 2,
		ac.Norm2() / 2,
		ad.Norm2() / 2,
	})
	var x mat.VecDense
	if err := x.SolveVec(A, rhs); err != nil {
		return r3.Vector{}, errors.Wrap(kernel.ErrTransientDegeneracy,
			fmt.Sprintf("delaunay: circumsphere solve: %v", err))
	}
	return a.Add(r3.Vector{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}), nil
}

// SignedVolume returns the signed volume of tetrahedron abcd.
func SignedVolume(a, b, c, d r3.Vector) float64 {
	return b.Sub(a).Dot(c.Sub(a).Cross(d.Sub(a))) / 6
}
