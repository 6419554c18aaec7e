package voronoi

import (
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/chazu/shard/pkg/delaunay"
	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/kernel"
)

// DefaultEpsilon is the tolerance used for vertex coincidence and for the
// coplanarity test of the chain walk.
const DefaultEpsilon = 1e-7

// Diagram is a Voronoi diagram with reconstructed faces. Vertices are the
// circumcenters of the Delaunay tetrahedra, in tetrahedron order.
type Diagram struct {
	ControlPoints       []r3.Vector
	Vertices            []r3.Vector
	Edges               []Edge
	Faces               []Face
	FacesByControlPoint [][]int
}

// Build derives the Voronoi diagram of t: one vertex per tetrahedron, one
// segment per interior Delaunay face and one ray per boundary Delaunay face,
// then reconstructs every cell's faces.
func Build(t *delaunay.Tetrahedralization, opts ...Option) (*Diagram, error) {
	s := newSettings(opts)
	if t == nil || len(t.Tetrahedra) == 0 {
		return nil, errors.Wrap(kernel.ErrTransientDegeneracy, "voronoi: empty tetrahedralization")
	}
	pts := t.Points

	vertices := make([]r3.Vector, len(t.Tetrahedra))
	for i, tet := range t.Tetrahedra {
		c, err := delaunay.Circumcenter(pts[tet.V[0]], pts[tet.V[1]], pts[tet.V[2]], pts[tet.V[3]])
		if err != nil {
			return nil, errors.Wrapf(err, "voronoi: vertex of tetrahedron %d", i)
		}
		vertices[i] = c
	}

	var edges []Edge
	subsets := make([][]int, len(pts))
	for i, tet := range t.Tetrahedra {
		for f, nb := range tet.Neighbors {
			face := tet.Face(f)
			switch {
			case nb == delaunay.NoNeighbor:
				a, b, c := pts[face[0]], pts[face[1]], pts[face[2]]
				dir := geom.TriangleNormal(a, b, c)
				if dir == (r3.Vector{}) {
					return nil, errors.Wrapf(kernel.ErrTransientDegeneracy,
						"voronoi: flat boundary face %v", face)
				}
				if dir.Dot(pts[tet.V[f]].Sub(a)) > 0 {
					dir = dir.Mul(-1)
				}
				edges = append(edges, Ray{Origin: i, Direction: dir})
			case i < nb:
				if geom.NearVector(vertices[i], vertices[nb], s.eps) {
					return nil, errors.Wrapf(kernel.ErrTransientDegeneracy,
						"voronoi: zero-length edge between vertices %d and %d", i, nb)
				}
				edges = append(edges, Segment{From: i, To: nb})
			default:
				continue
			}
			for _, p := range face {
				subsets[p] = append(subsets[p], len(edges)-1)
			}
		}
	}

	d, err := NewDiagram(pts, vertices, edges, subsets, opts...)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("voronoi: diagram built",
		zap.Int("cells", len(pts)),
		zap.Int("vertices", len(vertices)),
		zap.Int("edges", len(edges)),
		zap.Int("faces", len(d.Faces)))
	return d, nil
}

// NewDiagram reconstructs the faces of every cell from prepared vertices and
// edges. subsets[i] lists the edges touching cell i. Faces shared by two
// cells are stored once and referenced by both.
func NewDiagram(controlPoints, vertices []r3.Vector, edges []Edge, subsets [][]int, opts ...Option) (*Diagram, error) {
	s := newSettings(opts)
	if len(subsets) != len(controlPoints) {
		return nil, errors.Errorf("voronoi: %d edge subsets for %d control points", len(subsets), len(controlPoints))
	}
	d := &Diagram{
		ControlPoints:       controlPoints,
		Vertices:            vertices,
		Edges:               edges,
		FacesByControlPoint: make([][]int, len(controlPoints)),
	}
	index := make(map[string]int)
	for cp, p := range controlPoints {
		faces, err := BuildFaces(vertices, edges, subsets[cp], cp, p, s.eps)
		if err != nil {
			return nil, err
		}
		for _, f := range faces {
			key := faceKey(f.Edges)
			fi, ok := index[key]
			if !ok {
				fi = len(d.Faces)
				index[key] = fi
				f.Closed = lo.EveryBy(f.Edges, func(e int) bool {
					_, isSeg := edges[e].(Segment)
					return isSeg
				})
				f.Cells = nil
				d.Faces = append(d.Faces, f)
			}
			if len(d.Faces[fi].Cells) == 2 {
				return nil, errors.Wrapf(kernel.ErrInvariantViolation,
					"voronoi: face %d claimed by a third cell %d", fi, cp)
			}
			d.Faces[fi].Cells = append(d.Faces[fi].Cells, cp)
			d.FacesByControlPoint[cp] = append(d.FacesByControlPoint[cp], fi)
		}
	}
	return d, nil
}

// EmptyCells returns the control points that own no face.
func (d *Diagram) EmptyCells() []int {
	var out []int
	for cp, fs := range d.FacesByControlPoint {
		if len(fs) == 0 {
			out = append(out, cp)
		}
	}
	return out
}

// CellEdges returns the sorted edge indices bounding cell cp.
func (d *Diagram) CellEdges(cp int) []int {
	var out []int
	for _, fi := range d.FacesByControlPoint[cp] {
		out = append(out, d.Faces[fi].Edges...)
	}
	out = lo.Uniq(out)
	sort.Ints(out)
	return out
}

// CellVertices returns the sorted vertex indices of cell cp.
func (d *Diagram) CellVertices(cp int) []int {
	var out []int
	for _, ei := range d.CellEdges(cp) {
		switch e := d.Edges[ei].(type) {
		case Segment:
			out = append(out, e.From, e.To)
		case Ray:
			out = append(out, e.Origin)
		}
	}
	out = lo.Uniq(out)
	sort.Ints(out)
	return out
}

// Neighbors returns the cells sharing a face with cp.
func (d *Diagram) Neighbors(cp int) []int {
	var out []int
	for _, fi := range d.FacesByControlPoint[cp] {
		for _, other := range d.Faces[fi].Cells {
			if other != cp {
				out = append(out, other)
			}
		}
	}
	out = lo.Uniq(out)
	sort.Ints(out)
	return out
}

// Bounded reports whether every face of cell cp is closed.
func (d *Diagram) Bounded(cp int) bool {
	fs := d.FacesByControlPoint[cp]
	return len(fs) > 0 && lo.EveryBy(fs, func(fi int) bool {
		return d.Faces[fi].Closed
	})
}
