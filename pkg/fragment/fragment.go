// Package fragment shatters a convex hull along a Voronoi diagram. Each
// fragment is the convex hull of the part of one Voronoi cell that lies
// inside the outer hull.
package fragment

import (
	"github.com/dhconnelly/rtreego"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	lop "github.com/samber/lo/parallel"
	"go.uber.org/zap"

	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/hull"
	"github.com/chazu/shard/pkg/kernel"
	"github.com/chazu/shard/pkg/mesh"
	"github.com/chazu/shard/pkg/voronoi"
)

const (
	// DefaultEpsilon is the merge and membership tolerance.
	DefaultEpsilon = 1e-7
	// DefaultParallelThreshold is the outer triangle count from which
	// intersection tests run in parallel.
	DefaultParallelThreshold = 256
)

// Fragment is the piece of the outer hull owned by one control point.
type Fragment struct {
	ControlIndex int
	Hull         *mesh.Mesh
}

// Fragmenter intersects hulls with Voronoi diagrams. It holds no state
// between calls.
type Fragmenter struct {
	eps               float64
	parallelThreshold int
	logger            *zap.Logger
	hullOpts          []hull.Option
}

// Option configures a Fragmenter.
type Option func(*Fragmenter)

// WithEpsilon sets the merge and membership tolerance.
func WithEpsilon(eps float64) Option {
	return func(f *Fragmenter) {
		if eps > 0 {
			f.eps = eps
		}
	}
}

// WithParallelThreshold sets the triangle count from which the intersection
// tests are spread over goroutines.
func WithParallelThreshold(n int) Option {
	return func(f *Fragmenter) {
		if n > 0 {
			f.parallelThreshold = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fragmenter) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithHullOptions sets the options used when re-hulling fragments.
func WithHullOptions(opts ...hull.Option) Option {
	return func(f *Fragmenter) {
		f.hullOpts = opts
	}
}

// New returns a Fragmenter.
func New(opts ...Option) *Fragmenter {
	f := &Fragmenter{
		eps:               DefaultEpsilon,
		parallelThreshold: DefaultParallelThreshold,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fragment returns one fragment per cell of d that overlaps outer, in
// control point order. Cells that miss the hull or only graze it are
// skipped.
func (f *Fragmenter) Fragment(outer *mesh.Mesh, d *voronoi.Diagram) ([]Fragment, error) {
	if outer == nil || outer.Len() == 0 {
		return nil, errors.Wrap(kernel.ErrDegenerateInput, "fragment: empty outer hull")
	}
	if d == nil || len(d.ControlPoints) == 0 {
		return nil, errors.Wrap(kernel.ErrDegenerateInput, "fragment: empty diagram")
	}

	c := &cut{
		Fragmenter: f,
		outer:      outer,
		tris:       outer.Triangles(),
		corners:    outer.Vertices(),
		d:          d,
		sites:      newSiteIndex(d.ControlPoints),
	}
	builder := hull.New(append([]hull.Option{hull.WithLogger(f.logger)}, f.hullOpts...)...)

	var out []Fragment
	for cp := range d.ControlPoints {
		pts := c.cellPoints(cp)
		if len(pts) < 4 {
			f.logger.Debug("fragment: cell misses the hull", zap.Int("cell", cp), zap.Int("points", len(pts)))
			continue
		}
		h, err := builder.Build(pts)
		if errors.Is(err, kernel.ErrDegenerateInput) {
			f.logger.Debug("fragment: cell only grazes the hull", zap.Int("cell", cp), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "fragment: cell %d", cp)
		}
		out = append(out, Fragment{ControlIndex: cp, Hull: h})
	}
	f.logger.Debug("fragment: shattered",
		zap.Int("cells", len(d.ControlPoints)),
		zap.Int("fragments", len(out)))
	return out, nil
}

// cut is the working state of one Fragment call.
type cut struct {
	*Fragmenter
	outer   *mesh.Mesh
	tris    []mesh.Triangle
	corners []r3.Vector
	d       *voronoi.Diagram
	sites   *siteIndex
}

// candidate is an intersection point, with whether it still needs the
// nearest-site check.
type candidate struct {
	p     r3.Vector
	check bool
}

// cellPoints gathers the corner points of cell cp clipped to the outer hull.
func (c *cut) cellPoints(cp int) []r3.Vector {
	ix := geom.NewPointIndex(c.eps)
	verts := c.d.CellVertices(cp)
	inside := lo.Filter(verts, func(v int, _ int) bool {
		return c.outer.Contains(c.d.Vertices[v], c.eps)
	})

	if c.d.Bounded(cp) && len(inside) == len(verts) {
		for _, v := range verts {
			ix.Add(c.d.Vertices[v])
		}
		return ix.Points()
	}

	for _, p := range c.corners {
		if c.sites.owns(cp, p, c.eps) {
			ix.Add(p)
		}
	}
	for _, v := range inside {
		ix.Add(c.d.Vertices[v])
	}

	site := c.d.ControlPoints[cp]
	bisectors := lo.Map(c.d.Neighbors(cp), func(q int, _ int) geom.Plane {
		return geom.Bisector(site, c.d.ControlPoints[q])
	})
	edges := c.d.CellEdges(cp)

	for _, cand := range c.mapTriangles(func(t mesh.Triangle) []candidate {
		return c.crossings(t, bisectors, edges)
	}) {
		if !cand.check || c.sites.owns(cp, cand.p, c.eps) {
			ix.Add(cand.p)
		}
	}
	return ix.Points()
}

// crossings intersects one outer triangle with the cell: its edges against
// the cell's bisector planes, and the cell's edges against the triangle.
func (c *cut) crossings(t mesh.Triangle, bisectors []geom.Plane, edges []int) []candidate {
	a, b, cc := t.Corners(c.outer.Points)
	var out []candidate
	for _, side := range [3][2]r3.Vector{{a, b}, {b, cc}, {cc, a}} {
		for _, pl := range bisectors {
			if x, ok := pl.IntersectSegment(side[0], side[1], c.eps); ok {
				out = append(out, candidate{p: x, check: true})
			}
		}
	}
	for _, ei := range edges {
		switch e := c.d.Edges[ei].(type) {
		case voronoi.Segment:
			if x, ok := geom.IntersectSegmentTriangle(c.d.Vertices[e.From], c.d.Vertices[e.To], a, b, cc, c.eps); ok {
				out = append(out, candidate{p: x})
			}
		case voronoi.Ray:
			origin := c.d.Vertices[e.Origin]
			if s, ok := geom.IntersectRayTriangle(origin, e.Direction, a, b, cc, c.eps); ok {
				out = append(out, candidate{p: origin.Add(e.Direction.Mul(s))})
			}
		}
	}
	return out
}

// mapTriangles runs fn over every outer triangle, in parallel once the
// triangle count reaches the threshold, and concatenates the results.
func (c *cut) mapTriangles(fn func(mesh.Triangle) []candidate) []candidate {
	iteratee := func(t mesh.Triangle, _ int) []candidate {
		return fn(t)
	}
	if len(c.tris) < c.parallelThreshold {
		return lo.Flatten(lo.Map(c.tris, iteratee))
	}
	return lo.Flatten(lop.Map(c.tris, iteratee))
}

// siteIndex answers nearest control point queries.
type siteIndex struct {
	points []r3.Vector
	tree   *rtreego.Rtree
}

type site struct {
	index int
	p     r3.Vector
}

const siteExtent = 1e-12

func (s *site) Bounds() rtreego.Rect {
	return rtreego.Point{s.p.X, s.p.Y, s.p.Z}.ToRect(siteExtent)
}

func newSiteIndex(points []r3.Vector) *siteIndex {
	tree := rtreego.NewTree(3, 25, 50)
	for i, p := range points {
		tree.Insert(&site{index: i, p: p})
	}
	return &siteIndex{points: points, tree: tree}
}

// nearest returns the index of the control point closest to p.
func (s *siteIndex) nearest(p r3.Vector) int {
	return s.tree.NearestNeighbor(rtreego.Point{p.X, p.Y, p.Z}).(*site).index
}

// owns reports whether control point cp is among the nearest to p.
func (s *siteIndex) owns(cp int, p r3.Vector, eps float64) bool {
	best := s.points[s.nearest(p)]
	return p.Sub(s.points[cp]).Norm() <= p.Sub(best).Norm()+eps
}
