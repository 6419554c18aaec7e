// Package hull builds convex hulls of 3D point clouds with QuickHull. The
// result is a closed, outward-oriented mesh.Mesh whose triangles index into
// the caller's point slice.
package hull

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/kernel"
	"github.com/chazu/shard/pkg/mesh"
)

// Builder runs QuickHull with a fixed tolerance. A Builder holds no state
// between calls and may be shared.
type Builder struct {
	eps    float64
	logger *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithEpsilon sets the plane-distance tolerance. Non-positive values are
// ignored.
func WithEpsilon(eps float64) Option {
	return func(b *Builder) {
		if eps > 0 {
			b.eps = eps
		}
	}
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// New returns a Builder with the given options applied.
func New(opts ...Option) *Builder {
	b := &Builder{
		eps:    geom.DefaultEpsilon,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build is shorthand for New(opts...).Build(points).
func Build(points []r3.Vector, opts ...Option) (*mesh.Mesh, error) {
	return New(opts...).Build(points)
}

// Build returns the convex hull of points. Fewer than four points, a zero
// extent along any axis, colinear or coplanar input all yield a nil mesh and
// an error matching kernel.ErrDegenerateInput.
func (b *Builder) Build(points []r3.Vector) (*mesh.Mesh, error) {
	if len(points) < 4 {
		return nil, errors.Wrapf(kernel.ErrDegenerateInput, "hull: need at least 4 points, got %d", len(points))
	}

	r := &run{
		eps: b.eps,
		log: b.logger,
		pts: points,
		m:   mesh.New(points),
	}

	seed, err := r.seed()
	if err != nil {
		return nil, err
	}
	slots := r.seedTriangles(seed)
	if err := r.m.LinkAll(); err != nil {
		return nil, err
	}

	candidates := make([]int, 0, len(points)-4)
	for i := range points {
		if i != seed[0] && i != seed[1] && i != seed[2] && i != seed[3] {
			candidates = append(candidates, i)
		}
	}
	r.partition(candidates, slots)

	if err := r.refine(); err != nil {
		return nil, err
	}
	if r.m.Len() == 0 {
		return nil, errors.Wrap(kernel.ErrDegenerateInput, "hull: refinement removed every triangle")
	}
	if err := r.m.Validate(); err != nil {
		return nil, errors.Wrap(err, "hull: result is not closed")
	}

	out := r.m.Compact()
	b.logger.Debug("hull built",
		zap.Int("points", len(points)),
		zap.Int("triangles", out.Len()),
		zap.Int("iterations", r.iterations))
	return out, nil
}

// run is the mutable state of one Build call.
type run struct {
	eps float64
	log *zap.Logger
	pts []r3.Vector
	m   *mesh.Mesh

	// outside[slot] holds the point indices owned by that slot.
	outside [][]int
	// pending is a work list of slots that may own outside points.
	pending    []int
	iterations int
}

// seed picks four affinely independent points: the min/max X pair, the
// point farthest from their line, and the point farthest from that plane.
func (r *run) seed() ([4]int, error) {
	var seed [4]int
	lo, hi := r.pts[0], r.pts[0]
	minX, maxX := 0, 0
	for i, p := range r.pts {
		lo = r3.Vector{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vector{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
		if p.X < r.pts[minX].X {
			minX = i
		}
		if p.X > r.pts[maxX].X {
			maxX = i
		}
	}
	extent := hi.Sub(lo)
	if extent.X <= r.eps || extent.Y <= r.eps || extent.Z <= r.eps {
		return seed, errors.Wrapf(kernel.ErrDegenerateInput, "hull: zero extent %v", extent)
	}

	a, b := r.pts[minX], r.pts[maxX]
	third, best := -1, r.eps
	for i, p := range r.pts {
		if d := geom.DistanceToLine(p, a, b); d > best {
			third, best = i, d
		}
	}
	if third < 0 {
		return seed, errors.Wrap(kernel.ErrDegenerateInput, "hull: points are colinear")
	}

	pl := geom.PlaneFromTriangle(a, b, r.pts[third])
	fourth, best := -1, r.eps
	for i, p := range r.pts {
		if d := math.Abs(pl.Distance(p)); d > best {
			fourth, best = i, d
		}
	}
	if fourth < 0 {
		return seed, errors.Wrap(kernel.ErrDegenerateInput, "hull: points are coplanar")
	}

	return [4]int{minX, maxX, third, fourth}, nil
}

// seedTriangles adds the four outward faces of the seed tetrahedron.
func (r *run) seedTriangles(s [4]int) []int {
	faces := [4][4]int{
		{s[0], s[1], s[2], s[3]},
		{s[0], s[1], s[3], s[2]},
		{s[0], s[2], s[3], s[1]},
		{s[1], s[2], s[3], s[0]},
	}
	slots := make([]int, 0, 4)
	for _, f := range faces {
		tri := mesh.NewTriangle(r.pts, f[0], f[1], f[2])
		// The normal must face away from the opposite corner.
		if tri.Normal.Dot(r.pts[f[3]].Sub(r.pts[f[0]])) >= 0 {
			tri = tri.Flipped()
		}
		slots = append(slots, r.add(tri))
	}
	return slots
}

func (r *run) add(t mesh.Triangle) int {
	slot := r.m.Add(t)
	for len(r.outside) <= slot {
		r.outside = append(r.outside, nil)
	}
	r.outside[slot] = r.outside[slot][:0]
	return slot
}

// partition hands each candidate to the first slot it lies strictly in
// front of. Candidates that are only coplanar are handed to a slot whose
// extent they fall outside of, unless some coplanar live triangle already
// covers them. Everything else is inside the hull and dropped.
func (r *run) partition(candidates, slots []int) {
	for _, p := range candidates {
		owner := -1
		for _, s := range slots {
			if !r.m.Alive(s) {
				continue
			}
			if r.m.Triangle(s).Plane(r.pts).Distance(r.pts[p]) > r.eps {
				owner = s
				break
			}
		}
		if owner < 0 {
			owner = r.coplanarOwner(p, slots)
		}
		if owner < 0 {
			continue
		}
		if len(r.outside[owner]) == 0 {
			r.pending = append(r.pending, owner)
		}
		r.outside[owner] = append(r.outside[owner], p)
	}
}

// coplanarOwner implements the barycentric fallback of partition.
func (r *run) coplanarOwner(p int, slots []int) int {
	q := r.pts[p]
	owner := -1
	for _, s := range slots {
		if !r.m.Alive(s) {
			continue
		}
		t := r.m.Triangle(s)
		if math.Abs(t.Plane(r.pts).Distance(q)) > r.eps {
			continue
		}
		a, b, c := t.Corners(r.pts)
		if !geom.InsideTriangle(q, a, b, c, r.eps) {
			owner = s
			break
		}
	}
	if owner < 0 {
		return -1
	}
	covered := false
	r.m.Each(func(_ int, t mesh.Triangle) {
		if covered || math.Abs(t.Plane(r.pts).Distance(q)) > r.eps {
			return
		}
		a, b, c := t.Corners(r.pts)
		covered = geom.InsideTriangle(q, a, b, c, r.eps)
	})
	if covered {
		return -1
	}
	return owner
}

// nextPending pops a live slot that still owns outside points.
func (r *run) nextPending() int {
	for len(r.pending) > 0 {
		s := r.pending[len(r.pending)-1]
		r.pending = r.pending[:len(r.pending)-1]
		if r.m.Alive(s) && len(r.outside[s]) > 0 {
			return s
		}
	}
	return -1
}

// refine is the QuickHull main loop.
func (r *run) refine() error {
	limit := 4*len(r.pts) + 16
	for {
		s := r.nextPending()
		if s < 0 {
			return nil
		}
		r.iterations++
		if r.iterations > limit {
			return errors.Wrapf(kernel.ErrInvariantViolation, "hull: no convergence after %d iterations", limit)
		}

		p, ok := r.farthest(s)
		if !ok {
			r.log.Debug("hull: no farthest point, clearing outside set", zap.Int("slot", s))
			r.outside[s] = r.outside[s][:0]
			continue
		}
		if err := r.expand(s, p); err != nil {
			return err
		}
	}
}

// farthest returns the outside point of slot s with the largest plane
// distance. Near ties go to the point farther from the triangle's centroid.
// Coplanar points inside the triangle's extent are never chosen.
func (r *run) farthest(s int) (int, bool) {
	t := r.m.Triangle(s)
	pl := t.Plane(r.pts)
	a, b, c := t.Corners(r.pts)
	centroid := geom.Centroid(a, b, c)

	best, bestD, bestOff := -1, 0.0, 0.0
	for _, p := range r.outside[s] {
		q := r.pts[p]
		d := pl.Distance(q)
		if d <= r.eps && geom.InsideTriangle(q, a, b, c, r.eps) {
			continue
		}
		off := q.Sub(centroid).Norm()
		switch {
		case best < 0, d > bestD+r.eps:
			best, bestD, bestOff = p, d, off
		case geom.Near(d, bestD, r.eps) && off > bestOff:
			best, bestD, bestOff = p, d, off
		}
	}
	return best, best >= 0
}

// visit is one entry of the flood-fill work stack.
type visit struct {
	slot int
	via  mesh.Edge
}

// rimEdge is an edge of a kept triangle that borders a removed one.
type rimEdge struct {
	slot int
	edge mesh.Edge
}

// visible reports whether point p sees slot s; coplanar counts as visible.
func (r *run) visible(s, p int) bool {
	t := r.m.Triangle(s)
	return t.Normal.Dot(r.pts[p].Sub(r.pts[t.V[0]])) >= -r.eps
}

// horizon flood-fills from start across triangles visible to p and returns
// the visible slots and the rim as seen from the kept side.
func (r *run) horizon(start, p int) ([]int, []rimEdge, error) {
	seen := map[int]bool{start: true}
	kept := map[int]bool{}
	visibleSlots := []int{start}
	var rim []rimEdge

	stack := []visit{{slot: start, via: -1}}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t := r.m.Triangle(v.slot)
		for _, e := range mesh.Edges {
			n := r.m.Neighbor(v.slot, e)
			if n == mesh.NoNeighbor {
				return nil, nil, errors.Wrapf(kernel.ErrInvariantViolation,
					"hull: slot %d has an open %s during flood fill", v.slot, e)
			}
			if seen[n] {
				continue
			}
			if kept[n] || !r.visible(n, p) {
				kept[n] = true
				from, to := t.Edge(e)
				ne, ok := r.m.Triangle(n).EdgeOf(to, from)
				if !ok {
					return nil, nil, errors.Wrapf(kernel.ErrInvariantViolation,
						"hull: slots %d and %d disagree on shared edge", v.slot, n)
				}
				rim = append(rim, rimEdge{slot: n, edge: ne})
				continue
			}
			seen[n] = true
			visibleSlots = append(visibleSlots, n)
			stack = append(stack, visit{slot: n, via: e})
		}
	}
	return visibleSlots, rim, nil
}

// expand replaces the region of the hull visible from p with a fan of new
// triangles around p and redistributes the orphaned outside points.
func (r *run) expand(start, p int) error {
	visibleSlots, rim, err := r.horizon(start, p)
	if err != nil {
		return err
	}
	if len(rim) < 3 {
		return errors.Wrapf(kernel.ErrInvariantViolation, "hull: rim of %d edges around point %d", len(rim), p)
	}

	var orphans []int
	for _, s := range visibleSlots {
		for _, q := range r.outside[s] {
			if q != p {
				orphans = append(orphans, q)
			}
		}
		r.outside[s] = r.outside[s][:0]
		r.m.Remove(s)
	}

	fan := make([]int, 0, len(rim))
	for _, re := range rim {
		// The kept triangle walks u -> w, so the new one walks w -> u.
		u, w := r.m.Triangle(re.slot).Edge(re.edge)
		slot := r.add(mesh.NewTriangle(r.pts, w, u, p))
		r.m.Link(slot, mesh.Edge01, re.slot, re.edge)
		fan = append(fan, slot)
	}
	if err := r.m.LinkSlots(fan); err != nil {
		return errors.Wrapf(err, "hull: linking fan around point %d", p)
	}
	for _, s := range fan {
		for _, e := range mesh.Edges {
			if r.m.Neighbor(s, e) == mesh.NoNeighbor {
				return errors.Wrapf(kernel.ErrInvariantViolation,
					"hull: fan triangle %d around point %d left open", s, p)
			}
		}
	}

	r.log.Debug("hull: expanded",
		zap.Int("point", p),
		zap.Int("removed", len(visibleSlots)),
		zap.Int("rim", len(rim)),
		zap.Int("orphans", len(orphans)))

	r.partition(orphans, fan)
	return nil
}
