package voronoi

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/kernel"
)

// BuildFaces reconstructs the faces of the cell owned by controlIndex.
// subset holds the indices into edges of every edge touching the cell.
// Faces are found by walking coplanar edge chains from every segment and by
// pairing rays that share a vertex. Faces over-claiming an edge are pruned
// by their angle around that edge relative to referencePoint, normally the
// control point itself. eps bounds 1-|cos| in the coplanarity test.
func BuildFaces(vertices []r3.Vector, edges []Edge, subset []int, controlIndex int, referencePoint r3.Vector, eps float64) ([]Face, error) {
	c := &cellFaces{
		vertices: vertices,
		edges:    edges,
		subset:   subset,
		control:  controlIndex,
		ref:      referencePoint,
		eps:      eps,
		incident: make(map[int][]int),
		seen:     make(map[string]bool),
	}
	for _, ei := range subset {
		switch e := edges[ei].(type) {
		case Segment:
			c.incident[e.From] = append(c.incident[e.From], ei)
			c.incident[e.To] = append(c.incident[e.To], ei)
		case Ray:
			c.incident[e.Origin] = append(c.incident[e.Origin], ei)
		}
	}

	for _, ei := range subset {
		s, ok := edges[ei].(Segment)
		if !ok {
			continue
		}
		for _, first := range c.incident[s.To] {
			if first == ei {
				continue
			}
			f, found, err := c.walk(ei, s, first)
			if err != nil {
				return nil, errors.Wrapf(err, "voronoi: cell %d", controlIndex)
			}
			if found {
				c.add(f)
			}
		}
	}
	c.pairRays()

	if err := c.repair(); err != nil {
		return nil, errors.Wrapf(err, "voronoi: cell %d", controlIndex)
	}
	return c.faces, nil
}

// cellFaces is the working state of one BuildFaces call.
type cellFaces struct {
	vertices []r3.Vector
	edges    []Edge
	subset   []int
	control  int
	ref      r3.Vector
	eps      float64

	incident map[int][]int
	faces    []Face
	seen     map[string]bool
}

// faceKey identifies a face by its sorted edge set.
func faceKey(edgeIdx []int) string {
	s := append([]int(nil), edgeIdx...)
	sort.Ints(s)
	var b strings.Builder
	for i, e := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(e))
	}
	return b.String()
}

func (c *cellFaces) add(f Face) {
	key := faceKey(f.Edges)
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.faces = append(c.faces, f)
}

// turn returns the unit normal of the corner at vertex v formed by arriving
// along edge in and leaving along edge out.
func (c *cellFaces) turn(v, in, out int) (r3.Vector, bool) {
	back := direction(c.edges[in], v, c.vertices)
	fwd := direction(c.edges[out], v, c.vertices)
	n := back.Cross(fwd)
	if n.Norm() <= c.eps {
		return r3.Vector{}, false
	}
	return n.Normalize(), true
}

// next finds the edge at v, other than in, that stays in the plane with
// normal axis. The best aligned candidate within tolerance wins.
func (c *cellFaces) next(v, in int, axis r3.Vector) (int, r3.Vector, bool) {
	best, bestScore := -1, 0.0
	var bestAxis r3.Vector
	for _, cand := range c.incident[v] {
		if cand == in {
			continue
		}
		n, ok := c.turn(v, in, cand)
		if !ok {
			continue
		}
		score := math.Abs(n.Dot(axis))
		if 1-score > c.eps || score <= bestScore {
			continue
		}
		if n.Dot(axis) < 0 {
			n = n.Mul(-1)
		}
		best, bestScore, bestAxis = cand, score, n
	}
	return best, bestAxis, best >= 0
}

// walk traces the face containing segment start (s) and the edge first
// leaving s.To. The left walk follows first onward and must either close at
// s.From or end on a ray; a miss there is an invariant violation. An open
// left walk is completed by a right walk from s.From, whose miss only means
// the branch does not belong to this cell.
func (c *cellFaces) walk(start int, s Segment, first int) (Face, bool, error) {
	axis, ok := c.turn(s.To, start, first)
	if !ok {
		return Face{}, false, nil
	}
	limit := len(c.subset) + 1

	left := []int{first}
	cur, in := s.To, first
	closed := false
	for steps := 0; ; steps++ {
		if steps > limit {
			return Face{}, false, errors.Wrapf(kernel.ErrInvariantViolation,
				"chain from edge %d does not terminate", start)
		}
		seg, isSeg := c.edges[in].(Segment)
		if !isSeg {
			break
		}
		cur = seg.Other(cur)
		if cur == s.From {
			closed = true
			break
		}
		nxt, nextAxis, found := c.next(cur, in, axis)
		if !found {
			return Face{}, false, errors.Wrapf(kernel.ErrInvariantViolation,
				"didn't find next link in chain at vertex %d after edge %d", cur, in)
		}
		if nxt == start {
			return Face{}, false, errors.Wrapf(kernel.ErrInvariantViolation,
				"chain from edge %d re-entered it from vertex %d", start, cur)
		}
		left = append(left, nxt)
		in, axis = nxt, nextAxis
	}

	if closed {
		if len(left) < 2 {
			return Face{}, false, nil
		}
		return Face{Edges: append([]int{start}, left...), Closed: true}, true, nil
	}

	var right []int
	cur, in = s.From, start
	for steps := 0; ; steps++ {
		if steps > limit {
			return Face{}, false, nil
		}
		nxt, nextAxis, found := c.next(cur, in, axis)
		if !found || lo.Contains(left, nxt) {
			return Face{}, false, nil
		}
		right = append(right, nxt)
		in, axis = nxt, nextAxis
		seg, isSeg := c.edges[nxt].(Segment)
		if !isSeg {
			break
		}
		cur = seg.Other(cur)
		if cur == s.To {
			return Face{}, false, nil
		}
	}

	edges := make([]int, 0, len(right)+1+len(left))
	edges = append(edges, lo.Reverse(right)...)
	edges = append(edges, start)
	edges = append(edges, left...)
	return Face{Edges: edges}, true, nil
}

// pairRays adds one face for every pair of non-collinear rays sharing a
// vertex. Such faces contain no segment and are invisible to the chain walk.
func (c *cellFaces) pairRays() {
	verts := lo.Keys(c.incident)
	sort.Ints(verts)
	for _, v := range verts {
		rays := lo.Filter(c.incident[v], func(ei int, _ int) bool {
			_, ok := c.edges[ei].(Ray)
			return ok
		})
		for i := 0; i < len(rays); i++ {
			for j := i + 1; j < len(rays); j++ {
				if _, ok := c.turn(v, rays[i], rays[j]); !ok {
					continue
				}
				c.add(Face{Edges: []int{rays[i], rays[j]}})
			}
		}
	}
}

// claims maps each edge to the faces that use it.
func (c *cellFaces) claims() map[int][]int {
	out := make(map[int][]int)
	for fi, f := range c.faces {
		for _, e := range f.Edges {
			out[e] = append(out[e], fi)
		}
	}
	return out
}

// repair drops faces until no edge is claimed by more than two, then checks
// that every used segment is claimed exactly twice. A ray may border a single
// face when the cell is a half-space.
func (c *cellFaces) repair() error {
	for {
		claims := c.claims()
		over := lo.Filter(lo.Keys(claims), func(e int, _ int) bool {
			return len(claims[e]) > 2
		})
		if len(over) == 0 {
			break
		}
		sort.Ints(over)
		e := over[0]
		keep, err := c.rank(e, claims[e])
		if err != nil {
			return err
		}
		drop := lo.Without(claims[e], keep...)
		c.faces = lo.Reject(c.faces, func(_ Face, i int) bool {
			return lo.Contains(drop, i)
		})
	}

	for e, fs := range c.claims() {
		_, isRay := c.edges[e].(Ray)
		if len(fs) != 2 && !(isRay && len(fs) == 1) {
			return errors.Wrapf(kernel.ErrInvariantViolation,
				"%s claimed by %d faces", c.edges[e], len(fs))
		}
	}
	return nil
}

// rank orders the faces claiming edge e by signed angle around it, measured
// from the direction toward the reference point, and returns the nearest face
// on each side.
func (c *cellFaces) rank(e int, faces []int) ([]int, error) {
	var origin, axis r3.Vector
	switch edge := c.edges[e].(type) {
	case Segment:
		origin = c.vertices[edge.From]
		axis = c.vertices[edge.To].Sub(origin).Normalize()
	case Ray:
		origin = c.vertices[edge.Origin]
		axis = edge.Direction
	default:
		return nil, errors.Wrapf(kernel.ErrInvariantViolation, "cannot rank faces around %s", edge)
	}

	ref := geom.Flatten(c.ref.Sub(origin), axis)
	if ref.Norm() <= c.eps {
		return nil, errors.Wrapf(kernel.ErrInvariantViolation,
			"reference point lies on %s", c.edges[e])
	}

	pos, neg := -1, -1
	posAngle, negAngle := math.Inf(1), math.Inf(-1)
	for _, fi := range faces {
		p, ok := c.thirdPoint(c.faces[fi], e, origin, axis)
		if !ok {
			continue
		}
		a := geom.SignedAngle(ref, p, axis)
		if a >= 0 && a < posAngle {
			pos, posAngle = fi, a
		}
		if a < 0 && a > negAngle {
			neg, negAngle = fi, a
		}
	}
	if pos < 0 || neg < 0 {
		return nil, errors.Wrapf(kernel.ErrInvariantViolation,
			"faces around %s all lie on one side of the reference point", c.edges[e])
	}
	return []int{pos, neg}, nil
}

// thirdPoint returns a point of face f off the line of edge e, flattened onto
// the plane perpendicular to axis through origin.
func (c *cellFaces) thirdPoint(f Face, e int, origin, axis r3.Vector) (r3.Vector, bool) {
	for _, ei := range f.Edges {
		if ei == e {
			continue
		}
		var candidates []r3.Vector
		switch edge := c.edges[ei].(type) {
		case Segment:
			candidates = []r3.Vector{c.vertices[edge.From], c.vertices[edge.To]}
		case Ray:
			o := c.vertices[edge.Origin]
			candidates = []r3.Vector{o, o.Add(edge.Direction)}
		}
		for _, p := range candidates {
			if flat := geom.Flatten(p.Sub(origin), axis); flat.Norm() > c.eps {
				return flat, true
			}
		}
	}
	return r3.Vector{}, false
}
