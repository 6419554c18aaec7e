package delaunay

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/kernel"
)

// DefaultSuperScale is the size of the enclosing super tetrahedron relative
// to the input's largest extent.
const DefaultSuperScale = 1e3

var (
	superOffset  = r3.Vector{X: 0.0123, Y: -0.0457, Z: 0.0311}
	superCorners = []r3.Vector{
		{X: 1.13, Y: 0.97, Z: 1.05},
		{X: 0.91, Y: -1.07, Z: -1.11},
		{X: -1.03, Y: 1.09, Z: -0.95},
		{X: -0.99, Y: -1.01, Z: 1.17},
	}
)

// BowyerWatson is an incremental Delaunay tetrahedralizer. Points closer
// than the merge tolerance to an already inserted point are skipped and
// end up in no tetrahedron.
type BowyerWatson struct {
	eps        float64
	superScale float64
	logger     *zap.Logger
}

var _ Tetrahedralizer = (*BowyerWatson)(nil)

// Option configures a BowyerWatson.
type Option func(*BowyerWatson)

// WithEpsilon sets the merge and flatness tolerance.
func WithEpsilon(eps float64) Option {
	return func(bw *BowyerWatson) {
		if eps > 0 {
			bw.eps = eps
		}
	}
}

// WithSuperScale sets the super tetrahedron scale factor.
func WithSuperScale(scale float64) Option {
	return func(bw *BowyerWatson) {
		if scale > 1 {
			bw.superScale = scale
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(bw *BowyerWatson) {
		if l != nil {
			bw.logger = l
		}
	}
}

// NewBowyerWatson returns a tetrahedralizer with the given options.
func NewBowyerWatson(opts ...Option) *BowyerWatson {
	bw := &BowyerWatson{
		eps:        geom.DefaultEpsilon,
		superScale: DefaultSuperScale,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(bw)
	}
	return bw
}

// cavityTet is a working tetrahedron with its cached circumsphere.
type cavityTet struct {
	v      [4]int
	center r3.Vector
	r2     float64
	alive  bool
}

func (c *cavityTet) face(i int) [3]int {
	return Tetrahedron{V: c.v}.Face(i)
}

// Tetrahedralize implements Tetrahedralizer.
func (bw *BowyerWatson) Tetrahedralize(points []r3.Vector) (*Tetrahedralization, error) {
	n := len(points)
	if n < 4 {
		return nil, errors.Wrapf(kernel.ErrDegenerateInput, "delaunay: need at least 4 points, got %d", n)
	}

	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo = r3.Vector{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vector{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	}
	extent := hi.Sub(lo)
	size := math.Max(extent.X, math.Max(extent.Y, extent.Z))
	if size <= bw.eps {
		return nil, errors.Wrap(kernel.ErrDegenerateInput, "delaunay: points have no extent")
	}
	// The super tetrahedron is skewed off the axes so that its faces are
	// not coplanar with axis-aligned input.
	center := lo.Add(hi).Mul(0.5).Add(superOffset.Mul(size))

	// Work array: input points followed by the four super corners.
	pts := make([]r3.Vector, n, n+4)
	copy(pts, points)
	r := size * bw.superScale
	for _, c := range superCorners {
		pts = append(pts, center.Add(c.Mul(r)))
	}

	var tets []cavityTet
	add := func(v [4]int) error {
		a, b, c, d := pts[v[0]], pts[v[1]], pts[v[2]], pts[v[3]]
		// Tetrahedra reaching a super corner are never flat at input scale;
		// the circumsphere solve still rejects an exactly singular one.
		finite := v[0] < n && v[1] < n && v[2] < n && v[3] < n
		if finite && isFlat(a, b, c, d, bw.eps) {
			return errors.Wrapf(kernel.ErrTransientDegeneracy, "delaunay: flat tetrahedron %v", v)
		}
		cc, err := Circumcenter(a, b, c, d)
		if err != nil {
			return errors.Wrapf(err, "delaunay: tetrahedron %v", v)
		}
		tets = append(tets, cavityTet{v: v, center: cc, r2: cc.Sub(a).Norm2(), alive: true})
		return nil
	}
	if err := add([4]int{n, n + 1, n + 2, n + 3}); err != nil {
		return nil, err
	}

	seen := geom.NewPointIndex(bw.eps)
	skipped := 0
	for i := 0; i < n; i++ {
		p := pts[i]
		if _, added := seen.Add(p); !added {
			skipped++
			bw.logger.Debug("delaunay: skipping near-duplicate point", zap.Int("point", i))
			continue
		}

		faces := make(map[faceKey][3]int)
		counts := make(map[faceKey]int)
		for t := range tets {
			ct := &tets[t]
			if !ct.alive {
				continue
			}
			if p.Sub(ct.center).Norm2() >= ct.r2*(1-bw.eps) {
				continue
			}
			ct.alive = false
			for f := 0; f < 4; f++ {
				face := ct.face(f)
				key := keyOf(face)
				faces[key] = face
				counts[key]++
			}
		}
		if len(faces) == 0 {
			return nil, errors.Wrapf(kernel.ErrInvariantViolation, "delaunay: point %d lies in no circumsphere", i)
		}
		for key, face := range faces {
			if counts[key] != 1 {
				continue
			}
			if err := add([4]int{face[0], face[1], face[2], i}); err != nil {
				return nil, err
			}
		}
		tets = compactCavity(tets)
	}

	out := &Tetrahedralization{Points: points}
	for _, ct := range tets {
		if !ct.alive || ct.v[0] >= n || ct.v[1] >= n || ct.v[2] >= n || ct.v[3] >= n {
			continue
		}
		out.Tetrahedra = append(out.Tetrahedra, Tetrahedron{V: ct.v})
	}
	if len(out.Tetrahedra) == 0 {
		return nil, errors.Wrap(kernel.ErrTransientDegeneracy, "delaunay: no tetrahedra after removing the super tetrahedron")
	}
	if err := Link(out.Tetrahedra); err != nil {
		return nil, err
	}

	bw.logger.Debug("delaunay: tetrahedralized",
		zap.Int("points", n),
		zap.Int("skipped", skipped),
		zap.Int("tetrahedra", len(out.Tetrahedra)))
	return out, nil
}

// isFlat reports whether abcd has a volume below eps relative to the cube of
// its longest edge.
func isFlat(a, b, c, d r3.Vector, eps float64) bool {
	longest := 0.0
	for _, e := range [][2]r3.Vector{{a, b}, {a, c}, {a, d}, {b, c}, {b, d}, {c, d}} {
		longest = math.Max(longest, e[1].Sub(e[0]).Norm())
	}
	return 6*math.Abs(SignedVolume(a, b, c, d)) <= eps*longest*longest*longest
}

// compactCavity drops dead tetrahedra once they outnumber live ones.
func compactCavity(tets []cavityTet) []cavityTet {
	dead := 0
	for _, t := range tets {
		if !t.alive {
			dead++
		}
	}
	if dead*2 < len(tets) {
		return tets
	}
	out := tets[:0]
	for _, t := range tets {
		if t.alive {
			out = append(out, t)
		}
	}
	return out
}
