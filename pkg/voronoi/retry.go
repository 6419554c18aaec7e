package voronoi

import (
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chazu/shard/pkg/delaunay"
	"github.com/chazu/shard/pkg/kernel"
)

const (
	// DefaultRetries is how many perturbed attempts follow a failed one.
	DefaultRetries = 8
	// DefaultJitter is the perturbation amplitude relative to the input's
	// largest extent.
	DefaultJitter = 1e-6
)

// Option configures Build, NewDiagram and BuildWithRetry.
type Option func(*settings)

type settings struct {
	eps     float64
	logger  *zap.Logger
	retries int
	jitter  float64
	rng     *rand.Rand
}

func newSettings(opts []Option) *settings {
	s := &settings{
		eps:     DefaultEpsilon,
		logger:  zap.NewNop(),
		retries: DefaultRetries,
		jitter:  DefaultJitter,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// WithEpsilon sets the reconstruction tolerance.
func WithEpsilon(eps float64) Option {
	return func(s *settings) {
		if eps > 0 {
			s.eps = eps
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRetries sets the number of perturbed retries.
func WithRetries(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithJitter sets the relative perturbation amplitude.
func WithJitter(amount float64) Option {
	return func(s *settings) {
		if amount > 0 {
			s.jitter = amount
		}
	}
}

// WithRand sets the random source used for perturbation.
func WithRand(r *rand.Rand) Option {
	return func(s *settings) {
		s.rng = r
	}
}

// BuildWithRetry tetrahedralizes points with tz and builds the diagram. A
// failed tetrahedralization, an empty result, an invariant violation or a
// control point without faces triggers a retry on a perturbed copy of the
// input. The perturbation grows with each attempt. Degenerate input is
// returned at once. The diagram's control points are the points actually
// used, which differ from the input after a retry.
func BuildWithRetry(points []r3.Vector, tz delaunay.Tetrahedralizer, opts ...Option) (*Diagram, error) {
	s := newSettings(opts)
	// Pin the random source so Build sees the same settings.
	opts = append(opts, WithRand(s.rng))

	amplitude := s.jitter * extent(points)
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		input := points
		if attempt > 0 {
			input = jitter(points, amplitude*float64(attempt), s.rng)
		}

		d, err := buildOnce(input, tz, opts)
		if err == nil {
			if attempt > 0 {
				s.logger.Info("voronoi: recovered after retry", zap.Int("attempt", attempt))
			}
			return d, nil
		}
		if !kernel.IsRetriable(err) {
			return nil, err
		}
		lastErr = err
		s.logger.Debug("voronoi: retrying with jitter",
			zap.Int("attempt", attempt+1),
			zap.Float64("amplitude", amplitude*float64(attempt+1)),
			zap.Error(err))
	}
	return nil, errors.Wrapf(lastErr, "voronoi: giving up after %d retries", s.retries)
}

func buildOnce(points []r3.Vector, tz delaunay.Tetrahedralizer, opts []Option) (*Diagram, error) {
	t, err := tz.Tetrahedralize(points)
	if err != nil {
		return nil, err
	}
	if t == nil || len(t.Tetrahedra) == 0 {
		return nil, errors.Wrap(kernel.ErrTransientDegeneracy, "voronoi: tetrahedralizer returned nothing")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	d, err := Build(t, opts...)
	if err != nil {
		return nil, err
	}
	if empty := d.EmptyCells(); len(empty) > 0 {
		return nil, errors.Wrapf(kernel.ErrTransientDegeneracy,
			"voronoi: control points %v own no faces", empty)
	}
	return d, nil
}

func extent(points []r3.Vector) float64 {
	if len(points) == 0 {
		return 0
	}
	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo = r3.Vector{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vector{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	}
	e := hi.Sub(lo)
	return math.Max(e.X, math.Max(e.Y, e.Z))
}

func jitter(points []r3.Vector, amplitude float64, rng *rand.Rand) []r3.Vector {
	out := make([]r3.Vector, len(points))
	for i, p := range points {
		out[i] = p.Add(r3.Vector{
			X: (rng.Float64()*2 - 1) * amplitude,
			Y: (rng.Float64()*2 - 1) * amplitude,
			Z: (rng.Float64()*2 - 1) * amplitude,
		})
	}
	return out
}
