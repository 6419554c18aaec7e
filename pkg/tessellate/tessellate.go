// Package tessellate walks a scene and runs its jobs with a geometry
// kernel. A hull job produces one mesh; a shatter job produces one mesh per
// fragment, named "<job>/cell-<i>" after the seed that owns it.
package tessellate

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chazu/shard/pkg/config"
	"github.com/chazu/shard/pkg/delaunay"
	"github.com/chazu/shard/pkg/fragment"
	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/hull"
	"github.com/chazu/shard/pkg/kernel"
	"github.com/chazu/shard/pkg/mesh"
	"github.com/chazu/shard/pkg/scene"
	"github.com/chazu/shard/pkg/voronoi"
)

// cylinderSegments is passed to kernels that facet cylinders.
const cylinderSegments = 32

// scatterAttempts bounds rejection sampling per requested seed.
const scatterAttempts = 1000

// Option configures Tessellate.
type Option func(*walker)

// WithConfig sets the tolerances and budgets used by every job.
func WithConfig(cfg config.Config) Option {
	return func(w *walker) { w.cfg = cfg }
}

// WithLogger sets the logger handed to the hull, diagram and fragment stages.
func WithLogger(l *zap.Logger) Option {
	return func(w *walker) {
		if l != nil {
			w.logger = l
		}
	}
}

type walker struct {
	scene  *scene.Scene
	kernel kernel.Kernel
	cfg    config.Config
	logger *zap.Logger
}

// Tessellate walks the scene roots in order and runs every job using the
// provided kernel. The scene is read-only and never mutated. A failing job
// aborts the walk; no partial result is returned.
func Tessellate(s *scene.Scene, k kernel.Kernel, opts ...Option) ([]*kernel.Mesh, error) {
	if s == nil {
		return nil, nil
	}
	w := &walker{scene: s, kernel: k, cfg: config.Default(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}

	var meshes []*kernel.Mesh
	for _, rootID := range s.Roots {
		root := s.Get(rootID)
		if root == nil {
			continue
		}
		collected, err := w.walkNode(root)
		if err != nil {
			return nil, errors.Wrapf(err, "tessellate: root %s", label(root))
		}
		meshes = append(meshes, collected...)
	}
	return meshes, nil
}

// walkNode dispatches on the node kind. Only jobs produce meshes.
func (w *walker) walkNode(n *scene.Node) ([]*kernel.Mesh, error) {
	switch n.Kind {
	case scene.NodeHull:
		return w.handleHull(n)
	case scene.NodeShatter:
		return w.handleShatter(n)
	case scene.NodeSolid, scene.NodeSeeds:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown node kind: %v", n.Kind)
	}
}

func (w *walker) handleHull(n *scene.Node) ([]*kernel.Mesh, error) {
	hd, ok := n.Data.(scene.HullData)
	if !ok {
		return nil, fmt.Errorf("hull node %s has unexpected data type %T", n.ID.Short(), n.Data)
	}
	outer, err := w.outerHull(hd.Source)
	if err != nil {
		return nil, err
	}
	w.logger.Debug("hull built",
		zap.String("job", label(n)),
		zap.Int("triangles", outer.Len()),
		zap.Float64("volume", outer.Volume()))
	return []*kernel.Mesh{outer.Render(label(n))}, nil
}

func (w *walker) handleShatter(n *scene.Node) ([]*kernel.Mesh, error) {
	sd, ok := n.Data.(scene.ShatterData)
	if !ok {
		return nil, fmt.Errorf("shatter node %s has unexpected data type %T", n.ID.Short(), n.Data)
	}
	outer, err := w.outerHull(sd.Source)
	if err != nil {
		return nil, err
	}

	seedNode := w.scene.Get(sd.Seeds)
	if seedNode == nil {
		return nil, fmt.Errorf("shatter node %s: seeds %s not found", n.ID.Short(), sd.Seeds.Short())
	}
	seeds, ok := seedNode.Data.(scene.SeedsData)
	if !ok {
		return nil, fmt.Errorf("seeds node %s has unexpected data type %T", seedNode.ID.Short(), seedNode.Data)
	}
	points := seeds.Points
	if seeds.Scattered() {
		if points, err = scatter(outer, seeds.Count, seeds.Seed); err != nil {
			return nil, err
		}
	}

	nseeds := len(points)
	d, err := voronoi.BuildWithRetry(padSeeds(outer, points),
		delaunay.NewBowyerWatson(delaunay.WithLogger(w.logger)),
		voronoi.WithEpsilon(w.cfg.VoronoiEpsilon),
		voronoi.WithRetries(w.cfg.Retries),
		voronoi.WithJitter(w.cfg.Jitter),
		voronoi.WithLogger(w.logger),
		voronoi.WithRand(rand.New(rand.NewPCG(seeds.Seed, uint64(len(points))))),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "shatter %s: diagram", label(n))
	}

	frags, err := fragment.New(
		fragment.WithEpsilon(w.cfg.FragmentEpsilon),
		fragment.WithParallelThreshold(w.cfg.ParallelThreshold),
		fragment.WithLogger(w.logger),
		fragment.WithHullOptions(hull.WithEpsilon(w.cfg.HullEpsilon)),
	).Fragment(outer, d)
	if err != nil {
		return nil, errors.Wrapf(err, "shatter %s: fragment", label(n))
	}

	w.logger.Info("shattered",
		zap.String("job", label(n)),
		zap.Int("seeds", nseeds),
		zap.Int("fragments", len(frags)))

	meshes := make([]*kernel.Mesh, 0, len(frags))
	for _, f := range frags {
		if f.ControlIndex >= nseeds {
			continue
		}
		meshes = append(meshes, f.Hull.Render(fmt.Sprintf("%s/cell-%d", label(n), f.ControlIndex)))
	}
	return meshes, nil
}

// outerHull samples a solid node through the kernel and hulls the samples.
func (w *walker) outerHull(id scene.NodeID) (*mesh.Mesh, error) {
	n := w.scene.Get(id)
	if n == nil {
		return nil, fmt.Errorf("solid %s not found", id.Short())
	}
	solid, err := handleSolid(w.kernel, n)
	if err != nil {
		return nil, err
	}
	points, err := w.kernel.Sample(solid)
	if err != nil {
		return nil, errors.Wrapf(err, "sample %s", label(n))
	}
	h, err := hull.New(hull.WithEpsilon(w.cfg.HullEpsilon), hull.WithLogger(w.logger)).Build(points)
	if err != nil {
		return nil, errors.Wrapf(err, "hull of %s", label(n))
	}
	return h, nil
}

// handleSolid creates the kernel solid for a solid node. Rotation is applied
// first, then translation.
func handleSolid(k kernel.Kernel, n *scene.Node) (kernel.Solid, error) {
	data, ok := n.Data.(scene.SolidData)
	if !ok {
		return nil, fmt.Errorf("solid node %s has unsupported data type %T", n.ID.Short(), n.Data)
	}

	var solid kernel.Solid
	switch data.Shape {
	case scene.ShapeBox:
		solid = k.Box(data.Size.X, data.Size.Y, data.Size.Z)
	case scene.ShapeCylinder:
		solid = k.Cylinder(data.Height, data.Radius, cylinderSegments)
	case scene.ShapeSphere:
		solid = k.Sphere(data.Radius)
	default:
		return nil, fmt.Errorf("solid node %s has unknown shape %v", n.ID.Short(), data.Shape)
	}

	if rot := data.Rotation; rot != (r3.Vector{}) {
		solid = k.Rotate(solid, rot.X, rot.Y, rot.Z)
	}
	if at := data.At; at != (r3.Vector{}) {
		solid = k.Translate(solid, at.X, at.Y, at.Z)
	}
	return solid, nil
}

// scatter draws count points uniformly inside the hull by rejection from its
// bounding box. The same seed always yields the same points.
func scatter(outer *mesh.Mesh, count int, seed uint64) ([]r3.Vector, error) {
	lo, hi := bounds(outer)
	size := hi.Sub(lo)

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	points := make([]r3.Vector, 0, count)
	for attempts := 0; len(points) < count; attempts++ {
		if attempts >= count*scatterAttempts {
			return nil, errors.Wrapf(kernel.ErrDegenerateInput,
				"scatter: placed %d of %d seeds", len(points), count)
		}
		p := r3.Vector{
			X: lo.X + rng.Float64()*size.X,
			Y: lo.Y + rng.Float64()*size.Y,
			Z: lo.Z + rng.Float64()*size.Z,
		}
		if outer.Contains(p, 0) {
			points = append(points, p)
		}
	}
	return points, nil
}

// padSeeds appends ghost seeds when there are too few distinct seeds to
// tetrahedralize. The ghosts sit at the corners of a tetrahedron four
// diameters out from the hull, so every bisector they add lies outside it and
// their cells never reach it.
func padSeeds(outer *mesh.Mesh, points []r3.Vector) []r3.Vector {
	if len(geom.Dedupe(points, geom.DefaultEpsilon)) >= 4 {
		return points
	}
	lo, hi := bounds(outer)
	center := lo.Add(hi).Mul(0.5)
	reach := 4 * math.Max(hi.Sub(lo).Norm(), 1)
	padded := append([]r3.Vector(nil), points...)
	for _, dir := range []r3.Vector{{X: 1, Y: 1, Z: 1}, {X: 1, Y: -1, Z: -1}, {X: -1, Y: 1, Z: -1}, {X: -1, Y: -1, Z: 1}} {
		padded = append(padded, center.Add(dir.Normalize().Mul(reach)))
	}
	return padded
}

func bounds(outer *mesh.Mesh) (lo, hi r3.Vector) {
	verts := outer.Vertices()
	lo, hi = verts[0], verts[0]
	for _, v := range verts[1:] {
		lo = r3.Vector{X: min(lo.X, v.X), Y: min(lo.Y, v.Y), Z: min(lo.Z, v.Z)}
		hi = r3.Vector{X: max(hi.X, v.X), Y: max(hi.Y, v.Y), Z: max(hi.Z, v.Z)}
	}
	return lo, hi
}

// label names a node for mesh names and errors: its name, or its short ID.
func label(n *scene.Node) string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID.Short()
}
