package tessellate_test

import (
	"math"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"

	"github.com/chazu/shard/pkg/config"
	"github.com/chazu/shard/pkg/engine"
	"github.com/chazu/shard/pkg/kernel"
	"github.com/chazu/shard/pkg/kernel/sdfx"
	"github.com/chazu/shard/pkg/scene"
	"github.com/chazu/shard/pkg/tessellate"
)

// boxSolid is an axis-aligned box, the only shape cornerKernel knows.
type boxSolid struct {
	min, max [3]float64
}

func (b *boxSolid) BoundingBox() (min, max [3]float64) { return b.min, b.max }

// cornerKernel samples every solid as the eight corners of its bounding
// box, so hull volumes are exact.
type cornerKernel struct {
	sampleErr error
}

func (k *cornerKernel) Box(x, y, z float64) kernel.Solid {
	return &boxSolid{max: [3]float64{x, y, z}}
}

func (k *cornerKernel) Cylinder(height, radius float64, segments int) kernel.Solid {
	return &boxSolid{
		min: [3]float64{-radius, -radius, -height / 2},
		max: [3]float64{radius, radius, height / 2},
	}
}

func (k *cornerKernel) Sphere(radius float64) kernel.Solid {
	return &boxSolid{
		min: [3]float64{-radius, -radius, -radius},
		max: [3]float64{radius, radius, radius},
	}
}

func (k *cornerKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	b := s.(*boxSolid)
	d := [3]float64{x, y, z}
	out := &boxSolid{}
	for i := range d {
		out.min[i] = b.min[i] + d[i]
		out.max[i] = b.max[i] + d[i]
	}
	return out
}

func (k *cornerKernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid { return s }

func (k *cornerKernel) Sample(s kernel.Solid) ([]r3.Vector, error) {
	if k.sampleErr != nil {
		return nil, k.sampleErr
	}
	b := s.(*boxSolid)
	var pts []r3.Vector
	for _, x := range []float64{b.min[0], b.max[0]} {
		for _, y := range []float64{b.min[1], b.max[1]} {
			for _, z := range []float64{b.min[2], b.max[2]} {
				pts = append(pts, r3.Vector{X: x, Y: y, Z: z})
			}
		}
	}
	return pts, nil
}

// makeSolid creates a named solid node.
func makeSolid(name string, data scene.SolidData) *scene.Node {
	return &scene.Node{ID: scene.NewNodeID("defsolid/" + name), Kind: scene.NodeSolid, Name: name, Data: data}
}

// makeSeeds creates a named seeds node.
func makeSeeds(name string, data scene.SeedsData) *scene.Node {
	return &scene.Node{ID: scene.NewNodeID("defseeds/" + name), Kind: scene.NodeSeeds, Name: name, Data: data}
}

// makeHull creates a hull job over src.
func makeHull(name string, src scene.NodeID) *scene.Node {
	return &scene.Node{
		ID: scene.NewNodeID("hull/" + name), Kind: scene.NodeHull, Name: name,
		Children: []scene.NodeID{src},
		Data:     scene.HullData{Source: src},
	}
}

// makeShatter creates a shatter job over src and seeds.
func makeShatter(name string, src, seeds scene.NodeID) *scene.Node {
	return &scene.Node{
		ID: scene.NewNodeID("shatter/" + name), Kind: scene.NodeShatter, Name: name,
		Children: []scene.NodeID{src, seeds},
		Data:     scene.ShatterData{Source: src, Seeds: seeds},
	}
}

// shatterScene builds a 4x4x4 box shattered by the given seeds.
func shatterScene(seeds scene.SeedsData) *scene.Scene {
	s := scene.New()
	block := makeSolid("block", scene.SolidData{Shape: scene.ShapeBox, Size: r3.Vector{X: 4, Y: 4, Z: 4}})
	cloud := makeSeeds("cloud", seeds)
	job := makeShatter("rock", block.ID, cloud.ID)
	s.AddNode(block)
	s.AddNode(cloud)
	s.AddNode(job)
	s.AddRoot(job.ID)
	return s
}

func vertex(m *kernel.Mesh, i uint32) r3.Vector {
	return r3.Vector{
		X: float64(m.Vertices[3*i]),
		Y: float64(m.Vertices[3*i+1]),
		Z: float64(m.Vertices[3*i+2]),
	}
}

// meshVolume is the signed volume of a closed, outward-wound mesh.
func meshVolume(m *kernel.Mesh) float64 {
	var v float64
	for i := 0; i+2 < len(m.Indices); i += 3 {
		a, b, c := vertex(m, m.Indices[i]), vertex(m, m.Indices[i+1]), vertex(m, m.Indices[i+2])
		v += a.Dot(b.Cross(c)) / 6
	}
	return v
}

func TestHullJob(t *testing.T) {
	s := scene.New()
	block := makeSolid("block", scene.SolidData{
		Shape: scene.ShapeBox,
		Size:  r3.Vector{X: 2, Y: 3, Z: 4},
		At:    r3.Vector{X: 10, Y: 20, Z: 30},
	})
	job := makeHull("outline", block.ID)
	s.AddNode(block)
	s.AddNode(job)
	s.AddRoot(job.ID)

	meshes, err := tessellate.Tessellate(s, &cornerKernel{})
	if err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if len(meshes) != 1 {
		t.Fatalf("expected 1 mesh, got %d", len(meshes))
	}

	m := meshes[0]
	if m.PartName != "outline" {
		t.Errorf("expected PartName %q, got %q", "outline", m.PartName)
	}
	if m.TriangleCount() != 12 {
		t.Errorf("expected 12 triangles, got %d", m.TriangleCount())
	}
	if got := meshVolume(m); math.Abs(got-24) > 1e-3 {
		t.Errorf("volume = %f, want 24", got)
	}

	// Centroid of the corners should sit at the box center (11, 21.5, 32).
	var c r3.Vector
	for i := 0; i < m.VertexCount(); i++ {
		c = c.Add(vertex(m, uint32(i)))
	}
	c = c.Mul(1 / float64(m.VertexCount()))
	if c.Sub(r3.Vector{X: 11, Y: 21.5, Z: 32}).Norm() > 1e-3 {
		t.Errorf("centroid = %v, want (11, 21.5, 32)", c)
	}
}

func TestShatterJobConservesVolume(t *testing.T) {
	seeds := []r3.Vector{
		{X: 1, Y: 1, Z: 1}, {X: 3, Y: 1.2, Z: 0.8}, {X: 1.1, Y: 3, Z: 1.3},
		{X: 2.9, Y: 3.1, Z: 2.7}, {X: 0.7, Y: 1.4, Z: 3.2}, {X: 2.2, Y: 2.4, Z: 3.3},
	}
	s := shatterScene(scene.SeedsData{Points: seeds})

	meshes, err := tessellate.Tessellate(s, &cornerKernel{},
		tessellate.WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if len(meshes) != len(seeds) {
		t.Fatalf("expected %d meshes, got %d", len(seeds), len(meshes))
	}

	var total float64
	for _, m := range meshes {
		if !strings.HasPrefix(m.PartName, "rock/cell-") {
			t.Errorf("unexpected mesh name %q", m.PartName)
		}
		v := meshVolume(m)
		if v <= 0 {
			t.Errorf("fragment %q has volume %f", m.PartName, v)
		}
		total += v
	}
	if math.Abs(total-64) > 1e-2 {
		t.Errorf("fragment volumes sum to %f, want 64", total)
	}
}

func TestShatterWithFewSeeds(t *testing.T) {
	tests := []struct {
		name  string
		seeds []r3.Vector
	}{
		{"one", []r3.Vector{{X: 2, Y: 2, Z: 2}}},
		{"two", []r3.Vector{{X: 1, Y: 2, Z: 2}, {X: 3, Y: 2, Z: 2}}},
		{"three", []r3.Vector{{X: 1, Y: 1, Z: 1}, {X: 3, Y: 1, Z: 2}, {X: 2, Y: 3, Z: 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := shatterScene(scene.SeedsData{Points: tt.seeds})
			meshes, err := tessellate.Tessellate(s, &cornerKernel{},
				tessellate.WithLogger(zaptest.NewLogger(t)))
			if err != nil {
				t.Fatalf("Tessellate failed: %v", err)
			}
			if len(meshes) != len(tt.seeds) {
				t.Fatalf("expected %d meshes, got %d", len(tt.seeds), len(meshes))
			}
			var total float64
			for _, m := range meshes {
				total += meshVolume(m)
			}
			if math.Abs(total-64) > 1e-2 {
				t.Errorf("fragment volumes sum to %f, want 64", total)
			}
		})
	}
}

func TestShatterScatterIsDeterministic(t *testing.T) {
	run := func() []*kernel.Mesh {
		s := shatterScene(scene.SeedsData{Count: 10, Seed: 5})
		meshes, err := tessellate.Tessellate(s, &cornerKernel{})
		if err != nil {
			t.Fatalf("Tessellate failed: %v", err)
		}
		return meshes
	}
	a, b := run(), run()

	if len(a) != 10 {
		t.Fatalf("expected 10 fragments, got %d", len(a))
	}
	if len(a) != len(b) {
		t.Fatalf("runs differ in fragment count: %d vs %d", len(a), len(b))
	}
	var total float64
	for i := range a {
		if a[i].PartName != b[i].PartName {
			t.Errorf("fragment %d named %q then %q", i, a[i].PartName, b[i].PartName)
		}
		if math.Abs(meshVolume(a[i])-meshVolume(b[i])) > 1e-9 {
			t.Errorf("fragment %q changed volume between runs", a[i].PartName)
		}
		total += meshVolume(a[i])
	}
	if math.Abs(total-64) > 1e-2 {
		t.Errorf("fragment volumes sum to %f, want 64", total)
	}
}

func TestParallelThresholdFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ParallelThreshold = 1
	s := shatterScene(scene.SeedsData{Count: 6, Seed: 2})

	par, err := tessellate.Tessellate(s, &cornerKernel{}, tessellate.WithConfig(cfg))
	if err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	seq, err := tessellate.Tessellate(s, &cornerKernel{})
	if err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if len(par) != len(seq) {
		t.Fatalf("parallel run gave %d fragments, sequential %d", len(par), len(seq))
	}
	for i := range seq {
		if math.Abs(meshVolume(par[i])-meshVolume(seq[i])) > 1e-6 {
			t.Errorf("fragment %q differs between parallel and sequential runs", seq[i].PartName)
		}
	}
}

func TestEmptyScene(t *testing.T) {
	meshes, err := tessellate.Tessellate(scene.New(), &cornerKernel{})
	if err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if len(meshes) != 0 {
		t.Fatalf("expected 0 meshes, got %d", len(meshes))
	}

	meshes, err = tessellate.Tessellate(nil, &cornerKernel{})
	if err != nil || meshes != nil {
		t.Fatalf("nil scene should give nil, nil; got %v, %v", meshes, err)
	}
}

func TestNonJobRootsProduceNothing(t *testing.T) {
	s := scene.New()
	ball := makeSolid("ball", scene.SolidData{Shape: scene.ShapeSphere, Radius: 1})
	s.AddNode(ball)
	s.AddRoot(ball.ID)

	meshes, err := tessellate.Tessellate(s, &cornerKernel{})
	if err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if len(meshes) != 0 {
		t.Fatalf("expected 0 meshes, got %d", len(meshes))
	}
}

func TestSampleErrorAbortsTheWalk(t *testing.T) {
	s := shatterScene(scene.SeedsData{Count: 3})
	k := &cornerKernel{sampleErr: errors.Wrap(kernel.ErrDegenerateInput, "empty")}

	meshes, err := tessellate.Tessellate(s, k)
	if err == nil {
		t.Fatal("expected an error")
	}
	if meshes != nil {
		t.Error("no partial result expected")
	}
	if !errors.Is(err, kernel.ErrDegenerateInput) {
		t.Errorf("expected ErrDegenerateInput, got %v", err)
	}
	if !strings.Contains(err.Error(), "rock") {
		t.Errorf("error should name the job, got %v", err)
	}
}

func TestFlatSolidIsDegenerate(t *testing.T) {
	s := scene.New()
	sheet := makeSolid("sheet", scene.SolidData{Shape: scene.ShapeBox, Size: r3.Vector{X: 1, Y: 1}})
	job := makeHull("outline", sheet.ID)
	s.AddNode(sheet)
	s.AddNode(job)
	s.AddRoot(job.ID)

	_, err := tessellate.Tessellate(s, &cornerKernel{})
	if !errors.Is(err, kernel.ErrDegenerateInput) {
		t.Errorf("expected ErrDegenerateInput, got %v", err)
	}
}

func TestSdfxSphereHull(t *testing.T) {
	s := scene.New()
	ball := makeSolid("ball", scene.SolidData{Shape: scene.ShapeSphere, Radius: 5, At: r3.Vector{X: 20}})
	job := makeHull("globe", ball.ID)
	s.AddNode(ball)
	s.AddNode(job)
	s.AddRoot(job.ID)

	meshes, err := tessellate.Tessellate(s, sdfx.New(sdfx.WithCells(20)))
	if err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if len(meshes) != 1 || meshes[0].IsEmpty() {
		t.Fatalf("expected one non-empty mesh, got %d", len(meshes))
	}
	want := 4.0 / 3.0 * math.Pi * 125
	if got := meshVolume(meshes[0]); math.Abs(got-want)/want > 0.15 {
		t.Errorf("hull volume = %f, expected within 15%% of %f", got, want)
	}
}

func TestScriptToMeshes(t *testing.T) {
	res, err := engine.NewEngine().Check(`
(defsolid "block" (box :size (vec3 4 4 4)))
(shatter "rock" (solid "block") :seeds (scatter :count 5 :seed 11))
(hull "outline" (solid "block"))
`)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("eval errors: %v", res.Errors)
	}

	meshes, err := tessellate.Tessellate(res.Scene, &cornerKernel{})
	if err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if len(meshes) != 6 {
		t.Fatalf("expected 5 fragments and 1 hull, got %d meshes", len(meshes))
	}
	if meshes[5].PartName != "outline" {
		t.Errorf("last mesh should be the hull, got %q", meshes[5].PartName)
	}
}
