package engine

import (
	"strings"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/chazu/shard/pkg/scene"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(sphere :radius 5)`,
			expect: `(sphere "__kw_radius" 5)`,
		},
		{
			name:   "multiple keywords",
			input:  `(scatter :count 12 :seed 3)`,
			expect: `(scatter "__kw_count" 12 "__kw_seed" 3)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(def block-size :cell-count)`,
			expect: `(def block_size "__kw_cell-count")`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:cell-size`,
			expect: `"__kw_cell-size"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func evalOK(t *testing.T, source string) *scene.Scene {
	t.Helper()
	sc, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if sc == nil {
		t.Fatal("expected non-nil scene")
	}
	return sc
}

func evalFails(t *testing.T, source, substr string) {
	t.Helper()
	sc, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if sc != nil {
		t.Fatal("expected nil scene on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected an eval error")
	}
	if !strings.Contains(evalErrs[0].Message, substr) {
		t.Errorf("error %q does not mention %q", evalErrs[0].Message, substr)
	}
}

// ---------------------------------------------------------------------------
// Solids
// ---------------------------------------------------------------------------

func TestDefSolidBox(t *testing.T) {
	sc := evalOK(t, `
(defsolid "block"
  (box :size (vec3 4 2 1) :at (vec3 10 0 0) :rotate (vec3 0 0 90)))
`)
	if sc.NodeCount() != 1 {
		t.Fatalf("expected 1 node, got %d", sc.NodeCount())
	}
	block := sc.Lookup("block")
	if block == nil {
		t.Fatal("expected node named 'block'")
	}
	if block.Kind != scene.NodeSolid {
		t.Errorf("expected NodeSolid, got %s", block.Kind)
	}
	sd, ok := block.Data.(scene.SolidData)
	if !ok {
		t.Fatalf("expected SolidData, got %T", block.Data)
	}
	if sd.Shape != scene.ShapeBox {
		t.Errorf("shape = %s, want box", sd.Shape)
	}
	if sd.Size != (r3.Vector{X: 4, Y: 2, Z: 1}) {
		t.Errorf("size = %v", sd.Size)
	}
	if sd.At != (r3.Vector{X: 10}) {
		t.Errorf("at = %v", sd.At)
	}
	if sd.Rotation != (r3.Vector{Z: 90}) {
		t.Errorf("rotation = %v", sd.Rotation)
	}
	if len(sc.Roots) != 0 {
		t.Errorf("a solid alone should not be a root, got %d roots", len(sc.Roots))
	}
}

func TestCylinderAndSphere(t *testing.T) {
	sc := evalOK(t, `
(def r 2.5)
(defsolid "rod" (cylinder :height 10 :radius r))
(defsolid "ball" (sphere :radius 3 :at (vec3 1 2 3)))
`)
	rod := sc.MustLookup("rod").Data.(scene.SolidData)
	if rod.Shape != scene.ShapeCylinder || rod.Height != 10 || rod.Radius != 2.5 {
		t.Errorf("rod = %+v", rod)
	}
	ball := sc.MustLookup("ball").Data.(scene.SolidData)
	if ball.Shape != scene.ShapeSphere || ball.Radius != 3 || ball.At != (r3.Vector{X: 1, Y: 2, Z: 3}) {
		t.Errorf("ball = %+v", ball)
	}
}

func TestSolidLookup(t *testing.T) {
	sc := evalOK(t, `
(defsolid "ball" (sphere :radius 1))
(hull "outline" (solid "ball"))
`)
	job := sc.MustLookup("outline")
	hd := job.Data.(scene.HullData)
	if hd.Source != sc.MustLookup("ball").ID {
		t.Error("hull source should reference 'ball'")
	}
}

// ---------------------------------------------------------------------------
// Seeds
// ---------------------------------------------------------------------------

func TestPointsAndScatter(t *testing.T) {
	sc := evalOK(t, `
(defseeds "pair" (points (vec3 0 0 0) (vec3 1 0 0)))
(defseeds "listed" (points (list (vec3 0 0 0) (vec3 0 1 0) (vec3 0 0 1))))
(defseeds "cloud" (scatter :count 24 :seed 9))
`)
	pair := sc.MustLookup("pair").Data.(scene.SeedsData)
	if len(pair.Points) != 2 || pair.Points[1] != (r3.Vector{X: 1}) {
		t.Errorf("pair = %+v", pair)
	}
	listed := sc.MustLookup("listed").Data.(scene.SeedsData)
	if len(listed.Points) != 3 {
		t.Errorf("listed has %d points, want 3", len(listed.Points))
	}
	cloud := sc.MustLookup("cloud").Data.(scene.SeedsData)
	if !cloud.Scattered() || cloud.Count != 24 || cloud.Seed != 9 {
		t.Errorf("cloud = %+v", cloud)
	}
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

func TestShatterWithNamedInputs(t *testing.T) {
	sc := evalOK(t, `
(defsolid "block" (box :size (vec3 4 4 4)))
(defseeds "cloud" (scatter :count 8 :seed 1))
(shatter "rock" (solid "block") :seeds (seeds "cloud"))
`)
	if sc.NodeCount() != 3 {
		t.Fatalf("expected 3 nodes, got %d", sc.NodeCount())
	}
	if len(sc.Roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(sc.Roots))
	}
	job := sc.Get(sc.Roots[0])
	if job.Kind != scene.NodeShatter || job.Name != "rock" {
		t.Fatalf("root = %s %q", job.Kind, job.Name)
	}
	sd := job.Data.(scene.ShatterData)
	if sd.Source != sc.MustLookup("block").ID || sd.Seeds != sc.MustLookup("cloud").ID {
		t.Error("shatter inputs reference the wrong nodes")
	}
	if len(job.Children) != 2 {
		t.Errorf("expected 2 children, got %d", len(job.Children))
	}
	if errs := scene.Validate(sc); len(errs) != 0 {
		t.Errorf("scene should validate, got %v", errs)
	}
}

func TestShatterWithInlineInputs(t *testing.T) {
	sc := evalOK(t, `
(shatter "rock" (sphere :radius 5) :seeds (points (vec3 0 0 0) (vec3 1 1 1)))
(hull "outline" (box :size (vec3 1 1 1)))
`)
	// Two jobs plus three anonymous inputs.
	if sc.NodeCount() != 5 {
		t.Fatalf("expected 5 nodes, got %d", sc.NodeCount())
	}
	if len(sc.Jobs()) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(sc.Jobs()))
	}
	rock := sc.MustLookup("rock").Data.(scene.ShatterData)
	if sc.Get(rock.Source).Kind != scene.NodeSolid {
		t.Error("inline source should become a solid node")
	}
	if sc.Get(rock.Seeds).Kind != scene.NodeSeeds {
		t.Error("inline seeds should become a seeds node")
	}
	if errs := scene.Validate(sc); len(errs) != 0 {
		t.Errorf("scene should validate, got %v", errs)
	}
}

func TestNodeIDsAreStableAcrossEvaluations(t *testing.T) {
	source := `(shatter "rock" (sphere :radius 5) :seeds (scatter :count 4))`
	a := evalOK(t, source)
	b := evalOK(t, source)

	if len(a.Nodes) != len(b.Nodes) {
		t.Fatalf("node counts differ: %d vs %d", len(a.Nodes), len(b.Nodes))
	}
	for id := range a.Nodes {
		if b.Get(id) == nil {
			t.Errorf("node %s missing from second evaluation", id.Short())
		}
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		substr string
	}{
		{"vec3 arity", `(vec3 1 2)`, "exactly 3"},
		{"vec3 type", `(vec3 1 "a" 3)`, "vec3: y"},
		{"box without size", `(box :at (vec3 0 0 0))`, "requires :size"},
		{"box size type", `(box :size 4)`, "expected vec3"},
		{"unknown solid", `(solid "nope")`, `no solid named "nope"`},
		{"solid is seeds", `(defseeds "s" (scatter :count 2)) (solid "s")`, "is a seeds, not a solid"},
		{"duplicate name", `(defsolid "a" (sphere :radius 1)) (defsolid "a" (sphere :radius 2))`, "already defined"},
		{"defsolid body", `(defsolid "a" (vec3 1 2 3))`, "expected solid expression"},
		{"scatter count", `(scatter :count 0)`, "must be positive"},
		{"scatter fraction", `(scatter :count 2.5)`, "expected integer"},
		{"scatter no count", `(scatter :seed 1)`, "requires :count"},
		{"empty points", `(points)`, "at least one"},
		{"shatter no seeds", `(shatter "x" (sphere :radius 1))`, "requires :seeds"},
		{"shatter seeds kind", `(shatter "x" (sphere :radius 1) :seeds (sphere :radius 2))`, "expected seeds"},
		{"hull source kind", `(defseeds "s" (scatter :count 2)) (hull "h" (seeds "s"))`, "expected a solid reference"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evalFails(t, tt.source, tt.substr)
		})
	}
}

// ---------------------------------------------------------------------------
// Checked evaluation
// ---------------------------------------------------------------------------

func TestCheckReportsValidationFindings(t *testing.T) {
	res, err := NewEngine().Check(`(shatter "rock" (sphere :radius 0) :seeds (scatter :count 1))`)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if res.Scene != nil {
		t.Error("scene should be withheld when validation fails")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0].Message, "sphere radius") {
		t.Errorf("errors = %v", res.Errors)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0].Message, "single seed") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestCheckPassesValidScene(t *testing.T) {
	res, err := NewEngine().Check(`(hull "h" (sphere :radius 2))`)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if res.Scene == nil || len(res.Scene.Jobs()) != 1 {
		t.Error("expected a scene with one job")
	}
}

func TestCheckSurfacesEvalErrors(t *testing.T) {
	res, err := NewEngine().Check(`(hull "h"`)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if res.Scene != nil || len(res.Errors) == 0 {
		t.Errorf("expected eval errors and no scene, got %+v", res)
	}
}
