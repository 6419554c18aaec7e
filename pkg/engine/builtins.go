package engine

import (
	"fmt"
	"math"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/golang/geo/r3"

	"github.com/chazu/shard/pkg/scene"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms shard Lisp source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: cell-count -> cell_count
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps an r3.Vector.
type sexpVec3 struct {
	vec r3.Vector
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpSolid wraps a scene.SolidData so it can be returned from `box`,
// `cylinder` and `sphere` and consumed by `defsolid` or a job.
type sexpSolid struct {
	data scene.SolidData
}

func (s *sexpSolid) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s)", s.data.Shape)
}
func (s *sexpSolid) Type() *zygo.RegisteredType { return nil }

// sexpSeeds wraps a scene.SeedsData produced by `points` or `scatter`.
type sexpSeeds struct {
	data scene.SeedsData
}

func (s *sexpSeeds) SexpString(ps *zygo.PrintState) string {
	if s.data.Scattered() {
		return fmt.Sprintf("(scatter :count %d :seed %d)", s.data.Count, s.data.Seed)
	}
	return fmt.Sprintf("(points <%d>)", len(s.data.Points))
}
func (s *sexpSeeds) Type() *zygo.RegisteredType { return nil }

// sexpNodeRef wraps a scene.NodeID so it can be passed between builtins.
type sexpNodeRef struct {
	id   scene.NodeID
	name string // human-readable name for error messages
}

func (n *sexpNodeRef) SexpString(ps *zygo.PrintState) string {
	if n.name != "" {
		return fmt.Sprintf("(noderef %q)", n.name)
	}
	return fmt.Sprintf("(noderef %s)", n.id.Short())
}
func (n *sexpNodeRef) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts an integer, accepting floats with no fractional part.
func toInt(s zygo.Sexp) (int, error) {
	f, err := toFloat64(s)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer, got %g", f)
	}
	return int(f), nil
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a vector from a sexpVec3.
func toVec3(s zygo.Sexp) (r3.Vector, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return r3.Vector{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// kwFloat reads an optional numeric keyword into dst.
func kwFloat(pa kwArgs, fn, key string, dst *float64) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", fn, key, err)
	}
	*dst = f
	return nil
}

// kwVec3 reads an optional vector keyword into dst.
func kwVec3(pa kwArgs, fn, key string, dst *r3.Vector) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	vec, err := toVec3(v)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", fn, key, err)
	}
	*dst = vec
	return nil
}

// placement reads the :at and :rotate keywords shared by all solids.
func placement(pa kwArgs, fn string, sd *scene.SolidData) error {
	if err := kwVec3(pa, fn, "at", &sd.At); err != nil {
		return err
	}
	return kwVec3(pa, fn, "rotate", &sd.Rotation)
}

// ---------------------------------------------------------------------------
// Scene building
// ---------------------------------------------------------------------------

// builder populates a scene during one evaluation. Anonymous nodes are
// numbered per evaluation so IDs stay deterministic.
type builder struct {
	scene *scene.Scene
	anon  int
}

func (b *builder) anonPath(prefix string) string {
	b.anon++
	return fmt.Sprintf("%s/_anon_%d", prefix, b.anon)
}

// define adds a named node, rejecting names that are already taken.
func (b *builder) define(fn, name string, kind scene.NodeKind, data scene.NodeData, children ...scene.NodeID) (*sexpNodeRef, error) {
	if name == "" {
		return nil, fmt.Errorf("%s: name must not be empty", fn)
	}
	if b.scene.Lookup(name) != nil {
		return nil, fmt.Errorf("%s: name %q is already defined", fn, name)
	}
	id := scene.NewNodeID(fn + "/" + name)
	b.scene.AddNode(&scene.Node{ID: id, Kind: kind, Name: name, Children: children, Data: data})
	return &sexpNodeRef{id: id, name: name}, nil
}

// lookup resolves a name to a node of the given kind.
func (b *builder) lookup(fn, name string, kind scene.NodeKind) (*sexpNodeRef, error) {
	n := b.scene.Lookup(name)
	if n == nil {
		return nil, fmt.Errorf("%s: no %s named %q", fn, kind, name)
	}
	if n.Kind != kind {
		return nil, fmt.Errorf("%s: %q is a %s, not a %s", fn, name, n.Kind, kind)
	}
	return &sexpNodeRef{id: n.ID, name: name}, nil
}

// input resolves a job input: either a reference to a defined node of the
// given kind, or an inline value that becomes an anonymous node.
func (b *builder) input(fn string, s zygo.Sexp, kind scene.NodeKind) (scene.NodeID, error) {
	switch v := s.(type) {
	case *sexpNodeRef:
		n := b.scene.Get(v.id)
		if n == nil || n.Kind != kind {
			return scene.ZeroID, fmt.Errorf("%s: expected a %s reference, got %s", fn, kind, v.SexpString(nil))
		}
		return v.id, nil
	case *sexpSolid:
		if kind == scene.NodeSolid {
			return b.anonymous(kind, v.data), nil
		}
	case *sexpSeeds:
		if kind == scene.NodeSeeds {
			return b.anonymous(kind, v.data), nil
		}
	}
	return scene.ZeroID, fmt.Errorf("%s: expected %s, got %T (%s)", fn, kind, s, s.SexpString(nil))
}

func (b *builder) anonymous(kind scene.NodeKind, data scene.NodeData) scene.NodeID {
	id := scene.NewNodeID(b.anonPath(kind.String()))
	b.scene.AddNode(&scene.Node{ID: id, Kind: kind, Data: data})
	return id
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs all shard DSL builtins into a zygomys environment.
// The builtins operate on the provided Scene, populating it during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, s *scene.Scene) {
	b := &builder{scene: s}

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var c [3]float64
		for i, axis := range []string{"x", "y", "z"} {
			f, err := toFloat64(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %s: %w", axis, err)
			}
			c[i] = f
		}
		return &sexpVec3{vec: r3.Vector{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (box :size (vec3 4 2 2) :at (vec3 0 0 0) :rotate (vec3 0 0 45))
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		sd := scene.SolidData{Shape: scene.ShapeBox}
		if _, ok := pa.kw["size"]; !ok {
			return zygo.SexpNull, fmt.Errorf("box requires :size")
		}
		if err := kwVec3(pa, "box", "size", &sd.Size); err != nil {
			return zygo.SexpNull, err
		}
		if err := placement(pa, "box", &sd); err != nil {
			return zygo.SexpNull, err
		}
		return &sexpSolid{data: sd}, nil
	})

	// -----------------------------------------------------------------------
	// (cylinder :height 10 :radius 2 :at (vec3 0 0 5))
	// -----------------------------------------------------------------------
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		sd := scene.SolidData{Shape: scene.ShapeCylinder}
		if err := kwFloat(pa, "cylinder", "height", &sd.Height); err != nil {
			return zygo.SexpNull, err
		}
		if err := kwFloat(pa, "cylinder", "radius", &sd.Radius); err != nil {
			return zygo.SexpNull, err
		}
		if err := placement(pa, "cylinder", &sd); err != nil {
			return zygo.SexpNull, err
		}
		return &sexpSolid{data: sd}, nil
	})

	// -----------------------------------------------------------------------
	// (sphere :radius 5 :at (vec3 0 0 0))
	// -----------------------------------------------------------------------
	env.AddFunction("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		sd := scene.SolidData{Shape: scene.ShapeSphere}
		if err := kwFloat(pa, "sphere", "radius", &sd.Radius); err != nil {
			return zygo.SexpNull, err
		}
		if err := placement(pa, "sphere", &sd); err != nil {
			return zygo.SexpNull, err
		}
		return &sexpSolid{data: sd}, nil
	})

	// -----------------------------------------------------------------------
	// (defsolid "name" (box ...))
	// -----------------------------------------------------------------------
	env.AddFunction("defsolid", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 2 {
			return zygo.SexpNull, fmt.Errorf("defsolid requires a name and a solid expression")
		}
		solidName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defsolid: name: %w", err)
		}
		body, ok := args[1].(*sexpSolid)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("defsolid: expected solid expression, got %T", args[1])
		}
		ref, err := b.define("defsolid", solidName, scene.NodeSolid, body.data)
		if err != nil {
			return zygo.SexpNull, err
		}
		return ref, nil
	})

	// -----------------------------------------------------------------------
	// (solid "name")
	// -----------------------------------------------------------------------
	env.AddFunction("solid", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 {
			return zygo.SexpNull, fmt.Errorf("solid requires a name argument")
		}
		solidName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("solid: name: %w", err)
		}
		ref, err := b.lookup("solid", solidName, scene.NodeSolid)
		if err != nil {
			return zygo.SexpNull, err
		}
		return ref, nil
	})

	// -----------------------------------------------------------------------
	// (points (vec3 1 1 1) (vec3 2 2 2) ...)
	// -----------------------------------------------------------------------
	env.AddFunction("points", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		sd := scene.SeedsData{}
		for i, a := range args {
			items := []zygo.Sexp{a}
			if _, isVec := a.(*sexpVec3); !isVec {
				list, err := sexpListToSlice(a)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("points: argument %d: expected vec3 or list of vec3", i)
				}
				items = list
			}
			for _, item := range items {
				v, err := toVec3(item)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("points: argument %d: %w", i, err)
				}
				sd.Points = append(sd.Points, v)
			}
		}
		if len(sd.Points) == 0 {
			return zygo.SexpNull, fmt.Errorf("points requires at least one vec3")
		}
		return &sexpSeeds{data: sd}, nil
	})

	// -----------------------------------------------------------------------
	// (scatter :count 12 :seed 7)
	// -----------------------------------------------------------------------
	env.AddFunction("scatter", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		v, ok := pa.kw["count"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("scatter requires :count")
		}
		count, err := toInt(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("scatter: count: %w", err)
		}
		if count < 1 {
			return zygo.SexpNull, fmt.Errorf("scatter: count must be positive, got %d", count)
		}
		sd := scene.SeedsData{Count: count}
		if v, ok := pa.kw["seed"]; ok {
			seed, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("scatter: seed: %w", err)
			}
			if seed < 0 {
				return zygo.SexpNull, fmt.Errorf("scatter: seed must not be negative, got %d", seed)
			}
			sd.Seed = uint64(seed)
		}
		return &sexpSeeds{data: sd}, nil
	})

	// -----------------------------------------------------------------------
	// (defseeds "name" (scatter ...))
	// -----------------------------------------------------------------------
	env.AddFunction("defseeds", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 2 {
			return zygo.SexpNull, fmt.Errorf("defseeds requires a name and a seeds expression")
		}
		seedsName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defseeds: name: %w", err)
		}
		body, ok := args[1].(*sexpSeeds)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("defseeds: expected points or scatter expression, got %T", args[1])
		}
		ref, err := b.define("defseeds", seedsName, scene.NodeSeeds, body.data)
		if err != nil {
			return zygo.SexpNull, err
		}
		return ref, nil
	})

	// -----------------------------------------------------------------------
	// (seeds "name")
	// -----------------------------------------------------------------------
	env.AddFunction("seeds", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 {
			return zygo.SexpNull, fmt.Errorf("seeds requires a name argument")
		}
		seedsName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("seeds: name: %w", err)
		}
		ref, err := b.lookup("seeds", seedsName, scene.NodeSeeds)
		if err != nil {
			return zygo.SexpNull, err
		}
		return ref, nil
	})

	// -----------------------------------------------------------------------
	// (hull "name" (solid "block"))
	// -----------------------------------------------------------------------
	env.AddFunction("hull", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 2 {
			return zygo.SexpNull, fmt.Errorf("hull requires a name and a solid")
		}
		jobName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("hull: name: %w", err)
		}
		src, err := b.input("hull", pa.positional[1], scene.NodeSolid)
		if err != nil {
			return zygo.SexpNull, err
		}
		ref, err := b.define("hull", jobName, scene.NodeHull, scene.HullData{Source: src}, src)
		if err != nil {
			return zygo.SexpNull, err
		}
		s.AddRoot(ref.id)
		return ref, nil
	})

	// -----------------------------------------------------------------------
	// (shatter "name" (solid "block") :seeds (scatter :count 8))
	// -----------------------------------------------------------------------
	env.AddFunction("shatter", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 2 {
			return zygo.SexpNull, fmt.Errorf("shatter requires a name and a solid")
		}
		jobName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("shatter: name: %w", err)
		}
		seedsArg, ok := pa.kw["seeds"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("shatter requires :seeds")
		}
		src, err := b.input("shatter", pa.positional[1], scene.NodeSolid)
		if err != nil {
			return zygo.SexpNull, err
		}
		seeds, err := b.input("shatter", seedsArg, scene.NodeSeeds)
		if err != nil {
			return zygo.SexpNull, err
		}
		ref, err := b.define("shatter", jobName, scene.NodeShatter,
			scene.ShatterData{Source: src, Seeds: seeds}, src, seeds)
		if err != nil {
			return zygo.SexpNull, err
		}
		s.AddRoot(ref.id)
		return ref, nil
	})
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}
