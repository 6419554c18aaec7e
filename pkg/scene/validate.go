package scene

import "fmt"

// ValidationSeverity indicates whether a validation finding blocks evaluation
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks evaluation
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	NodeID   NodeID             // which node has the problem (zero if scene-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.NodeID.IsZero() {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] node %s: %s", e.Severity, e.NodeID.Short(), e.Message)
}

// ValidationWarning describes a non-blocking advisory finding.
type ValidationWarning struct {
	NodeID  NodeID
	Message string
}

// ValidationResult bundles errors (blocking) and warnings (advisory)
// from both validation tiers.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// OK reports whether no blocking errors were found.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Validate runs the structural checks on the scene and returns every
// finding. An empty slice means the scene is well formed. Validate never
// mutates the scene.
func Validate(s *Scene) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateDAG(s)...)
	errs = append(errs, validateReferences(s)...)
	errs = append(errs, validateKinds(s)...)
	errs = append(errs, validateNames(s)...)
	errs = append(errs, validateRoots(s)...)
	return errs
}

// ValidateAll runs the structural and geometric tiers and separates the
// findings into errors and warnings.
func ValidateAll(s *Scene) ValidationResult {
	var result ValidationResult
	for _, e := range Validate(s) {
		if e.Severity == SeverityWarning {
			result.Warnings = append(result.Warnings, ValidationWarning{NodeID: e.NodeID, Message: e.Message})
		} else {
			result.Errors = append(result.Errors, e)
		}
	}

	errs, warnings := ValidateGeometry(s)
	result.Errors = append(result.Errors, errs...)
	result.Warnings = append(result.Warnings, warnings...)
	return result
}

// validateDAG checks for cycles using DFS with 3-color marking.
func validateDAG(s *Scene) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	color := make(map[NodeID]int)
	var errs []ValidationError

	var visit func(id NodeID) bool
	visit = func(id NodeID) bool {
		switch color[id] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  fmt.Sprintf("cycle detected: node %s is part of a cycle", id.Short()),
				Severity: SeverityError,
			})
			return true
		}

		color[id] = gray
		node, ok := s.Nodes[id]
		if !ok {
			// Dangling reference; handled by validateReferences.
			color[id] = black
			return false
		}
		for _, childID := range node.Children {
			if visit(childID) {
				return true
			}
		}
		color[id] = black
		return false
	}

	for id := range s.Nodes {
		if color[id] == white && visit(id) {
			break
		}
	}
	return errs
}

// references returns every NodeID a node points at, children first.
func references(n *Node) []NodeID {
	refs := append([]NodeID(nil), n.Children...)
	switch d := n.Data.(type) {
	case HullData:
		refs = append(refs, d.Source)
	case ShatterData:
		refs = append(refs, d.Source, d.Seeds)
	}
	return refs
}

// validateReferences checks that every referenced NodeID exists.
func validateReferences(s *Scene) []ValidationError {
	var errs []ValidationError
	for _, node := range s.Nodes {
		for _, ref := range references(node) {
			if ref.IsZero() {
				continue
			}
			if _, ok := s.Nodes[ref]; !ok {
				errs = append(errs, ValidationError{
					NodeID:   node.ID,
					Message:  fmt.Sprintf("reference %s does not exist", ref.Short()),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateKinds checks that each payload matches its node kind and that
// job inputs point at nodes of the right kind.
func validateKinds(s *Scene) []ValidationError {
	var errs []ValidationError
	fail := func(n *Node, format string, args ...any) {
		errs = append(errs, ValidationError{
			NodeID:   n.ID,
			Message:  fmt.Sprintf(format, args...),
			Severity: SeverityError,
		})
	}
	expect := func(n *Node, role string, ref NodeID, kind NodeKind) {
		if ref.IsZero() {
			fail(n, "%s %s is missing its %s", n.Kind, n.Name, role)
			return
		}
		if target := s.Nodes[ref]; target != nil && target.Kind != kind {
			fail(n, "%s must be a %s node, got %s", role, kind, target.Kind)
		}
	}

	for _, node := range s.Nodes {
		switch d := node.Data.(type) {
		case SolidData:
			if node.Kind != NodeSolid {
				fail(node, "solid data on a %s node", node.Kind)
			}
		case SeedsData:
			if node.Kind != NodeSeeds {
				fail(node, "seeds data on a %s node", node.Kind)
			}
		case HullData:
			if node.Kind != NodeHull {
				fail(node, "hull data on a %s node", node.Kind)
			}
			expect(node, "source", d.Source, NodeSolid)
		case ShatterData:
			if node.Kind != NodeShatter {
				fail(node, "shatter data on a %s node", node.Kind)
			}
			expect(node, "source", d.Source, NodeSolid)
			expect(node, "seeds", d.Seeds, NodeSeeds)
		case nil:
			fail(node, "node has no data")
		}
	}
	return errs
}

// validateNames checks that the name index agrees with the nodes.
func validateNames(s *Scene) []ValidationError {
	var errs []ValidationError
	owners := make(map[string][]NodeID)
	for _, node := range s.Nodes {
		if node.Name != "" {
			owners[node.Name] = append(owners[node.Name], node.ID)
		}
	}
	for name, ids := range owners {
		if len(ids) > 1 {
			errs = append(errs, ValidationError{
				NodeID:   s.NameIndex[name],
				Message:  fmt.Sprintf("name %q is used by %d nodes", name, len(ids)),
				Severity: SeverityError,
			})
		}
	}
	for name, id := range s.NameIndex {
		n, ok := s.Nodes[id]
		if !ok || n.Name != name {
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  fmt.Sprintf("name index entry %q points at the wrong node", name),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateRoots checks that roots exist and are jobs. A scene without jobs
// is valid but produces nothing, which is worth a warning.
func validateRoots(s *Scene) []ValidationError {
	var errs []ValidationError
	seen := make(map[NodeID]bool)
	jobs := 0
	for _, id := range s.Roots {
		n, ok := s.Nodes[id]
		switch {
		case !ok:
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  "root does not exist",
				Severity: SeverityError,
			})
		case seen[id]:
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  "root listed twice",
				Severity: SeverityError,
			})
		case !n.Kind.IsJob():
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  fmt.Sprintf("root is a %s node and produces no mesh", n.Kind),
				Severity: SeverityWarning,
			})
		default:
			jobs++
		}
		seen[id] = true
	}
	if len(s.Nodes) > 0 && jobs == 0 {
		errs = append(errs, ValidationError{
			Message:  "scene has no hull or shatter jobs",
			Severity: SeverityWarning,
		})
	}
	return errs
}
