package scene

import (
	"fmt"

	"github.com/chazu/shard/pkg/geom"
)

// ---------------------------------------------------------------------------
// Tier 2: geometric validation (errors + warnings)
// ---------------------------------------------------------------------------

// ValidateGeometry checks solid dimensions and seed sets. It returns
// blocking errors and advisory warnings separately.
func ValidateGeometry(s *Scene) ([]ValidationError, []ValidationWarning) {
	var errs []ValidationError
	var warnings []ValidationWarning

	errs = append(errs, validateDimensions(s)...)
	seedErrs, seedWarnings := validateSeeds(s)
	errs = append(errs, seedErrs...)
	warnings = append(warnings, seedWarnings...)

	return errs, warnings
}

// validateDimensions checks that every solid has positive extents.
func validateDimensions(s *Scene) []ValidationError {
	var errs []ValidationError
	positive := func(n *Node, what string, v float64) {
		if v <= 0 {
			errs = append(errs, ValidationError{
				NodeID:   n.ID,
				Message:  fmt.Sprintf("%s is %.4f, must be positive", what, v),
				Severity: SeverityError,
			})
		}
	}

	for _, node := range s.Nodes {
		sd, ok := node.Data.(SolidData)
		if !ok {
			continue
		}
		switch sd.Shape {
		case ShapeBox:
			positive(node, "box size X", sd.Size.X)
			positive(node, "box size Y", sd.Size.Y)
			positive(node, "box size Z", sd.Size.Z)
		case ShapeCylinder:
			positive(node, "cylinder height", sd.Height)
			positive(node, "cylinder radius", sd.Radius)
		case ShapeSphere:
			positive(node, "sphere radius", sd.Radius)
		default:
			errs = append(errs, ValidationError{
				NodeID:   node.ID,
				Message:  fmt.Sprintf("unknown shape %d", int(sd.Shape)),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateSeeds checks seed counts and flags coincident explicit points,
// which collapse into a single cell.
func validateSeeds(s *Scene) ([]ValidationError, []ValidationWarning) {
	var errs []ValidationError
	var warnings []ValidationWarning

	for _, node := range s.Nodes {
		sd, ok := node.Data.(SeedsData)
		if !ok {
			continue
		}
		n := sd.Count
		if !sd.Scattered() {
			n = len(sd.Points)
		}
		switch {
		case sd.Count < 0:
			errs = append(errs, ValidationError{
				NodeID:   node.ID,
				Message:  fmt.Sprintf("scatter count is %d, must not be negative", sd.Count),
				Severity: SeverityError,
			})
			continue
		case n == 0:
			errs = append(errs, ValidationError{
				NodeID:   node.ID,
				Message:  "seed set is empty",
				Severity: SeverityError,
			})
			continue
		case n == 1:
			warnings = append(warnings, ValidationWarning{
				NodeID:  node.ID,
				Message: "a single seed yields a single fragment",
			})
		}

		if !sd.Scattered() {
			if unique := geom.Dedupe(sd.Points, geom.DefaultEpsilon); len(unique) < len(sd.Points) {
				warnings = append(warnings, ValidationWarning{
					NodeID:  node.ID,
					Message: fmt.Sprintf("%d duplicate seed points will be merged", len(sd.Points)-len(unique)),
				})
			}
		}
	}
	return errs, warnings
}
