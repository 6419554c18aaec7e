package kernel

import "github.com/pkg/errors"

// Error kinds shared by the hull, Voronoi and fragment packages. Callers
// match them with errors.Is; producers wrap them with context.
var (
	// ErrDegenerateInput marks a point set that cannot define a hull or a
	// tetrahedron (too few points, colinear, coplanar, zero extent). It is an
	// expected outcome for adversarial input, not a bug.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrInvariantViolation marks a broken structural invariant. Nothing
	// computed before it should be used; the input needs jitter or rejection.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrTransientDegeneracy marks a corrupt or empty tetrahedralization of a
	// technically valid point set. Retrying with jittered points recovers it.
	ErrTransientDegeneracy = errors.New("transient degeneracy")
)

// IsRetriable reports whether err is worth a jittered retry.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTransientDegeneracy) || errors.Is(err, ErrInvariantViolation)
}
