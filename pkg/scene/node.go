package scene

import (
	"github.com/google/uuid"
)

// namespace scopes name-based node IDs so that the same path always maps to
// the same ID across evaluations.
var namespace = uuid.MustParse("5b0f4c38-8a3e-4f7e-9c54-3d2a6f1e9b10")

// NodeID identifies a node in the scene graph.
type NodeID uuid.UUID

// ZeroID is the unset NodeID.
var ZeroID NodeID

// NewNodeID derives a deterministic ID from a node path such as
// "defsolid/block" or "shatter/rock".
func NewNodeID(path string) NodeID {
	return NodeID(uuid.NewSHA1(namespace, []byte(path)))
}

// IsZero reports whether id is unset.
func (id NodeID) IsZero() bool { return id == ZeroID }

func (id NodeID) String() string { return uuid.UUID(id).String() }

// Short returns the first eight hex digits, enough for log and error output.
func (id NodeID) Short() string { return id.String()[:8] }

// MarshalText lets NodeID serve as a JSON value and map key.
func (id NodeID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalText parses the canonical UUID form.
func (id *NodeID) UnmarshalText(data []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(data); err != nil {
		return err
	}
	*id = NodeID(u)
	return nil
}

// NodeKind enumerates the types of nodes in the scene graph.
type NodeKind int

const (
	NodeSolid   NodeKind = iota // primitive solid with placement
	NodeSeeds                   // explicit or scattered control points
	NodeHull                    // convex hull job over a solid
	NodeShatter                 // Voronoi shatter job over a solid
)

func (k NodeKind) String() string {
	switch k {
	case NodeSolid:
		return "solid"
	case NodeSeeds:
		return "seeds"
	case NodeHull:
		return "hull"
	case NodeShatter:
		return "shatter"
	default:
		return "unknown"
	}
}

// IsJob reports whether nodes of this kind produce meshes.
func (k NodeKind) IsJob() bool {
	return k == NodeHull || k == NodeShatter
}

// Node is the fundamental element of the scene graph.
type Node struct {
	ID       NodeID   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Name     string   `json:"name,omitempty"`
	Children []NodeID `json:"children,omitempty"`
	Data     NodeData `json:"data"`
}

// NodeData is the interface for kind-specific node payloads.
type NodeData interface {
	nodeData() // marker method restricting implementations to this package
}
