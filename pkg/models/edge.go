package models

import "time"

// EdgeKind is the closed set of spec graph relationship types.
type EdgeKind string

// Edge kinds.
const (
	EdgeKindDependsOn     EdgeKind = "depends_on"
	EdgeKindImplements    EdgeKind = "implements"
	EdgeKindRefines       EdgeKind = "refines"
	EdgeKindTestedBy      EdgeKind = "tested_by"
	EdgeKindOwnedBy       EdgeKind = "owned_by"
	EdgeKindProduces      EdgeKind = "produces"
	EdgeKindConsumes      EdgeKind = "consumes"
	EdgeKindMonitors      EdgeKind = "monitors"
	EdgeKindConflictsWith EdgeKind = "conflicts_with"
)

// Valid reports whether k is a known edge kind.
func (k EdgeKind) Valid() bool {
	switch k {
	case EdgeKindDependsOn, EdgeKindImplements, EdgeKindRefines, EdgeKindTestedBy,
		EdgeKindOwnedBy, EdgeKindProduces, EdgeKindConsumes, EdgeKindMonitors,
		EdgeKindConflictsWith:
		return true
	}
	return false
}

// IsDependency reports whether edges of this kind participate in dependency
// resolution (the closure considered by cycle detection and toposort).
func (k EdgeKind) IsDependency() bool {
	switch k {
	case EdgeKindDependsOn, EdgeKindImplements, EdgeKindRefines, EdgeKindTestedBy:
		return true
	}
	return false
}

// IsAcyclicConstrained reports whether edges of this kind must stay cycle-free
// once a proposal is applied.
func (k EdgeKind) IsAcyclicConstrained() bool {
	return k == EdgeKindDependsOn || k == EdgeKindImplements
}

// TraversalWeight returns the routing weight for this edge kind. Higher weights
// discourage paths through the edge; conflicts_with is heaviest.
func (k EdgeKind) TraversalWeight() float64 {
	switch k {
	case EdgeKindDependsOn, EdgeKindImplements:
		return 1.0
	case EdgeKindRefines, EdgeKindTestedBy:
		return 1.5
	case EdgeKindOwnedBy, EdgeKindProduces, EdgeKindConsumes, EdgeKindMonitors:
		return 2.0
	case EdgeKindConflictsWith:
		return 5.0
	default:
		return 2.0
	}
}

// Edge is a typed relationship between two nodes. Both endpoints must resolve
// in the repository; deleting a node cascades to its incident edges.
type Edge struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	TargetID    string    `json:"target_id"`
	Kind        EdgeKind  `json:"kind"`
	Description string    `json:"description,omitempty"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a copy of the edge.
func (e *Edge) Clone() *Edge {
	c := *e
	return &c
}

// EdgeFilter restricts QueryEdges results. Zero values mean "no restriction".
type EdgeFilter struct {
	Kind     EdgeKind `json:"kind,omitempty"`
	SourceID string   `json:"source_id,omitempty"`
	TargetID string   `json:"target_id,omitempty"`
}

// GraphSnapshot is a consistent copy of a subset of the graph.
type GraphSnapshot struct {
	Nodes   []*Node   `json:"nodes"`
	Edges   []*Edge   `json:"edges"`
	TakenAt time.Time `json:"taken_at"`
}
