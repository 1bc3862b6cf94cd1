// Package graph provides the spec graph: the typed node/edge repository
// contract, an in-memory implementation, and the dependency, traversal,
// topological-sort, and impact algorithms that operate on it.
package graph

import (
	"context"

	"github.com/specforge/specforge/pkg/models"
)

// Repository is the storage contract the engine requires from collaborators.
// All mutating operations are transactional: either the full operation applies
// or nothing does. Reads are consistent with the last committed write, and
// writes are linearizable per node. Implementations are plug-in — an in-memory
// backing must behave identically to a persistent one modulo latency.
type Repository interface {
	// CreateNode stores a new node. Fails with ErrDuplicateID if the id exists
	// and ValidationError if the node is malformed.
	CreateNode(ctx context.Context, node *models.Node) (*models.Node, error)

	// GetNode returns the node by id, or ErrNodeNotFound.
	GetNode(ctx context.Context, id string) (*models.Node, error)

	// UpdateNode applies a partial update. Unspecified fields are preserved.
	UpdateNode(ctx context.Context, id string, update *models.NodeUpdate) (*models.Node, error)

	// DeleteNode removes the node and, atomically, every edge incident to it.
	DeleteNode(ctx context.Context, id string) error

	// CreateEdge stores a new edge. Both endpoints must resolve
	// (ErrDanglingEdge otherwise).
	CreateEdge(ctx context.Context, edge *models.Edge) (*models.Edge, error)

	// DeleteEdge removes the edge by id, or ErrEdgeNotFound.
	DeleteEdge(ctx context.Context, id string) error

	// QueryNodes returns nodes matching the filter. A nil filter matches all.
	QueryNodes(ctx context.Context, filter *models.NodeFilter) ([]*models.Node, error)

	// QueryEdges returns edges matching the filter. A nil filter matches all.
	QueryEdges(ctx context.Context, filter *models.EdgeFilter) ([]*models.Edge, error)

	// Snapshot returns a consistent copy of the named nodes and edges.
	// Empty id slices select everything.
	Snapshot(ctx context.Context, nodeIDs, edgeIDs []string) (*models.GraphSnapshot, error)
}

// validateNode checks the structural invariants shared by all repository
// implementations.
func validateNode(node *models.Node) error {
	if node == nil {
		return NewValidationError("node", "required")
	}
	if node.ID == "" {
		return NewValidationError("id", "required")
	}
	if !node.Kind.Valid() {
		return NewValidationError("kind", "unknown node kind: "+string(node.Kind))
	}
	if node.Name == "" {
		return NewValidationError("name", "required")
	}
	if node.Status != "" && !node.Status.Valid() {
		return NewValidationError("status", "unknown node status: "+string(node.Status))
	}
	return nil
}

// validateEdge checks edge shape (endpoint resolution is the store's job).
func validateEdge(edge *models.Edge) error {
	if edge == nil {
		return NewValidationError("edge", "required")
	}
	if edge.ID == "" {
		return NewValidationError("id", "required")
	}
	if edge.SourceID == "" {
		return NewValidationError("source_id", "required")
	}
	if edge.TargetID == "" {
		return NewValidationError("target_id", "required")
	}
	if !edge.Kind.Valid() {
		return NewValidationError("kind", "unknown edge kind: "+string(edge.Kind))
	}
	if edge.Confidence < 0 || edge.Confidence > 1 {
		return NewValidationError("confidence", "must be in [0,1]")
	}
	return nil
}
