package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specforge/specforge/pkg/models"
)

// MemoryRepository is the in-memory Repository implementation. A single
// RWMutex covers nodes and edges so that cascade deletes and snapshots are
// atomic with respect to every other operation.
type MemoryRepository struct {
	mu    sync.RWMutex
	nodes map[string]*models.Node
	edges map[string]*models.Edge

	// byNode indexes incident edge ids per node id for cascade deletes.
	byNode map[string]map[string]struct{}
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nodes:  make(map[string]*models.Node),
		edges:  make(map[string]*models.Edge),
		byNode: make(map[string]map[string]struct{}),
	}
}

// CreateNode stores a new node.
func (r *MemoryRepository) CreateNode(ctx context.Context, node *models.Node) (*models.Node, error) {
	if err := validateNode(node); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[node.ID]; ok {
		return nil, fmt.Errorf("%w: node %s", ErrDuplicateID, node.ID)
	}

	stored := node.Clone()
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = models.NodeStatusActive
	}
	r.nodes[stored.ID] = stored
	return stored.Clone(), nil
}

// GetNode returns the node by id.
func (r *MemoryRepository) GetNode(ctx context.Context, id string) (*models.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return node.Clone(), nil
}

// UpdateNode applies a partial update; nil fields are preserved.
func (r *MemoryRepository) UpdateNode(ctx context.Context, id string, update *models.NodeUpdate) (*models.Node, error) {
	if update == nil {
		return nil, NewValidationError("update", "required")
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, NewValidationError("status", "unknown node status: "+string(*update.Status))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	if update.Name != nil {
		node.Name = *update.Name
	}
	if update.Description != nil {
		node.Description = *update.Description
	}
	if update.Content != nil {
		node.Content = *update.Content
	}
	if update.SpecSource != nil {
		node.SpecSource = *update.SpecSource
	}
	if update.Status != nil {
		node.Status = *update.Status
	}
	if update.Metadata != nil {
		if node.Metadata == nil {
			node.Metadata = make(map[string]string, len(update.Metadata))
		}
		for k, v := range update.Metadata {
			node.Metadata[k] = v
		}
	}
	if update.Embedding != nil {
		node.Embedding = append([]float64(nil), update.Embedding...)
	}
	node.UpdatedAt = time.Now().UTC()
	return node.Clone(), nil
}

// DeleteNode removes the node and cascades to its incident edges atomically.
func (r *MemoryRepository) DeleteNode(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	delete(r.nodes, id)
	for edgeID := range r.byNode[id] {
		if edge, ok := r.edges[edgeID]; ok {
			r.unindexEdge(edge)
			delete(r.edges, edgeID)
		}
	}
	delete(r.byNode, id)
	return nil
}

// CreateEdge stores a new edge after resolving both endpoints.
func (r *MemoryRepository) CreateEdge(ctx context.Context, edge *models.Edge) (*models.Edge, error) {
	if edge == nil {
		return nil, NewValidationError("edge", "required")
	}
	stored := edge.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if err := validateEdge(stored); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.edges[stored.ID]; ok {
		return nil, fmt.Errorf("%w: edge %s", ErrDuplicateID, stored.ID)
	}
	if _, ok := r.nodes[stored.SourceID]; !ok {
		return nil, fmt.Errorf("%w: source %s", ErrDanglingEdge, stored.SourceID)
	}
	if _, ok := r.nodes[stored.TargetID]; !ok {
		return nil, fmt.Errorf("%w: target %s", ErrDanglingEdge, stored.TargetID)
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.edges[stored.ID] = stored
	r.indexEdge(stored)
	return stored.Clone(), nil
}

// DeleteEdge removes the edge by id.
func (r *MemoryRepository) DeleteEdge(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	edge, ok := r.edges[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
	}
	r.unindexEdge(edge)
	delete(r.edges, id)
	return nil
}

// QueryNodes returns nodes matching the filter, ordered by id for
// deterministic results.
func (r *MemoryRepository) QueryNodes(ctx context.Context, filter *models.NodeFilter) ([]*models.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		if !matchNode(node, filter) {
			continue
		}
		out = append(out, node.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// QueryEdges returns edges matching the filter, ordered by id.
func (r *MemoryRepository) QueryEdges(ctx context.Context, filter *models.EdgeFilter) ([]*models.Edge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Edge, 0, len(r.edges))
	for _, edge := range r.edges {
		if !matchEdge(edge, filter) {
			continue
		}
		out = append(out, edge.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Snapshot returns a consistent copy of the named nodes and edges.
// Empty id slices select everything.
func (r *MemoryRepository) Snapshot(ctx context.Context, nodeIDs, edgeIDs []string) (*models.GraphSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &models.GraphSnapshot{TakenAt: time.Now().UTC()}

	if len(nodeIDs) == 0 {
		for _, node := range r.nodes {
			snap.Nodes = append(snap.Nodes, node.Clone())
		}
	} else {
		for _, id := range nodeIDs {
			if node, ok := r.nodes[id]; ok {
				snap.Nodes = append(snap.Nodes, node.Clone())
			}
		}
	}

	if len(edgeIDs) == 0 {
		for _, edge := range r.edges {
			snap.Edges = append(snap.Edges, edge.Clone())
		}
	} else {
		for _, id := range edgeIDs {
			if edge, ok := r.edges[id]; ok {
				snap.Edges = append(snap.Edges, edge.Clone())
			}
		}
	}

	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].ID < snap.Nodes[j].ID })
	sort.Slice(snap.Edges, func(i, j int) bool { return snap.Edges[i].ID < snap.Edges[j].ID })
	return snap, nil
}

func (r *MemoryRepository) indexEdge(edge *models.Edge) {
	for _, nodeID := range []string{edge.SourceID, edge.TargetID} {
		if r.byNode[nodeID] == nil {
			r.byNode[nodeID] = make(map[string]struct{})
		}
		r.byNode[nodeID][edge.ID] = struct{}{}
	}
}

func (r *MemoryRepository) unindexEdge(edge *models.Edge) {
	for _, nodeID := range []string{edge.SourceID, edge.TargetID} {
		if set, ok := r.byNode[nodeID]; ok {
			delete(set, edge.ID)
			if len(set) == 0 {
				delete(r.byNode, nodeID)
			}
		}
	}
}

func matchNode(node *models.Node, filter *models.NodeFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Kind != "" && node.Kind != filter.Kind {
		return false
	}
	if filter.Status != "" && node.Status != filter.Status {
		return false
	}
	for k, v := range filter.Metadata {
		if node.Metadata[k] != v {
			return false
		}
	}
	return true
}

func matchEdge(edge *models.Edge, filter *models.EdgeFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Kind != "" && edge.Kind != filter.Kind {
		return false
	}
	if filter.SourceID != "" && edge.SourceID != filter.SourceID {
		return false
	}
	if filter.TargetID != "" && edge.TargetID != filter.TargetID {
		return false
	}
	return true
}
