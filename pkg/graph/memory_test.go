package graph

import (
	"context"
	"testing"

	"github.com/specforge/specforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNode(id string, kind models.NodeKind) *models.Node {
	return &models.Node{
		ID:     id,
		Kind:   kind,
		Name:   "node " + id,
		Status: models.NodeStatusActive,
	}
}

func newTestEdge(id, source, target string, kind models.EdgeKind) *models.Edge {
	return &models.Edge{
		ID:         id,
		SourceID:   source,
		TargetID:   target,
		Kind:       kind,
		Confidence: 1.0,
	}
}

func TestMemoryRepositoryNodeCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	created, err := repo.CreateNode(ctx, newTestNode("n1", models.NodeKindModule))
	require.NoError(t, err)
	assert.Equal(t, "n1", created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.UpdatedAt.IsZero())

	// Duplicate id rejected
	_, err = repo.CreateNode(ctx, newTestNode("n1", models.NodeKindModule))
	assert.ErrorIs(t, err, ErrDuplicateID)

	// Partial update preserves unspecified fields
	before, err := repo.GetNode(ctx, "n1")
	require.NoError(t, err)

	desc := "updated description"
	updated, err := repo.UpdateNode(ctx, "n1", &models.NodeUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)
	assert.Equal(t, before.Name, updated.Name)
	assert.Equal(t, before.Kind, updated.Kind)
	assert.True(t, updated.UpdatedAt.After(before.UpdatedAt) || updated.UpdatedAt.Equal(before.UpdatedAt))

	// Delete
	require.NoError(t, repo.DeleteNode(ctx, "n1"))
	_, err = repo.GetNode(ctx, "n1")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestMemoryRepositoryValidation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.CreateNode(ctx, &models.Node{ID: "x", Kind: "bogus", Name: "x"})
	assert.True(t, IsValidationError(err))

	_, err = repo.CreateNode(ctx, &models.Node{ID: "", Kind: models.NodeKindSpec, Name: "x"})
	assert.True(t, IsValidationError(err))

	_, err = repo.CreateNode(ctx, newTestNode("ok", models.NodeKindSpec))
	require.NoError(t, err)

	_, err = repo.CreateEdge(ctx, &models.Edge{ID: "e", SourceID: "ok", TargetID: "ok", Kind: "bogus"})
	assert.True(t, IsValidationError(err))

	_, err = repo.CreateEdge(ctx, &models.Edge{ID: "e", SourceID: "ok", TargetID: "ok", Kind: models.EdgeKindDependsOn, Confidence: 1.5})
	assert.True(t, IsValidationError(err))
}

func TestMemoryRepositoryEdgeEndpointsMustResolve(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.CreateNode(ctx, newTestNode("a", models.NodeKindModule))
	require.NoError(t, err)

	_, err = repo.CreateEdge(ctx, newTestEdge("e1", "a", "missing", models.EdgeKindDependsOn))
	assert.ErrorIs(t, err, ErrDanglingEdge)

	_, err = repo.CreateEdge(ctx, newTestEdge("e1", "missing", "a", models.EdgeKindDependsOn))
	assert.ErrorIs(t, err, ErrDanglingEdge)
}

func TestMemoryRepositoryCascadeDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	// S5: A, B, edge A --depends_on-> B. Deleting A removes A and the edge
	// atomically; B is untouched.
	_, err := repo.CreateNode(ctx, newTestNode("A", models.NodeKindModule))
	require.NoError(t, err)
	_, err = repo.CreateNode(ctx, newTestNode("B", models.NodeKindModule))
	require.NoError(t, err)
	_, err = repo.CreateEdge(ctx, newTestEdge("e", "A", "B", models.EdgeKindDependsOn))
	require.NoError(t, err)

	// Unrelated edge must survive.
	_, err = repo.CreateNode(ctx, newTestNode("C", models.NodeKindModule))
	require.NoError(t, err)
	_, err = repo.CreateEdge(ctx, newTestEdge("keep", "B", "C", models.EdgeKindRefines))
	require.NoError(t, err)

	require.NoError(t, repo.DeleteNode(ctx, "A"))

	_, err = repo.GetNode(ctx, "A")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	edges, err := repo.QueryEdges(ctx, nil)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "keep", edges[0].ID)

	b, err := repo.GetNode(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "B", b.ID)
}

func TestMemoryRepositoryReferentialIntegrity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for _, id := range []string{"a", "b", "c"} {
		_, err := repo.CreateNode(ctx, newTestNode(id, models.NodeKindModule))
		require.NoError(t, err)
	}
	_, err := repo.CreateEdge(ctx, newTestEdge("e1", "a", "b", models.EdgeKindDependsOn))
	require.NoError(t, err)
	_, err = repo.CreateEdge(ctx, newTestEdge("e2", "b", "c", models.EdgeKindImplements))
	require.NoError(t, err)

	// Every edge's endpoints resolve.
	edges, err := repo.QueryEdges(ctx, nil)
	require.NoError(t, err)
	for _, edge := range edges {
		_, err := repo.GetNode(ctx, edge.SourceID)
		assert.NoError(t, err)
		_, err = repo.GetNode(ctx, edge.TargetID)
		assert.NoError(t, err)
	}

	// Deleting b removes exactly the edges incident to b.
	require.NoError(t, repo.DeleteNode(ctx, "b"))
	edges, err = repo.QueryEdges(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestMemoryRepositoryQueryFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	n1 := newTestNode("n1", models.NodeKindModule)
	n1.Metadata = map[string]string{"team": "core"}
	n2 := newTestNode("n2", models.NodeKindTest)
	n2.Status = models.NodeStatusDraft

	for _, n := range []*models.Node{n1, n2} {
		_, err := repo.CreateNode(ctx, n)
		require.NoError(t, err)
	}

	byKind, err := repo.QueryNodes(ctx, &models.NodeFilter{Kind: models.NodeKindModule})
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Equal(t, "n1", byKind[0].ID)

	byStatus, err := repo.QueryNodes(ctx, &models.NodeFilter{Status: models.NodeStatusDraft})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "n2", byStatus[0].ID)

	byMeta, err := repo.QueryNodes(ctx, &models.NodeFilter{Metadata: map[string]string{"team": "core"}})
	require.NoError(t, err)
	require.Len(t, byMeta, 1)
	assert.Equal(t, "n1", byMeta[0].ID)

	none, err := repo.QueryNodes(ctx, &models.NodeFilter{Metadata: map[string]string{"team": "other"}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryRepositorySnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.CreateNode(ctx, newTestNode("a", models.NodeKindModule))
	require.NoError(t, err)

	snap, err := repo.Snapshot(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 1)

	// Mutating the snapshot must not leak into the store.
	snap.Nodes[0].Name = "mutated"
	stored, err := repo.GetNode(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "node a", stored.Name)
}
