package database

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specforge/specforge/pkg/graph"
	"github.com/specforge/specforge/pkg/models"
	"github.com/specforge/specforge/pkg/mutation"
)

// newTestClient connects to the database named by TEST_DATABASE_URL. Tests
// that need Postgres skip when it is unset, so the suite stays runnable
// without infrastructure.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database integration test")
	}
	client, err := NewClient(context.Background(), Config{DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = client.DB().Exec(`TRUNCATE mutation_proposals, spec_edges, spec_nodes`)
		_ = client.Close()
	})
	return client
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	ok, err := hasEmbeddedMigrations()
	require.NoError(t, err)
	assert.True(t, ok, "migration files must be embedded in the binary")
}

func TestNewClientRequiresDSN(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	require.Error(t, err)
}

func TestPGGraphStoreRoundTrip(t *testing.T) {
	client := newTestClient(t)
	store := NewPGGraphStore(client, 3, nil)
	ctx := context.Background()

	created, err := store.CreateNode(ctx, &models.Node{
		ID: "auth", Kind: models.NodeKindModule, Name: "Auth",
		Metadata: map[string]string{"team": "platform"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusActive, created.Status)
	assert.False(t, created.UpdatedAt.IsZero())

	_, err = store.CreateNode(ctx, created)
	assert.ErrorIs(t, err, graph.ErrDuplicateID)

	_, err = store.CreateNode(ctx, &models.Node{
		ID: "session", Kind: models.NodeKindModel, Name: "Session",
	})
	require.NoError(t, err)

	edge, err := store.CreateEdge(ctx, &models.Edge{
		SourceID: "session", TargetID: "auth", Kind: models.EdgeKindDependsOn, Confidence: 1,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, edge.ID)

	_, err = store.CreateEdge(ctx, &models.Edge{
		SourceID: "session", TargetID: "nope", Kind: models.EdgeKindDependsOn, Confidence: 1,
	})
	assert.ErrorIs(t, err, graph.ErrDanglingEdge)

	name := "Authentication"
	updated, err := store.UpdateNode(ctx, "auth", &models.NodeUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Authentication", updated.Name)
	assert.Equal(t, "platform", updated.Metadata["team"], "partial update preserves metadata")
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	byMeta, err := store.QueryNodes(ctx, &models.NodeFilter{Metadata: map[string]string{"team": "platform"}})
	require.NoError(t, err)
	require.Len(t, byMeta, 1)
	assert.Equal(t, "auth", byMeta[0].ID)

	snap, err := store.Snapshot(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 2)
	assert.Len(t, snap.Edges, 1)

	// Deleting a node cascades to its incident edges.
	require.NoError(t, store.DeleteNode(ctx, "auth"))
	edges, err := store.QueryEdges(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, edges)

	_, err = store.GetNode(ctx, "auth")
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestPGMutationStoreTransitionCAS(t *testing.T) {
	client := newTestClient(t)
	store := NewPGMutationStore(client, nil)
	ctx := context.Background()

	created, err := store.Create(ctx, &models.MutationProposal{
		UserID:        "u1",
		OperationType: models.OperationCreate,
		ProposedChanges: &models.ProposedChange{
			Node: &models.Node{ID: "n1", Kind: models.NodeKindTask, Name: "Task"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusProposed, created.Status)

	moved, err := store.Transition(ctx, created.ProposalID,
		models.ProposalStatusProposed, models.ProposalStatusValidating)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusValidating, moved.Status)

	// Second mover expecting the old status loses the swap.
	_, err = store.Transition(ctx, created.ProposalID,
		models.ProposalStatusProposed, models.ProposalStatusValidating)
	assert.True(t, mutation.IsConflictError(err), "expected conflict, got %v", err)

	// Illegal lifecycle steps are rejected before touching the row.
	_, err = store.Transition(ctx, created.ProposalID,
		models.ProposalStatusValidating, models.ProposalStatusProposed)
	assert.True(t, mutation.IsTransitionError(err), "expected transition error, got %v", err)

	replacement := &models.ProposedChange{
		Node: &models.Node{ID: "n1", Kind: models.NodeKindTask, Name: "Renamed task"},
	}
	edited, err := store.UpdateChanges(ctx, created.ProposalID, replacement)
	require.NoError(t, err)
	assert.Equal(t, "Renamed task", edited.ProposedChanges.Node.Name)

	_, err = store.Transition(ctx, created.ProposalID,
		models.ProposalStatusValidating, models.ProposalStatusApplying)
	require.NoError(t, err)
	_, err = store.UpdateChanges(ctx, created.ProposalID, replacement)
	assert.True(t, mutation.IsConflictError(err), "changes frozen once applying")

	listed, err := store.List(ctx, &models.ProposalFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, mutation.ErrProposalNotFound)
}
