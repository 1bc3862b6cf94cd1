package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/specforge/specforge/pkg/graph"
	"github.com/specforge/specforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRepo(t *testing.T) graph.Repository {
	t.Helper()
	ctx := context.Background()
	repo := graph.NewMemoryRepository()

	nodes := []*models.Node{
		{ID: "auth", Kind: models.NodeKindModule, Name: "Authentication",
			Description: "login and session token handling", Content: "oauth tokens sessions"},
		{ID: "billing", Kind: models.NodeKindModule, Name: "Billing",
			Description: "invoices and payment processing", Content: "stripe payments invoices",
			Metadata: map[string]string{"team": "revenue"}},
		{ID: "search", Kind: models.NodeKindModule, Name: "Search",
			Description: "full text search over documents", Content: "indexing ranking queries"},
	}
	for _, n := range nodes {
		_, err := repo.CreateNode(ctx, n)
		require.NoError(t, err)
	}
	return repo
}

func TestLexicalSearchRanksRelevantFirst(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(seedRepo(t), nil, Options{})
	require.NoError(t, idx.Refresh(ctx))

	results, err := idx.Search(ctx, "payment invoices", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "billing", results[0].ID)
}

func TestSearchDeterministicOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(seedRepo(t), nil, Options{})
	require.NoError(t, idx.Refresh(ctx))

	first, err := idx.Search(ctx, "token search", 10, nil)
	require.NoError(t, err)
	for n := 0; n < 5; n++ {
		again, err := idx.Search(ctx, "token search", 10, nil)
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for i := range first {
			assert.Equal(t, first[i].ID, again[i].ID)
		}
	}
}

func TestSearchMetadataFilter(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(seedRepo(t), nil, Options{})
	require.NoError(t, idx.Refresh(ctx))

	results, err := idx.Search(ctx, "payments", 10, map[string]string{"team": "revenue"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "billing", results[0].ID)

	none, err := idx.Search(ctx, "payments", 10, map[string]string{"team": "platform"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchEmptyQueryRejected(t *testing.T) {
	idx := NewIndex(seedRepo(t), nil, Options{})
	_, err := idx.Search(context.Background(), "   ", 10, nil)
	assert.True(t, graph.IsValidationError(err))
}

func TestSearchThresholdFiltersWeakHits(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(seedRepo(t), nil, Options{SimilarityThreshold: 0.99})
	require.NoError(t, idx.Refresh(ctx))

	results, err := idx.Search(ctx, "miscellaneous unrelated words", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// failingBackend always errors; Search must degrade to lexical silently.
type failingBackend struct{}

func (failingBackend) SetCorpus(map[string]string) {}
func (failingBackend) Search(context.Context, string, int, map[string]struct{}) ([]Hit, error) {
	return nil, errors.New("backend unavailable")
}

func TestSearchDegradesToLexicalOnBackendFailure(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(seedRepo(t), failingBackend{}, Options{})
	require.NoError(t, idx.Refresh(ctx))

	results, err := idx.Search(ctx, "payment invoices", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "billing", results[0].ID)
}

// staticEmbedder returns fixed vectors so VectorBackend ranking is testable.
type staticEmbedder struct {
	vectors map[string][]float64
}

func (e staticEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	return []float64{0, 0, 1}, nil
}

func TestVectorBackendRanksByCosine(t *testing.T) {
	embedder := staticEmbedder{vectors: map[string][]float64{
		"query": {1, 0, 0},
		"close": {0.9, 0.1, 0},
		"far":   {0, 1, 0},
	}}
	backend := NewVectorBackend(embedder, time.Minute)
	backend.SetCorpus(map[string]string{"n1": "close", "n2": "far"})

	hits, err := backend.Search(context.Background(), "query", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1) // "far" scores 0 and is dropped
	assert.Equal(t, "n1", hits[0].ID)
}

func TestIndexRefreshPicksUpNewNodes(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo(t)
	idx := NewIndex(repo, nil, Options{})
	require.NoError(t, idx.Refresh(ctx))

	_, err := repo.CreateNode(ctx, &models.Node{
		ID: "metrics", Kind: models.NodeKindModule, Name: "Metrics",
		Description: "prometheus gauges and counters", Content: "observability dashboards",
	})
	require.NoError(t, err)

	// Not indexed until refresh.
	results, err := idx.Search(ctx, "prometheus gauges", 10, nil)
	require.NoError(t, err)
	for _, n := range results {
		assert.NotEqual(t, "metrics", n.ID)
	}

	require.NoError(t, idx.Refresh(ctx))
	results, err = idx.Search(ctx, "prometheus gauges", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "metrics", results[0].ID)
}
