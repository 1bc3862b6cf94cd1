// Package semantic provides query-by-text search over spec graph nodes.
// The index ranks with a pluggable vector backend and degrades automatically
// to a built-in TF-IDF lexical ranker when the backend is unavailable.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/specforge/specforge/pkg/graph"
	"github.com/specforge/specforge/pkg/models"
)

// queryCacheSize bounds the LRU of recent search results. Refresh flushes it.
const queryCacheSize = 256

// Backend is a pluggable primary ranker. The VectorBackend implements it;
// a nil backend means lexical-only operation.
type Backend interface {
	SetCorpus(corpus map[string]string)
	Search(ctx context.Context, query string, k int, allowed map[string]struct{}) ([]Hit, error)
}

// Options tune index behavior.
type Options struct {
	// SimilarityThreshold is the minimum score for a hit to be returned.
	SimilarityThreshold float64
}

// Index is the semantic index over a graph repository. Search never fails on
// backend trouble: the lexical ranker is the terminal fallback.
type Index struct {
	repo    graph.Repository
	backend Backend
	opts    Options

	mu      sync.RWMutex
	lexical *LexicalRanker
	nodes   map[string]*models.Node

	queryCache *lru.Cache[string, []string]
}

// NewIndex creates an index over the repository. backend may be nil.
func NewIndex(repo graph.Repository, backend Backend, opts Options) *Index {
	cache, _ := lru.New[string, []string](queryCacheSize)
	return &Index{
		repo:       repo,
		backend:    backend,
		opts:       opts,
		nodes:      make(map[string]*models.Node),
		queryCache: cache,
	}
}

// Refresh invalidates and rebuilds the index from the repository.
func (i *Index) Refresh(ctx context.Context) error {
	nodes, err := i.repo.QueryNodes(ctx, nil)
	if err != nil {
		return fmt.Errorf("loading nodes for index: %w", err)
	}

	corpus := make(map[string]string, len(nodes))
	byID := make(map[string]*models.Node, len(nodes))
	for _, node := range nodes {
		corpus[node.ID] = node.SearchText()
		byID[node.ID] = node
	}

	i.mu.Lock()
	i.lexical = NewLexicalRanker(corpus)
	i.nodes = byID
	if i.backend != nil {
		i.backend.SetCorpus(corpus)
	}
	i.mu.Unlock()

	i.queryCache.Purge()
	return nil
}

// Search returns up to k nodes ranked by similarity to the query. Filters
// restrict candidates by metadata equality before ranking. The ordering is
// deterministic for an identical corpus and query.
func (i *Index) Search(ctx context.Context, query string, k int, filters map[string]string) ([]*models.Node, error) {
	if strings.TrimSpace(query) == "" {
		return nil, graph.NewValidationError("query", "required")
	}
	if k <= 0 {
		k = 10
	}

	i.mu.RLock()
	lexical := i.lexical
	i.mu.RUnlock()
	if lexical == nil {
		if err := i.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	if len(filters) == 0 {
		if ids, ok := i.queryCache.Get(cacheKey(query, k)); ok {
			return i.resolve(ids), nil
		}
	}

	allowed := i.allowedSet(filters)
	hits := i.rank(ctx, query, k, allowed)

	var ids []string
	for _, hit := range hits {
		if hit.Score < i.opts.SimilarityThreshold {
			continue
		}
		ids = append(ids, hit.ID)
	}

	if len(filters) == 0 {
		i.queryCache.Add(cacheKey(query, k), ids)
	}
	return i.resolve(ids), nil
}

// rank runs the primary backend and silently degrades to the lexical ranker
// on any backend error.
func (i *Index) rank(ctx context.Context, query string, k int, allowed map[string]struct{}) []Hit {
	i.mu.RLock()
	backend := i.backend
	lexical := i.lexical
	i.mu.RUnlock()

	if backend != nil {
		hits, err := backend.Search(ctx, query, k, allowed)
		if err == nil {
			return hits
		}
		slog.Warn("Semantic backend unavailable, degrading to lexical ranking",
			"error", err)
	}
	if lexical == nil {
		return nil
	}
	return lexical.Search(query, k, allowed)
}

// allowedSet returns the candidate ids matching the metadata filters, or nil
// when no filters apply.
func (i *Index) allowedSet(filters map[string]string) map[string]struct{} {
	if len(filters) == 0 {
		return nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	allowed := make(map[string]struct{})
	for id, node := range i.nodes {
		match := true
		for k, v := range filters {
			if node.Metadata[k] != v {
				match = false
				break
			}
		}
		if match {
			allowed[id] = struct{}{}
		}
	}
	return allowed
}

func (i *Index) resolve(ids []string) []*models.Node {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]*models.Node, 0, len(ids))
	for _, id := range ids {
		if node, ok := i.nodes[id]; ok {
			out = append(out, node.Clone())
		}
	}
	return out
}

func cacheKey(query string, k int) string {
	return fmt.Sprintf("%d\x00%s", k, query)
}
