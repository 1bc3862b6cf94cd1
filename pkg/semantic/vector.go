package semantic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Embedder produces a vector for a piece of text. Implemented by the external
// embedding service client; any failure makes the index degrade to the
// lexical ranker.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// VectorBackend ranks documents by cosine similarity of embeddings from an
// external embedder. Node embeddings are cached with a TTL so Refresh cycles
// don't re-embed unchanged corpora.
type VectorBackend struct {
	embedder Embedder
	cache    *gocache.Cache

	corpus map[string]string
}

// NewVectorBackend creates a backend with the given embedding cache TTL.
func NewVectorBackend(embedder Embedder, cacheTTL time.Duration) *VectorBackend {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &VectorBackend{
		embedder: embedder,
		cache:    gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// SetCorpus replaces the indexed corpus. Cached embeddings are keyed by id
// and text, so changed documents re-embed on next search.
func (b *VectorBackend) SetCorpus(corpus map[string]string) {
	b.corpus = corpus
}

// Search embeds the query and every corpus document and ranks by cosine
// similarity. It fails fast on the first embedding error so the caller can
// fall back.
func (b *VectorBackend) Search(ctx context.Context, query string, k int, allowed map[string]struct{}) ([]Hit, error) {
	queryVec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	ids := make([]string, 0, len(b.corpus))
	for id := range b.corpus {
		if allowed != nil {
			if _, ok := allowed[id]; !ok {
				continue
			}
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var hits []Hit
	for _, id := range ids {
		vec, err := b.embed(ctx, id, b.corpus[id])
		if err != nil {
			return nil, fmt.Errorf("embedding document %s: %w", id, err)
		}
		score := cosine(queryVec, vec)
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (b *VectorBackend) embed(ctx context.Context, id, text string) ([]float64, error) {
	key := id + "\x00" + text
	if cached, ok := b.cache.Get(key); ok {
		return cached.([]float64), nil
	}
	vec, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	b.cache.SetDefault(key, vec)
	return vec, nil
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
