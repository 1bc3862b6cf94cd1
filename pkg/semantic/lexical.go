package semantic

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// lexicalDoc is one indexed document in the lexical ranker.
type lexicalDoc struct {
	id     string
	vector map[string]float64
	norm   float64
}

// LexicalRanker is the built-in TF-IDF + cosine ranker. It is the terminal
// fallback of the semantic index: fully local, deterministic for an identical
// corpus and query.
type LexicalRanker struct {
	docs []lexicalDoc
	// document frequency per term
	df map[string]int
}

// NewLexicalRanker builds a ranker over the given (id, text) corpus.
func NewLexicalRanker(corpus map[string]string) *LexicalRanker {
	r := &LexicalRanker{df: make(map[string]int)}

	// Stable document order keeps scores reproducible.
	ids := make([]string, 0, len(corpus))
	for id := range corpus {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tfs := make([]map[string]float64, len(ids))
	for i, id := range ids {
		tf := termFrequencies(tokenize(corpus[id]))
		tfs[i] = tf
		for term := range tf {
			r.df[term]++
		}
	}

	n := float64(len(ids))
	for i, id := range ids {
		vector := make(map[string]float64, len(tfs[i]))
		var norm float64
		for term, tf := range tfs[i] {
			w := tf * idf(n, r.df[term])
			vector[term] = w
			norm += w * w
		}
		r.docs = append(r.docs, lexicalDoc{id: id, vector: vector, norm: math.Sqrt(norm)})
	}
	return r
}

// Hit is one ranked search result.
type Hit struct {
	ID    string
	Score float64
}

// Search returns up to k hits ranked by cosine similarity, score descending
// with id ascending as the tiebreak. allowed, when non-nil, restricts the
// candidate set.
func (r *LexicalRanker) Search(query string, k int, allowed map[string]struct{}) []Hit {
	queryTF := termFrequencies(tokenize(query))
	n := float64(len(r.docs))
	queryVec := make(map[string]float64, len(queryTF))
	var queryNorm float64
	for term, tf := range queryTF {
		w := tf * idf(n, r.df[term])
		queryVec[term] = w
		queryNorm += w * w
	}
	queryNorm = math.Sqrt(queryNorm)
	if queryNorm == 0 {
		return nil
	}

	var hits []Hit
	for _, doc := range r.docs {
		if allowed != nil {
			if _, ok := allowed[doc.id]; !ok {
				continue
			}
		}
		if doc.norm == 0 {
			continue
		}
		var dot float64
		for term, w := range queryVec {
			dot += w * doc.vector[term]
		}
		if dot <= 0 {
			continue
		}
		hits = append(hits, Hit{ID: doc.id, Score: dot / (doc.norm * queryNorm)})
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
	return hits
}

// Len returns the number of indexed documents.
func (r *LexicalRanker) Len() int {
	return len(r.docs)
}

func idf(n float64, df int) float64 {
	if df == 0 {
		return 0
	}
	// Smoothed IDF; stays positive for terms present in every document.
	return math.Log(1+n/float64(df)) + 1
}

func termFrequencies(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	total := float64(len(tokens))
	for term := range counts {
		counts[term] /= total
	}
	return counts
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
