// Package keywordindex implements the per-tenant inverted index with
// BM25-style relevance scoring. As with the vector index, isolation is
// structural: one index instance per tenant.
package keywordindex

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// BM25 parameters, standard values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Hit is one keyword search result. Score is the raw BM25 relevance: higher
// is better. The query engine normalizes it before blending; raw scores are
// never compared against vector distances.
type Hit struct {
	ChunkID string
	Score   float64
}

// Index is a thread-safe inverted index over one tenant's chunks.
type Index struct {
	mu       sync.RWMutex
	postings map[string]map[string]int // term -> chunkID -> term frequency
	docLens  map[string]int            // chunkID -> token count
	totalLen int
}

// New creates an empty keyword index.
func New() *Index {
	return &Index{
		postings: make(map[string]map[string]int),
		docLens:  make(map[string]int),
	}
}

// Add indexes the text under chunkID. Re-adding the same chunkID replaces
// the previous postings.
func (ix *Index) Add(chunkID, text string) {
	tokens := Tokenize(text)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(chunkID)

	ix.docLens[chunkID] = len(tokens)
	ix.totalLen += len(tokens)
	for _, tok := range tokens {
		m, ok := ix.postings[tok]
		if !ok {
			m = make(map[string]int)
			ix.postings[tok] = m
		}
		m[chunkID]++
	}
}

// Delete removes chunkID from the index. No-op if absent.
func (ix *Index) Delete(chunkID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(chunkID)
}

func (ix *Index) removeLocked(chunkID string) {
	length, ok := ix.docLens[chunkID]
	if !ok {
		return
	}
	delete(ix.docLens, chunkID)
	ix.totalLen -= length

	for term, m := range ix.postings {
		if _, ok := m[chunkID]; ok {
			delete(m, chunkID)
			if len(m) == 0 {
				delete(ix.postings, term)
			}
		}
	}
}

// Search scores every chunk containing at least one query term and returns
// the top k by descending BM25 score, ties broken by chunk ID for
// determinism.
func (ix *Index) Search(query string, k int) []Hit {
	terms := Tokenize(query)
	if len(terms) == 0 || k <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := len(ix.docLens)
	if n == 0 {
		return nil
	}
	avgLen := float64(ix.totalLen) / float64(n)

	scores := make(map[string]float64)
	for _, term := range terms {
		m, ok := ix.postings[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(len(m))+0.5)/(float64(len(m))+0.5))
		for chunkID, tf := range m {
			docLen := float64(ix.docLens[chunkID])
			norm := float64(tf) * (bm25K1 + 1) /
				(float64(tf) + bm25K1*(1-bm25B+bm25B*docLen/avgLen))
			scores[chunkID] += idf * norm
		}
	}

	hits := make([]Hit, 0, len(scores))
	for chunkID, score := range scores {
		hits = append(hits, Hit{ChunkID: chunkID, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docLens)
}

// Tokenize lowercases text and splits it on non-letter, non-digit runes.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
