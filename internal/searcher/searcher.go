// Package searcher runs retrieval queries against a tenant's collection and
// folds vector and keyword hits into one blended, deterministically ordered
// result list.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/radarkb/retrieval-mcp/internal/collection"
	"github.com/radarkb/retrieval-mcp/internal/keywordindex"
	"github.com/radarkb/retrieval-mcp/pkg/types"
)

const (
	// DefaultLimit applies when a request leaves Limit unset.
	DefaultLimit = 10
	// MaxLimit caps how many results one query may request.
	MaxLimit = 100

	// candidateFloor is the minimum per-index candidate pool; pools scale
	// with the requested limit so blending has enough overlap to work with.
	candidateFloor = 20
	candidateMult  = 3
)

// Embedder produces the query vector for vector and hybrid modes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Request describes one retrieval query.
type Request struct {
	TenantID string
	Query    string
	Mode     types.QueryMode
	Alpha    float64
	Limit    int
	Category string
}

// Response carries the ordered results plus the index version they were
// computed against.
type Response struct {
	Results []types.ScoredResult
	Version uint64
}

// Searcher executes queries against the collection manager.
type Searcher struct {
	collections *collection.Manager
	embedder    Embedder
	log         *zap.Logger
}

// New returns a Searcher over the given collections.
func New(collections *collection.Manager, embedder Embedder, log *zap.Logger) *Searcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Searcher{collections: collections, embedder: embedder, log: log}
}

type candidate struct {
	vectorScore  float64
	keywordScore float64
	hasVector    bool
	hasKeyword   bool
}

// Search validates and executes one query. Every mode flows through the same
// blend and sort path with mode-forced weights, so mode=vector and
// alpha=1.0 hybrid produce identical output by construction.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("empty query: %w", types.ErrInvalidRequest)
	}
	mode := req.Mode
	if mode == "" {
		mode = types.ModeHybrid
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown mode %q: %w", req.Mode, types.ErrInvalidRequest)
	}
	if req.Alpha < 0 || req.Alpha > 1 {
		return nil, fmt.Errorf("alpha %v outside [0,1]: %w", req.Alpha, types.ErrInvalidRequest)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	col, err := s.collections.Get(req.TenantID)
	if err != nil {
		return nil, err
	}

	alpha := req.Alpha
	switch mode {
	case types.ModeVector:
		alpha = 1.0
	case types.ModeKeyword:
		alpha = 0.0
	}

	var queryVector []float32
	if alpha > 0 {
		queryVector, err = s.embedder.Embed(ctx, query)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("embed query: %w", types.ErrQueryTimeout)
			}
			return nil, fmt.Errorf("embed query: %w", types.ErrQueryEmbedding)
		}
	}

	queryText := query
	if alpha >= 1 {
		queryText = ""
	}

	candidateK := limit * candidateMult
	if candidateK < candidateFloor {
		candidateK = candidateFloor
	}

	snap, err := col.Search(queryVector, queryText, candidateK)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}

	candidates := make(map[string]*candidate)
	for _, h := range snap.VectorHits {
		candidates[h.ChunkID] = &candidate{
			vectorScore: 1.0 / (1.0 + h.Distance),
			hasVector:   true,
		}
	}
	for id, score := range normalizeKeyword(snap.KeywordHits) {
		c, ok := candidates[id]
		if !ok {
			c = &candidate{}
			candidates[id] = c
		}
		c.keywordScore = score
		c.hasKeyword = true
	}

	type ranked struct {
		chunkID     string
		composite   float64
		vectorScore float64
	}
	order := make([]ranked, 0, len(candidates))
	for id, c := range candidates {
		// A candidate seen only by an index whose weight is zero cannot
		// contribute and would perturb the pure-mode result set.
		if alpha == 0 && !c.hasKeyword {
			continue
		}
		if alpha == 1 && !c.hasVector {
			continue
		}
		order = append(order, ranked{
			chunkID:     id,
			composite:   alpha*c.vectorScore + (1-alpha)*c.keywordScore,
			vectorScore: c.vectorScore,
		})
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].composite != order[j].composite {
			return order[i].composite > order[j].composite
		}
		if order[i].vectorScore != order[j].vectorScore {
			return order[i].vectorScore > order[j].vectorScore
		}
		return order[i].chunkID < order[j].chunkID
	})

	results := make([]types.ScoredResult, 0, limit)
	for _, r := range order {
		info, ok := snap.Chunks[r.chunkID]
		if !ok {
			continue
		}
		if req.Category != "" && info.Category != req.Category {
			continue
		}
		results = append(results, types.ScoredResult{
			ChunkID:  r.chunkID,
			Content:  info.Content,
			Source:   info.Source,
			Category: info.Category,
			Metadata: info.Metadata,
			Score:    r.composite,
		})
		if len(results) == limit {
			break
		}
	}

	s.log.Debug("query executed",
		zap.String("tenant", req.TenantID),
		zap.String("mode", string(mode)),
		zap.Float64("alpha", alpha),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)))

	return &Response{Results: results, Version: snap.Version}, nil
}

// normalizeKeyword min-max scales raw keyword scores into [0,1] over the
// candidate set. A set with no score spread maps uniformly to 1.0 so the
// only matching chunks are not zeroed out of the blend.
func normalizeKeyword(hits []keywordindex.Hit) map[string]float64 {
	if len(hits) == 0 {
		return nil
	}
	minScore, maxScore := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < minScore {
			minScore = h.Score
		}
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	out := make(map[string]float64, len(hits))
	spread := maxScore - minScore
	for _, h := range hits {
		if spread > 0 {
			out[h.ChunkID] = (h.Score - minScore) / spread
		} else {
			out[h.ChunkID] = 1.0
		}
	}
	return out
}
