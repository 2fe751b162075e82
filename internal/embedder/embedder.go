package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/radarkb/retrieval-mcp/pkg/types"
)

const (
	// DefaultCacheSize bounds the content-hash embedding cache.
	DefaultCacheSize = 10000

	// DefaultBatchSize is the number of texts sent per provider call.
	DefaultBatchSize = 32

	// DefaultMaxConcurrent caps provider batches in flight at once.
	DefaultMaxConcurrent = 3
)

// Config tunes the embedding engine.
type Config struct {
	CacheSize     int
	BatchSize     int
	MaxConcurrent int
	Retry         RetryConfig
}

// Engine fronts a Provider with caching, retries, and bounded batch
// concurrency. Cache hits bypass the provider entirely.
type Engine struct {
	provider  Provider
	cache     *lru.Cache[string, []float32]
	sem       *semaphore.Weighted
	batchSize int
	retry     RetryConfig
	log       *zap.Logger
}

// NewEngine creates an embedding engine around the given provider.
func NewEngine(provider Provider, cfg Config, log *zap.Logger) *Engine {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	cache, err := lru.New[string, []float32](cfg.CacheSize)
	if err != nil {
		// Only reachable with a non-positive size, which is normalized above.
		panic(fmt.Sprintf("embedder: create cache: %v", err))
	}

	return &Engine{
		provider:  provider,
		cache:     cache,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		batchSize: cfg.BatchSize,
		retry:     cfg.Retry,
		log:       log,
	}
}

// Embed returns the vector for a single text.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per text, in input order. Cached texts are
// served without a provider call; the rest are embedded in sub-batches, at
// most MaxConcurrent in flight. The call fails as a whole if any sub-batch
// exhausts its retry budget.
func (e *Engine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embed: no texts provided")
	}

	vectors := make([][]float32, len(texts))

	var missIdx []int
	for i, text := range texts {
		if vec, ok := e.cache.Get(ComputeHash(text)); ok {
			vectors[i] = cloneVector(vec)
		} else {
			missIdx = append(missIdx, i)
		}
	}
	if len(missIdx) == 0 {
		return vectors, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(missIdx); start += e.batchSize {
		end := start + e.batchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		batch := missIdx[start:end]

		g.Go(func() error {
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer e.sem.Release(1)

			batchTexts := make([]string, len(batch))
			for i, idx := range batch {
				batchTexts[i] = texts[idx]
			}

			embedded, err := retryWithBackoff(gctx, e.retry, func() ([][]float32, error) {
				return e.provider.EmbedBatch(gctx, batchTexts)
			})
			if err != nil {
				e.log.Warn("embedding batch failed",
					zap.Int("batch_size", len(batchTexts)),
					zap.Error(err))
				return fmt.Errorf("%w: %v", types.ErrEmbedding, err)
			}
			if len(embedded) != len(batchTexts) {
				return fmt.Errorf("%w: provider returned %d vectors for %d texts",
					types.ErrEmbedding, len(embedded), len(batchTexts))
			}

			for i, idx := range batch {
				vectors[idx] = embedded[i]
				e.cache.Add(ComputeHash(texts[idx]), cloneVector(embedded[i]))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Dimension returns the provider's embedding dimension.
func (e *Engine) Dimension() int { return e.provider.Dimension() }

// Model returns the provider's model name.
func (e *Engine) Model() string { return e.provider.Model() }

// CacheLen returns the number of cached embeddings.
func (e *Engine) CacheLen() int { return e.cache.Len() }

// Close releases provider resources.
func (e *Engine) Close() error { return e.provider.Close() }

// ComputeHash returns the hex SHA-256 of text, the embedding cache key.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
