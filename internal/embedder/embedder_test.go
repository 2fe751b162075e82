package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarkb/retrieval-mcp/pkg/types"
)

// countingProvider wraps LocalProvider and records call/concurrency stats.
type countingProvider struct {
	*LocalProvider
	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	failUntil   atomic.Int64 // fail the first N calls
	delay       time.Duration
	mu          sync.Mutex
}

func newCountingProvider() *countingProvider {
	return &countingProvider{LocalProvider: NewLocalProvider()}
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	call := p.calls.Add(1)
	cur := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	p.mu.Lock()
	if cur > p.maxInFlight.Load() {
		p.maxInFlight.Store(cur)
	}
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if call <= p.failUntil.Load() {
		return nil, errors.New("backend unavailable")
	}
	return p.LocalProvider.EmbedBatch(ctx, texts)
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
}

func TestEmbed_CacheHitBypassesProvider(t *testing.T) {
	p := newCountingProvider()
	e := NewEngine(p, Config{Retry: fastRetry()}, nil)

	first, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.EqualValues(t, 1, p.calls.Load())

	second, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.calls.Load(), "cache hit must not call the provider")
	assert.Equal(t, first, second)
}

func TestEmbed_CachedVectorIsACopy(t *testing.T) {
	e := NewEngine(newCountingProvider(), Config{Retry: fastRetry()}, nil)

	vec, err := e.Embed(context.Background(), "mutation test")
	require.NoError(t, err)
	vec[0] = 999

	again, err := e.Embed(context.Background(), "mutation test")
	require.NoError(t, err)
	assert.NotEqual(t, float32(999), again[0])
}

func TestEmbedBatch_OrderPreserved(t *testing.T) {
	e := NewEngine(newCountingProvider(), Config{BatchSize: 2, Retry: fastRetry()}, nil)

	texts := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	vectors, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	for i, text := range texts {
		single, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, vectors[i], "vector %d out of order", i)
	}
}

func TestEmbedBatch_ConcurrencyCapped(t *testing.T) {
	p := newCountingProvider()
	p.delay = 10 * time.Millisecond
	e := NewEngine(p, Config{BatchSize: 1, MaxConcurrent: 3, Retry: fastRetry()}, nil)

	texts := make([]string, 12)
	for i := range texts {
		texts[i] = ComputeHash(string(rune('a' + i)))
	}

	_, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.maxInFlight.Load(), int64(3), "more than 3 provider batches in flight")
}

func TestEmbedBatch_RetriesThenSucceeds(t *testing.T) {
	p := newCountingProvider()
	p.failUntil.Store(2)
	e := NewEngine(p, Config{Retry: fastRetry()}, nil)

	_, err := e.Embed(context.Background(), "transient failure")
	require.NoError(t, err)
	assert.EqualValues(t, 3, p.calls.Load())
}

func TestEmbedBatch_RetryBudgetExhausted(t *testing.T) {
	p := newCountingProvider()
	p.failUntil.Store(100)
	e := NewEngine(p, Config{Retry: fastRetry()}, nil)

	_, err := e.Embed(context.Background(), "permanent failure")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmbedding)
}

func TestLocalProvider_DeterministicAndRelated(t *testing.T) {
	p := NewLocalProvider()
	ctx := context.Background()

	a1, err := p.EmbedBatch(ctx, []string{"machine learning models"})
	require.NoError(t, err)
	a2, err := p.EmbedBatch(ctx, []string{"machine learning models"})
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	// Overlapping vocabulary should correlate; disjoint vocabulary should not.
	related, err := p.EmbedBatch(ctx, []string{"what is machine learning"})
	require.NoError(t, err)
	unrelated, err := p.EmbedBatch(ctx, []string{"грозовой перевал"})
	require.NoError(t, err)

	assert.Greater(t, dot(a1[0], related[0]), dot(a1[0], unrelated[0]))
}

func newTestHTTPProvider(srv *httptest.Server, dimension int) *httpProvider {
	return &httpProvider{
		name:      "test",
		endpoint:  srv.URL,
		apiKey:    "key",
		model:     "test-model",
		dimension: dimension,
		client:    srv.Client(),
	}
}

func TestHTTPProvider_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				// Out of order on purpose; index decides placement.
				{"embedding": []float32{0, 1, 0}, "index": 1},
				{"embedding": []float32{1, 0, 0}, "index": 0},
			},
		})
	}))
	defer srv.Close()

	p := newTestHTTPProvider(srv, 3)
	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1, 0}, vectors[1])
}

func TestHTTPProvider_RejectsWrongDimensionVectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{1, 0, 0}, "index": 0},
				{"embedding": []float32{0, 1, 0, 0}, "index": 1},
			},
		})
	}))
	defer srv.Close()

	p := newTestHTTPProvider(srv, 3)
	_, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, types.ErrEmbedding)
	assert.Contains(t, err.Error(), "4-dimension")
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
