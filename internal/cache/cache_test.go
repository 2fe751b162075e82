package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarkb/retrieval-mcp/internal/searcher"
	"github.com/radarkb/retrieval-mcp/pkg/types"
)

type countingRunner struct {
	calls   int
	results []types.ScoredResult
	err     error
}

func (r *countingRunner) Search(_ context.Context, _ searcher.Request) (*searcher.Response, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &searcher.Response{Results: cloneResults(r.results), Version: 1}, nil
}

type mapVersions map[string]uint64

func (m mapVersions) Version(tenantID string) (uint64, error) {
	v, ok := m[tenantID]
	if !ok {
		return 0, types.ErrTenantNotFound
	}
	return v, nil
}

type flakyBackend struct {
	getErr  error
	setErr  error
	gets    int
	sets    int
	invalid []string
}

func (b *flakyBackend) Get(context.Context, string) ([]types.ScoredResult, bool, error) {
	b.gets++
	return nil, false, b.getErr
}

func (b *flakyBackend) Set(context.Context, string, []types.ScoredResult, time.Duration) error {
	b.sets++
	return b.setErr
}

func (b *flakyBackend) InvalidateTenant(_ context.Context, tenantID string) error {
	b.invalid = append(b.invalid, tenantID)
	return nil
}

func (b *flakyBackend) Close() error { return nil }

func sampleResults() []types.ScoredResult {
	return []types.ScoredResult{
		{ChunkID: "c1", Content: "alpha", Score: 0.9, Metadata: map[string]string{"lang": "go"}},
	}
}

func TestCacheHitSkipsRunner(t *testing.T) {
	runner := &countingRunner{results: sampleResults()}
	c, err := New(runner, mapVersions{"t1": 1}, 16)
	require.NoError(t, err)

	req := searcher.Request{TenantID: "t1", Query: "Token Refresh", Mode: types.ModeHybrid, Alpha: 0.5, Limit: 10}

	first, err := c.Search(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, first.Results, second.Results)
	assert.InDelta(t, 0.5, c.HitRate(), 1e-9)
}

func TestCacheNormalizesQuerySpelling(t *testing.T) {
	runner := &countingRunner{results: sampleResults()}
	c, err := New(runner, mapVersions{"t1": 1}, 16)
	require.NoError(t, err)

	base := searcher.Request{TenantID: "t1", Query: "token refresh", Mode: types.ModeKeyword, Limit: 10}
	_, err = c.Search(context.Background(), base)
	require.NoError(t, err)

	base.Query = "  Token   REFRESH "
	_, err = c.Search(context.Background(), base)
	require.NoError(t, err)

	assert.Equal(t, 1, runner.calls, "whitespace and case must not fragment entries")
}

func TestCacheMissOnDifferentShape(t *testing.T) {
	runner := &countingRunner{results: sampleResults()}
	c, err := New(runner, mapVersions{"t1": 1}, 16)
	require.NoError(t, err)

	ctx := context.Background()
	base := searcher.Request{TenantID: "t1", Query: "token", Mode: types.ModeHybrid, Alpha: 0.5, Limit: 10}
	_, err = c.Search(ctx, base)
	require.NoError(t, err)

	alpha := base
	alpha.Alpha = 0.7
	_, err = c.Search(ctx, alpha)
	require.NoError(t, err)

	category := base
	category.Category = "api"
	_, err = c.Search(ctx, category)
	require.NoError(t, err)

	assert.Equal(t, 3, runner.calls)
}

func TestCacheVersionBumpInvalidates(t *testing.T) {
	runner := &countingRunner{results: sampleResults()}
	versions := mapVersions{"t1": 1}
	c, err := New(runner, versions, 16)
	require.NoError(t, err)

	req := searcher.Request{TenantID: "t1", Query: "token", Mode: types.ModeKeyword, Limit: 10}
	_, err = c.Search(context.Background(), req)
	require.NoError(t, err)

	versions["t1"] = 2
	_, err = c.Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, runner.calls, "a version bump must bypass the old entry")
}

func TestCacheTTLExpiry(t *testing.T) {
	runner := &countingRunner{results: sampleResults()}
	c, err := New(runner, mapVersions{"t1": 1}, 16, WithTTL(10*time.Millisecond))
	require.NoError(t, err)

	req := searcher.Request{TenantID: "t1", Query: "token", Mode: types.ModeKeyword, Limit: 10}
	_, err = c.Search(context.Background(), req)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = c.Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, runner.calls)
}

func TestCacheHitReturnsIsolatedCopy(t *testing.T) {
	runner := &countingRunner{results: sampleResults()}
	c, err := New(runner, mapVersions{"t1": 1}, 16)
	require.NoError(t, err)

	req := searcher.Request{TenantID: "t1", Query: "token", Mode: types.ModeKeyword, Limit: 10}
	first, err := c.Search(context.Background(), req)
	require.NoError(t, err)
	first.Results[0].Content = "mutated"
	first.Results[0].Metadata["lang"] = "rust"

	second, err := c.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "alpha", second.Results[0].Content)
	assert.Equal(t, "go", second.Results[0].Metadata["lang"])
}

func TestCacheRunnerErrorNotCached(t *testing.T) {
	runner := &countingRunner{err: errors.New("embed down")}
	c, err := New(runner, mapVersions{"t1": 1}, 16)
	require.NoError(t, err)

	req := searcher.Request{TenantID: "t1", Query: "token", Mode: types.ModeKeyword, Limit: 10}
	_, err = c.Search(context.Background(), req)
	require.Error(t, err)
	_, err = c.Search(context.Background(), req)
	require.Error(t, err)

	assert.Equal(t, 2, runner.calls, "failures must not be memoized")
	assert.Zero(t, c.Len())
}

func TestCacheUnknownTenantPassesThrough(t *testing.T) {
	runner := &countingRunner{err: types.ErrTenantNotFound}
	c, err := New(runner, mapVersions{}, 16)
	require.NoError(t, err)

	_, err = c.Search(context.Background(), searcher.Request{TenantID: "ghost", Query: "x", Mode: types.ModeKeyword})
	assert.ErrorIs(t, err, types.ErrTenantNotFound)
}

func TestCacheBackendFailureDegrades(t *testing.T) {
	runner := &countingRunner{results: sampleResults()}
	backend := &flakyBackend{getErr: errors.New("conn refused"), setErr: errors.New("conn refused")}
	c, err := New(runner, mapVersions{"t1": 1}, 16, WithBackend(backend))
	require.NoError(t, err)

	resp, err := c.Search(context.Background(), searcher.Request{TenantID: "t1", Query: "token", Mode: types.ModeKeyword, Limit: 10})
	require.NoError(t, err, "a broken backend must never fail the query")
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, 1, backend.gets)
	assert.Equal(t, 1, backend.sets)
}

func TestCacheInvalidateTenant(t *testing.T) {
	runner := &countingRunner{results: sampleResults()}
	backend := &flakyBackend{}
	c, err := New(runner, mapVersions{"t1": 1, "t2": 1}, 16, WithBackend(backend))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.Search(ctx, searcher.Request{TenantID: "t1", Query: "token", Mode: types.ModeKeyword, Limit: 10})
	require.NoError(t, err)
	_, err = c.Search(ctx, searcher.Request{TenantID: "t2", Query: "token", Mode: types.ModeKeyword, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	c.InvalidateTenant(ctx, "t1")
	assert.Equal(t, 1, c.Len(), "only the named tenant's entries drop")
	assert.Equal(t, []string{"t1"}, backend.invalid)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "token refresh", NormalizeQuery("  Token\t REFRESH \n"))
	assert.Equal(t, "", NormalizeQuery("   "))
}
