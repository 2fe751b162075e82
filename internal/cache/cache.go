// Package cache memoizes query responses keyed by the exact request shape
// and the tenant's index version. Because the version participates in the
// key, ingestion and deletion invalidate implicitly: stale entries stop
// being addressable and age out of the LRU.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/radarkb/retrieval-mcp/internal/searcher"
	"github.com/radarkb/retrieval-mcp/pkg/types"
)

const (
	// DefaultSize bounds the local LRU.
	DefaultSize = 1024
	// DefaultTTL bounds entry lifetime even when the version never moves.
	DefaultTTL = 5 * time.Minute
)

// QueryRunner executes queries on a cache miss.
type QueryRunner interface {
	Search(ctx context.Context, req searcher.Request) (*searcher.Response, error)
}

// VersionSource reports a tenant's current index version.
type VersionSource interface {
	Version(tenantID string) (uint64, error)
}

// Backend is an optional shared cache tier behind the local LRU. Backend
// failures must degrade to a miss, never to a query error.
type Backend interface {
	Get(ctx context.Context, key string) ([]types.ScoredResult, bool, error)
	Set(ctx context.Context, key string, results []types.ScoredResult, ttl time.Duration) error
	InvalidateTenant(ctx context.Context, tenantID string) error
	Close() error
}

type entry struct {
	results []types.ScoredResult
	version uint64
	expires time.Time
}

// Cache wraps a QueryRunner with version-keyed memoization.
type Cache struct {
	runner   QueryRunner
	versions VersionSource
	local    *lru.Cache[string, entry]
	backend  Backend
	ttl      time.Duration
	log      *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithBackend attaches a shared cache tier.
func WithBackend(b Backend) Option {
	return func(c *Cache) { c.backend = b }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// New returns a Cache of the given size in front of runner.
func New(runner QueryRunner, versions VersionSource, size int, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	local, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	c := &Cache{
		runner:   runner,
		versions: versions,
		local:    local,
		ttl:      DefaultTTL,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Search serves the request from cache when an entry for the tenant's
// current version exists, executing and storing it otherwise.
func (c *Cache) Search(ctx context.Context, req searcher.Request) (*searcher.Response, error) {
	version, err := c.versions.Version(req.TenantID)
	if err != nil {
		// Unknown tenant; let the runner produce the authoritative error.
		return c.runner.Search(ctx, req)
	}

	key := c.key(req, version)

	if ent, ok := c.local.Get(key); ok {
		if time.Now().Before(ent.expires) {
			c.hits.Add(1)
			return &searcher.Response{Results: cloneResults(ent.results), Version: ent.version}, nil
		}
		c.local.Remove(key)
	}

	if c.backend != nil {
		results, ok, berr := c.backend.Get(ctx, key)
		if berr != nil {
			c.log.Warn("cache backend read failed", zap.Error(fmt.Errorf("%v: %w", berr, types.ErrCacheUnavailable)))
		} else if ok {
			c.hits.Add(1)
			c.local.Add(key, entry{results: cloneResults(results), version: version, expires: time.Now().Add(c.ttl)})
			return &searcher.Response{Results: results, Version: version}, nil
		}
	}

	c.misses.Add(1)
	resp, err := c.runner.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	c.local.Add(key, entry{
		results: cloneResults(resp.Results),
		version: resp.Version,
		expires: time.Now().Add(c.ttl),
	})
	if c.backend != nil {
		if berr := c.backend.Set(ctx, key, resp.Results, c.ttl); berr != nil {
			c.log.Warn("cache backend write failed", zap.Error(fmt.Errorf("%v: %w", berr, types.ErrCacheUnavailable)))
		}
	}
	return resp, nil
}

// InvalidateTenant drops every entry belonging to tenantID. Version keying
// already prevents stale reads after ingestion; this exists for tenant
// deletion, where a recreated tenant restarts its version counter.
func (c *Cache) InvalidateTenant(ctx context.Context, tenantID string) {
	prefix := tenantID + ":"
	for _, key := range c.local.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.local.Remove(key)
		}
	}
	if c.backend != nil {
		if err := c.backend.InvalidateTenant(ctx, tenantID); err != nil {
			c.log.Warn("cache backend invalidation failed", zap.String("tenant", tenantID), zap.Error(err))
		}
	}
}

// HitRate returns the fraction of lookups served from cache since startup.
func (c *Cache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Len reports the local entry count.
func (c *Cache) Len() int { return c.local.Len() }

func (c *Cache) key(req searcher.Request, version uint64) string {
	mode := req.Mode
	if mode == "" {
		mode = types.ModeHybrid
	}
	limit := req.Limit
	if limit <= 0 {
		limit = searcher.DefaultLimit
	}
	h := sha256.Sum256([]byte(strings.Join([]string{
		NormalizeQuery(req.Query),
		string(mode),
		strconv.FormatFloat(req.Alpha, 'f', -1, 64),
		strconv.Itoa(limit),
		req.Category,
		strconv.FormatUint(version, 10),
	}, "\x00")))
	return req.TenantID + ":" + hex.EncodeToString(h[:])
}

// NormalizeQuery lowercases and collapses whitespace so trivially different
// spellings of the same query share a cache entry.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func cloneResults(in []types.ScoredResult) []types.ScoredResult {
	out := make([]types.ScoredResult, len(in))
	copy(out, in)
	for i := range out {
		if len(in[i].Metadata) > 0 {
			md := make(map[string]string, len(in[i].Metadata))
			for k, v := range in[i].Metadata {
				md[k] = v
			}
			out[i].Metadata = md
		}
	}
	return out
}
