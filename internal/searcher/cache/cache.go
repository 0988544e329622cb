// Package cache memoises search results in Redis. Keys embed the generation
// id, so a rebuild naturally stops old entries from being served; Invalidate
// removes them eagerly.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/incident-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/incident-search/pkg/redis"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, generation uint64, q executor.Query) (*executor.SearchResult, bool) {
	key := BuildKey(generation, q)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "generation", generation, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, q executor.Query, result *executor.SearchResult) {
	key := BuildKey(result.Generation, q)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute serves q for generation from the cache, computing it at most
// once per key across concurrent callers. The computed result is stored under
// the generation it was actually served from. Errors are never cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation uint64,
	q executor.Query,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, generation, q); ok {
		return result, true, nil
	}
	key := BuildKey(generation, q)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, q, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey derives the cache key of q within generation. Queries that parse
// to the same plan and select the same filters share a key. Text that yields
// no terms matches nothing, so it never shares a key with a filter-only
// query.
func BuildKey(generation uint64, q executor.Query) string {
	raw := fmt.Sprintf("gen=%d|text=%t|%s|%s|limit=%d|offset=%d|records=%t",
		generation,
		strings.TrimSpace(q.Text) != "",
		parser.Parse(q.Text).Canonical(),
		normalizeFilters(q.Filters),
		q.Limit,
		q.Offset,
		q.WithRecords,
	)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%d:%x", keyPrefix, generation, hash[:16])
}

func normalizeFilters(filters map[string][]string) string {
	fields := make([]string, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		values := make([]string, 0, len(filters[f]))
		for _, v := range filters[f] {
			values = append(values, strings.TrimSpace(v))
		}
		sort.Strings(values)
		parts = append(parts, strings.ToLower(strings.TrimSpace(f))+"="+strings.Join(values, ","))
	}
	return strings.Join(parts, "&")
}
