package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/metrics"
)

// ComputeFunc produces the value for a cache miss. It runs without any cache
// lock held; errors propagate to the caller and are never cached.
type ComputeFunc func(ctx context.Context) (interface{}, error)

type entry struct {
	value     interface{}
	fetchID   string
	scope     Scope
	createdAt time.Time
	expiresAt time.Time
}

// call tracks an in-flight computation so concurrent misses for the same key
// share one invocation of the compute callback.
type call struct {
	done chan struct{}
	val  interface{}
	err  error
}

// Cache memoizes expensive aggregate queries with category-specific TTLs and
// table/tenant-scoped invalidation. Process-local, not distributed.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	inflight map[string]*call

	categories []categoryTTL
	defaultTTL time.Duration

	hits   uint64
	misses uint64

	logger *slog.Logger
}

func New(logger *slog.Logger, defaultTTL time.Duration, extraCategories map[string]time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	cats := make([]categoryTTL, 0, len(defaultCategories)+len(extraCategories))
	for match, ttl := range extraCategories {
		cats = append(cats, categoryTTL{match: normalize(match), ttl: ttl})
	}
	cats = append(cats, defaultCategories...)

	return &Cache{
		entries:    make(map[string]*entry),
		inflight:   make(map[string]*call),
		categories: cats,
		defaultTTL: defaultTTL,
		logger:     logger.With(slog.String("component", "cache")),
	}
}

// GetOrCompute returns the cached value for (fetchID, params, scope) or
// invokes computeFn and caches its result. Concurrent callers for the same
// not-yet-cached key await a single computation.
func (c *Cache) GetOrCompute(ctx context.Context, fetchID string, params []interface{}, scope Scope, computeFn ComputeFunc) (interface{}, error) {
	key := Key(fetchID, params, scope)
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Before(e.expiresAt) {
		c.hits++
		c.mu.Unlock()
		metrics.CacheHits.Inc()
		return e.value, nil
	}
	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.val, cl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.misses++
	c.mu.Unlock()
	metrics.CacheMisses.Inc()

	val, err := computeFn(ctx)

	c.mu.Lock()
	delete(c.inflight, key)
	if err == nil {
		normID := normalize(fetchID)
		ttl := c.ttlFor(normID)
		c.entries[key] = &entry{
			value:     val,
			fetchID:   normID,
			scope:     scope,
			createdAt: now,
			expiresAt: now.Add(ttl),
		}
	}
	c.mu.Unlock()

	cl.val, cl.err = val, err
	close(cl.done)

	if err != nil {
		c.logger.Warn("Compute failed, nothing cached",
			slog.String("fetchID", fetchID),
			slog.Any("error", err),
		)
	}
	return val, err
}

// Has reports whether a live (non-expired) entry exists.
func (c *Cache) Has(fetchID string, params []interface{}, scope Scope) bool {
	return c.TTLRemaining(fetchID, params, scope) > 0
}

// TTLRemaining returns the remaining lifetime of an entry, or zero when the
// entry is absent or expired.
func (c *Cache) TTLRemaining(fetchID string, params []interface{}, scope Scope) time.Duration {
	key := Key(fetchID, params, scope)

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return 0
	}
	remaining := time.Until(e.expiresAt)
	if remaining <= 0 {
		delete(c.entries, key)
		return 0
	}
	return remaining
}

// InvalidateByCategory removes every entry whose fetch identifier contains
// category. tenantID scopes the invalidation to one tenant; zero clears the
// category across all tenants. This is how a CRUD mutation forces freshness
// without waiting for TTL expiry.
func (c *Cache) InvalidateByCategory(category string, tenantID int) int {
	needle := normalize(category)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if !strings.Contains(e.fetchID, needle) {
			continue
		}
		if tenantID != 0 && e.scope.TenantID != tenantID {
			continue
		}
		delete(c.entries, key)
		removed++
	}
	if removed > 0 {
		c.logger.Debug("Invalidated category",
			slog.String("category", needle),
			slog.Int("tenantID", tenantID),
			slog.Int("removed", removed),
		)
	}
	return removed
}

// ClearAll drops every entry.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.logger.Info("Cache cleared")
}

// Purge removes expired entries; invoked opportunistically by the core's
// maintenance ticker.
func (c *Cache) Purge() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// CacheStats summarizes cache usage for the admin surface.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
