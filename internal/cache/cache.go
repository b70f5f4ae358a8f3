package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/db"
	"github.com/kailas-cloud/bookdex/internal/metrics"
)

// store is the consumer interface for cache entries (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Cache stores JSON-encoded action results under a dedicated key
// namespace with a uniform TTL. A stale or missing entry is never an
// error for callers; reads degrade to a miss.
type Cache struct {
	store  store
	log    *zap.Logger
	prefix string
	ttl    time.Duration
}

// New creates a cache under keyPrefix+"cache:".
func New(s store, log *zap.Logger, keyPrefix string, ttl time.Duration) *Cache {
	return &Cache{
		store:  s,
		log:    log.Named("cache"),
		prefix: keyPrefix + "cache:",
		ttl:    ttl,
	}
}

// Key builds a cache key from an action name and its parameters.
func (c *Cache) Key(action string, params ...string) string {
	if len(params) == 0 {
		return c.prefix + action
	}
	return c.prefix + action + ":" + strings.Join(params, ":")
}

// Prefix builds a wildcard pattern covering every entry of an action,
// optionally narrowed by leading parameters.
func (c *Cache) Prefix(action string, params ...string) string {
	return c.Key(action, params...) + "*"
}

// Get loads a cached value into dest. Returns false on miss; store
// errors are logged and degrade to a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		metrics.CacheTotal.WithLabelValues("miss").Inc()
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.log.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		metrics.CacheTotal.WithLabelValues("miss").Inc()
		return false
	}
	metrics.CacheTotal.WithLabelValues("hit").Inc()
	return true
}

// Set stores a value under key with the cache TTL. Failures are
// logged, not surfaced: the source of truth already holds the data.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, raw, c.ttl); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes a single entry, or every entry matching a
// pattern when keyOrPattern ends with "*". Removing an absent entry
// is a no-op.
func (c *Cache) Invalidate(ctx context.Context, keyOrPattern string) error {
	if !strings.HasSuffix(keyOrPattern, "*") {
		if err := c.store.Del(ctx, keyOrPattern); err != nil {
			return fmt.Errorf("invalidate %s: %w", keyOrPattern, err)
		}
		return nil
	}

	keys, err := c.store.Scan(ctx, keyOrPattern)
	if err != nil {
		return fmt.Errorf("scan %s: %w", keyOrPattern, err)
	}
	for _, key := range keys {
		if err := c.store.Del(ctx, key); err != nil {
			return fmt.Errorf("invalidate %s: %w", key, err)
		}
	}
	return nil
}
