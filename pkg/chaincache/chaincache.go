// Package chaincache is a short-lived read-through cache for the
// canonical chain tip, used only by the dashboard's tip endpoint: the
// scheduler's own tick always asks the adapter directly, never this
// cache, so a stale cached tip can never under- or over-schedule work.
package chaincache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	applerrors "github.com/blockset-corp/chainaudit/internal/errors"
)

// DefaultTTL is the cache horizon for the dashboard's chain-tip cache.
const DefaultTTL = 10 * time.Second

// Cache is a Redis-backed read-through cache keyed by blockchain_id.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// New builds a Cache with the given TTL.
func New(redisClient *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{redis: redisClient, ttl: ttl}
}

// GetOrFetch returns the cached chain tip height for blockchainID if
// present and unexpired, otherwise calls fetch, caches its result for
// the configured TTL, and returns it.
func (c *Cache) GetOrFetch(ctx context.Context, blockchainID string, fetch func(ctx context.Context) (int64, error)) (int64, error) {
	key := cacheKey(blockchainID)

	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		height, parseErr := strconv.ParseInt(cached, 10, 64)
		if parseErr == nil {
			return height, nil
		}
	} else if err != redis.Nil {
		return 0, applerrors.Wrap(err, applerrors.ErrorTypeNetwork, "failed to read chain tip cache")
	}

	height, err := fetch(ctx)
	if err != nil {
		return 0, err
	}

	// Best-effort: a failed cache write just means the next dashboard
	// request re-fetches; it never blocks the caller's result.
	c.redis.Set(ctx, key, strconv.FormatInt(height, 10), c.ttl)
	return height, nil
}

// Invalidate removes any cached tip for blockchainID.
func (c *Cache) Invalidate(ctx context.Context, blockchainID string) error {
	if err := c.redis.Del(ctx, cacheKey(blockchainID)).Err(); err != nil {
		return applerrors.Wrap(err, applerrors.ErrorTypeNetwork, "failed to invalidate chain tip cache")
	}
	return nil
}

func cacheKey(blockchainID string) string {
	return "chainaudit:chaintip:" + blockchainID
}
