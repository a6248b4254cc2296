package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/market"
)

// Cache stores fetched candle ranges keyed by CacheKey. Reads are
// concurrent; writes are serialised by the implementation.
type Cache interface {
	Get(ctx context.Context, key string) ([]market.Candle, bool)
	Set(ctx context.Context, key string, candles []market.Candle) error
}

// MemoryCache is a process-local cache. Reads take the read lock;
// the single write lock serialises insertion.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]market.Candle
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]market.Candle)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]market.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	candles, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	out := make([]market.Candle, len(candles))
	copy(out, candles)
	return out, true
}

func (c *MemoryCache) Set(_ context.Context, key string, candles []market.Candle) error {
	stored := make([]market.Candle, len(candles))
	copy(stored, candles)
	c.mu.Lock()
	c.entries[key] = stored
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached ranges.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache shares candle ranges across processes. Entries expire so
// stale ranges do not accumulate.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *logging.Logger
}

// NewRedisCache wraps an existing redis client. A zero ttl disables
// expiry.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, log *logging.Logger) *RedisCache {
	if prefix == "" {
		prefix = "klines:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, log: log.WithComponent("rediscache")}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]market.Candle, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var candles []market.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		c.log.Warn("cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return candles, true
}

func (c *RedisCache) Set(ctx context.Context, key string, candles []market.Candle) error {
	data, err := json.Marshal(candles)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
}
