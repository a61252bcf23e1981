// Package cache implements the two-tier cache: a bounded in-process LRU in
// front of Redis. It also hosts the distributed lock and nonce store built on
// the same Redis client.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// l1MaxTTL caps how long an entry repopulated from L2 may live in L1.
const l1MaxTTL = 60 * time.Second

type l1Entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is the two-tier cache. Reads try L1 then L2, repopulating L1 on an
// L2 hit. On Redis unavailability operations degrade instead of failing:
// reads miss, writes apply to L1 only, and the caller is told via the
// degraded flag where it matters.
type Cache struct {
	mu     sync.RWMutex
	l1     *lru.Cache[string, l1Entry]
	rdb    *redis.Client
	logger *slog.Logger
}

// New creates a two-tier cache with a bounded L1 of the given size.
func New(rdb *redis.Client, l1Size int, logger *slog.Logger) (*Cache, error) {
	if l1Size <= 0 {
		l1Size = 4096
	}
	l1, err := lru.New[string, l1Entry](l1Size)
	if err != nil {
		return nil, err
	}
	return &Cache{l1: l1, rdb: rdb, logger: logger}, nil
}

// Get returns the cached value for key and whether it was found.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.l1.Get(key)
	c.mu.RUnlock()
	if ok {
		if time.Now().Before(entry.expiresAt) {
			return entry.value, true
		}
		c.mu.Lock()
		c.l1.Remove(key)
		c.mu.Unlock()
	}

	pipe := c.rdb.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache L2 read failed", "key", key, "error", err)
		}
		return nil, false
	}

	value := []byte(getCmd.Val())
	ttl := ttlCmd.Val()
	if ttl <= 0 || ttl > l1MaxTTL {
		ttl = l1MaxTTL
	}
	c.setL1(key, value, ttl)
	return value, true
}

// Set writes the value through both tiers.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.setL1(key, value, minTTL(ttl))
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("cache L2 write failed", "key", key, "error", err)
	}
}

// SetWithTags writes the value and registers key under each tag's member set
// in a single pipeline, so later InvalidateByTag calls can find it.
func (c *Cache) SetWithTags(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) {
	c.setL1(key, value, minTTL(ttl))

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, key, value, ttl)
	for _, tag := range tags {
		tagKey := "tag:" + tag
		pipe.SAdd(ctx, tagKey, key)
		pipe.Expire(ctx, tagKey, ttl+time.Minute)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("cache tagged write failed", "key", key, "error", err)
	}
}

// Delete removes keys from both tiers.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	c.mu.Lock()
	for _, k := range keys {
		c.l1.Remove(k)
	}
	c.mu.Unlock()
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache L2 delete failed", "error", err)
	}
}

// InvalidateByTag drops every key registered under the given tags, plus the
// tag sets themselves, in one pipeline per tag. Failures are logged but not
// returned: callers must tolerate brief staleness.
func (c *Cache) InvalidateByTag(ctx context.Context, tags ...string) {
	for _, tag := range tags {
		tagKey := "tag:" + tag
		members, err := c.rdb.SMembers(ctx, tagKey).Result()
		if err != nil {
			c.logger.Warn("cache tag lookup failed", "tag", tag, "error", err)
			continue
		}

		c.mu.Lock()
		for _, k := range members {
			c.l1.Remove(k)
		}
		c.mu.Unlock()

		pipe := c.rdb.Pipeline()
		if len(members) > 0 {
			pipe.Del(ctx, members...)
		}
		pipe.Del(ctx, tagKey)
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.Warn("cache tag invalidation failed", "tag", tag, "error", err)
		}
	}
}

// GetOrCompute returns the cached value for key, computing and caching it on
// a miss. The degraded result reports that Redis was unreachable and the
// value came straight from fn; it is never an error for the caller.
func (c *Cache) GetOrCompute(ctx context.Context, key string, tags []string, ttl time.Duration, fn func(context.Context) ([]byte, error)) (value []byte, degraded bool, err error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, false, nil
	}

	v, err := fn(ctx)
	if err != nil {
		return nil, false, err
	}

	if pingErr := c.rdb.Ping(ctx).Err(); pingErr != nil {
		c.setL1(key, v, minTTL(ttl))
		return v, true, nil
	}

	if len(tags) > 0 {
		c.SetWithTags(ctx, key, v, tags, ttl)
	} else {
		c.Set(ctx, key, v, ttl)
	}
	return v, false, nil
}

func (c *Cache) setL1(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	c.l1.Add(key, l1Entry{value: value, expiresAt: time.Now().Add(ttl)})
	c.mu.Unlock()
}

func minTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > l1MaxTTL {
		return l1MaxTTL
	}
	return ttl
}
