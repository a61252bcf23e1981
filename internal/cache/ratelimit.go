package cache

import (
	"context"
	"fmt"
	"time"
)

// IncrWindow atomically increments a fixed-window counter, stamping the
// window's expiry on first increment. Returns the count after increment.
func (c *Cache) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment window %s: %w", key, err)
	}
	return incr.Val(), nil
}

// SetBlock marks a caller as blocked for the given duration.
func (c *Cache) SetBlock(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("set block %s: %w", key, err)
	}
	return nil
}

// BlockTTL returns the remaining block duration, zero when not blocked.
func (c *Cache) BlockTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("check block %s: %w", key, err)
	}
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}
