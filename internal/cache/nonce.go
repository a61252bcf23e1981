package cache

import (
	"context"
	"fmt"
	"time"
)

// DefaultNonceTTL is how long an accepted callback nonce stays reserved.
const DefaultNonceTTL = 600 * time.Second

// CheckAndStoreNonce reserves a callback nonce. Returns true iff the nonce
// was not already present, i.e. this is its first use within the TTL window.
func (c *Cache) CheckAndStoreNonce(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	fresh, err := c.rdb.SetNX(ctx, "nonce:"+nonce, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("store nonce: %w", err)
	}
	return fresh, nil
}
