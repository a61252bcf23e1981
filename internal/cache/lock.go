package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock acquires a distributed lock via SET NX EX and returns a fencing
// token. ok is false when the lock is already held.
func (c *Cache) Lock(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", false, fmt.Errorf("generate lock token: %w", err)
	}
	token = hex.EncodeToString(buf)

	ok, err = c.rdb.SetNX(ctx, "lock:"+name, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock releases the lock only if token still owns it.
func (c *Cache) Unlock(ctx context.Context, name, token string) error {
	released, err := unlockScript.Run(ctx, c.rdb, []string{"lock:" + name}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	if released == 0 {
		return fmt.Errorf("lock %s not held by this token", name)
	}
	return nil
}
