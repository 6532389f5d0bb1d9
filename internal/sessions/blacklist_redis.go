package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Access tokens revoked at logout are kept in Redis until they would have
// expired anyway. Without Redis, revocation is a no-op and tokens simply
// run out their TTL.
var (
	blacklistMu     sync.RWMutex
	blacklistClient *redis.Client
)

// SetBlacklistClient configures the Redis client used for blacklist operations.
// Safe to call with nil to disable blacklist features.
func SetBlacklistClient(c *redis.Client) {
	blacklistMu.Lock()
	defer blacklistMu.Unlock()
	blacklistClient = c
}

func blacklist() *redis.Client {
	blacklistMu.RLock()
	defer blacklistMu.RUnlock()
	return blacklistClient
}

func blacklistKey(token string) string {
	return "blacklist:access:" + HashToken(token)
}

// BlacklistAccessToken revokes token for ttl.
func BlacklistAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	c := blacklist()
	if c == nil || ttl <= 0 {
		return nil
	}
	return c.Set(ctx, blacklistKey(token), "1", ttl).Err()
}

// IsAccessTokenBlacklisted reports whether token was revoked.
// If no Redis client is configured, returns (false, nil).
func IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	c := blacklist()
	if c == nil {
		return false, nil
	}
	exists, err := c.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
