package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a held distributed lock
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// TryLock acquires name for ttl. It returns false without error when another
// holder owns the lock.
func (c *LeaderboardCache) TryLock(ctx context.Context, name string, ttl time.Duration) (*Lock, bool, error) {
	key := "lock:" + name
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{client: c.client, key: key, token: token}, true, nil
}

// Release frees the lock if it has not expired and been taken by someone else
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}
