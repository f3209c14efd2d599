package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// GoRedisClient adapts *redis.Client to the Redis interface the lock
// manager depends on.
type GoRedisClient struct {
	rdb *redis.Client
}

func NewGoRedisClient(rdb *redis.Client) *GoRedisClient {
	return &GoRedisClient{rdb: rdb}
}

func (c *GoRedisClient) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *GoRedisClient) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	return c.rdb.Eval(ctx, script, keys, args...).Result()
}
