package queue

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// GoRedisClient adapts *redis.Client to the redisClient interface the
// queue depends on. Production code constructs one of these; tests use a
// hand-rolled fake instead.
type GoRedisClient struct {
	rdb *redis.Client
}

func NewGoRedisClient(rdb *redis.Client) *GoRedisClient {
	return &GoRedisClient{rdb: rdb}
}

func (c *GoRedisClient) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	return c.rdb.Eval(ctx, script, keys, args...).Result()
}

func (c *GoRedisClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (c *GoRedisClient) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.rdb.ZRange(ctx, key, start, stop).Result()
}

func (c *GoRedisClient) ZRangeByScore(ctx context.Context, key, min, max string) ([]string, error) {
	return c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: max}).Result()
}

func (c *GoRedisClient) ZRem(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.ZRem(ctx, key, args...).Err()
}

func (c *GoRedisClient) ZCard(ctx context.Context, key string) (int64, error) {
	return c.rdb.ZCard(ctx, key).Result()
}

func (c *GoRedisClient) HSet(ctx context.Context, key string, values map[string]string) error {
	fields := make(map[string]any, len(values))
	for k, v := range values {
		fields[k] = v
	}
	return c.rdb.HSet(ctx, key, fields).Err()
}

func (c *GoRedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

func (c *GoRedisClient) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *GoRedisClient) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.SAdd(ctx, key, args...).Err()
}

func (c *GoRedisClient) SCard(ctx context.Context, key string) (int64, error) {
	return c.rdb.SCard(ctx, key).Result()
}

func (c *GoRedisClient) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.rdb.SMembers(ctx, key).Result()
}

func (c *GoRedisClient) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.SRem(ctx, key, args...).Err()
}

func (c *GoRedisClient) Incr(ctx context.Context, key string) error {
	return c.rdb.Incr(ctx, key).Err()
}

func (c *GoRedisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "0", nil
	}
	return val, err
}
