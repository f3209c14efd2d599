package poller

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const cursorKey = "marketplace_b:last_timestamp"

// RedisCursorStore persists PollCursor in the shared key-value store
// under marketplace_b:last_timestamp, per spec §4.E / §6.
type RedisCursorStore struct {
	client *redis.Client
}

func NewRedisCursorStore(client *redis.Client) *RedisCursorStore {
	return &RedisCursorStore{client: client}
}

// LoadCursor returns 0 when no cursor has been written yet; the caller
// applies the default lookback window in that case.
func (s *RedisCursorStore) LoadCursor(ctx context.Context) (int64, error) {
	val, err := s.client.Get(ctx, cursorKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func (s *RedisCursorStore) SaveCursor(ctx context.Context, unixSeconds int64) error {
	return s.client.Set(ctx, cursorKey, strconv.FormatInt(unixSeconds, 10), 0).Err()
}
