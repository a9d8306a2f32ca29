package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "slidebolt:rate:"

// incrementScript mirrors the SQLite conditional upsert: compare, then
// INCR and EXPIRE, all inside one script so it is atomic.
var incrementScript = goredis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
	return 0
end
redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

// RedisStore keeps windows as expiring Redis counters.
type RedisStore struct {
	client goredis.Scripter
}

// NewRedisStore creates a store over a connected client.
func NewRedisStore(client goredis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

// RedisKey returns the counter key for one window.
func RedisKey(hubID, window string) string {
	return redisKeyPrefix + hubID + ":" + window
}

// Increment runs the admission script.
func (s *RedisStore) Increment(ctx context.Context, hubID, window string, limit int, ttl time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	seconds := int(ttl / time.Second)
	if seconds <= 0 {
		seconds = 1
	}

	admitted, err := incrementScript.Run(ctx, s.client, []string{RedisKey(hubID, window)}, limit, seconds).Int()
	if err != nil {
		return false, fmt.Errorf("incrementing rate window: %w", err)
	}
	return admitted == 1, nil
}
