package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HMSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return allowed
`

// RedisStore keeps window counters and burst buckets in Redis.
type RedisStore struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (s *RedisStore) Counts(ctx context.Context, keys []string) ([]int64, error) {
	if s == nil || s.client == nil {
		return nil, ErrStoreGone
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	counts := make([]int64, len(keys))
	for i, raw := range values {
		if raw == nil {
			continue
		}
		switch v := raw.(type) {
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				counts[i] = n
			}
		case int64:
			counts[i] = v
		}
	}
	return counts, nil
}

func (s *RedisStore) Increment(ctx context.Context, entries []CounterEntry) error {
	if s == nil || s.client == nil {
		return ErrStoreGone
	}
	if len(entries) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, e := range entries {
		pipe.Incr(ctx, e.Key)
		pipe.ExpireAt(ctx, e.Key, e.ExpireAt)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) TakeToken(ctx context.Context, key string, rate float64, burst int) (bool, error) {
	if s == nil || s.client == nil {
		return false, ErrStoreGone
	}
	if key == "" {
		return false, ErrEmptyKey
	}
	if rate <= 0 || burst <= 0 {
		return false, errors.New("token bucket rate and burst must be positive")
	}

	ttl := bucketTTL(rate, burst)
	allowed, err := s.script.Run(ctx, s.client, []string{key}, rate, burst, int64(ttl/time.Millisecond)).Int64()
	if err != nil {
		return false, err
	}
	return allowed == 1, nil
}

func bucketTTL(rate float64, burst int) time.Duration {
	seconds := (float64(burst) / rate) * 2
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds * float64(time.Second))
}
