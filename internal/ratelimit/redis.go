package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/brizzai/diary-auth/internal/config"
	"github.com/redis/go-redis/v9"
)

// incrScript increments the key and starts its window on the first hit
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore shares counters between handler instances
type RedisStore struct {
	client redis.Scripter
	now    func() time.Time
}

// NewRedisStore connects to redis and checks it answers
func NewRedisStore(cfg config.RateLimitConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	res, err := incrScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Counter{}, fmt.Errorf("rate limit increment: %w", err)
	}
	if len(res) != 2 {
		return Counter{}, fmt.Errorf("rate limit increment: unexpected reply %v", res)
	}
	return Counter{
		Count:   int(res[0]),
		ResetAt: s.now().Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}
