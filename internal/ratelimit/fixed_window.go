package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTimeout = 2 * time.Second

var incrExpireScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// FixedWindow counts requests per key inside fixed wall-clock windows.
// State lives in Redis so every replica sees the same counters. On
// Redis failures it fails closed.
type FixedWindow struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewFixedWindow builds a limiter over a shared Redis client.
func NewFixedWindow(client *redis.Client, prefix string, limit int, window time.Duration) (*FixedWindow, error) {
	if client == nil {
		return nil, errors.New("rate limiter requires a redis client")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "docchat:ratelimit"
	}
	return &FixedWindow{client: client, prefix: prefix, limit: limit, window: window}, nil
}

// Allow reports whether the key is still within quota for the current
// window. Empty keys share the "unknown" bucket.
func (l *FixedWindow) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	count, err := incrExpireScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false
	}
	return count <= int64(l.limit)
}

// RetryAfter returns the time remaining in the current window, for
// Retry-After headers on rejected requests.
func (l *FixedWindow) RetryAfter() time.Duration {
	windowMs := l.window.Milliseconds()
	elapsed := time.Now().UTC().UnixMilli() % windowMs
	return time.Duration(windowMs-elapsed) * time.Millisecond
}
