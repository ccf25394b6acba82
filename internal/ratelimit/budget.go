package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Budget caps the lifetime number of requests per key. Counters never
// expire; once a key spends its budget it stays blocked. Like
// FixedWindow it fails closed on Redis errors.
type Budget struct {
	client *redis.Client
	prefix string
	limit  int
}

// NewBudget builds a lifetime budget counter over a shared Redis client.
func NewBudget(client *redis.Client, prefix string, limit int) (*Budget, error) {
	if client == nil {
		return nil, errors.New("budget requires a redis client")
	}
	if limit <= 0 {
		return nil, errors.New("budget requires a positive limit")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "docchat:budget"
	}
	return &Budget{client: client, prefix: prefix, limit: limit}, nil
}

// Spend consumes one unit of the key's budget and reports whether the
// key was still within it.
func (b *Budget) Spend(ctx context.Context, key string) bool {
	if b == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	count, err := b.client.Incr(ctx, fmt.Sprintf("%s:%s", b.prefix, key)).Result()
	if err != nil {
		return false
	}
	return count <= int64(b.limit)
}
