// Package cache holds the read-through store for assembled post responses.
package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"Postboard/src/core/config"

	"github.com/google/uuid"
)

// Cache is a key-value store for serialized responses. Implementations log
// their own failures; a failed Get is a miss and a failed Set or Del is
// ignored by callers.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Del(ctx context.Context, key string)
}

// PostKey is the cache key of a single post.
func PostKey(id uuid.UUID) string {
	return fmt.Sprintf("post_%s", id)
}

// New returns the cache selected by CACHE_DRIVER.
func New(s config.Settings) (Cache, error) {
	switch s.CacheDriver {
	case "memory", "":
		return NewMemory(s.CacheTTL), nil
	case "redis":
		return NewRedis(s.RedisURL, s.CacheTTL)
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unsupported CACHE_DRIVER %q", s.CacheDriver)
	}
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Nop) Set(context.Context, string, []byte)        {}
func (Nop) Del(context.Context, string)                {}

// InvalidatePosts drops the entries of every post in ids.
func InvalidatePosts(ctx context.Context, c Cache, ids []uuid.UUID) {
	for _, id := range ids {
		c.Del(ctx, PostKey(id))
	}
}

func logFailure(op, key string, err error) {
	log.Printf("[Cache] %s %s failed: %v", op, key, err)
}

// ttlOrForever maps a non-positive ttl to "no expiry".
func ttlOrForever(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}
