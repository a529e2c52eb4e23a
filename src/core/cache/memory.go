package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory keeps entries in process memory.
type Memory struct {
	store *gocache.Cache
}

// NewMemory creates an in-process cache; entries expire after ttl, or never
// when ttl is zero.
func NewMemory(ttl time.Duration) *Memory {
	exp := gocache.NoExpiration
	cleanup := time.Duration(0)
	if t := ttlOrForever(ttl); t > 0 {
		exp = t
		cleanup = 2 * t
	}
	return &Memory{store: gocache.New(exp, cleanup)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := m.store.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (m *Memory) Set(_ context.Context, key string, value []byte) {
	m.store.Set(key, value, gocache.DefaultExpiration)
}

func (m *Memory) Del(_ context.Context, key string) {
	m.store.Delete(key)
}

// Len reports the number of live entries.
func (m *Memory) Len() int {
	return m.store.ItemCount()
}
