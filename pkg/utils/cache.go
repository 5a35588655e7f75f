package utils

import (
	"sync"
	"time"
)

// TTLCache is a concurrency-safe in-memory cache with per-entry expiry.
type TTLCache[T any] struct {
	// 使用 sync.Map 保证并发安全
	items sync.Map
	ttl   time.Duration
	now   func() time.Time

	loadMu sync.Mutex
}

// cacheItem 内部结构，包含值和过期时间
type cacheItem[T any] struct {
	value      T
	expiration time.Time
}

// NewTTLCache creates a cache whose entries live for ttl.
func NewTTLCache[T any](ttl time.Duration) *TTLCache[T] {
	return &TTLCache[T]{ttl: ttl, now: time.Now}
}

// SetClock replaces the clock (tests).
func (c *TTLCache[T]) SetClock(fn func() time.Time) { c.now = fn }

// Set stores value under key.
func (c *TTLCache[T]) Set(key string, value T) {
	c.items.Store(key, cacheItem[T]{value: value, expiration: c.now().Add(c.ttl)})
}

// Get returns the value and whether it is present and fresh.
func (c *TTLCache[T]) Get(key string) (T, bool) {
	var zero T
	val, ok := c.items.Load(key)
	if !ok {
		return zero, false
	}
	item := val.(cacheItem[T])
	if c.now().After(item.expiration) {
		c.items.Delete(key) // 懒删除
		return zero, false
	}
	return item.value, true
}

// Delete removes key.
func (c *TTLCache[T]) Delete(key string) {
	c.items.Delete(key)
}

// Clear removes every entry.
func (c *TTLCache[T]) Clear() {
	c.items.Range(func(k, _ any) bool {
		c.items.Delete(k)
		return true
	})
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Errors are not cached. Concurrent misses are serialized so load runs once.
func (c *TTLCache[T]) GetOrLoad(key string, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}
