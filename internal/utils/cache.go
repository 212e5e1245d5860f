package utils

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheItem[V any] struct {
	data      V
	expiresAt time.Time
}

// TTLCache 带过期时间的 LRU 缓存，用于页面数据
type TTLCache[V any] struct {
	lruCache *lru.Cache[string, cacheItem[V]]
	now      func() time.Time
}

func NewTTLCache[V any](size int) *TTLCache[V] {
	if size <= 0 {
		size = 500
	}
	// size > 0 时 lru.New 不会返回错误
	l, _ := lru.New[string, cacheItem[V]](size)
	return &TTLCache[V]{lruCache: l, now: time.Now}
}

func (c *TTLCache[V]) Set(key string, data V, ttl time.Duration) {
	c.lruCache.Add(key, cacheItem[V]{
		data:      data,
		expiresAt: c.now().Add(ttl),
	})
}

// Get 不存在或已过期时 ok 为 false
func (c *TTLCache[V]) Get(key string) (data V, ok bool) {
	item, found := c.lruCache.Get(key)
	if !found {
		return data, false
	}
	if c.now().After(item.expiresAt) {
		c.lruCache.Remove(key)
		return data, false
	}
	return item.data, true
}

func (c *TTLCache[V]) Delete(key string) {
	c.lruCache.Remove(key)
}
