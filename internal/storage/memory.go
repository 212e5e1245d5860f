package storage

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryKV 带配额的内存 KV，配额按所有键值的字节数计算
type MemoryKV struct {
	mu    sync.RWMutex
	data  map[string]string
	quota int
	used  int
}

func NewMemoryKV(quota int) *MemoryKV {
	return &MemoryKV{
		data:  make(map[string]string),
		quota: quota,
	}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.used + entrySize(key, value)
	if old, exists := m.data[key]; exists {
		next -= entrySize(key, old)
	}
	if m.quota > 0 && next > m.quota {
		return fmt.Errorf("set %s: %w", key, ErrQuotaExceeded)
	}

	m.data[key] = value
	m.used = next
	return nil
}

func (m *MemoryKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.data[key]; ok {
		m.used -= entrySize(key, v)
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryKV) Used() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

func entrySize(key, value string) int {
	return len(key) + len(value)
}

// MemoryPool 无 Redis 时使用，最近最少使用的客户端存储会被淘汰
type MemoryPool struct {
	stores *lru.Cache[string, *MemoryKV]
	quota  int
	mu     sync.Mutex
}

func NewMemoryPool(size, quota int) (*MemoryPool, error) {
	l, err := lru.New[string, *MemoryKV](size)
	if err != nil {
		return nil, fmt.Errorf("create memory pool: %w", err)
	}
	return &MemoryPool{stores: l, quota: quota}, nil
}

func (p *MemoryPool) Open(clientID string) KV {
	p.mu.Lock()
	defer p.mu.Unlock()

	if kv, ok := p.stores.Get(clientID); ok {
		return kv
	}
	kv := NewMemoryKV(p.quota)
	p.stores.Add(clientID, kv)
	return kv
}
