package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrUnavailable   = errors.New("storage unavailable")
)

// KV 单个客户端的持久键值存储，值为 JSON 文本
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Pool 按客户端 ID 提供 KV
type Pool interface {
	Open(clientID string) KV
}
