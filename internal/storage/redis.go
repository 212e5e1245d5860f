package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rmashqip/internal/config"
)

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, ErrUnavailable
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// RedisPool 每个客户端一个 hash：kv:<clientID>
type RedisPool struct {
	client *redis.Client
	quota  int
	ttl    time.Duration
}

func NewRedisPool(client *redis.Client, quota int, ttl time.Duration) *RedisPool {
	return &RedisPool{client: client, quota: quota, ttl: ttl}
}

func (p *RedisPool) Open(clientID string) KV {
	return &redisKV{pool: p, hash: "kv:" + clientID}
}

type redisKV struct {
	pool *RedisPool
	hash string
}

func (r *redisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := r.pool.client.HGet(ctx, r.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (r *redisKV) Set(ctx context.Context, key, value string) error {
	if r.pool.quota > 0 {
		used, err := r.used(ctx, key)
		if err != nil {
			return err
		}
		if used+len(key)+len(value) > r.pool.quota {
			return fmt.Errorf("set %s: %w", key, ErrQuotaExceeded)
		}
	}

	pipe := r.pool.client.TxPipeline()
	pipe.HSet(ctx, r.hash, key, value)
	if r.pool.ttl > 0 {
		pipe.Expire(ctx, r.hash, r.pool.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *redisKV) Remove(ctx context.Context, key string) error {
	if err := r.pool.client.HDel(ctx, r.hash, key).Err(); err != nil {
		return fmt.Errorf("redis remove %s: %w", key, err)
	}
	return nil
}

// used 除 except 之外所有键值占用的字节数
func (r *redisKV) used(ctx context.Context, except string) (int, error) {
	all, err := r.pool.client.HGetAll(ctx, r.hash).Result()
	if err != nil {
		return 0, fmt.Errorf("redis usage: %w", err)
	}
	total := 0
	for k, v := range all {
		if k == except {
			continue
		}
		total += len(k) + len(v)
	}
	return total, nil
}
