package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV(0)

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, "k", "v1"))
	v, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	require.NoError(t, kv.Remove(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, kv.Used())
}

func TestMemoryKVQuotaLeavesOtherKeysIntact(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV(20)

	require.NoError(t, kv.Set(ctx, "a", "12345"))
	err := kv.Set(ctx, "b", "this value is far too long")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	v, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "12345", v)
	_, err = kv.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryKVOverwriteCountsOnce(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV(10)

	require.NoError(t, kv.Set(ctx, "k", "12345678"))
	require.NoError(t, kv.Set(ctx, "k", "87654321"))
	assert.Equal(t, 9, kv.Used())
}

func TestMemoryPoolReusesStorePerClient(t *testing.T) {
	ctx := context.Background()
	pool, err := NewMemoryPool(2, 0)
	require.NoError(t, err)

	require.NoError(t, pool.Open("c1").Set(ctx, "k", "v"))
	v, err := pool.Open("c1").Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	_, err = pool.Open("c2").Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
