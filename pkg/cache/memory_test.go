package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	type doc struct {
		Week string `json:"week"`
	}
	require.NoError(t, mc.Set(ctx, "snapshot", doc{Week: "2025-10-20"}, time.Minute))

	var got doc
	require.NoError(t, mc.Get(ctx, "snapshot", &got))
	assert.Equal(t, "2025-10-20", got.Week)

	var missing doc
	assert.ErrorIs(t, mc.Get(ctx, "other", &missing), ErrCacheMiss)

	require.NoError(t, mc.Delete(ctx, "snapshot"))
	assert.ErrorIs(t, mc.Get(ctx, "snapshot", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	now := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(context.Background(), "k", "v", time.Second))
	now = now.Add(2 * time.Second)

	var s string
	assert.ErrorIs(t, mc.Get(context.Background(), "k", &s), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryLimits(2, 0))
	defer mc.Close()
	ctx := context.Background()
	now := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { now = now.Add(time.Millisecond); return now }

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.NoError(t, mc.Get(ctx, "a", &s))
	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
}

func TestMemoryCacheLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()
	now := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	ok, err := mc.TryLock(ctx, "cycle:2025-10-20", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "cycle:2025-10-20", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Hour)
	ok, _ = mc.TryLock(ctx, "cycle:2025-10-20", time.Hour)
	assert.True(t, ok, "expired lock is free again")

	require.NoError(t, mc.Unlock(ctx, "cycle:2025-10-20"))
	assert.True(t, errors.Is(mc.Unlock(ctx, "cycle:2025-10-20"), ErrLockNotHeld))
}

func TestGetOrLoad(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	calls := 0
	load := func(context.Context) (int, error) { calls++; return 42, nil }

	for i := 0; i < 3; i++ {
		v, err := GetOrLoad(context.Background(), mc, "answer", time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, 1, calls)

	_, err := GetOrLoad(context.Background(), mc, "broken", time.Minute, func(context.Context) (int, error) {
		return 0, errors.New("down")
	})
	assert.EqualError(t, err, "down")
}

func TestOptionsKeepDefaultsOnZero(t *testing.T) {
	mcfg := MemoryConfig{MaxSize: 1000, CleanupInterval: 5 * time.Minute}
	WithMemoryLimits(0, 0)(&mcfg)
	assert.Equal(t, MemoryConfig{MaxSize: 1000, CleanupInterval: 5 * time.Minute}, mcfg)
	WithMemoryLimits(64, time.Minute)(&mcfg)
	assert.Equal(t, MemoryConfig{MaxSize: 64, CleanupInterval: time.Minute}, mcfg)

	rcfg := RedisConfig{Host: "localhost", Port: 6379, PoolSize: 4}
	WithRedisAddr("", 0)(&rcfg)
	WithRedisPool(0, 2, 0)(&rcfg)
	assert.Equal(t, "localhost", rcfg.Host)
	assert.Equal(t, 6379, rcfg.Port)
	assert.Equal(t, 4, rcfg.PoolSize)
	assert.Equal(t, 2, rcfg.MinIdleConns)
}
