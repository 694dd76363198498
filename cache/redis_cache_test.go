package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := NewRedisCache(RedisConfig{
		Addr: mr.Addr(),
	}, time.Minute, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return mr, c
}

func TestRedisCache_PutAndGet(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	entry := cachedEntry("rate_limits", 7)
	require.NoError(t, c.Put(ctx, "rate_limits", entry, 0))

	got, ok := c.Get(ctx, "rate_limits")
	require.True(t, ok)
	assert.Equal(t, "rate_limits", got.Key)
	assert.Equal(t, 7, got.Version)
	assert.Equal(t, map[string]any{"enabled": true}, got.Value)
}

func TestRedisCache_Miss(t *testing.T) {
	_, c := setupTestRedis(t)

	_, ok := c.Get(context.Background(), "absent")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, uint64(0), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "short_lived", cachedEntry("short_lived", 1), time.Second))

	_, ok := c.Get(ctx, "short_lived")
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok = c.Get(ctx, "short_lived")
	assert.False(t, ok)
}

func TestRedisCache_Invalidate(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "doomed", cachedEntry("doomed", 1), 0))
	require.NoError(t, c.Invalidate(ctx, "doomed"))

	_, ok := c.Get(ctx, "doomed")
	assert.False(t, ok)

	assert.NoError(t, c.Invalidate(ctx, "never_cached"))
}

func TestRedisCache_InvalidateAll(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "one", cachedEntry("one", 1), 0))
	require.NoError(t, c.Put(ctx, "two", cachedEntry("two", 1), 0))

	// Foreign keys in the same database must survive.
	mr.Set("unrelated", "keep me")

	require.NoError(t, c.InvalidateAll(ctx))

	_, ok := c.Get(ctx, "one")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "two")
	assert.False(t, ok)
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedisCache_CorruptEntryTreatedAsMiss(t *testing.T) {
	mr, c := setupTestRedis(t)

	mr.Set(keyPrefix+"mangled", "{not json")

	_, ok := c.Get(context.Background(), "mangled")
	assert.False(t, ok)

	// The corrupt value is dropped so it cannot poison later reads.
	assert.False(t, mr.Exists(keyPrefix+"mangled"))
}

func TestRedisCache_Ping(t *testing.T) {
	mr, c := setupTestRedis(t)

	assert.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}

func TestRedisCache_ClosedBehavior(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, ok := c.Get(ctx, "anything")
	assert.False(t, ok)
	assert.Error(t, c.Put(ctx, "anything", cachedEntry("anything", 1), 0))
	assert.Error(t, c.Ping(ctx))
}
