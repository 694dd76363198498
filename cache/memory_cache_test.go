package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/conflux/types"
)

func cachedEntry(key string, version int) *types.ConfigEntry {
	return &types.ConfigEntry{
		Key:     key,
		Value:   map[string]any{"enabled": true},
		Kind:    types.KindSystem,
		Version: version,
		Active:  true,
	}
}

func TestMemoryCache_PutAndGet(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "feature_flags", cachedEntry("feature_flags", 3), 0))

	got, ok := c.Get(ctx, "feature_flags")
	require.True(t, ok)
	assert.Equal(t, "feature_flags", got.Key)
	assert.Equal(t, 3, got.Version)
}

func TestMemoryCache_Miss(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()

	_, ok := c.Get(context.Background(), "absent")
	assert.False(t, ok)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "short_lived", cachedEntry("short_lived", 1), 20*time.Millisecond))

	_, ok := c.Get(ctx, "short_lived")
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	_, ok = c.Get(ctx, "short_lived")
	assert.False(t, ok)
}

func TestMemoryCache_CapacityEvictsOldest(t *testing.T) {
	c := NewMemoryCache(3, time.Minute)
	defer c.Close()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("entry_%d", i)
		require.NoError(t, c.Put(ctx, key, cachedEntry(key, 1), 0))
	}

	// Reading an entry must not protect it from eviction.
	_, ok := c.Get(ctx, "entry_0")
	require.True(t, ok)

	require.NoError(t, c.Put(ctx, "entry_3", cachedEntry("entry_3", 1), 0))

	_, ok = c.Get(ctx, "entry_0")
	assert.False(t, ok, "oldest inserted entry should have been evicted")

	for _, key := range []string{"entry_1", "entry_2", "entry_3"} {
		_, ok := c.Get(ctx, key)
		assert.True(t, ok, key)
	}
}

func TestMemoryCache_Invalidate(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "doomed", cachedEntry("doomed", 1), 0))
	require.NoError(t, c.Invalidate(ctx, "doomed"))

	_, ok := c.Get(ctx, "doomed")
	assert.False(t, ok)

	// Invalidating an absent key is fine.
	assert.NoError(t, c.Invalidate(ctx, "never_cached"))
}

func TestMemoryCache_InvalidateAll(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "one", cachedEntry("one", 1), 0))
	require.NoError(t, c.Put(ctx, "two", cachedEntry("two", 1), 0))

	require.NoError(t, c.InvalidateAll(ctx))

	assert.Equal(t, 0, c.Stats().Entries)
}

func TestMemoryCache_Stats(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "counted", cachedEntry("counted", 1), 0))

	c.Get(ctx, "counted")
	c.Get(ctx, "counted")
	c.Get(ctx, "absent")

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}
