package di

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCache(0)
	defer cache.Close()

	require.NoError(t, cache.Set(ctx, "network:forest", "forest", 60))
	value, ok := cache.Get(ctx, "network:forest")
	require.True(t, ok)
	assert.Equal(t, "forest", value)

	require.NoError(t, cache.Delete(ctx, "network:forest"))
	_, ok = cache.Get(ctx, "network:forest")
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "a", 1, 60))
	require.NoError(t, cache.Clear(ctx))
	_, ok = cache.Get(ctx, "a")
	assert.False(t, ok)
}

func TestInMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCache(5 * time.Millisecond)
	defer cache.Close()

	require.NoError(t, cache.Set(ctx, "stale", 1, 0))
	_, ok := cache.Get(ctx, "stale")
	assert.False(t, ok)

	assert.Eventually(t, func() bool {
		cache.mu.RLock()
		defer cache.mu.RUnlock()
		return len(cache.items) == 0
	}, time.Second, 5*time.Millisecond)

	cache.Close()
	cache.Close()
}
