package embeddings

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLRUEvictsOldest(t *testing.T) {
	lru := newLocalLRU(2)
	lru.Set("a", []float32{1}, time.Minute)
	lru.Set("b", []float32{2}, time.Minute)
	lru.Set("c", []float32{3}, time.Minute)

	_, ok := lru.Get("a")
	assert.False(t, ok, "oldest entry is evicted")
	_, ok = lru.Get("b")
	assert.True(t, ok)
	_, ok = lru.Get("c")
	assert.True(t, ok)
}

func TestLocalLRUGetPromotes(t *testing.T) {
	lru := newLocalLRU(2)
	lru.Set("a", []float32{1}, time.Minute)
	lru.Set("b", []float32{2}, time.Minute)

	_, ok := lru.Get("a")
	require.True(t, ok)

	lru.Set("c", []float32{3}, time.Minute)

	_, ok = lru.Get("a")
	assert.True(t, ok, "recently used entry survives")
	_, ok = lru.Get("b")
	assert.False(t, ok)
}

func TestLocalLRUExpiry(t *testing.T) {
	lru := newLocalLRU(8)
	lru.Set("k", []float32{1}, -time.Second)
	_, ok := lru.Get("k")
	assert.False(t, ok)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)

	cache, err := NewRedisCache(mr.Addr())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	vec := []float32{0.25, -1.5, 3.75}
	cache.Set(ctx, "emb:test", vec, time.Minute)

	got, ok := cache.Get(ctx, "emb:test")
	require.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestRedisCacheMiss(t *testing.T) {
	mr := miniredis.RunT(t)

	cache, err := NewRedisCache(mr.Addr())
	require.NoError(t, err)
	defer cache.Close()

	_, ok := cache.Get(context.Background(), "emb:absent")
	assert.False(t, ok)
}

func TestRedisCacheRejectsCorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)

	cache, err := NewRedisCache(mr.Addr())
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, mr.Set("emb:bad", "abc")) // not a multiple of 4 bytes
	_, ok := cache.Get(context.Background(), "emb:bad")
	assert.False(t, ok)
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	_, err := NewRedisCache("127.0.0.1:1")
	assert.Error(t, err)
}

func TestCacheKeyIsModelScoped(t *testing.T) {
	assert.NotEqual(t, cacheKey("model-a", "text"), cacheKey("model-b", "text"))
	assert.Equal(t, cacheKey("m", "text"), cacheKey("m", "text"))
}
