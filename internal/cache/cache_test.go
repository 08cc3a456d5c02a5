package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseCache проверяет общий контракт CacheRepo
func exerciseCache(t *testing.T, c CacheRepo) {
	ctx := context.Background()

	_, err := c.Get(ctx, "column:0:0")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, c.Set(ctx, "column:0:0", []byte("abc"), 0))
	got, err := c.Get(ctx, "column:0:0")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	ok, err := c.Exists(ctx, "column:0:0")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.BatchSet(ctx, map[string][]byte{
		"column:1:0": []byte("x"),
		"column:2:0": []byte("y"),
	}, time.Minute))
	batch, err := c.BatchGet(ctx, []string{"column:1:0", "column:2:0", "column:9:9"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"column:1:0": []byte("x"), "column:2:0": []byte("y")}, batch)

	require.NoError(t, c.Delete(ctx, "column:0:0", "column:1:0", "missing"))
	ok, err = c.Exists(ctx, "column:0:0")
	require.NoError(t, err)
	assert.False(t, ok)

	m := c.GetMetrics()
	assert.Equal(t, int64(5), m.TotalRequests)
	assert.Equal(t, int64(3), m.CacheHits)
	assert.Equal(t, int64(2), m.CacheMisses)
	assert.InDelta(t, 0.6, m.HitRatio, 1e-9)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	exerciseCache(t, c)
	assert.Equal(t, int64(1), c.GetMetrics().TotalKeys)
}

func TestMemoryCache_TTLAndCopies(t *testing.T) {
	c := NewMemoryCache()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value, time.Second))
	value[0] = 'z'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got, "кеш хранит копию")
	got[1] = 'z'
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)

	now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_CancelledContext(t *testing.T) {
	c := NewMemoryCache()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), context.Canceled)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

// Интеграционный тест; запускается только при заданном VOXEL_TEST_REDIS (host:port)
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("VOXEL_TEST_REDIS")
	if addr == "" {
		t.Skip("VOXEL_TEST_REDIS не задан")
	}
	c, err := NewRedisCache(RedisConfig{Addr: addr, Prefix: "voxel-test:" + time.Now().Format("150405.000") + ":"}, nil)
	require.NoError(t, err)
	defer c.Close()

	exerciseCache(t, c)
	require.NoError(t, c.Delete(context.Background(), "column:2:0"))
}
