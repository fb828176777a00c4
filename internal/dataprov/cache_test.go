package dataprov

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCache_RoundTrip(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "fng:2024-01-01")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "fng:2024-01-01", []byte(`{"a":1}`), time.Hour))
	val, ok, err := c.Get(ctx, "fng:2024-01-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), val)
}

func TestFileCache_ExpiredEntryMisses(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), -time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry older than TTL must miss")
}

func TestFileCache_Clear(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, c.Clear(ctx))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok)
}

func TestFileCache_KeySeparatorsAreSafe(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "px:BTCUSDT:2024-01-01:2024-02-01", []byte("v"), time.Hour))
	_, ok, err := c.Get(ctx, "px:BTCUSDT:2024-01-01:2024-02-01")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCache_HitAndMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db, "test")
	ctx := context.Background()

	mock.ExpectGet("test:k").RedisNil()
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "redis.Nil is a miss, not an error")

	mock.ExpectSet("test:k", []byte("v"), time.Minute).SetVal("OK")
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	mock.ExpectGet("test:k").SetVal("v")
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTieredCache_RefillsFasterLayers(t *testing.T) {
	ctx := context.Background()
	slow, err := NewFileCache(t.TempDir(), time.Hour)
	require.NoError(t, err)
	fast, err := NewFileCache(t.TempDir(), time.Hour)
	require.NoError(t, err)

	// Seed only the slow layer.
	require.NoError(t, slow.Set(ctx, "k", []byte("v"), time.Hour))

	tiered := NewTieredCache(fast, slow)
	val, ok, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	// The hit must have been written back to the fast layer.
	val, ok, err = fast.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}

func TestTieredCache_SetWritesAllLayers(t *testing.T) {
	ctx := context.Background()
	a, err := NewFileCache(t.TempDir(), time.Hour)
	require.NoError(t, err)
	b, err := NewFileCache(t.TempDir(), time.Hour)
	require.NoError(t, err)

	tiered := NewTieredCache(a, b)
	require.NoError(t, tiered.Set(ctx, "k", []byte("v"), time.Hour))

	_, ok, _ := a.Get(ctx, "k")
	assert.True(t, ok)
	_, ok, _ = b.Get(ctx, "k")
	assert.True(t, ok)
}
