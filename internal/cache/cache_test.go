package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T) *MemoryCache {
	t.Helper()
	mc := NewMemoryCache(&Config{DefaultTTL: time.Minute, Prefix: "t:", Enabled: true})
	t.Cleanup(func() { mc.Close() })
	return mc
}

func TestMemoryCacheGetSet(t *testing.T) {
	ctx := context.Background()
	mc := newTestMemory(t)

	_, err := mc.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheNotFound)

	require.NoError(t, mc.Set(ctx, "a", []byte("1"), 0))
	v, err := mc.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, mc.Delete(ctx, "a"))
	_, err = mc.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := newTestMemory(t)
	now := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "short", []byte("x"), time.Second))
	require.NoError(t, mc.Set(ctx, "forever", []byte("y"), -1))

	now = now.Add(2 * time.Second)
	_, err := mc.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheNotFound)
	assert.Equal(t, 1, mc.Len())

	now = now.Add(24 * time.Hour)
	v, err := mc.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), v)
}

func TestMemoryCacheCleanup(t *testing.T) {
	ctx := context.Background()
	mc := newTestMemory(t)
	now := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "a", []byte("x"), time.Second))
	require.NoError(t, mc.Set(ctx, "b", []byte("x"), time.Hour))
	now = now.Add(time.Minute)
	mc.removeExpiredItems()
	assert.Equal(t, 1, mc.Len())

	require.NoError(t, mc.Clear(ctx))
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCacheCopiesValue(t *testing.T) {
	ctx := context.Background()
	mc := newTestMemory(t)

	buf := []byte("abc")
	require.NoError(t, mc.Set(ctx, "k", buf, 0))
	buf[0] = 'z'

	v, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
}

func TestMemoryCacheDisabled(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(&Config{Enabled: false})
	defer mc.Close()

	err := mc.Set(ctx, "a", []byte("1"), 0)
	assert.ErrorIs(t, err, ErrCacheDisabled)
	_, err = mc.Get(ctx, "a")
	assert.True(t, IsMiss(err))
	assert.NoError(t, mc.Close())
}

func TestKey(t *testing.T) {
	a := Key("cases-deaths", "Ireland", "2021-01-01")
	assert.Len(t, a, 64)
	assert.Equal(t, a, Key("cases-deaths", "Ireland", "2021-01-01"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.NotEqual(t, a, Key("cases-deaths", "Ireland", "2021-01-02"))
}

func TestCacheErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&CacheError{Op: "get", Key: "k", Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "cache get k failed: connection refused", err.Error())
	assert.False(t, IsMiss(err))
}

// brokenCache fails every operation like an unreachable Redis
type brokenCache struct{ calls int }

var errBroken = errors.New("broken")

func (b *brokenCache) Get(context.Context, string) ([]byte, error) {
	b.calls++
	return nil, &CacheError{Op: "get", Err: errBroken}
}
func (b *brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	b.calls++
	return &CacheError{Op: "set", Err: errBroken}
}
func (b *brokenCache) Delete(context.Context, string) error { return errBroken }
func (b *brokenCache) Clear(context.Context) error          { return errBroken }
func (b *brokenCache) Ping(context.Context) error           { return errBroken }
func (b *brokenCache) Close() error                         { return nil }

func TestFallbackCache(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	primary := &brokenCache{}
	fc := NewLayered(primary, newTestMemory(t), logger)

	err := fc.Set(ctx, "k", []byte("v"), 0)
	assert.ErrorIs(t, err, errBroken)

	v, err := fc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
	assert.Equal(t, 2, primary.calls)

	assert.Error(t, fc.Ping(ctx))
	assert.NoError(t, fc.Clear(ctx))
	_, err = fc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

func TestFallbackCacheMemoryOnly(t *testing.T) {
	ctx := context.Background()
	fc := NewFallbackCache(&FallbackConfig{Memory: DefaultConfig()})
	defer fc.Close()

	assert.Nil(t, fc.Primary())
	require.NoError(t, fc.Set(ctx, "k", []byte("v"), 0))
	v, err := fc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
	assert.NoError(t, fc.Ping(ctx))
}
