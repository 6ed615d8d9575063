package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/LoanBox/internal/cache"
)

var (
	_ cache.BytesCache  = (*RedisCache)(nil)
	_ cache.RateLimiter = (*RateLimiter)(nil)
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "snapshot:abc", []byte("v"), time.Minute))
	require.True(t, mr.Exists("loanbox:snapshot:abc"))

	b, ok, err := c.Get(ctx, "snapshot:abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)
}

func TestRedisCache_Miss(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	b, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, b)
}

func TestRedisCache_TTLAndDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewWithPrefix(mr.Addr(), "t:")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	mr.FastForward(2 * time.Minute)
	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Delete(ctx, "a"))
	_, ok, _ = c.Get(ctx, "a")
	require.False(t, ok)
	require.NoError(t, c.Ping(ctx))
}

func TestRedisCache_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:borrow", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:borrow", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:borrow", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := rl.Allow(ctx, "rl:delivery", 1, time.Minute)
		require.NoError(t, err)
	}
	mr.FastForward(61 * time.Second)

	ok, n, err := rl.Allow(ctx, "rl:delivery", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}
