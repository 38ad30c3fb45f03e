package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Plan  string `json:"plan"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, "test:"), mr
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "user-1", payload{Plan: "pro", Count: 3}, time.Minute))
	assert.True(t, mr.Exists("test:user-1"))

	var got payload
	require.NoError(t, c.Get(ctx, "user-1", &got))
	assert.Equal(t, payload{Plan: "pro", Count: 3}, got)

	require.NoError(t, c.Delete(ctx, "user-1"))
	assert.ErrorIs(t, c.Get(ctx, "user-1", &got), ErrCacheMiss)
}

func TestRedisCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "k", payload{Plan: "free"}, time.Second))
	mr.FastForward(2 * time.Second)

	var got payload
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestRedisCache_NilClientIsNoop(t *testing.T) {
	ctx := context.Background()
	c := NewRedisCache(nil, "test:")

	assert.NoError(t, c.Set(ctx, "k", payload{}, time.Minute))
	assert.NoError(t, c.Delete(ctx, "k"))
	var got payload
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)
}
