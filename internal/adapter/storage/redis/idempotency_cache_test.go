package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyCache_SetAndGet(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewIdempotencyCache(client)
	ctx := context.Background()

	payload := []byte(`{"status":"COMPLETED"}`)
	require.NoError(t, cache.Set(ctx, "payment:p1:completed", payload, time.Hour))

	got, err := cache.Get(ctx, "payment:p1:completed")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestIdempotencyCache_Get_Miss(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewIdempotencyCache(client)

	got, err := cache.Get(context.Background(), "payment:missing:completed")
	require.NoError(t, err, "a miss is not an error")
	assert.Nil(t, got)
}

func TestIdempotencyCache_TTLExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewIdempotencyCache(client)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "payment:p2:completed", []byte("x"), time.Second))
	s.FastForward(2 * time.Second)

	got, err := cache.Get(ctx, "payment:p2:completed")
	require.NoError(t, err)
	assert.Nil(t, got, "expired entries read as a miss")
}
