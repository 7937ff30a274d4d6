package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryLease_AcquireAndContention(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lease := NewDeliveryLease(client)
	ctx := context.Background()
	eventID := uuid.New()

	ok, err := lease.Acquire(ctx, eventID, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "first caller gets the lease")

	ok, err = lease.Acquire(ctx, eventID, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second caller is refused while the lease is held")
}

func TestDeliveryLease_ReleaseFreesLease(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lease := NewDeliveryLease(client)
	ctx := context.Background()
	eventID := uuid.New()

	ok, err := lease.Acquire(ctx, eventID, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lease.Release(ctx, eventID))

	ok, err = lease.Acquire(ctx, eventID, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released lease is reacquirable")
}

func TestDeliveryLease_TTLExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lease := NewDeliveryLease(client)
	ctx := context.Background()
	eventID := uuid.New()

	ok, err := lease.Acquire(ctx, eventID, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// A crashed worker never releases; the TTL recovers the event.
	s.FastForward(2 * time.Second)

	ok, err = lease.Acquire(ctx, eventID, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeliveryLease_IndependentEvents(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lease := NewDeliveryLease(client)
	ctx := context.Background()

	ok1, err := lease.Acquire(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	ok2, err2 := lease.Acquire(ctx, uuid.New(), time.Minute)
	require.NoError(t, err2)
	assert.True(t, ok1)
	assert.True(t, ok2, "leases are scoped per event id")
}
