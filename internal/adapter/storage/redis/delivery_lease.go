package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// DeliveryLease implements ports.DeliveryLease using Redis SET NX. At most
// one delivery worker holds the lease for an event id at a time; the TTL
// bounds how long a crashed worker can block the event.
type DeliveryLease struct {
	client *goredis.Client
	prefix string
}

// NewDeliveryLease creates a new Redis-backed delivery lease.
func NewDeliveryLease(client *goredis.Client) *DeliveryLease {
	return &DeliveryLease{
		client: client,
		prefix: "webhook:lease:",
	}
}

// Acquire atomically claims the lease for an event id.
// Returns true when this caller now holds it, false when another does.
func (l *DeliveryLease) Acquire(ctx context.Context, eventID uuid.UUID, ttl time.Duration) (bool, error) {
	key := l.prefix + eventID.String()
	result, err := l.client.SetArgs(ctx, key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// Key already exists, lease is held elsewhere
			return false, nil
		}
		return false, fmt.Errorf("redis lease acquire: %w", err)
	}
	return result == "OK", nil
}

// Release drops the lease for an event id.
func (l *DeliveryLease) Release(ctx context.Context, eventID uuid.UUID) error {
	if err := l.client.Del(ctx, l.prefix+eventID.String()).Err(); err != nil {
		return fmt.Errorf("redis lease release: %w", err)
	}
	return nil
}
