package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard records which (location, timestamp) samples have already been
// folded into an hourly aggregation, so a redelivered record refreshes
// the real-time row without double-incrementing the counts.
type Guard struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewGuard creates a new guard. Markers expire after ttl; a redelivery
// arriving later than that is corrected by the batch overwrite instead.
func NewGuard(redisClient *redis.Client, ttl time.Duration) *Guard {
	return &Guard{redis: redisClient, ttl: ttl}
}

func key(location string, timestamp time.Time) string {
	return fmt.Sprintf("sample_seen:%s:%d", location, timestamp.UnixMilli())
}

// FirstDelivery atomically claims the marker for a sample and reports
// whether this delivery was the first one.
func (g *Guard) FirstDelivery(ctx context.Context, location string, timestamp time.Time) (bool, error) {
	first, err := g.redis.SetNX(ctx, key(location, timestamp), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim sample marker: %w", err)
	}
	return first, nil
}

// Release drops the marker so a later redelivery counts as first again.
// Used when the hourly update failed after the marker was claimed.
func (g *Guard) Release(ctx context.Context, location string, timestamp time.Time) error {
	if err := g.redis.Del(ctx, key(location, timestamp)).Err(); err != nil {
		return fmt.Errorf("failed to release sample marker: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection for readiness checks.
func (g *Guard) Ping(ctx context.Context) error {
	if err := g.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
