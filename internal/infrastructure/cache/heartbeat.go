package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// missTTL bounds stale miss counters so a caregiver channel that stops being
// probed does not stay flagged forever.
const missTTL = time.Hour

// HeartbeatPresence keeps per-caregiver heartbeat miss counters in Redis so
// the offline flag survives engine restarts.
type HeartbeatPresence struct {
	client *redis.Client
}

// NewHeartbeatPresence creates a presence store
func NewHeartbeatPresence(client *redis.Client) *HeartbeatPresence {
	return &HeartbeatPresence{client: client}
}

func missKey(caregiverID uuid.UUID) string {
	return fmt.Sprintf("heartbeat:misses:%s", caregiverID)
}

// RecordMiss increments and returns the consecutive miss count
func (p *HeartbeatPresence) RecordMiss(ctx context.Context, caregiverID uuid.UUID) (int, error) {
	key := missKey(caregiverID)
	count, err := p.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to record heartbeat miss: %w", err)
	}
	if err := p.client.Expire(ctx, key, missTTL).Err(); err != nil {
		return 0, fmt.Errorf("failed to bound heartbeat miss counter: %w", err)
	}
	return int(count), nil
}

// ClearMisses resets the counter after a successful heartbeat
func (p *HeartbeatPresence) ClearMisses(ctx context.Context, caregiverID uuid.UUID) error {
	if err := p.client.Del(ctx, missKey(caregiverID)).Err(); err != nil {
		return fmt.Errorf("failed to clear heartbeat misses: %w", err)
	}
	return nil
}

// Misses returns the current consecutive miss count
func (p *HeartbeatPresence) Misses(ctx context.Context, caregiverID uuid.UUID) (int, error) {
	count, err := p.client.Get(ctx, missKey(caregiverID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read heartbeat misses: %w", err)
	}
	return count, nil
}
