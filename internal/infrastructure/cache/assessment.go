package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AssessmentCache keeps the latest assessment per (caregiver, subject) pair
// so the emergency intake path can read the subject's risk context without a
// database round trip.
type AssessmentCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAssessmentCache creates the cache with the given entry TTL
func NewAssessmentCache(client *redis.Client, ttl time.Duration) *AssessmentCache {
	return &AssessmentCache{client: client, ttl: ttl}
}

func pairKey(caregiverID, subjectID uuid.UUID) string {
	return fmt.Sprintf("assessment:latest:%s:%s", caregiverID, subjectID)
}

func subjectKey(subjectID uuid.UUID) string {
	return fmt.Sprintf("assessment:subject_level:%s", subjectID)
}

// SetLatest stores the assessment and the subject's current risk level
func (c *AssessmentCache) SetLatest(ctx context.Context, a *risk.Assessment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, pairKey(a.CaregiverID, a.SubjectID), data, c.ttl)
	pipe.Set(ctx, subjectKey(a.SubjectID), string(a.Level), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache assessment: %w", err)
	}
	return nil
}

// GetLatest returns the cached assessment for the pair, nil on miss
func (c *AssessmentCache) GetLatest(ctx context.Context, caregiverID, subjectID uuid.UUID) (*risk.Assessment, error) {
	data, err := c.client.Get(ctx, pairKey(caregiverID, subjectID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached assessment: %w", err)
	}

	var a risk.Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached assessment: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// SubjectLevel returns the subject's last known risk level, LevelMinimal on miss
func (c *AssessmentCache) SubjectLevel(ctx context.Context, subjectID uuid.UUID) (risk.Level, error) {
	val, err := c.client.Get(ctx, subjectKey(subjectID)).Result()
	if err == redis.Nil {
		return risk.LevelMinimal, nil
	}
	if err != nil {
		return risk.LevelMinimal, fmt.Errorf("failed to read subject level: %w", err)
	}
	return risk.Level(val), nil
}
