package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestHeartbeatPresence_MissCounting(t *testing.T) {
	ctx := context.Background()
	presence := NewHeartbeatPresence(testClient(t))
	caregiverID := uuid.New()

	count, err := presence.RecordMiss(ctx, caregiverID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = presence.RecordMiss(ctx, caregiverID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, presence.ClearMisses(ctx, caregiverID))

	count, err = presence.Misses(ctx, caregiverID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHeartbeatPresence_MissCounterCarriesTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	presence := NewHeartbeatPresence(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	caregiverID := uuid.New()

	_, err := presence.RecordMiss(ctx, caregiverID)
	require.NoError(t, err)
	assert.Equal(t, missTTL, mr.TTL(missKey(caregiverID)))

	// a stale counter expires instead of flagging the channel forever
	mr.FastForward(missTTL)
	count, err := presence.Misses(ctx, caregiverID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHeartbeatPresence_CountersAreIndependent(t *testing.T) {
	ctx := context.Background()
	presence := NewHeartbeatPresence(testClient(t))

	a, b := uuid.New(), uuid.New()
	_, err := presence.RecordMiss(ctx, a)
	require.NoError(t, err)

	count, err := presence.Misses(ctx, b)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAssessmentCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewAssessmentCache(testClient(t), time.Hour)

	f, err := risk.NewFactor(risk.FactorContactTampering, risk.SeverityHigh, 50, risk.PatternSocialIsolation, nil)
	require.NoError(t, err)
	end := time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)
	a, err := risk.NewAssessment(uuid.New(), uuid.New(), []risk.Factor{f},
		risk.Window{Start: end.Add(-24 * time.Hour), End: end}, end)
	require.NoError(t, err)

	require.NoError(t, c.SetLatest(ctx, a))

	got, err := c.GetLatest(ctx, a.CaregiverID, a.SubjectID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.TotalScore, got.TotalScore)
	assert.Equal(t, a.Level, got.Level)

	level, err := c.SubjectLevel(ctx, a.SubjectID)
	require.NoError(t, err)
	assert.Equal(t, risk.LevelMedium, level)
}

func TestAssessmentCache_MissReturnsNilAndMinimal(t *testing.T) {
	ctx := context.Background()
	c := NewAssessmentCache(testClient(t), time.Hour)

	got, err := c.GetLatest(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)

	level, err := c.SubjectLevel(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, risk.LevelMinimal, level)
}
