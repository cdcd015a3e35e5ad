package cache

import (
	"context"
	"testing"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	saved []*risk.Assessment
}

func (s *recordingStore) Save(ctx context.Context, a *risk.Assessment) error {
	s.saved = append(s.saved, a)
	return nil
}

func (s *recordingStore) Recent(ctx context.Context, caregiverID, subjectID uuid.UUID, limit int) ([]*risk.Assessment, error) {
	return s.saved, nil
}

func TestCachingAssessmentStore_WriteThrough(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{}
	cached := NewAssessmentCache(testClient(t), time.Hour)
	s := NewCachingAssessmentStore(store, cached, nil)

	f, err := risk.NewFactor(risk.FactorContactTampering, risk.SeverityHigh, 50, risk.PatternSocialIsolation, nil)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	a, err := risk.NewAssessment(uuid.New(), uuid.New(), []risk.Factor{f}, risk.Window{Start: now.Add(-time.Hour), End: now}, now)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, a))
	require.Len(t, store.saved, 1)

	level, err := cached.SubjectLevel(ctx, a.SubjectID)
	require.NoError(t, err)
	assert.Equal(t, risk.LevelMedium, level)
}

func TestCachingAssessmentStore_RecentComesFromStore(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{}
	s := NewCachingAssessmentStore(store, NewAssessmentCache(testClient(t), time.Hour), nil)

	got, err := s.Recent(ctx, uuid.New(), uuid.New(), 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}
