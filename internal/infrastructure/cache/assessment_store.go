package cache

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eldershield/eldershield-backend/internal/domain/risk"
)

// AssessmentStore is the persistence surface the caching decorator wraps
type AssessmentStore interface {
	Save(ctx context.Context, assessment *risk.Assessment) error
	Recent(ctx context.Context, caregiverID, subjectID uuid.UUID, limit int) ([]*risk.Assessment, error)
}

// CachingAssessmentStore writes assessments through to Redis so the
// emergency path can read the subject's current risk level without a
// database round trip. Cache failures are logged and never fail a save;
// the store stays the source of truth.
type CachingAssessmentStore struct {
	store  AssessmentStore
	cache  *AssessmentCache
	logger *zap.Logger
}

// NewCachingAssessmentStore wraps the store with write-through caching
func NewCachingAssessmentStore(store AssessmentStore, cache *AssessmentCache, logger *zap.Logger) *CachingAssessmentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingAssessmentStore{store: store, cache: cache, logger: logger}
}

// Save persists the assessment and refreshes the cache
func (s *CachingAssessmentStore) Save(ctx context.Context, assessment *risk.Assessment) error {
	if err := s.store.Save(ctx, assessment); err != nil {
		return err
	}
	if err := s.cache.SetLatest(ctx, assessment); err != nil {
		s.logger.Warn("assessment cache write failed",
			zap.String("assessment_id", assessment.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

// Recent delegates to the underlying store. The trend read needs ordered
// history, which only the store has.
func (s *CachingAssessmentStore) Recent(ctx context.Context, caregiverID, subjectID uuid.UUID, limit int) ([]*risk.Assessment, error) {
	return s.store.Recent(ctx, caregiverID, subjectID, limit)
}
