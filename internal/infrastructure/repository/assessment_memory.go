package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/google/uuid"
)

// MemoryAssessmentStore is an in-memory assessment store used in tests and
// single-process deployments.
type MemoryAssessmentStore struct {
	mu          sync.RWMutex
	assessments []*risk.Assessment
}

// NewMemoryAssessmentStore creates an empty store
func NewMemoryAssessmentStore() *MemoryAssessmentStore {
	return &MemoryAssessmentStore{}
}

// Save persists an assessment
func (s *MemoryAssessmentStore) Save(ctx context.Context, a *risk.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments = append(s.assessments, a)
	return nil
}

// Recent returns up to limit assessments for the pair, most recent first
func (s *MemoryAssessmentStore) Recent(ctx context.Context, caregiverID, subjectID uuid.UUID, limit int) ([]*risk.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*risk.Assessment
	for _, a := range s.assessments {
		if a.CaregiverID == caregiverID && a.SubjectID == subjectID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssessedAt.After(out[j].AssessedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
