package repository

import (
	"context"
	"sync"

	"github.com/eldershield/eldershield-backend/internal/domain/behavior"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/google/uuid"
)

// MemoryBehaviorStore is an in-memory behavior event store used in tests and
// single-process deployments.
type MemoryBehaviorStore struct {
	mu     sync.RWMutex
	events []*behavior.Event
}

// NewMemoryBehaviorStore creates an empty store
func NewMemoryBehaviorStore() *MemoryBehaviorStore {
	return &MemoryBehaviorStore{}
}

// Save appends a behavior event. Events are write-once.
func (s *MemoryBehaviorStore) Save(ctx context.Context, e *behavior.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// ListWindow returns the pair's events inside the window
func (s *MemoryBehaviorStore) ListWindow(ctx context.Context, caregiverID, subjectID uuid.UUID, window risk.Window) ([]*behavior.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*behavior.Event
	for _, e := range s.events {
		if e.CaregiverID != caregiverID || e.SubjectID != subjectID {
			continue
		}
		if e.OccurredAt.Before(window.Start) || e.OccurredAt.After(window.End) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
