package repository

import (
	"context"
	"sync"

	"github.com/eldershield/eldershield-backend/internal/domain/alert"
	"github.com/google/uuid"
)

// MemoryAlertStore is an in-memory alert store used in tests and
// single-process deployments.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts map[uuid.UUID]*alert.Alert
}

// NewMemoryAlertStore creates an empty store
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{alerts: make(map[uuid.UUID]*alert.Alert)}
}

// Save persists a new alert
func (s *MemoryAlertStore) Save(ctx context.Context, a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *a
	s.alerts[a.ID] = &stored
	return nil
}

// GetByID returns the alert or nil when unknown
func (s *MemoryAlertStore) GetByID(ctx context.Context, id uuid.UUID) (*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

// Update replaces the stored alert
func (s *MemoryAlertStore) Update(ctx context.Context, a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *a
	s.alerts[a.ID] = &stored
	return nil
}

// ListActive returns unresolved alerts for the subject
func (s *MemoryAlertStore) ListActive(ctx context.Context, subjectID uuid.UUID) ([]*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*alert.Alert
	for _, a := range s.alerts {
		if a.SubjectID == subjectID && a.Status != alert.StatusResolved {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}
