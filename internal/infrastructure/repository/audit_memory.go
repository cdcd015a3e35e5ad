package repository

import (
	"context"
	"sync"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/audit"
)

// MemoryAuditStore is an in-process append-only audit log. It backs unit
// tests and single-device deployments where Postgres is not provisioned.
// The mutex gives the acquire-before-read-before-write discipline on the
// chain tail: no two appends can seal against the same previous hash.
type MemoryAuditStore struct {
	mu       sync.Mutex
	events   []*audit.Event
	tailHash string
}

// NewMemoryAuditStore creates an empty in-memory audit store
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Append seals a new record against the current tail and stores it
func (s *MemoryAuditStore) Append(ctx context.Context, category audit.Category, details map[string]interface{}) (*audit.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	event, err := audit.NewEvent(category, details)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := event.Seal(int64(len(s.events)+1), s.tailHash); err != nil {
		return nil, err
	}

	s.events = append(s.events, event)
	s.tailHash = event.Hash
	return event, nil
}

// VerifyIntegrity recomputes the whole chain
func (s *MemoryAuditStore) VerifyIntegrity(ctx context.Context) (*audit.VerificationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	events := make([]*audit.Event, len(s.events))
	copy(events, s.events)
	s.mu.Unlock()

	return audit.VerifyChain(events), nil
}

// CountSince returns the number of records of a category at or after ts
func (s *MemoryAuditStore) CountSince(ctx context.Context, category audit.Category, ts time.Time) (int, error) {
	events, err := s.ListSince(ctx, category, ts)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// ListSince returns records of a category at or after ts in sequence order
func (s *MemoryAuditStore) ListSince(ctx context.Context, category audit.Category, ts time.Time) ([]*audit.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*audit.Event
	for _, event := range s.events {
		if event.Category == category && !event.Timestamp.Before(ts) {
			matched = append(matched, event)
		}
	}
	return matched, nil
}

// All returns the stored records in sequence order. Integrity tests mutate
// the returned records directly to simulate tampering.
func (s *MemoryAuditStore) All() []*audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]*audit.Event, len(s.events))
	copy(events, s.events)
	return events
}

// Len returns the number of stored records
func (s *MemoryAuditStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
