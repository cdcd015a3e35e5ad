package audit

import (
	"context"
	"time"
)

// Store is the append-only audit log. There is no update or delete.
// Append must be effectively atomic: the previous hash is read and the new
// record sealed and written under a single-writer discipline, so two writers
// can never chain off the same tail.
type Store interface {
	// Append seals and durably stores a new record. It blocks (retrying
	// transient failures) until the record is durable or ctx is done.
	Append(ctx context.Context, category Category, details map[string]interface{}) (*Event, error)

	// VerifyIntegrity recomputes the whole chain. A failed verification is
	// an IntegrityViolation for the caller; it is never auto-repaired.
	VerifyIntegrity(ctx context.Context) (*VerificationResult, error)

	// CountSince returns the number of records of a category at or after ts
	CountSince(ctx context.Context, category Category, ts time.Time) (int, error)

	// ListSince returns records of a category at or after ts in sequence order
	ListSince(ctx context.Context, category Category, ts time.Time) ([]*Event, error)
}
