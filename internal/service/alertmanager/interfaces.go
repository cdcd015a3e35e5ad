package alertmanager

import (
	"context"

	"github.com/eldershield/eldershield-backend/internal/domain/alert"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/google/uuid"
)

// Service turns completed assessments into alerts and manages their lifecycle
type Service interface {
	// Evaluate creates and dispatches an alert for the assessment.
	// Assessments below medium risk produce no alert and return (nil, nil).
	Evaluate(ctx context.Context, assessment *risk.Assessment) (*alert.Alert, error)

	// Resolve closes an alert with a caretaker note. Resolving twice is a
	// conflict and leaves the original resolution untouched.
	Resolve(ctx context.Context, alertID uuid.UUID, note string) (*alert.Alert, error)

	Get(ctx context.Context, alertID uuid.UUID) (*alert.Alert, error)
	ListActive(ctx context.Context, subjectID uuid.UUID) ([]*alert.Alert, error)
}

// AlertStore persists alerts. Alerts are never deleted.
type AlertStore interface {
	Save(ctx context.Context, a *alert.Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*alert.Alert, error)
	Update(ctx context.Context, a *alert.Alert) error
	ListActive(ctx context.Context, subjectID uuid.UUID) ([]*alert.Alert, error)
}

// Dispatcher delivers an alert across notification channels. Channel
// selection and fallback live behind this interface.
type Dispatcher interface {
	DispatchAlert(ctx context.Context, a *alert.Alert) error
}
