package alert

import (
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/google/uuid"
)

// Status tracks an alert through its lifecycle. Alerts are never deleted.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusResolved Status = "resolved"
)

// Alert is a caregiver-risk notification produced by the alert manager.
// Mutated only through MarkSent and Resolve.
type Alert struct {
	ID                      uuid.UUID  `json:"id"`
	SubjectID               uuid.UUID  `json:"subject_id"`
	CaregiverID             uuid.UUID  `json:"caregiver_id"`
	AssessmentID            uuid.UUID  `json:"assessment_id"`
	Level                   risk.Level `json:"level"`
	Message                 string     `json:"message"`
	RecommendedActions      []string   `json:"recommended_actions"`
	RequiresImmediateAction bool       `json:"requires_immediate_action"`
	Status                  Status     `json:"status"`
	ResolutionNote          string     `json:"resolution_note,omitempty"`
	ResolvedAt              *time.Time `json:"resolved_at,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
}

// New creates an alert. A CRITICAL alert always requires immediate action,
// regardless of what the caller passed.
func New(subjectID, caregiverID, assessmentID uuid.UUID, level risk.Level, message string, actions []string, immediate bool) (*Alert, error) {
	if subjectID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_SUBJECT_ID", "subject ID is required")
	}
	if message == "" {
		return nil, errors.NewValidationError("MISSING_MESSAGE", "alert message is required")
	}
	if !level.AtLeast(risk.LevelMedium) {
		return nil, errors.NewValidationError("LEVEL_TOO_LOW", "alerts are only created at medium risk or above")
	}

	if level == risk.LevelCritical {
		immediate = true
	}

	return &Alert{
		ID:                      uuid.New(),
		SubjectID:               subjectID,
		CaregiverID:             caregiverID,
		AssessmentID:            assessmentID,
		Level:                   level,
		Message:                 message,
		RecommendedActions:      actions,
		RequiresImmediateAction: immediate,
		Status:                  StatusPending,
		CreatedAt:               time.Now().UTC(),
	}, nil
}

// MarkSent transitions pending → sent after dispatch
func (a *Alert) MarkSent() {
	if a.Status == StatusPending {
		a.Status = StatusSent
	}
}

// Resolve closes the alert with a note. Resolving an already-resolved alert
// returns a conflict error and does not overwrite the original resolution.
func (a *Alert) Resolve(note string, at time.Time) error {
	if a.Status == StatusResolved {
		return errors.ErrAlertAlreadyResolved
	}
	if note == "" {
		return errors.NewValidationError("MISSING_RESOLUTION_NOTE", "resolution note is required")
	}

	resolvedAt := at.UTC()
	a.Status = StatusResolved
	a.ResolutionNote = note
	a.ResolvedAt = &resolvedAt
	return nil
}
