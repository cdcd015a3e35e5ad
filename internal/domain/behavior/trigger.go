package behavior

import (
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/google/uuid"
)

// TriggerType identifies the urgent signal that fired
type TriggerType string

const (
	TriggerPanicActivation  TriggerType = "panic_activation"
	TriggerContactTampering TriggerType = "emergency_contact_tampering"
)

// TriggerEvent is a high-priority signal folded into the next scoring pass
type TriggerEvent struct {
	ID          uuid.UUID              `json:"id"`
	Type        TriggerType            `json:"type"`
	SubjectID   uuid.UUID              `json:"subject_id"`
	CaregiverID uuid.UUID              `json:"caregiver_id"`
	Context     map[string]interface{} `json:"context,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// NewTriggerEvent creates a trigger event with validation
func NewTriggerEvent(triggerType TriggerType, subjectID, caregiverID uuid.UUID, context map[string]interface{}, occurredAt time.Time) (*TriggerEvent, error) {
	switch triggerType {
	case TriggerPanicActivation, TriggerContactTampering:
	default:
		return nil, errors.NewValidationError("INVALID_TRIGGER_TYPE", "unknown trigger type")
	}
	if subjectID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_SUBJECT_ID", "subject ID is required")
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	if context == nil {
		context = make(map[string]interface{})
	}

	return &TriggerEvent{
		ID:          uuid.New(),
		Type:        triggerType,
		SubjectID:   subjectID,
		CaregiverID: caregiverID,
		Context:     context,
		OccurredAt:  occurredAt.UTC(),
	}, nil
}
