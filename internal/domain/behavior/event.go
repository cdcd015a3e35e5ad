package behavior

import (
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/google/uuid"
)

// Category classifies an observed caregiver action
type Category string

const (
	CategoryContactRemoval       Category = "contact_removal_attempt"
	CategoryPermissionEscalation Category = "permission_escalation_attempt"
	CategoryEmergencyInteraction Category = "emergency_system_interaction"
	CategoryTriggerEvent         Category = "trigger_event"
)

// Outcome records whether the platform allowed or blocked the action
type Outcome string

const (
	OutcomeBlocked Outcome = "blocked"
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// Well-known payload keys produced by the collaborator subsystems
const (
	PayloadContactRole   = "contact_role"
	PayloadPermission    = "permission"
	PayloadAction        = "action"
	PayloadTargetFeature = "target_feature"
)

// Contact roles that place a contact under tampering protection
const (
	ContactRoleEmergency = "emergency"
	ContactRoleAdvocate  = "advocate"
)

// Actions against emergency features reported under CategoryEmergencyInteraction
const (
	ActionDisableAttempt = "disable_attempt"
	ActionModifyAttempt  = "modify_attempt"
	ActionStatusQuery    = "status_query"
)

// Event is one observed caregiver action. Write-once: produced by external
// collaborators at the boundary, consumed only by the risk scorer.
type Event struct {
	ID          uuid.UUID              `json:"id"`
	CaregiverID uuid.UUID              `json:"caregiver_id"`
	SubjectID   uuid.UUID              `json:"subject_id"`
	Category    Category               `json:"category"`
	Outcome     Outcome                `json:"outcome"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// NewEvent creates a behavior event with validation.
// All validation lives in the constructor; a constructed event is trusted downstream.
func NewEvent(caregiverID, subjectID uuid.UUID, category Category, outcome Outcome, payload map[string]interface{}, occurredAt time.Time) (*Event, error) {
	if caregiverID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_CAREGIVER_ID", "caregiver ID is required")
	}
	if subjectID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_SUBJECT_ID", "subject ID is required")
	}
	if !isValidCategory(category) {
		return nil, errors.NewValidationError("INVALID_CATEGORY", "unknown behavior category")
	}
	if !isValidOutcome(outcome) {
		return nil, errors.NewValidationError("INVALID_OUTCOME", "outcome must be blocked, allowed or denied")
	}
	if occurredAt.IsZero() {
		return nil, errors.NewValidationError("MISSING_TIMESTAMP", "occurrence timestamp is required")
	}

	if payload == nil {
		payload = make(map[string]interface{})
	}

	return &Event{
		ID:          uuid.New(),
		CaregiverID: caregiverID,
		SubjectID:   subjectID,
		Category:    category,
		Outcome:     outcome,
		Payload:     payload,
		OccurredAt:  occurredAt.UTC(),
	}, nil
}

// IsBlocked reports whether the platform stopped the action
func (e *Event) IsBlocked() bool {
	return e.Outcome == OutcomeBlocked || e.Outcome == OutcomeDenied
}

// TargetsProtectedContact reports whether the action was aimed at an
// emergency or advocate contact
func (e *Event) TargetsProtectedContact() bool {
	role, ok := e.Payload[PayloadContactRole].(string)
	if !ok {
		return false
	}
	return role == ContactRoleEmergency || role == ContactRoleAdvocate
}

// PayloadString returns a string payload field, empty when absent
func (e *Event) PayloadString(key string) string {
	v, _ := e.Payload[key].(string)
	return v
}

func isValidCategory(c Category) bool {
	switch c {
	case CategoryContactRemoval, CategoryPermissionEscalation, CategoryEmergencyInteraction, CategoryTriggerEvent:
		return true
	}
	return false
}

func isValidOutcome(o Outcome) bool {
	switch o {
	case OutcomeBlocked, OutcomeAllowed, OutcomeDenied:
		return true
	}
	return false
}
