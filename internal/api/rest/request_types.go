package rest

import (
	"time"

	"github.com/google/uuid"

	"github.com/eldershield/eldershield-backend/internal/domain/behavior"
	"github.com/eldershield/eldershield-backend/internal/domain/connectivity"
	"github.com/eldershield/eldershield-backend/internal/domain/emergency"
	"github.com/eldershield/eldershield-backend/internal/service/intake"
)

// BehaviorEventRequest reports one observed caregiver action
type BehaviorEventRequest struct {
	CaregiverID uuid.UUID              `json:"caregiver_id" validate:"required"`
	SubjectID   uuid.UUID              `json:"subject_id" validate:"required"`
	Category    string                 `json:"category" validate:"required,oneof=contact_removal_attempt permission_escalation_attempt emergency_system_interaction"`
	Outcome     string                 `json:"outcome" validate:"required,oneof=blocked allowed denied"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at" validate:"required"`
}

func (r BehaviorEventRequest) toInput() intake.BehaviorEventInput {
	return intake.BehaviorEventInput{
		CaregiverID: r.CaregiverID,
		SubjectID:   r.SubjectID,
		Category:    behavior.Category(r.Category),
		Outcome:     behavior.Outcome(r.Outcome),
		Payload:     r.Payload,
		OccurredAt:  r.OccurredAt,
	}
}

// TriggerEventRequest reports an urgent signal from the device
type TriggerEventRequest struct {
	Type        string                 `json:"type" validate:"required,oneof=panic_activation emergency_contact_tampering"`
	SubjectID   uuid.UUID              `json:"subject_id" validate:"required"`
	CaregiverID uuid.UUID              `json:"caregiver_id,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at" validate:"required"`
}

func (r TriggerEventRequest) toInput() intake.TriggerInput {
	return intake.TriggerInput{
		Type:        behavior.TriggerType(r.Type),
		SubjectID:   r.SubjectID,
		CaregiverID: r.CaregiverID,
		Context:     r.Context,
		OccurredAt:  r.OccurredAt,
	}
}

// EmergencyRequest activates the SOS escalation path
type EmergencyRequest struct {
	SubjectID     uuid.UUID          `json:"subject_id" validate:"required"`
	Category      string             `json:"category" validate:"required,oneof=medical fall panic abuse general"`
	Language      string             `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
	TriggerSource string             `json:"trigger_source,omitempty"`
	Location      *EmergencyLocation `json:"location,omitempty"`
}

// EmergencyLocation is an optional device position
type EmergencyLocation struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy  float64 `json:"accuracy_m,omitempty" validate:"gte=0"`
}

func (r EmergencyRequest) location() *emergency.Location {
	if r.Location == nil {
		return nil
	}
	return &emergency.Location{
		Latitude:  r.Location.Latitude,
		Longitude: r.Location.Longitude,
		Accuracy:  r.Location.Accuracy,
	}
}

// NetworkStateRequest reports a device connectivity transition
type NetworkStateRequest struct {
	Tier    string `json:"tier" validate:"required,oneof=unknown connected limited disconnected"`
	Quality int    `json:"quality" validate:"gte=0,lte=5"`
}

func (r NetworkStateRequest) tier() connectivity.Tier {
	return connectivity.Tier(r.Tier)
}

// ResolveAlertRequest closes an alert with a caretaker note
type ResolveAlertRequest struct {
	Note string `json:"note" validate:"required,min=1,max=2000"`
}

// EmergencyResponse reports the outcome of an SOS dispatch
type EmergencyResponse struct {
	Request *emergency.Request        `json:"request"`
	Results []emergency.ChannelResult `json:"results"`
}

// NetworkStateResponse echoes the coordinator's view after a transition
type NetworkStateResponse struct {
	Tier         string    `json:"tier"`
	Quality      int       `json:"quality"`
	SyncStrategy string    `json:"sync_strategy"`
	LastOnline   time.Time `json:"last_online,omitempty"`
}

// HealthResponse is the liveness probe body
type HealthResponse struct {
	Status string `json:"status"`
}
