package riskscorer

import (
	"context"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/behavior"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/google/uuid"
)

// Service assesses caregiver behavior over a bounded look-back window
type Service interface {
	// Assess runs every rule evaluator over the window and persists the
	// result. A supplied trigger event is folded into the same pass.
	Assess(ctx context.Context, caregiverID, subjectID uuid.UUID, window risk.Window, trigger *behavior.TriggerEvent) (*risk.Assessment, error)
}

// EventStore reads the behavior-event window for a caregiver/subject pair
type EventStore interface {
	ListWindow(ctx context.Context, caregiverID, subjectID uuid.UUID, window risk.Window) ([]*behavior.Event, error)
}

// AssessmentStore persists assessments and serves the trend read for the
// escalating-behavior rule
type AssessmentStore interface {
	Save(ctx context.Context, assessment *risk.Assessment) error
	// Recent returns up to limit assessments for the pair, most recent first
	Recent(ctx context.Context, caregiverID, subjectID uuid.UUID, limit int) ([]*risk.Assessment, error)
}

// Config holds the rule weights and windows. The numeric defaults
// materially affect sensitivity and are exposed here so they can be tuned
// against real caregiver-behavior data.
type Config struct {
	LookbackDays int

	ContactAttemptWeight   int
	ContactTamperingWeight int

	BurstThreshold int
	BurstWindow    time.Duration
	BurstScore     int

	PermissionDenialThreshold int
	PermissionDenialWeight    int
	SensitivePermissionWeight int

	NightStartHour int
	NightEndHour   int
	NightThreshold int
	NightWeight    int
	WeekendRatio   float64
	// WeekendMinEvents only keeps the ratio defined on an empty window.
	// The weekend rule has no minimum attempt count of its own.
	WeekendMinEvents int
	WeekendScore     int

	SafetyTamperingWeight  int
	SurveillanceThreshold  int
	SurveillanceScore      int

	EscalationHistory int
	EscalationMargin  int
	EscalationScore   int

	PanicTriggerScore     int
	TamperingTriggerScore int
}

// DefaultConfig returns the documented default policy
func DefaultConfig() Config {
	return Config{
		LookbackDays: 7,

		ContactAttemptWeight:   15,
		ContactTamperingWeight: 25,

		BurstThreshold: 3,
		BurstWindow:    time.Hour,
		BurstScore:     30,

		PermissionDenialThreshold: 2,
		PermissionDenialWeight:    10,
		SensitivePermissionWeight: 20,

		NightStartHour:   23,
		NightEndHour:     6,
		NightThreshold:   5,
		NightWeight:      8,
		WeekendRatio:     0.6,
		WeekendMinEvents: 1,
		WeekendScore:     20,

		SafetyTamperingWeight: 40,
		SurveillanceThreshold: 20,
		SurveillanceScore:     15,

		EscalationHistory: 3,
		EscalationMargin:  10,
		EscalationScore:   25,

		PanicTriggerScore:     30,
		TamperingTriggerScore: 40,
	}
}

// Permissions whose escalation requests are scored separately as sensitive
var sensitivePermissions = map[string]bool{
	"location":                true,
	"contacts":                true,
	"disable_safety_features": true,
}
