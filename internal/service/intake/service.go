// Package intake is the event entry point of the engine: it validates and
// persists incoming behavior events, synthesizes tampering triggers, and
// drives the scorer and alert manager for the affected pair.
package intake

import (
	"context"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/alert"
	"github.com/eldershield/eldershield-backend/internal/domain/audit"
	"github.com/eldershield/eldershield-backend/internal/domain/behavior"
	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/eldershield/eldershield-backend/internal/metrics"
	"github.com/eldershield/eldershield-backend/internal/service/alertmanager"
	"github.com/eldershield/eldershield-backend/internal/service/riskscorer"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service ingests behavior and trigger events and runs the scoring pipeline
type Service interface {
	IngestBehaviorEvent(ctx context.Context, in BehaviorEventInput) (*Result, error)
	IngestTrigger(ctx context.Context, in TriggerInput) (*Result, error)
}

// BehaviorEventStore persists validated behavior events
type BehaviorEventStore interface {
	Save(ctx context.Context, e *behavior.Event) error
}

// BehaviorEventInput is the boundary representation of an observed action
type BehaviorEventInput struct {
	CaregiverID uuid.UUID
	SubjectID   uuid.UUID
	Category    behavior.Category
	Outcome     behavior.Outcome
	Payload     map[string]interface{}
	OccurredAt  time.Time
}

// TriggerInput is the boundary representation of an urgent signal
type TriggerInput struct {
	Type        behavior.TriggerType
	SubjectID   uuid.UUID
	CaregiverID uuid.UUID
	Context     map[string]interface{}
	OccurredAt  time.Time
}

// Result is what one intake produced
type Result struct {
	Event      *behavior.Event  `json:"event,omitempty"`
	Assessment *risk.Assessment `json:"assessment"`
	Alert      *alert.Alert     `json:"alert,omitempty"`
}

// Config for the intake pipeline
type Config struct {
	Lookback time.Duration
}

// DefaultConfig returns the documented look-back window
func DefaultConfig() Config {
	return Config{Lookback: 7 * 24 * time.Hour}
}

type service struct {
	events   BehaviorEventStore
	scorer   riskscorer.Service
	alerts   alertmanager.Service
	auditLog audit.Store
	cfg      Config
	metrics  *metrics.ScorerMetrics
	logger   *zap.Logger
}

// NewService creates the intake pipeline
func NewService(events BehaviorEventStore, scorer riskscorer.Service, alerts alertmanager.Service, auditLog audit.Store, cfg Config, m *metrics.ScorerMetrics, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		events:   events,
		scorer:   scorer,
		alerts:   alerts,
		auditLog: auditLog,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// IngestBehaviorEvent validates, persists and scores one observed action.
// A malformed event is rejected and audited; it never reaches the scorer.
func (s *service) IngestBehaviorEvent(ctx context.Context, in BehaviorEventInput) (*Result, error) {
	event, err := behavior.NewEvent(in.CaregiverID, in.SubjectID, in.Category, in.Outcome, in.Payload, in.OccurredAt)
	if err != nil {
		if _, auditErr := s.auditLog.Append(ctx, audit.CategoryEventRejected, map[string]interface{}{
			"caregiver_id": in.CaregiverID.String(),
			"subject_id":   in.SubjectID.String(),
			"category":     string(in.Category),
			"reason":       err.Error(),
		}); auditErr != nil {
			return nil, auditErr
		}
		return nil, err
	}

	if err := s.events.Save(ctx, event); err != nil {
		return nil, errors.NewInternalError("failed to persist behavior event").WithCause(err)
	}

	if _, err := s.auditLog.Append(ctx, audit.CategoryEventIngested, map[string]interface{}{
		"event_id":     event.ID.String(),
		"caregiver_id": event.CaregiverID.String(),
		"subject_id":   event.SubjectID.String(),
		"category":     string(event.Category),
		"outcome":      string(event.Outcome),
	}); err != nil {
		return nil, err
	}

	trigger := s.synthesizeTrigger(event)

	return s.score(ctx, event, trigger, event.OccurredAt)
}

// IngestTrigger scores an urgent signal immediately
func (s *service) IngestTrigger(ctx context.Context, in TriggerInput) (*Result, error) {
	trigger, err := behavior.NewTriggerEvent(in.Type, in.SubjectID, in.CaregiverID, in.Context, in.OccurredAt)
	if err != nil {
		return nil, err
	}
	return s.score(ctx, nil, trigger, trigger.OccurredAt)
}

// synthesizeTrigger raises an emergency-contact-tampering trigger when a
// blocked removal attempt targeted a protected contact. The trigger rides
// the same scoring pass as the event that caused it.
func (s *service) synthesizeTrigger(event *behavior.Event) *behavior.TriggerEvent {
	if event.Category != behavior.CategoryContactRemoval || !event.IsBlocked() || !event.TargetsProtectedContact() {
		return nil
	}

	trigger, err := behavior.NewTriggerEvent(behavior.TriggerContactTampering, event.SubjectID, event.CaregiverID,
		map[string]interface{}{"source_event_id": event.ID.String()}, event.OccurredAt)
	if err != nil {
		s.logger.Error("failed to synthesize tampering trigger",
			zap.String("event_id", event.ID.String()), zap.Error(err))
		return nil
	}
	return trigger
}

func (s *service) score(ctx context.Context, event *behavior.Event, trigger *behavior.TriggerEvent, at time.Time) (*Result, error) {
	caregiverID := uuid.Nil
	subjectID := uuid.Nil
	switch {
	case event != nil:
		caregiverID, subjectID = event.CaregiverID, event.SubjectID
	case trigger != nil:
		caregiverID, subjectID = trigger.CaregiverID, trigger.SubjectID
	}

	window := risk.Window{Start: at.Add(-s.cfg.Lookback), End: at}
	assessment, err := s.scorer.Assess(ctx, caregiverID, subjectID, window, trigger)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Assessments.WithLabelValues(string(assessment.Level)).Inc()
	}

	a, err := s.alerts.Evaluate(ctx, assessment)
	if err != nil {
		return nil, err
	}

	return &Result{Event: event, Assessment: assessment, Alert: a}, nil
}
