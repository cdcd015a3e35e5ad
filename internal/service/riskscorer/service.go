package riskscorer

import (
	"context"
	"sync"

	"github.com/eldershield/eldershield-backend/internal/domain/audit"
	"github.com/eldershield/eldershield-backend/internal/domain/behavior"
	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// service implements Service
type service struct {
	events      EventStore
	assessments AssessmentStore
	auditLog    audit.Store
	cfg         Config
	logger      *zap.Logger

	// Per-pair serialization keeps the escalating-behavior trend read
	// consistent with the subsequent save. Different pairs score
	// concurrently and share no mutable state.
	pairMu   sync.Mutex
	pairLock map[string]*sync.Mutex
}

// NewService creates a risk scorer
func NewService(events EventStore, assessments AssessmentStore, auditLog audit.Store, cfg Config, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		events:      events,
		assessments: assessments,
		auditLog:    auditLog,
		cfg:         cfg,
		logger:      logger,
		pairLock:    make(map[string]*sync.Mutex),
	}
}

// Assess runs the rule set over the pair's behavior window
func (s *service) Assess(ctx context.Context, caregiverID, subjectID uuid.UUID, window risk.Window, trigger *behavior.TriggerEvent) (*risk.Assessment, error) {
	if caregiverID == uuid.Nil || subjectID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_IDS", "caregiver and subject IDs are required")
	}

	unlock := s.lockPair(caregiverID, subjectID)
	defer unlock()

	events, err := s.events.ListWindow(ctx, caregiverID, subjectID, window)
	if err != nil {
		return nil, errors.NewInternalError("failed to load behavior window").WithCause(err)
	}

	history, err := s.assessments.Recent(ctx, caregiverID, subjectID, s.cfg.EscalationHistory)
	if err != nil {
		return nil, errors.NewInternalError("failed to load assessment history").WithCause(err)
	}

	in := ruleInput{
		events:  events,
		history: history,
		trigger: trigger,
		cfg:     s.cfg,
	}

	var factors []risk.Factor
	for _, rule := range allRules {
		factors = append(factors, rule(in)...)
	}

	escalateTamperingSeverity(factors)

	assessment, err := risk.NewAssessment(caregiverID, subjectID, factors, window, window.End)
	if err != nil {
		return nil, err
	}

	for _, f := range assessment.Factors {
		if _, err := s.auditLog.Append(ctx, audit.CategoryFactorComputed, map[string]interface{}{
			"assessment_id": assessment.ID.String(),
			"caregiver_id":  caregiverID.String(),
			"subject_id":    subjectID.String(),
			"factor_type":   string(f.Type),
			"severity":      string(f.Severity),
			"score":         f.Score,
			"pattern":       f.Pattern(),
		}); err != nil {
			return nil, err
		}
	}

	if err := s.assessments.Save(ctx, assessment); err != nil {
		return nil, errors.NewInternalError("failed to persist assessment").WithCause(err)
	}

	if _, err := s.auditLog.Append(ctx, audit.CategoryAssessment, map[string]interface{}{
		"assessment_id": assessment.ID.String(),
		"caregiver_id":  caregiverID.String(),
		"subject_id":    subjectID.String(),
		"total_score":   assessment.TotalScore,
		"level":         string(assessment.Level),
		"factor_count":  len(assessment.Factors),
	}); err != nil {
		return nil, err
	}

	s.logger.Info("assessment completed",
		zap.String("caregiver_id", caregiverID.String()),
		zap.String("subject_id", subjectID.String()),
		zap.Int("total_score", assessment.TotalScore),
		zap.String("level", string(assessment.Level)),
		zap.Int("factors", len(assessment.Factors)))

	return assessment, nil
}

// escalateTamperingSeverity raises the emergency-contact-tampering factor to
// critical severity when the aggregate score crosses the critical threshold.
// Scores are untouched: the total stays the exact factor sum.
func escalateTamperingSeverity(factors []risk.Factor) {
	total := 0
	for _, f := range factors {
		total += f.Score
	}
	if total < risk.ThresholdCritical {
		return
	}
	for i := range factors {
		if factors[i].Type == risk.FactorContactTampering {
			factors[i].Severity = risk.SeverityCritical
		}
	}
}

// lockPair serializes assessments per caregiver/subject pair. Entries are
// kept for the life of the process: a device serves one subject and a small,
// stable set of caregivers, so the map stays bounded by the caregiver roster
// rather than needing eviction.
func (s *service) lockPair(caregiverID, subjectID uuid.UUID) func() {
	key := caregiverID.String() + "/" + subjectID.String()

	s.pairMu.Lock()
	mu, ok := s.pairLock[key]
	if !ok {
		mu = &sync.Mutex{}
		s.pairLock[key] = mu
	}
	s.pairMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
