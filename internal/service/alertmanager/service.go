package alertmanager

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/alert"
	"github.com/eldershield/eldershield-backend/internal/domain/audit"
	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type service struct {
	alerts     AlertStore
	dispatcher Dispatcher
	auditLog   audit.Store
	logger     *zap.Logger

	// Per-alert serialization so concurrent resolves race on the domain
	// guard, not on lost store updates.
	alertMu   sync.Mutex
	alertLock map[uuid.UUID]*sync.Mutex
}

// NewService creates an alert manager
func NewService(alerts AlertStore, dispatcher Dispatcher, auditLog audit.Store, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		alerts:     alerts,
		dispatcher: dispatcher,
		auditLog:   auditLog,
		logger:     logger,
		alertLock:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// Evaluate creates an alert for medium risk and above, audits it, and hands
// it to the dispatcher. Below medium nothing is created.
func (s *service) Evaluate(ctx context.Context, assessment *risk.Assessment) (*alert.Alert, error) {
	if assessment == nil {
		return nil, errors.NewValidationError("MISSING_ASSESSMENT", "assessment is required")
	}
	if !assessment.Level.AtLeast(risk.LevelMedium) {
		s.logger.Debug("assessment below alert threshold",
			zap.String("assessment_id", assessment.ID.String()),
			zap.String("level", string(assessment.Level)))
		return nil, nil
	}

	a, err := alert.New(
		assessment.SubjectID,
		assessment.CaregiverID,
		assessment.ID,
		assessment.Level,
		alertMessage(assessment),
		recommendedActions(assessment),
		requiresImmediate(assessment),
	)
	if err != nil {
		return nil, err
	}

	if err := s.alerts.Save(ctx, a); err != nil {
		return nil, errors.NewInternalError("failed to persist alert").WithCause(err)
	}

	if _, err := s.auditLog.Append(ctx, audit.CategoryAlertCreated, map[string]interface{}{
		"alert_id":      a.ID.String(),
		"assessment_id": assessment.ID.String(),
		"subject_id":    a.SubjectID.String(),
		"caregiver_id":  a.CaregiverID.String(),
		"level":         string(a.Level),
		"immediate":     a.RequiresImmediateAction,
	}); err != nil {
		return nil, err
	}

	// Dispatch failures do not lose the alert: it stays pending for the
	// dispatcher's fallback paths and the monitoring feed.
	if err := s.dispatcher.DispatchAlert(ctx, a); err != nil {
		s.logger.Error("alert dispatch failed",
			zap.String("alert_id", a.ID.String()),
			zap.String("level", string(a.Level)),
			zap.Error(err))
		return a, nil
	}

	a.MarkSent()
	if err := s.alerts.Update(ctx, a); err != nil {
		return nil, errors.NewInternalError("failed to update alert status").WithCause(err)
	}

	s.logger.Info("alert dispatched",
		zap.String("alert_id", a.ID.String()),
		zap.String("level", string(a.Level)),
		zap.Bool("immediate", a.RequiresImmediateAction))

	return a, nil
}

// Resolve closes an alert with a note
func (s *service) Resolve(ctx context.Context, alertID uuid.UUID, note string) (*alert.Alert, error) {
	if alertID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ALERT_ID", "alert ID is required")
	}

	unlock := s.lockAlert(alertID)
	defer unlock()

	a, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errors.ErrAlertNotFound
	}

	if err := a.Resolve(note, time.Now().UTC()); err != nil {
		if stderrors.Is(err, errors.ErrAlertAlreadyResolved) {
			s.evictAlertLock(alertID)
		}
		return nil, err
	}

	if err := s.alerts.Update(ctx, a); err != nil {
		return nil, errors.NewInternalError("failed to persist resolution").WithCause(err)
	}

	if _, err := s.auditLog.Append(ctx, audit.CategoryAlertResolved, map[string]interface{}{
		"alert_id":   a.ID.String(),
		"subject_id": a.SubjectID.String(),
		"note":       note,
	}); err != nil {
		return nil, err
	}

	s.evictAlertLock(alertID)
	s.logger.Info("alert resolved", zap.String("alert_id", a.ID.String()))
	return a, nil
}

func (s *service) Get(ctx context.Context, alertID uuid.UUID) (*alert.Alert, error) {
	a, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errors.ErrAlertNotFound
	}
	return a, nil
}

func (s *service) ListActive(ctx context.Context, subjectID uuid.UUID) ([]*alert.Alert, error) {
	if subjectID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_SUBJECT_ID", "subject ID is required")
	}
	return s.alerts.ListActive(ctx, subjectID)
}

func (s *service) lockAlert(id uuid.UUID) func() {
	s.alertMu.Lock()
	mu, ok := s.alertLock[id]
	if !ok {
		mu = &sync.Mutex{}
		s.alertLock[id] = mu
	}
	s.alertMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// evictAlertLock drops the lock entry for a terminal alert so the map only
// holds in-flight resolutions. Resolved alerts are immutable, so a late
// waiter recreating the entry can only observe the conflict error.
func (s *service) evictAlertLock(id uuid.UUID) {
	s.alertMu.Lock()
	delete(s.alertLock, id)
	s.alertMu.Unlock()
}

func alertMessage(assessment *risk.Assessment) string {
	return fmt.Sprintf("caregiver behavior assessed at %s risk (score %d, %d factors)",
		assessment.Level, assessment.TotalScore, len(assessment.Factors))
}

// requiresImmediate marks high-level alerts and any alert carrying a
// tampering factor for immediate dispatch. CRITICAL is forced immediate by
// the alert constructor regardless.
func requiresImmediate(assessment *risk.Assessment) bool {
	if assessment.Level.AtLeast(risk.LevelHigh) {
		return true
	}
	return assessment.HasFactor(risk.FactorContactTampering) ||
		assessment.HasFactor(risk.FactorSafetyTampering)
}

// factorActions maps each factor type to its caretaker guidance
var factorActions = map[risk.FactorType][]string{
	risk.FactorContactManipulation: {"review recent contact changes with the subject"},
	risk.FactorContactTampering: {
		"notify elder rights advocate immediately",
		"restrict caregiver contact permissions",
	},
	risk.FactorBurstActivity:       {"increase monitoring frequency"},
	risk.FactorPermissionAbuse:     {"review caregiver permission grants"},
	risk.FactorSensitivePermission: {"review caregiver permission grants", "audit location and contact access"},
	risk.FactorNighttimePattern:    {"schedule a wellness check"},
	risk.FactorWeekendPattern:      {"schedule a wellness check"},
	risk.FactorSafetyTampering: {
		"verify emergency features are enabled",
		"notify elder rights advocate immediately",
	},
	risk.FactorSurveillance:       {"review emergency status access history"},
	risk.FactorEscalatingBehavior: {"increase monitoring frequency"},
	risk.FactorTriggerEvent:       {"confirm subject safety by direct contact"},
}

// recommendedActions collects the guidance for every factor that fired,
// deduplicated, in factor order so the list is deterministic.
func recommendedActions(assessment *risk.Assessment) []string {
	seen := make(map[string]bool)
	var actions []string
	for _, f := range assessment.Factors {
		for _, action := range factorActions[f.Type] {
			if seen[action] {
				continue
			}
			seen[action] = true
			actions = append(actions, action)
		}
	}
	if len(actions) == 0 {
		actions = []string{"review the assessment details"}
	}
	return actions
}
