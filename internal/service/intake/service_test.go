package intake

import (
	"context"
	"testing"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/alert"
	"github.com/eldershield/eldershield-backend/internal/domain/audit"
	"github.com/eldershield/eldershield-backend/internal/domain/behavior"
	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/eldershield/eldershield-backend/internal/infrastructure/repository"
	"github.com/eldershield/eldershield-backend/internal/service/alertmanager"
	"github.com/eldershield/eldershield-backend/internal/service/riskscorer"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memAlertStore struct {
	alerts map[uuid.UUID]*alert.Alert
}

func (m *memAlertStore) Save(ctx context.Context, a *alert.Alert) error {
	m.alerts[a.ID] = a
	return nil
}

func (m *memAlertStore) GetByID(ctx context.Context, id uuid.UUID) (*alert.Alert, error) {
	return m.alerts[id], nil
}

func (m *memAlertStore) Update(ctx context.Context, a *alert.Alert) error {
	m.alerts[a.ID] = a
	return nil
}

func (m *memAlertStore) ListActive(ctx context.Context, subjectID uuid.UUID) ([]*alert.Alert, error) {
	var out []*alert.Alert
	for _, a := range m.alerts {
		if a.SubjectID == subjectID && a.Status != alert.StatusResolved {
			out = append(out, a)
		}
	}
	return out, nil
}

type recordingDispatcher struct {
	dispatched []*alert.Alert
}

func (r *recordingDispatcher) DispatchAlert(ctx context.Context, a *alert.Alert) error {
	r.dispatched = append(r.dispatched, a)
	return nil
}

type pipeline struct {
	svc        Service
	auditLog   *repository.MemoryAuditStore
	dispatcher *recordingDispatcher
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	auditLog := repository.NewMemoryAuditStore()
	events := repository.NewMemoryBehaviorStore()
	assessments := repository.NewMemoryAssessmentStore()
	dispatcher := &recordingDispatcher{}

	scorer := riskscorer.NewService(events, assessments, auditLog, riskscorer.DefaultConfig(), nil)
	alerts := alertmanager.NewService(&memAlertStore{alerts: make(map[uuid.UUID]*alert.Alert)}, dispatcher, auditLog, nil)

	return &pipeline{
		svc:        NewService(events, scorer, alerts, auditLog, DefaultConfig(), nil, nil),
		auditLog:   auditLog,
		dispatcher: dispatcher,
	}
}

var intakeBase = time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

func TestIngestBehaviorEvent_ProtectedContactAttemptsReachCritical(t *testing.T) {
	p := newPipeline(t)
	caregiverID, subjectID := uuid.New(), uuid.New()

	in := BehaviorEventInput{
		CaregiverID: caregiverID,
		SubjectID:   subjectID,
		Category:    behavior.CategoryContactRemoval,
		Outcome:     behavior.OutcomeBlocked,
		Payload:     map[string]interface{}{behavior.PayloadContactRole: behavior.ContactRoleEmergency},
		OccurredAt:  intakeBase,
	}

	first, err := p.svc.IngestBehaviorEvent(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, first.Assessment)

	in.OccurredAt = intakeBase.Add(3 * time.Hour)
	second, err := p.svc.IngestBehaviorEvent(context.Background(), in)
	require.NoError(t, err)

	// 2×15 manipulation + 2×25 tampering + 40 synthesized trigger
	assert.Equal(t, 120, second.Assessment.TotalScore)
	assert.Equal(t, risk.LevelCritical, second.Assessment.Level)
	assert.True(t, second.Assessment.HasFactor(risk.FactorTriggerEvent))

	require.NotNil(t, second.Alert)
	assert.True(t, second.Alert.RequiresImmediateAction)
	assert.NotEmpty(t, p.dispatcher.dispatched)
}

func TestIngestBehaviorEvent_FewAttemptsProduceNoAlert(t *testing.T) {
	p := newPipeline(t)
	caregiverID, subjectID := uuid.New(), uuid.New()

	var last *Result
	for i := 0; i < 2; i++ {
		var err error
		last, err = p.svc.IngestBehaviorEvent(context.Background(), BehaviorEventInput{
			CaregiverID: caregiverID,
			SubjectID:   subjectID,
			Category:    behavior.CategoryContactRemoval,
			Outcome:     behavior.OutcomeBlocked,
			Payload:     map[string]interface{}{behavior.PayloadContactRole: "family"},
			OccurredAt:  intakeBase.Add(time.Duration(i) * 4 * time.Hour),
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 30, last.Assessment.TotalScore)
	assert.Equal(t, risk.LevelLow, last.Assessment.Level)
	assert.Nil(t, last.Alert)
	assert.Empty(t, p.dispatcher.dispatched)
}

func TestIngestBehaviorEvent_RepeatedAttemptsCompoundThroughEscalationRule(t *testing.T) {
	p := newPipeline(t)
	caregiverID, subjectID := uuid.New(), uuid.New()

	// Each ingest rescans the accumulated window; from the third on, the
	// rising assessment trend fires the escalating-behavior factor as well.
	wantTotals := []int{15, 30, 70, 85, 100}

	var last *Result
	for i := 0; i < 5; i++ {
		var err error
		last, err = p.svc.IngestBehaviorEvent(context.Background(), BehaviorEventInput{
			CaregiverID: caregiverID,
			SubjectID:   subjectID,
			Category:    behavior.CategoryContactRemoval,
			Outcome:     behavior.OutcomeBlocked,
			Payload:     map[string]interface{}{behavior.PayloadContactRole: "family"},
			OccurredAt:  intakeBase.Add(time.Duration(i) * 4 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, wantTotals[i], last.Assessment.TotalScore, "ingest %d", i)
	}

	assert.Equal(t, risk.LevelCritical, last.Assessment.Level)
	assert.True(t, last.Assessment.HasFactor(risk.FactorEscalatingBehavior))
}

func TestIngestBehaviorEvent_MalformedEventIsRejectedAndAudited(t *testing.T) {
	p := newPipeline(t)

	_, err := p.svc.IngestBehaviorEvent(context.Background(), BehaviorEventInput{
		CaregiverID: uuid.New(),
		SubjectID:   uuid.New(),
		Category:    "not_a_category",
		Outcome:     behavior.OutcomeBlocked,
		OccurredAt:  intakeBase,
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	rejected, auditErr := p.auditLog.CountSince(context.Background(), audit.CategoryEventRejected, time.Time{})
	require.NoError(t, auditErr)
	assert.Equal(t, 1, rejected)

	ingested, auditErr := p.auditLog.CountSince(context.Background(), audit.CategoryEventIngested, time.Time{})
	require.NoError(t, auditErr)
	assert.Zero(t, ingested)
}

func TestIngestTrigger_PanicScoresWithoutAlertBelowMedium(t *testing.T) {
	p := newPipeline(t)

	res, err := p.svc.IngestTrigger(context.Background(), TriggerInput{
		Type:        behavior.TriggerPanicActivation,
		SubjectID:   uuid.New(),
		CaregiverID: uuid.New(),
		Context:     map[string]interface{}{"source": "sos_button"},
		OccurredAt:  intakeBase,
	})
	require.NoError(t, err)

	assert.Equal(t, 30, res.Assessment.TotalScore)
	assert.True(t, res.Assessment.HasFactor(risk.FactorTriggerEvent))
	assert.Nil(t, res.Alert)
	assert.Empty(t, p.dispatcher.dispatched)
}

func TestIngestBehaviorEvent_EveryIngestIsAudited(t *testing.T) {
	p := newPipeline(t)

	_, err := p.svc.IngestBehaviorEvent(context.Background(), BehaviorEventInput{
		CaregiverID: uuid.New(),
		SubjectID:   uuid.New(),
		Category:    behavior.CategoryEmergencyInteraction,
		Outcome:     behavior.OutcomeAllowed,
		Payload:     map[string]interface{}{behavior.PayloadAction: behavior.ActionStatusQuery},
		OccurredAt:  intakeBase,
	})
	require.NoError(t, err)

	count, err := p.auditLog.CountSince(context.Background(), audit.CategoryEventIngested, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
