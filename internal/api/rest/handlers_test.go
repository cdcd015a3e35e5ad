package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldershield/eldershield-backend/internal/domain/alert"
	"github.com/eldershield/eldershield-backend/internal/domain/emergency"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/eldershield/eldershield-backend/internal/infrastructure/repository"
	"github.com/eldershield/eldershield-backend/internal/metrics"
	"github.com/eldershield/eldershield-backend/internal/service/alertmanager"
	"github.com/eldershield/eldershield-backend/internal/service/connectivity"
	connectivityDomain "github.com/eldershield/eldershield-backend/internal/domain/connectivity"
	"github.com/eldershield/eldershield-backend/internal/service/intake"
	"github.com/eldershield/eldershield-backend/internal/service/riskscorer"
)

// stubDispatchService satisfies both the escalation dispatcher and the
// alert manager's dispatcher so the whole pipeline wires in-memory.
type stubDispatchService struct {
	alerts      int
	emergencies []*emergency.Request
}

func (s *stubDispatchService) DispatchAlert(ctx context.Context, a *alert.Alert) error {
	s.alerts++
	return nil
}

func (s *stubDispatchService) DispatchEmergency(ctx context.Context, req *emergency.Request) ([]emergency.ChannelResult, error) {
	s.emergencies = append(s.emergencies, req)
	return []emergency.ChannelResult{emergency.NewChannelResult(emergency.ChannelLocal, true, "notification shown")}, nil
}

func (s *stubDispatchService) Shutdown() {}

type fixedRiskReader struct {
	level risk.Level
}

func (f *fixedRiskReader) SubjectLevel(ctx context.Context, subjectID uuid.UUID) (risk.Level, error) {
	return f.level, nil
}

type testHarness struct {
	handler    *Handler
	mux        *http.ServeMux
	audit      *repository.MemoryAuditStore
	dispatcher *stubDispatchService
	subjectID  uuid.UUID
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	auditLog := repository.NewMemoryAuditStore()
	events := repository.NewMemoryBehaviorStore()
	assessments := repository.NewMemoryAssessmentStore()
	alerts := repository.NewMemoryAlertStore()
	registry := prometheus.NewRegistry()

	scorer := riskscorer.NewService(events, assessments, auditLog, riskscorer.DefaultConfig(), nil)
	dispatcher := &stubDispatchService{}
	alertSvc := alertmanager.NewService(alerts, dispatcher, auditLog, nil)
	intakeSvc := intake.NewService(events, scorer, alertSvc, auditLog, intake.DefaultConfig(), metrics.NewScorerMetrics(registry), nil)
	coordinator := connectivity.NewCoordinator(nil, nil, auditLog, connectivity.DefaultConfig(), nil)

	handler := NewHandler(Services{
		Intake:       intakeSvc,
		Alerts:       alertSvc,
		Dispatcher:   dispatcher,
		Coordinator:  coordinator,
		AuditLog:     auditLog,
		SubjectRisk:  &fixedRiskReader{level: risk.LevelMinimal},
		AuditMetrics: metrics.NewAuditMetrics(registry),
	}, registry)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, nil)

	return &testHarness{
		handler:    handler,
		mux:        mux,
		audit:      auditLog,
		dispatcher: dispatcher,
		subjectID:  uuid.New(),
	}
}

func (h *testHarness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleIngestBehaviorEvent_AcceptsValidEvent(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/behavior-events", BehaviorEventRequest{
		CaregiverID: uuid.New(),
		SubjectID:   h.subjectID,
		Category:    "contact_removal_attempt",
		Outcome:     "blocked",
		Payload:     map[string]interface{}{"contact_type": "family"},
		OccurredAt:  time.Now().UTC().Add(-time.Minute),
	})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var result intake.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Assessment)
	assert.Positive(t, result.Assessment.TotalScore)
	assert.NotNil(t, result.Event)
}

func TestHandleIngestBehaviorEvent_RejectsUnknownCategory(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/behavior-events", BehaviorEventRequest{
		CaregiverID: uuid.New(),
		SubjectID:   h.subjectID,
		Category:    "unsupported_category",
		Outcome:     "blocked",
		OccurredAt:  time.Now().UTC(),
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_REQUEST", body.Error.Code)
}

func TestHandleIngestBehaviorEvent_RejectsMalformedJSON(t *testing.T) {
	h := newTestHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/behavior-events", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "MALFORMED_BODY", body.Error.Code)
}

func TestHandleIngestTrigger_PanicActivation(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/trigger-events", TriggerEventRequest{
		Type:       "panic_activation",
		SubjectID:  h.subjectID,
		Context:    map[string]interface{}{"source": "watch_button"},
		OccurredAt: time.Now().UTC(),
	})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var result intake.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Assessment)
	assert.Positive(t, result.Assessment.TotalScore)
}

func TestHandleEmergency_DispatchesWithDerivedPriority(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/emergencies", EmergencyRequest{
		SubjectID:     h.subjectID,
		Category:      "medical",
		TriggerSource: "sos_button",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp EmergencyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Request)
	assert.Equal(t, emergency.CategoryMedical, resp.Request.Category)
	assert.Equal(t, emergency.PriorityImmediate, resp.Request.Priority)
	require.Len(t, h.dispatcher.emergencies, 1)
}

func TestHandleEmergency_RejectsUnknownCategory(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/emergencies", EmergencyRequest{
		SubjectID: h.subjectID,
		Category:  "lost_remote",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleNetworkState_TransitionsCoordinator(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/network-state", NetworkStateRequest{
		Tier:    "connected",
		Quality: 4,
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp NetworkStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(connectivityDomain.TierConnected), resp.Tier)
	assert.Equal(t, string(connectivityDomain.SyncFull), resp.SyncStrategy)
	assert.Equal(t, 4, resp.Quality)
}

func TestHandleNetworkState_RejectsUnknownTier(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/network-state", NetworkStateRequest{
		Tier:    "wired",
		Quality: 2,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRegisterCaregiverChannel(t *testing.T) {
	h := newTestHarness(t)
	caregiverID := uuid.New()

	rec := h.do(t, http.MethodPost, "/api/v1/caregivers/"+caregiverID.String()+"/channel", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/caregivers/not-a-uuid/channel", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleResolveAlert_UnknownAlertIs404(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/alerts/%s/resolve", uuid.New()), ResolveAlertRequest{
		Note: "checked in with the subject",
	})

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListAlerts_RequiresSubjectID(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/alerts?subject_id="+h.subjectID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleVerifyAudit_ValidChain(t *testing.T) {
	h := newTestHarness(t)

	// populate the chain through a real ingest
	rec := h.do(t, http.MethodPost, "/api/v1/behavior-events", BehaviorEventRequest{
		CaregiverID: uuid.New(),
		SubjectID:   h.subjectID,
		Category:    "contact_removal_attempt",
		Outcome:     "blocked",
		OccurredAt:  time.Now().UTC().Add(-time.Minute),
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/audit/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Valid          bool `json:"valid"`
		EventsVerified int  `json:"events_verified"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Valid)
	assert.Positive(t, result.EventsVerified)
}

func TestHandleHealth(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuthMiddleware_RejectsMissingAndBadTokens(t *testing.T) {
	h := newTestHarness(t)

	cfg := AuthConfig{JWTSecret: "test-secret"}
	protected := Chain(h.mux, AuthMiddleware(cfg))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := GenerateToken(cfg, "device-1", time.Hour)
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	h := newTestHarness(t)

	limiter := NewRateLimiter(1, 2)
	limited := Chain(h.mux, limiter.Middleware())

	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}

	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Equal(t, http.StatusOK, statuses[1])
	assert.Equal(t, http.StatusTooManyRequests, statuses[2])
	assert.Equal(t, http.StatusTooManyRequests, statuses[3])
}
