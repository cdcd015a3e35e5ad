// Package rest exposes the engine over HTTP: event intake, emergency
// activation, alert management, connectivity reporting and audit
// verification.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eldershield/eldershield-backend/internal/api/websocket"
	"github.com/eldershield/eldershield-backend/internal/domain/audit"
	"github.com/eldershield/eldershield-backend/internal/domain/emergency"
	domainErrors "github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/eldershield/eldershield-backend/internal/metrics"
	"github.com/eldershield/eldershield-backend/internal/service/alertmanager"
	"github.com/eldershield/eldershield-backend/internal/service/connectivity"
	"github.com/eldershield/eldershield-backend/internal/service/dispatch"
	"github.com/eldershield/eldershield-backend/internal/service/intake"
)

const maxBodySize = 1 << 20 // 1MB

// SubjectRiskReader supplies the subject's current risk context for
// emergency prioritization. A cache miss reports minimal risk.
type SubjectRiskReader interface {
	SubjectLevel(ctx context.Context, subjectID uuid.UUID) (risk.Level, error)
}

// Services bundles everything the handlers call into
type Services struct {
	Intake       intake.Service
	Alerts       alertmanager.Service
	Dispatcher   dispatch.Service
	Coordinator  *connectivity.Coordinator
	AuditLog     audit.Store
	SubjectRisk  SubjectRiskReader
	AuditMetrics *metrics.AuditMetrics
	Hub          *websocket.Hub
}

// Handler routes and serves the REST API
type Handler struct {
	services Services
	validate *validator.Validate
	registry *prometheus.Registry
}

// NewHandler creates the API handler. registry may be nil to disable /metrics.
func NewHandler(services Services, registry *prometheus.Registry) *Handler {
	return &Handler{
		services: services,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		registry: registry,
	}
}

// RegisterRoutes attaches all endpoints to the mux. Authenticated routes are
// wrapped by the caller; health and metrics stay open for probes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, protect Middleware) {
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}

	mux.Handle("POST /api/v1/behavior-events", protect(http.HandlerFunc(h.handleIngestBehaviorEvent)))
	mux.Handle("POST /api/v1/trigger-events", protect(http.HandlerFunc(h.handleIngestTrigger)))
	mux.Handle("POST /api/v1/emergencies", protect(http.HandlerFunc(h.handleEmergency)))
	mux.Handle("POST /api/v1/network-state", protect(http.HandlerFunc(h.handleNetworkState)))
	mux.Handle("POST /api/v1/caregivers/{id}/channel", protect(http.HandlerFunc(h.handleRegisterCaregiverChannel)))
	mux.Handle("GET /api/v1/alerts", protect(http.HandlerFunc(h.handleListAlerts)))
	mux.Handle("GET /api/v1/alerts/{id}", protect(http.HandlerFunc(h.handleGetAlert)))
	mux.Handle("POST /api/v1/alerts/{id}/resolve", protect(http.HandlerFunc(h.handleResolveAlert)))
	mux.Handle("GET /api/v1/audit/verify", protect(http.HandlerFunc(h.handleVerifyAudit)))

	if h.services.Hub != nil {
		mux.Handle("GET /api/v1/monitor", protect(h.services.Hub))
	}

	mux.HandleFunc("GET /healthz", h.handleHealth)
	if h.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}
}

func (h *Handler) handleIngestBehaviorEvent(w http.ResponseWriter, r *http.Request) {
	var req BehaviorEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.services.Intake.IngestBehaviorEvent(r.Context(), req.toInput())
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.broadcastAlert(result)
	writeJSON(w, http.StatusAccepted, result)
}

func (h *Handler) handleIngestTrigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.services.Intake.IngestTrigger(r.Context(), req.toInput())
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.broadcastAlert(result)
	writeJSON(w, http.StatusAccepted, result)
}

func (h *Handler) handleEmergency(w http.ResponseWriter, r *http.Request) {
	var req EmergencyRequest
	if !h.decode(w, r, &req) {
		return
	}

	subjectRisk := risk.LevelMinimal
	if h.services.SubjectRisk != nil {
		level, err := h.services.SubjectRisk.SubjectLevel(r.Context(), req.SubjectID)
		if err == nil {
			subjectRisk = level
		}
		// a risk-context lookup failure never delays an SOS
	}

	request, err := emergency.NewRequest(req.SubjectID, emergency.Category(req.Category), req.Language, req.TriggerSource, req.location(), subjectRisk)
	if err != nil {
		writeError(w, r, err)
		return
	}

	results, err := h.services.Dispatcher.DispatchEmergency(r.Context(), request)
	if err != nil && !domainErrors.IsType(err, domainErrors.ErrorTypeAllChannels) {
		writeError(w, r, err)
		return
	}

	if h.services.Hub != nil {
		h.services.Hub.Broadcast(websocket.EventDispatchOutcome, EmergencyResponse{Request: request, Results: results})
	}
	writeJSON(w, http.StatusAccepted, EmergencyResponse{Request: request, Results: results})
}

func (h *Handler) handleNetworkState(w http.ResponseWriter, r *http.Request) {
	var req NetworkStateRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.services.Coordinator.NetworkStateChanged(r.Context(), req.tier(), req.Quality); err != nil {
		writeError(w, r, err)
		return
	}

	state := h.services.Coordinator.Current()
	writeJSON(w, http.StatusOK, NetworkStateResponse{
		Tier:         string(state.Tier),
		Quality:      state.Quality,
		SyncStrategy: string(state.SyncStrategy),
		LastOnline:   state.LastOnline,
	})
}

// handleRegisterCaregiverChannel enrolls a caregiver channel in the
// heartbeat loop. Until registered, a caregiver is assumed reachable.
func (h *Handler) handleRegisterCaregiverChannel(w http.ResponseWriter, r *http.Request) {
	caregiverID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, domainErrors.NewValidationError("INVALID_CAREGIVER_ID", "caregiver id must be a UUID"))
		return
	}

	h.services.Coordinator.RegisterCaregiverChannel(caregiverID)
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	subjectID, err := uuid.Parse(r.URL.Query().Get("subject_id"))
	if err != nil {
		writeError(w, r, domainErrors.NewValidationError("INVALID_SUBJECT_ID", "subject_id query parameter must be a UUID"))
		return
	}

	alerts, err := h.services.Alerts.ListActive(r.Context(), subjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (h *Handler) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, domainErrors.NewValidationError("INVALID_ALERT_ID", "alert id must be a UUID"))
		return
	}

	a, err := h.services.Alerts.Get(r.Context(), alertID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, domainErrors.NewValidationError("INVALID_ALERT_ID", "alert id must be a UUID"))
		return
	}

	var req ResolveAlertRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, err := h.services.Alerts.Resolve(r.Context(), alertID, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// handleVerifyAudit recomputes the full hash chain. The check itself is
// audited, and a broken chain is pushed to the monitoring feed.
func (h *Handler) handleVerifyAudit(w http.ResponseWriter, r *http.Request) {
	result, err := h.services.AuditLog.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.services.AuditMetrics != nil {
		outcome := "valid"
		if !result.Valid {
			outcome = "violation"
		}
		h.services.AuditMetrics.IntegrityChecks.WithLabelValues(outcome).Inc()
	}

	if !result.Valid && h.services.Hub != nil {
		h.services.Hub.Broadcast(websocket.EventIntegrityViolation, result)
	}

	if _, err := h.services.AuditLog.Append(r.Context(), audit.CategoryIntegrityCheck, map[string]interface{}{
		"valid":           result.Valid,
		"events_verified": result.EventsVerified,
		"breaks":          len(result.Breaks),
	}); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// decode reads, parses and validates the JSON body. Returns false after
// writing the error response.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, r, domainErrors.NewValidationError("MALFORMED_BODY", "request body is not valid JSON").WithCause(err))
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		details := map[string]interface{}{}
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, fe := range fieldErrors {
				details[fe.Field()] = fe.Tag()
			}
		}
		writeError(w, r, domainErrors.NewValidationError("INVALID_REQUEST", "request failed validation").WithDetails(details))
		return false
	}
	return true
}

func (h *Handler) broadcastAlert(result *intake.Result) {
	if h.services.Hub == nil || result == nil || result.Alert == nil {
		return
	}
	h.services.Hub.Broadcast(websocket.EventAlertCreated, result.Alert)
}
