// Package metrics defines the Prometheus instruments for the escalation
// engine. Instruments are created against an explicit registerer so tests
// can use isolated registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics counts channel attempts and escalation-path activity
type DispatchMetrics struct {
	ChannelAttempts     *prometheus.CounterVec
	AdvocateEscalations prometheus.Counter
	ManualQueued        prometheus.Counter
	ItemsDispatched     *prometheus.CounterVec
}

// NewDispatchMetrics registers the dispatch instruments
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	m := &DispatchMetrics{
		ChannelAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eldershield",
			Subsystem: "dispatch",
			Name:      "channel_attempts_total",
			Help:      "Channel send attempts by channel kind and outcome.",
		}, []string{"channel", "outcome"}),
		AdvocateEscalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eldershield",
			Subsystem: "dispatch",
			Name:      "advocate_escalations_total",
			Help:      "Escalations to the elder rights advocate channel.",
		}),
		ManualQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eldershield",
			Subsystem: "dispatch",
			Name:      "manual_queue_total",
			Help:      "Items written to the manual intervention queue.",
		}),
		ItemsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eldershield",
			Subsystem: "dispatch",
			Name:      "items_total",
			Help:      "Dispatch items by terminal state.",
		}, []string{"state"}),
	}
	reg.MustRegister(m.ChannelAttempts, m.AdvocateEscalations, m.ManualQueued, m.ItemsDispatched)
	return m
}

// ScorerMetrics counts assessments by resulting risk level
type ScorerMetrics struct {
	Assessments *prometheus.CounterVec
}

// NewScorerMetrics registers the scorer instruments
func NewScorerMetrics(reg prometheus.Registerer) *ScorerMetrics {
	m := &ScorerMetrics{
		Assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eldershield",
			Subsystem: "scorer",
			Name:      "assessments_total",
			Help:      "Completed risk assessments by level.",
		}, []string{"level"}),
	}
	reg.MustRegister(m.Assessments)
	return m
}

// AuditMetrics tracks append volume and integrity checks
type AuditMetrics struct {
	Appends         *prometheus.CounterVec
	IntegrityChecks *prometheus.CounterVec
}

// NewAuditMetrics registers the audit instruments
func NewAuditMetrics(reg prometheus.Registerer) *AuditMetrics {
	m := &AuditMetrics{
		Appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eldershield",
			Subsystem: "audit",
			Name:      "appends_total",
			Help:      "Audit events appended by category.",
		}, []string{"category"}),
		IntegrityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eldershield",
			Subsystem: "audit",
			Name:      "integrity_checks_total",
			Help:      "Hash chain verification runs by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.Appends, m.IntegrityChecks)
	return m
}
