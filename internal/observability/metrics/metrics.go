package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics exposes application-level instruments for the security pipeline.
type Metrics struct {
	registry *prometheus.Registry

	decisions        *prometheus.CounterVec
	rateLimitAllowed *prometheus.CounterVec
	rateLimitDenied  *prometheus.CounterVec
	inputBlocked     *prometheus.CounterVec
	isolationDenied  *prometheus.CounterVec
	auditFlushes     *prometheus.CounterVec
	auditBufferSize  prometheus.Gauge
	evaluateLatency  prometheus.Histogram
}

var Module = fx.Provide(New)

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())

	m := &Metrics{
		registry: registry,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentra_decisions_total",
			Help: "Security decisions by outcome and deny reason.",
		}, []string{"outcome", "reason"}),
		rateLimitAllowed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentra_rate_limit_allowed_total",
			Help: "Rate limit checks that passed, by key type.",
		}, []string{"key_type"}),
		rateLimitDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentra_rate_limit_denied_total",
			Help: "Rate limit denials by key type and window.",
		}, []string{"key_type", "limit_type"}),
		inputBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentra_input_blocked_total",
			Help: "Payloads blocked by the input guard, by pattern category.",
		}, []string{"category"}),
		isolationDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentra_isolation_denied_total",
			Help: "Tenant isolation denials by resource type and reason.",
		}, []string{"resource_type", "reason"}),
		auditFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentra_audit_flushes_total",
			Help: "Audit buffer flushes by result.",
		}, []string{"result"}),
		auditBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentra_audit_buffer_events",
			Help: "Events currently buffered for audit persistence.",
		}),
		evaluateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentra_evaluate_duration_seconds",
			Help:    "End to end latency of security evaluations.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.decisions,
		m.rateLimitAllowed,
		m.rateLimitDenied,
		m.inputBlocked,
		m.isolationDenied,
		m.auditFlushes,
		m.auditBufferSize,
		m.evaluateLatency,
	)
	return m
}

// Registry exposes the underlying registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordDecision(outcome, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.decisions.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) RecordRateLimitAllowed(keyType string) {
	if m == nil {
		return
	}
	m.rateLimitAllowed.WithLabelValues(keyType).Inc()
}

func (m *Metrics) RecordRateLimitDenied(keyType, limitType string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.WithLabelValues(keyType, limitType).Inc()
}

func (m *Metrics) RecordInputBlocked(category string) {
	if m == nil {
		return
	}
	m.inputBlocked.WithLabelValues(category).Inc()
}

func (m *Metrics) RecordIsolationDenied(resourceType, reason string) {
	if m == nil {
		return
	}
	m.isolationDenied.WithLabelValues(resourceType, reason).Inc()
}

func (m *Metrics) RecordAuditFlush(result string, buffered int) {
	if m == nil {
		return
	}
	m.auditFlushes.WithLabelValues(result).Inc()
	m.auditBufferSize.Set(float64(buffered))
}

func (m *Metrics) ObserveEvaluateLatency(seconds float64) {
	if m == nil {
		return
	}
	m.evaluateLatency.Observe(seconds)
}
