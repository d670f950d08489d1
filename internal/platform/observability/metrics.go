package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const metricNamespace = "github.com/cloud-atlas/api/internal/platform/observability"

// AdmissionMetrics records pipeline outcomes and latencies. Registration
// failures degrade to no-ops so metrics never block request handling.
type AdmissionMetrics struct {
	decisions        metric.Int64Counter
	decisionsEnabled bool

	latency        metric.Float64Histogram
	latencyEnabled bool
}

// NewAdmissionMetrics registers the admission instruments on the global
// meter provider, or on the supplied meter when not nil.
func NewAdmissionMetrics(m metric.Meter, logger *zap.Logger) *AdmissionMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = otel.GetMeterProvider().Meter(metricNamespace)
	}

	decisions, decisionsErr := m.Int64Counter(
		"admission.decisions",
		metric.WithDescription("Count of admission pipeline decisions by outcome"),
	)
	if decisionsErr != nil {
		logger.Warn("observability: unable to register decision metric", zap.Error(decisionsErr))
	}

	latency, latencyErr := m.Float64Histogram(
		"admission.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for admission pipeline runs"),
	)
	if latencyErr != nil {
		logger.Warn("observability: unable to register latency metric", zap.Error(latencyErr))
	}

	return &AdmissionMetrics{
		decisions:        decisions,
		decisionsEnabled: decisionsErr == nil,
		latency:          latency,
		latencyEnabled:   latencyErr == nil,
	}
}

// RecordDecision increments the decision counter for the given outcome.
func (m *AdmissionMetrics) RecordDecision(ctx context.Context, outcome string) {
	if m == nil || !m.decisionsEnabled {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordLatency records a pipeline run duration in milliseconds.
func (m *AdmissionMetrics) RecordLatency(ctx context.Context, millis float64, outcome string) {
	if m == nil || !m.latencyEnabled {
		return
	}
	m.latency.Record(ctx, millis, metric.WithAttributes(attribute.String("outcome", outcome)))
}
