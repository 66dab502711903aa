package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	auditdomain "enterprise-mfa/backend/internal/audit/domain"
)

// AttemptMetrics counts audited MFA attempts by method and status.
type AttemptMetrics struct {
	attempts otelmetric.Int64Counter
}

// NewAttemptMetrics registers the mfa_attempts_total counter on the meter.
func NewAttemptMetrics(meter otelmetric.Meter) (*AttemptMetrics, error) {
	attempts, err := meter.Int64Counter(
		"mfa_attempts_total",
		otelmetric.WithDescription("MFA verification and enrollment attempts by method and status"),
	)
	if err != nil {
		return nil, err
	}
	return &AttemptMetrics{attempts: attempts}, nil
}

// CountAttempt records one attempt.
func (m *AttemptMetrics) CountAttempt(ctx context.Context, method string, status auditdomain.Status) {
	m.attempts.Add(ctx, 1,
		otelmetric.WithAttributes(
			attribute.String("method", method),
			attribute.String("status", string(status)),
		))
}
