package watcher

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds watcher metrics following OTEL semantic conventions
type Metrics struct {
	checks        metric.Int64Counter
	checkDuration metric.Float64Histogram
	missingRoles  metric.Int64Gauge
}

// NewMetrics creates watcher metrics
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("twinscape.watcher")

	checks, err := meter.Int64Counter(
		"twinscape.watcher.checks",
		metric.WithDescription("Number of role compliance checks run"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	checkDuration, err := meter.Float64Histogram(
		"twinscape.watcher.check.duration",
		metric.WithDescription("Duration of role compliance checks"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	missingRoles, err := meter.Int64Gauge(
		"twinscape.watcher.missing_roles",
		metric.WithDescription("Number of missing role assignment groups at last check"),
		metric.WithUnit("{role}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		checks:        checks,
		checkDuration: checkDuration,
		missingRoles:  missingRoles,
	}, nil
}

// RecordCheck records one compliance check with its outcome
func (m *Metrics) RecordCheck(ctx context.Context, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.checks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.checkDuration.Record(ctx, durationSeconds, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDrift records the number of missing role groups observed
func (m *Metrics) RecordDrift(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.missingRoles.Record(ctx, int64(count))
}
