package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stackwarden/stackwarden/internal/application/provisioning"
)

var _ provisioning.Metrics = (*provisioningMetrics)(nil)

type provisioningMetrics struct {
	pollingDecisions     metric.Int64Counter
	provisioningFailures metric.Int64Counter
	pollCycleDuration    metric.Float64Histogram
}

func newProvisioningMetrics(mp metric.MeterProvider) (*provisioningMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(provisioningMetrics)
	var err error

	if m.pollingDecisions, err = meter.Int64Counter(
		"polling_decisions_total",
		metric.WithDescription("Polling cycle outcomes by operation and decision"),
	); err != nil {
		return nil, err
	}

	if m.provisioningFailures, err = meter.Int64Counter(
		"provisioning_failures_total",
		metric.WithDescription("Provisioning failures by operation and reason"),
	); err != nil {
		return nil, err
	}

	if m.pollCycleDuration, err = meter.Float64Histogram(
		"poll_cycle_duration_seconds",
		metric.WithDescription("Duration of one polling cycle in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *provisioningMetrics) IncPollingDecision(ctx context.Context, operation, decision string) {
	m.pollingDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("decision", decision),
	))
}

func (m *provisioningMetrics) IncProvisioningFailure(ctx context.Context, operation, reason string) {
	m.provisioningFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("reason", reason),
	))
}

func (m *provisioningMetrics) ObservePollCycleDuration(ctx context.Context, operation string, d time.Duration) {
	m.pollCycleDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
