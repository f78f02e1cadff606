// Package metrics provides OpenTelemetry metric implementations for the
// application-layer metric interfaces.
package metrics

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/stackwarden/stackwarden/internal/application/provisioning"
)

const namespace = "stackwarden"

// Registry provides access to all metric implementations.
type Registry struct {
	Provisioning provisioning.Metrics
}

// NewRegistry creates and initializes all metrics implementations from a
// single meter provider.
func NewRegistry(mp metric.MeterProvider) (*Registry, error) {
	provisioningMetrics, err := newProvisioningMetrics(mp)
	if err != nil {
		return nil, err
	}

	return &Registry{
		Provisioning: provisioningMetrics,
	}, nil
}
