// Package rbac seeds permission, role, and group templates for newly
// provisioned tenants. Seeding is all-or-nothing: a mid-batch failure
// rolls back every template created so far, in reverse order.
package rbac

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackwarden/stackwarden/pkg/common/logger"
)

// TemplateKind discriminates the template types seeded for a tenant.
type TemplateKind string

// Supported template kinds.
const (
	KindPermission TemplateKind = "permission"
	KindRole       TemplateKind = "role"
	KindGroup      TemplateKind = "group"
)

// Template is one RBAC template to create for a tenant. Roles reference
// permissions and groups reference roles by name, so batches must be
// ordered permissions first.
type Template struct {
	Kind    TemplateKind
	Name    string
	Payload map[string]string
}

// TemplateClient creates and deletes tenant-scoped RBAC templates in the
// authorization backend.
type TemplateClient interface {
	Create(ctx context.Context, tenantID string, tpl Template) (id string, err error)
	Delete(ctx context.Context, tenantID, id string) error
}

// Seeder applies template batches with compensating rollback.
type Seeder struct {
	client TemplateClient

	logger *logger.Logger
	tracer trace.Tracer
}

// NewSeeder creates an RBAC template seeder.
func NewSeeder(client TemplateClient, log *logger.Logger, tracer trace.Tracer) *Seeder {
	return &Seeder{
		client: client,
		logger: log.With("component", "rbac_seeder"),
		tracer: tracer,
	}
}

// Seed creates the given templates for a tenant in order and returns the
// created ids. If any creation fails, every template already created is
// deleted in reverse order before the error is returned; rollback
// failures are logged, not returned, so the original cause surfaces.
func (s *Seeder) Seed(ctx context.Context, tenantID string, templates []Template) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "rbac.Seed", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Int("template_count", len(templates)),
	))
	defer span.End()

	created := make([]string, 0, len(templates))
	for _, tpl := range templates {
		id, err := s.client.Create(ctx, tenantID, tpl)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "template creation failed")
			s.logger.Error(ctx, "template creation failed, rolling back batch",
				"tenant_id", tenantID,
				"kind", tpl.Kind,
				"name", tpl.Name,
				"created_so_far", len(created),
				"error", err,
			)
			s.rollback(ctx, tenantID, created)
			return nil, fmt.Errorf("creating %s template %s for tenant %s: %w", tpl.Kind, tpl.Name, tenantID, err)
		}
		created = append(created, id)
	}

	s.logger.Info(ctx, "tenant templates seeded",
		"tenant_id", tenantID,
		"count", len(created),
	)
	return created, nil
}

// rollback deletes created templates newest-first so references are
// removed before their targets.
func (s *Seeder) rollback(ctx context.Context, tenantID string, created []string) {
	for i := len(created) - 1; i >= 0; i-- {
		if err := s.client.Delete(ctx, tenantID, created[i]); err != nil {
			s.logger.Error(ctx, "template rollback failed, manual cleanup needed",
				"tenant_id", tenantID,
				"template_id", created[i],
				"error", err,
			)
		}
	}
}
