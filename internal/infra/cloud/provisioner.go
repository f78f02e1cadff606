package cloud

import (
	"context"
	"fmt"

	"github.com/stackwarden/stackwarden/internal/domain/tenant"
	"github.com/stackwarden/stackwarden/pkg/common/logger"
)

// Provisioner composes the credential broker and the stack client
// factory into the launch/teardown surface the tenant registration
// service needs. Every call brokers fresh credentials for the tenant's
// account.
type Provisioner struct {
	broker      *Broker
	factory     *Factory
	templateURL string

	logger *logger.Logger
}

// NewProvisioner creates a stack provisioner. templateURL points at the
// tenant infrastructure template all private stacks are launched from.
func NewProvisioner(broker *Broker, factory *Factory, templateURL string, log *logger.Logger) *Provisioner {
	return &Provisioner{
		broker:      broker,
		factory:     factory,
		templateURL: templateURL,
		logger:      log.With("component", "stack_provisioner"),
	}
}

// LaunchStack creates the tenant's stack in its target account and
// returns the stack id.
func (p *Provisioner) LaunchStack(ctx context.Context, t *tenant.Tenant) (string, error) {
	creds, err := p.broker.AssumeTenantRole(ctx, t.TargetAccountID, t.TenantID)
	if err != nil {
		return "", err
	}

	client := p.factory.ClientFor(creds, t.Region)
	stackID, err := client.Launch(ctx, t.TenantID, LaunchInput{
		StackName:   StackNameFor(t.TenantID),
		TemplateURL: p.templateURL,
		Parameters:  map[string]string{"TenantId": t.TenantID},
	})
	if err != nil {
		return "", fmt.Errorf("launching stack for tenant %s: %w", t.TenantID, err)
	}
	return stackID, nil
}

// TeardownStack starts deletion of the tenant's stack.
func (p *Provisioner) TeardownStack(ctx context.Context, t *tenant.Tenant) error {
	creds, err := p.broker.AssumeTenantRole(ctx, t.TargetAccountID, t.TenantID)
	if err != nil {
		return err
	}

	return p.factory.ClientFor(creds, t.Region).Teardown(ctx, t.TenantID, t.StackID)
}

// StackNameFor derives the canonical stack name for a tenant.
func StackNameFor(tenantID string) string {
	return "tenant-" + tenantID
}
