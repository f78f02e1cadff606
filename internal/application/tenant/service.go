// Package tenant provides tenant lifecycle application services:
// registration, deprovisioning, and registry reads.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackwarden/stackwarden/internal/application/provisioning"
	"github.com/stackwarden/stackwarden/internal/application/workflow"
	"github.com/stackwarden/stackwarden/internal/domain/tenant"
	"github.com/stackwarden/stackwarden/pkg/common/logger"
)

// ErrOperationInProgress indicates a provisioning workflow is already
// running for the tenant. The registry is last-writer-wins, so two
// concurrent workflows for one tenant are never allowed.
var ErrOperationInProgress = errors.New("provisioning operation already in progress")

// InfrastructureProvisioner launches and tears down tenant stacks in
// their target accounts.
type InfrastructureProvisioner interface {
	LaunchStack(ctx context.Context, t *tenant.Tenant) (stackID string, err error)
	TeardownStack(ctx context.Context, t *tenant.Tenant) error
}

// RegisterParams contains parameters for registering a new tenant.
type RegisterParams struct {
	TenantID        string
	Name            string
	Tier            tenant.Tier
	TargetAccountID string
	Region          string
}

// RegisterResult contains the output of a registration. For private
// tenants provisioning continues asynchronously; State reflects the
// record at return time.
type RegisterResult struct {
	TenantID string
	StackID  string
	State    tenant.ProvisioningState
}

// DeprovisionResult contains the output of a deprovisioning request.
type DeprovisionResult struct {
	TenantID string
	State    tenant.ProvisioningState
}

// Service orchestrates tenant lifecycle operations and manages the
// associated polling workflows.
type Service struct {
	repo         tenant.Repository
	provisioner  InfrastructureProvisioner
	poller       workflow.Poller
	pollInterval time.Duration

	// One active workflow per tenant, enforced here.
	mu              sync.Mutex
	activeWorkflows map[string]workflow.Workflow

	logger *logger.Logger
	tracer trace.Tracer
}

// NewService creates a tenant lifecycle service.
func NewService(
	repo tenant.Repository,
	provisioner InfrastructureProvisioner,
	poller workflow.Poller,
	pollInterval time.Duration,
	log *logger.Logger,
	tracer trace.Tracer,
) *Service {
	return &Service{
		repo:            repo,
		provisioner:     provisioner,
		poller:          poller,
		pollInterval:    pollInterval,
		activeWorkflows: make(map[string]workflow.Workflow),
		logger:          log.With("component", "tenant_service"),
		tracer:          tracer,
	}
}

// Register validates and persists a new tenant. Public tenants activate
// immediately against pooled infrastructure. Private tenants get a stack
// launched in their target account and a polling workflow started; the
// returned record is in the creating state.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*RegisterResult, error) {
	log := logger.NewLoggerContext(s.logger.With(
		"operation_type", "register",
		"tenant_id", params.TenantID,
		"tier", params.Tier,
	))
	ctx, span := s.tracer.Start(ctx, "tenant.Register", trace.WithAttributes(
		attribute.String("tenant_id", params.TenantID),
		attribute.String("tier", string(params.Tier)),
	))
	defer span.End()

	rec, err := tenant.New(params.TenantID, params.Name, params.Tier, params.TargetAccountID, params.Region)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid tenant")
		return nil, err
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error persisting tenant")
		if errors.Is(err, tenant.ErrTenantAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("persisting tenant %s: %w", params.TenantID, err)
	}
	span.AddEvent("tenant record created")

	if params.Tier == tenant.TierPublic {
		return s.registerPublic(ctx, span, log, rec)
	}
	return s.registerPrivate(ctx, span, log, rec)
}

// registerPublic activates the tenant synchronously: pooled
// infrastructure needs no polling.
func (s *Service) registerPublic(
	ctx context.Context,
	span trace.Span,
	log *logger.LoggerContext,
	rec *tenant.Tenant,
) (*RegisterResult, error) {
	env, err := s.poller.Poll(ctx, provisioning.Invocation{
		Operation:        "CREATE",
		TenantID:         rec.TenantID,
		TenantName:       rec.Name,
		SubscriptionTier: string(rec.Tier),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "public tier activation failed")
		return nil, err
	}

	log.Info(ctx, "public tenant activated", "status", env.Status)
	return &RegisterResult{TenantID: rec.TenantID, State: tenant.StateActive}, nil
}

// registerPrivate launches the stack and starts the polling workflow.
func (s *Service) registerPrivate(
	ctx context.Context,
	span trace.Span,
	log *logger.LoggerContext,
	rec *tenant.Tenant,
) (*RegisterResult, error) {
	stackID, err := s.provisioner.LaunchStack(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stack launch failed")
		// The record stays pending; operators can retry registration
		// provisioning without re-creating it.
		return nil, fmt.Errorf("launching infrastructure for tenant %s: %w", rec.TenantID, err)
	}
	span.AddEvent("stack launch started")
	log.Add("stack_id", stackID)

	updated, err := s.repo.UpdateInfrastructureStatus(ctx, rec.TenantID, tenant.StatusUpdate{
		State:     tenant.StateCreating,
		StackID:   stackID,
		StackName: stackNameOf(stackID, rec.TenantID),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error recording stack identifiers")
		return nil, fmt.Errorf("recording stack identifiers for tenant %s: %w", rec.TenantID, err)
	}

	if err := s.startWorkflow(ctx, updated, "CREATE"); err != nil {
		span.RecordError(err)
		return nil, err
	}

	log.Info(ctx, "tenant provisioning started")
	return &RegisterResult{
		TenantID: rec.TenantID,
		StackID:  stackID,
		State:    tenant.StateCreating,
	}, nil
}

// Deprovision tears down a tenant's infrastructure. Public tenants
// transition straight to deleted; private tenants get stack deletion
// issued and a polling workflow started.
func (s *Service) Deprovision(ctx context.Context, tenantID string) (*DeprovisionResult, error) {
	log := logger.NewLoggerContext(s.logger.With(
		"operation_type", "deprovision",
		"tenant_id", tenantID,
	))
	ctx, span := s.tracer.Start(ctx, "tenant.Deprovision", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
	))
	defer span.End()

	rec, err := s.repo.FindByID(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tenant lookup failed")
		return nil, err
	}

	if !rec.CanTransition(tenant.StateDeleting) && !rec.CanTransition(tenant.StateDeleted) {
		span.SetStatus(codes.Error, "invalid state for deprovisioning")
		return nil, fmt.Errorf("%w: cannot deprovision tenant in state %s", tenant.ErrInvalidTransition, rec.State)
	}

	if rec.Tier == tenant.TierPublic {
		updated, err := s.repo.UpdateInfrastructureStatus(ctx, tenantID, tenant.StatusUpdate{
			State: tenant.StateDeleted,
		})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		log.Info(ctx, "public tenant deprovisioned")
		return &DeprovisionResult{TenantID: tenantID, State: updated.State}, nil
	}

	if err := s.provisioner.TeardownStack(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stack teardown failed")
		return nil, fmt.Errorf("tearing down infrastructure for tenant %s: %w", tenantID, err)
	}
	span.AddEvent("stack deletion started")

	updated, err := s.repo.UpdateInfrastructureStatus(ctx, tenantID, tenant.StatusUpdate{
		State: tenant.StateDeleting,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.startWorkflow(ctx, updated, "DELETE"); err != nil {
		span.RecordError(err)
		return nil, err
	}

	log.Info(ctx, "tenant deprovisioning started")
	return &DeprovisionResult{TenantID: tenantID, State: tenant.StateDeleting}, nil
}

// Get retrieves a tenant's registry record.
func (s *Service) Get(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Get", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
	))
	defer span.End()

	rec, err := s.repo.FindByID(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, tenant.ErrTenantNotFound) {
			span.RecordError(err)
		}
		return nil, err
	}
	return rec, nil
}

// startWorkflow launches the polling loop for one operation, holding the
// per-tenant exclusivity slot until the workflow delivers its result.
func (s *Service) startWorkflow(ctx context.Context, rec *tenant.Tenant, operation string) error {
	inv := provisioning.Invocation{
		Operation:        operation,
		TenantID:         rec.TenantID,
		TenantName:       rec.Name,
		SubscriptionTier: string(rec.Tier),
		Infrastructure: provisioning.InfrastructureInput{
			TargetAccountID: rec.TargetAccountID,
			StackID:         rec.StackID,
			StackName:       rec.StackName,
			Region:          rec.Region,
		},
	}

	executionID := uuid.NewString()
	w := workflow.NewPollingWorkflow(s.poller, inv, s.pollInterval, s.logger.With("execution_id", executionID))

	s.mu.Lock()
	if _, active := s.activeWorkflows[rec.TenantID]; active {
		s.mu.Unlock()
		return fmt.Errorf("%w: tenant %s", ErrOperationInProgress, rec.TenantID)
	}
	s.activeWorkflows[rec.TenantID] = w
	s.mu.Unlock()

	// Detached from the request context: the workflow outlives the
	// HTTP request that started it.
	wfCtx := context.WithoutCancel(ctx)
	w.Start(wfCtx)

	go func() {
		result := <-w.ResultChan()

		s.mu.Lock()
		delete(s.activeWorkflows, rec.TenantID)
		s.mu.Unlock()

		if result.Error != nil {
			s.logger.Error(wfCtx, "provisioning workflow ended in failure",
				"tenant_id", rec.TenantID,
				"operation", operation,
				"attempts", result.Attempts,
				"error", result.Error,
			)
			return
		}
		s.logger.Info(wfCtx, "provisioning workflow complete",
			"tenant_id", rec.TenantID,
			"operation", operation,
			"attempts", result.Attempts,
		)
	}()

	return nil
}

// ActiveWorkflows reports how many provisioning workflows are in flight.
func (s *Service) ActiveWorkflows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeWorkflows)
}

// stackNameOf extracts the stack name from an ARN-form stack id, falling
// back to the canonical name for the tenant.
func stackNameOf(stackID, tenantID string) string {
	// arn:aws:cloudformation:region:account:stack/NAME/uuid
	parts := strings.Split(stackID, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return "tenant-" + tenantID
}
