// Package reconciler owns all writes to the tenant registry. It maps
// stack poll classifications onto registry lifecycle states and applies
// them with an explicit per-operation write policy.
package reconciler

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackwarden/stackwarden/internal/domain/stack"
	"github.com/stackwarden/stackwarden/internal/domain/tenant"
	"github.com/stackwarden/stackwarden/pkg/common/logger"
)

// WritePolicy classifies a registry write by what happens when it fails.
type WritePolicy int

const (
	// WriteAdvisory writes are logged and swallowed on failure: losing
	// one must not abort an otherwise-successful poll cycle.
	WriteAdvisory WritePolicy = iota

	// WriteCritical writes propagate failure to the caller.
	WriteCritical
)

// Service is the tenant registry reconciler. It is the sole writer of
// registry records in the provisioning path.
type Service struct {
	repo tenant.Repository

	logger *logger.Logger
	tracer trace.Tracer
}

// NewService creates a reconciler over the given registry repository.
func NewService(repo tenant.Repository, log *logger.Logger, tracer trace.Tracer) *Service {
	return &Service{
		repo:   repo,
		logger: log.With("component", "registry_reconciler"),
		tracer: tracer,
	}
}

// StateFor maps a poll classification and operation direction onto the
// registry lifecycle state:
//
//	complete + CREATE -> active
//	complete + DELETE -> deleted
//	failed   + any    -> failed
//	neither  + CREATE -> creating
//	neither  + DELETE -> deleting
func StateFor(result stack.PollResult, op stack.Operation) tenant.ProvisioningState {
	switch {
	case result.IsComplete() && op == stack.OperationDelete:
		return tenant.StateDeleted
	case result.IsComplete():
		return tenant.StateActive
	case result.IsFailed():
		return tenant.StateFailed
	case op == stack.OperationDelete:
		return tenant.StateDeleting
	default:
		return tenant.StateCreating
	}
}

// ApplyPollResult persists the lifecycle state implied by one poll
// result as a single conditional update. Re-applying the same result is
// harmless: terminal timestamps are stamped only on the first transition.
func (s *Service) ApplyPollResult(
	ctx context.Context,
	tenantID string,
	result stack.PollResult,
	op stack.Operation,
) (*tenant.Tenant, error) {
	state := StateFor(result, op)

	ctx, span := s.tracer.Start(ctx, "reconciler.ApplyPollResult", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("operation", op.String()),
		attribute.String("stack_status", string(result.Status)),
		attribute.String("provisioning_state", string(state)),
	))
	defer span.End()

	t, err := s.repo.UpdateInfrastructureStatus(ctx, tenantID, tenant.StatusUpdate{
		State:        state,
		StatusReason: result.Reason,
		StackID:      result.StackID,
		StackName:    result.StackName,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "registry update failed")
		return nil, err
	}

	s.logger.Info(ctx, "tenant status reconciled",
		"tenant_id", tenantID,
		"state", state,
		"stack_status", result.Status,
	)
	return t, nil
}

// RecordPollingAttempt stores the attempt counter under WriteAdvisory
// policy: failures are logged and swallowed.
func (s *Service) RecordPollingAttempt(ctx context.Context, tenantID string, attempt int) {
	_ = s.write(ctx, WriteAdvisory, "reconciler.RecordPollingAttempt", tenantID, func(ctx context.Context) error {
		return s.repo.RecordPollingAttempt(ctx, tenantID, attempt)
	})
}

// RecordPollingTimeout moves the record to the terminal timeout state
// under WriteCritical policy: failures propagate, since this is the last
// chance to persist the outcome.
func (s *Service) RecordPollingTimeout(ctx context.Context, tenantID string, totalAttempts int) error {
	return s.write(ctx, WriteCritical, "reconciler.RecordPollingTimeout", tenantID, func(ctx context.Context) error {
		return s.repo.RecordPollingTimeout(ctx, tenantID, totalAttempts)
	})
}

// write runs one registry write under the given policy.
func (s *Service) write(
	ctx context.Context,
	policy WritePolicy,
	name string,
	tenantID string,
	fn func(ctx context.Context) error,
) error {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
	))
	defer span.End()

	err := fn(ctx)
	if err == nil {
		return nil
	}

	span.RecordError(err)
	if policy == WriteAdvisory {
		s.logger.Warn(ctx, "advisory registry write failed",
			"write", name,
			"tenant_id", tenantID,
			"error", err,
		)
		return nil
	}

	span.SetStatus(codes.Error, "critical registry write failed")
	s.logger.Error(ctx, "critical registry write failed",
		"write", name,
		"tenant_id", tenantID,
		"error", err,
	)
	return err
}
