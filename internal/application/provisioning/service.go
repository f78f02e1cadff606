// Package provisioning implements the tenant infrastructure provisioning
// orchestrator: one polling iteration per invocation, composed from the
// credential broker, the stack querier, and the registry reconciler.
package provisioning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackwarden/stackwarden/internal/domain/stack"
	"github.com/stackwarden/stackwarden/internal/domain/tenant"
	"github.com/stackwarden/stackwarden/pkg/common/logger"
	"github.com/stackwarden/stackwarden/pkg/common/timeutil"
)

// Service executes one polling iteration per call. It holds no state
// between invocations; everything it needs arrives in the Invocation or
// is read back from the registry. Invocations for different tenants are
// safe to run concurrently.
//
// The registry is written last-writer-wins, so the service relies on the
// invoking engine running at most one execution per tenant at a time.
// That guarantee is the engine's, not this code's.
type Service struct {
	broker      CredentialBroker
	factory     StackQuerierFactory
	reconciler  Reconciler
	maxAttempts int

	clock   timeutil.Provider
	logger  *logger.Logger
	tracer  trace.Tracer
	metrics Metrics
}

// Option tweaks service construction.
type Option func(*Service)

// WithMaxAttempts overrides the polling attempt budget.
func WithMaxAttempts(n int) Option {
	return func(s *Service) { s.maxAttempts = n }
}

// WithClock overrides the time source, for tests.
func WithClock(clock timeutil.Provider) Option {
	return func(s *Service) { s.clock = clock }
}

// NewService creates the provisioning orchestrator.
func NewService(
	broker CredentialBroker,
	factory StackQuerierFactory,
	reconciler Reconciler,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics Metrics,
	opts ...Option,
) *Service {
	s := &Service{
		broker:      broker,
		factory:     factory,
		reconciler:  reconciler,
		maxAttempts: stack.DefaultMaxAttempts,
		clock:       timeutil.Default(),
		logger:      log.With("component", "provisioning_orchestrator"),
		tracer:      tracer,
		metrics:     metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Poll executes one polling iteration and returns the decision envelope.
// A returned *Error means the operation is terminally failed; a plain
// envelope means IN_PROGRESS (reschedule) or COMPLETE.
func (s *Service) Poll(ctx context.Context, inv Invocation) (*Envelope, error) {
	start := s.clock.Now()

	log := logger.NewLoggerContext(s.logger.With(
		"tenant_id", inv.TenantID,
		"operation", inv.Operation,
		"tier", inv.SubscriptionTier,
	))
	ctx, span := s.tracer.Start(ctx, "provisioning.Poll", trace.WithAttributes(
		attribute.String("tenant_id", inv.TenantID),
		attribute.String("operation", inv.Operation),
		attribute.String("tier", inv.SubscriptionTier),
		attribute.Int("attempts", inv.Metadata.Attempts),
	))
	defer span.End()

	op, err := s.validate(inv)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid invocation")
		return nil, err
	}

	if tenant.Tier(inv.SubscriptionTier) == tenant.TierPublic {
		return s.pollPublic(ctx, span, log, inv, op, start)
	}
	return s.pollPrivate(ctx, span, log, inv, op, start)
}

// validate fails fast on caller misconfiguration, before any network call.
func (s *Service) validate(inv Invocation) (stack.Operation, error) {
	if inv.TenantID == "" {
		return "", NewValidationError("tenantId", "tenant identifier is required")
	}
	if inv.SubscriptionTier == "" {
		return "", NewValidationError("subscriptionTier", "subscription tier is required")
	}
	if !tenant.Tier(inv.SubscriptionTier).IsValid() {
		return "", NewValidationError("subscriptionTier", "must be public or private")
	}
	op, err := stack.ParseOperation(inv.Operation)
	if err != nil {
		return "", NewValidationError("operation", "must be CREATE or DELETE")
	}
	if tenant.Tier(inv.SubscriptionTier) == tenant.TierPrivate && inv.Infrastructure.StackID == "" {
		return "", NewValidationError("infrastructure.stackId", "stack identifier is required for private tier")
	}
	return op, nil
}

// pollPublic is the zero-poll short circuit: there is no stack, so the
// caller-supplied status (or the operation's default completion status)
// is persisted directly and a COMPLETE envelope returned. The broker and
// querier are never touched.
func (s *Service) pollPublic(
	ctx context.Context,
	span trace.Span,
	log *logger.LoggerContext,
	inv Invocation,
	op stack.Operation,
	start time.Time,
) (*Envelope, error) {
	status := stack.Status(inv.Infrastructure.Status)
	if status == "" {
		status = op.DefaultCompleteStatus()
	}

	result := stack.PollResult{
		StackName: inv.Infrastructure.StackName,
		Status:    status,
		Reason:    "public tier uses pooled infrastructure",
	}

	t, err := s.reconciler.ApplyPollResult(ctx, inv.TenantID, result, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "registry write failed")
		return nil, s.genericFailure(ctx, inv, op, err, start)
	}

	span.AddEvent("public tier short circuit complete")
	log.Info(ctx, "public tier tenant reconciled without polling", "state", t.State)
	s.metrics.IncPollingDecision(ctx, op.String(), string(stack.DecisionComplete))
	s.metrics.ObservePollCycleDuration(ctx, op.String(), s.clock.Now().Sub(start))

	env := s.envelope(EnvelopeComplete, inv, op, result, stack.Outcome{
		Decision: stack.DecisionComplete,
		Reason:   result.Reason,
	}, inv.Metadata.Attempts, start)
	env.Infrastructure.CompletedAt = t.ProvisioningCompletedAt
	return &env, nil
}

// pollPrivate runs the full cycle: attempt increment, credential
// assumption, one status query, registry write, decision.
func (s *Service) pollPrivate(
	ctx context.Context,
	span trace.Span,
	log *logger.LoggerContext,
	inv Invocation,
	op stack.Operation,
	start time.Time,
) (*Envelope, error) {
	attempt := inv.Metadata.Attempts + 1
	log.Add("attempt", attempt)

	// Advisory write: losing the counter must not abort the cycle.
	s.reconciler.RecordPollingAttempt(ctx, inv.TenantID, attempt)

	creds, err := s.broker.AssumeTenantRole(ctx, inv.Infrastructure.TargetAccountID, inv.TenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "credential assumption failed")
		log.Error(ctx, "failed to assume cross-account role", "error", err)
		return nil, s.genericFailure(ctx, inv, op, err, start)
	}
	span.AddEvent("cross-account credentials assumed")

	querier := s.factory.QuerierFor(creds, inv.Infrastructure.Region)

	result, err := querier.DescribeStack(ctx, inv.Infrastructure.StackID, inv.TenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stack query failed")
		log.Error(ctx, "failed to query stack status", "error", err)
		return nil, s.genericFailure(ctx, inv, op, err, start)
	}
	span.AddEvent("stack status polled")
	log.Add("stack_status", string(result.Status))

	outcome := stack.ShouldContinuePolling(result.Status, attempt, s.maxAttempts)
	span.SetAttributes(attribute.String("polling_decision", string(outcome.Decision)))

	// The classification is persisted regardless of the decision so the
	// registry always reflects the last observed stack state.
	t, err := s.reconciler.ApplyPollResult(ctx, inv.TenantID, result, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "registry write failed")
		return nil, s.genericFailure(ctx, inv, op, err, start)
	}

	s.metrics.IncPollingDecision(ctx, op.String(), string(outcome.Decision))
	s.metrics.ObservePollCycleDuration(ctx, op.String(), s.clock.Now().Sub(start))

	switch outcome.Decision {
	case stack.DecisionContinue:
		log.Info(ctx, "stack operation still in progress")
		env := s.envelope(EnvelopeInProgress, inv, op, result, outcome, attempt, start)
		return &env, nil

	case stack.DecisionComplete:
		log.Info(ctx, "stack operation complete", "state", t.State)
		span.SetStatus(codes.Ok, "polling complete")
		env := s.envelope(EnvelopeComplete, inv, op, result, outcome, attempt, start)
		env.Infrastructure.CompletedAt = t.ProvisioningCompletedAt
		return &env, nil

	case stack.DecisionTimeout:
		log.Error(ctx, "polling attempts exhausted", "max_attempts", s.maxAttempts)
		// Critical write: the timeout is the last chance to persist the
		// outcome, so a failure here propagates raw.
		if werr := s.reconciler.RecordPollingTimeout(ctx, inv.TenantID, attempt); werr != nil {
			span.RecordError(werr)
			span.SetStatus(codes.Error, "timeout write failed")
			return nil, werr
		}
		s.metrics.IncProvisioningFailure(ctx, op.String(), "timeout")
		env := s.envelope(EnvelopeFailed, inv, op, result, outcome, attempt, start)
		env.Result.Status = string(stack.DecisionTimeout)
		env.Result.Error = outcome.Reason
		return nil, NewError(env, nil)

	default: // DecisionFailed, DecisionUnknown
		log.Error(ctx, "stack operation failed", "reason", outcome.Reason)
		s.metrics.IncProvisioningFailure(ctx, op.String(), string(outcome.Decision))
		env := s.envelope(EnvelopeFailed, inv, op, result, outcome, attempt, start)
		env.Result.Status = string(outcome.Decision)
		env.Result.Error = outcome.Reason
		env.Infrastructure.Events = toEventRecords(querier.RecentEvents(ctx, inv.Infrastructure.StackID, inv.TenantID))
		return nil, NewError(env, nil)
	}
}

// genericFailure wraps an unanticipated error (broker, network, registry)
// in a failure envelope. Nothing is written to the registry here because
// the failure's attribution is unknown.
func (s *Service) genericFailure(ctx context.Context, inv Invocation, op stack.Operation, cause error, start time.Time) error {
	s.metrics.IncProvisioningFailure(ctx, op.String(), "error")
	env := Envelope{
		Status: EnvelopeFailed,
		Infrastructure: InfrastructureOutput{
			Status: inv.Infrastructure.Status,
		},
		Metadata: ResultMetadata{
			Attempts: inv.Metadata.Attempts,
		},
		Result: Result{
			Success:         false,
			Operation:       op.String(),
			Status:          EnvelopeFailed,
			Error:           cause.Error(),
			ExecutionTimeMs: s.clock.Now().Sub(start).Milliseconds(),
		},
	}
	return NewError(env, cause)
}

func (s *Service) envelope(
	status string,
	inv Invocation,
	op stack.Operation,
	result stack.PollResult,
	outcome stack.Outcome,
	attempts int,
	start time.Time,
) Envelope {
	return Envelope{
		Status: status,
		Infrastructure: InfrastructureOutput{
			Status:       string(result.Status),
			StatusReason: result.Reason,
			Outputs:      toOutputValues(result.Outputs),
		},
		Metadata: ResultMetadata{
			Attempts:        attempts,
			PollingDecision: string(outcome.Decision),
		},
		Result: Result{
			Success:         status != EnvelopeFailed,
			Operation:       op.String(),
			Status:          status,
			ExecutionTimeMs: s.clock.Now().Sub(start).Milliseconds(),
		},
	}
}

func toOutputValues(outputs map[string]stack.Output) map[string]OutputValue {
	if len(outputs) == 0 {
		return nil
	}
	vals := make(map[string]OutputValue, len(outputs))
	for name, out := range outputs {
		vals[name] = OutputValue{Value: out.Value, Description: out.Description}
	}
	return vals
}

func toEventRecords(events []stack.Event) []EventRecord {
	if len(events) == 0 {
		return nil
	}
	records := make([]EventRecord, 0, len(events))
	for _, ev := range events {
		records = append(records, EventRecord{
			Timestamp:      ev.Timestamp,
			LogicalID:      ev.LogicalResourceID,
			ResourceType:   ev.ResourceType,
			ResourceStatus: ev.ResourceStatus,
			StatusReason:   ev.StatusReason,
		})
	}
	return records
}
