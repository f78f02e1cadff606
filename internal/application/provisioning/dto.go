package provisioning

import (
	"context"
	"time"

	"github.com/stackwarden/stackwarden/internal/domain/stack"
	"github.com/stackwarden/stackwarden/internal/domain/tenant"
)

// Invocation is one polling request from the workflow engine. The engine
// owns the retry loop and passes back the state it accumulated so far.
type Invocation struct {
	Operation        string              `json:"operation"`
	TenantID         string              `json:"tenantId"`
	TenantName       string              `json:"tenantName,omitempty"`
	SubscriptionTier string              `json:"subscriptionTier"`
	Infrastructure   InfrastructureInput `json:"infrastructure"`
	Metadata         InvocationMetadata  `json:"metadata"`
}

// InfrastructureInput describes the stack under management.
type InfrastructureInput struct {
	TargetAccountID string `json:"targetAccountId,omitempty"`
	StackID         string `json:"stackId,omitempty"`
	StackName       string `json:"stackName,omitempty"`
	Region          string `json:"region,omitempty"`
	// Status lets callers pre-supply a stack status. The public-tier
	// path uses it to synthesize completion without polling.
	Status string `json:"status,omitempty"`
}

// InvocationMetadata carries the engine's accumulated attempt count.
type InvocationMetadata struct {
	Attempts int `json:"attempts"`
}

// Envelope statuses returned to the workflow engine.
const (
	EnvelopeInProgress = "IN_PROGRESS"
	EnvelopeComplete   = "COMPLETE"
	EnvelopeFailed     = "FAILED"
)

// Envelope is the structured outcome of one polling iteration. A normal
// return means "reschedule me" (IN_PROGRESS) or "done" (COMPLETE); a
// terminal failure is delivered as an *Error wrapping a FAILED envelope.
type Envelope struct {
	Status         string               `json:"status"`
	Infrastructure InfrastructureOutput `json:"infrastructure"`
	Metadata       ResultMetadata       `json:"metadata"`
	Result         Result               `json:"result"`
}

// InfrastructureOutput reports the stack's observed state.
type InfrastructureOutput struct {
	Status       string                 `json:"status"`
	StatusReason string                 `json:"statusReason,omitempty"`
	Outputs      map[string]OutputValue `json:"outputs,omitempty"`
	CompletedAt  *time.Time             `json:"completedAt,omitempty"`
	Events       []EventRecord          `json:"events,omitempty"`
}

// OutputValue is one named stack output in the outbound envelope.
type OutputValue struct {
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// EventRecord is one diagnostic stack event attached to failure envelopes.
type EventRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	LogicalID      string    `json:"logicalId"`
	ResourceType   string    `json:"resourceType"`
	ResourceStatus string    `json:"resourceStatus"`
	StatusReason   string    `json:"statusReason,omitempty"`
}

// ResultMetadata echoes the attempt count after this iteration along
// with the decision that produced the envelope.
type ResultMetadata struct {
	Attempts        int    `json:"attempts"`
	PollingDecision string `json:"pollingDecision"`
}

// Result summarizes the iteration for engines that branch on structured
// fields instead of string matching.
type Result struct {
	Success         bool   `json:"success"`
	Operation       string `json:"operation"`
	Status          string `json:"status"`
	ExecutionTimeMs int64  `json:"executionTime"`
	Error           string `json:"error,omitempty"`
}

// Credentials is a transient, invocation-scoped credential bundle
// obtained from the cross-account trust service. Never persisted.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// CredentialBroker exchanges a target account for short-lived scoped
// credentials. The broker performs no internal retries; transient
// failures surface to the caller unclassified.
type CredentialBroker interface {
	AssumeTenantRole(ctx context.Context, targetAccountID, tenantID string) (Credentials, error)
}

// StackQuerier answers status questions about one tenant's stack using
// already-scoped credentials.
type StackQuerier interface {
	// DescribeStack returns the stack's current classification. A stack
	// with zero matches is an error, never a delete-completion signal.
	DescribeStack(ctx context.Context, stackID, tenantID string) (stack.PollResult, error)

	// RecentEvents fetches up to the 20 most recent stack events,
	// best-effort: failures yield an empty slice.
	RecentEvents(ctx context.Context, stackID, tenantID string) []stack.Event
}

// StackQuerierFactory builds a querier scoped to one invocation's
// credentials and the tenant's target region.
type StackQuerierFactory interface {
	QuerierFor(creds Credentials, region string) StackQuerier
}

// Reconciler persists tenant registry status transitions. It is the only
// writer of the registry record.
type Reconciler interface {
	// ApplyPollResult maps a poll classification and operation direction
	// to a provisioning state and persists it idempotently.
	ApplyPollResult(ctx context.Context, tenantID string, result stack.PollResult, op stack.Operation) (*tenant.Tenant, error)

	// RecordPollingAttempt is advisory: failures are logged and
	// swallowed so a lost counter write cannot abort a poll cycle.
	RecordPollingAttempt(ctx context.Context, tenantID string, attempt int)

	// RecordPollingTimeout is critical: this is the last chance to
	// persist the outcome, so failures propagate.
	RecordPollingTimeout(ctx context.Context, tenantID string, totalAttempts int) error
}

// Metrics records polling cycle outcomes.
type Metrics interface {
	IncPollingDecision(ctx context.Context, operation, decision string)
	IncProvisioningFailure(ctx context.Context, operation, reason string)
	ObservePollCycleDuration(ctx context.Context, operation string, d time.Duration)
}
