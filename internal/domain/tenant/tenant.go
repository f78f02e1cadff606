package tenant

import (
	"errors"
	"regexp"
	"time"
)

// Common errors
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrInvalidTenantID     = errors.New("invalid tenant id")
	ErrInvalidName         = errors.New("invalid tenant name")
	ErrInvalidTier         = errors.New("invalid subscription tier")
	ErrInvalidAccountID    = errors.New("invalid target account id")
	ErrInvalidTransition   = errors.New("invalid provisioning state transition")
)

// Tier represents a tenant's subscription tier. Public tenants share
// pooled infrastructure; private tenants get a dedicated stack in their
// own target account.
type Tier string

// Predefined tier levels
const (
	TierPublic  Tier = "public"
	TierPrivate Tier = "private"
)

// IsValid checks if the tier is one of the supported levels.
func (t Tier) IsValid() bool {
	switch t {
	case TierPublic, TierPrivate:
		return true
	default:
		return false
	}
}

// ProvisioningState represents the tenant's infrastructure lifecycle status.
type ProvisioningState string

// Predefined provisioning states
const (
	StatePending  ProvisioningState = "pending"
	StateCreating ProvisioningState = "creating"
	StateActive   ProvisioningState = "active"
	StateDeleting ProvisioningState = "deleting"
	StateDeleted  ProvisioningState = "deleted"
	StateFailed   ProvisioningState = "failed"
	StateTimeout  ProvisioningState = "timeout"
)

// IsTerminal reports whether the state can no longer transition.
// Deleted, failed, and timeout are absorbing; active can still move
// to deleting.
func (s ProvisioningState) IsTerminal() bool {
	switch s {
	case StateDeleted, StateFailed, StateTimeout:
		return true
	default:
		return false
	}
}

// IsInProgress reports whether the state represents an in-flight
// infrastructure operation that a poller is expected to advance.
func (s ProvisioningState) IsInProgress() bool {
	return s == StateCreating || s == StateDeleting
}

// Tenant is the registry record for one customer tenant. It is the only
// shared mutable resource in the provisioning path and is written
// exclusively by the reconciler.
type Tenant struct {
	TenantID        string
	Name            string
	Tier            Tier
	State           ProvisioningState
	StatusReason    string
	TargetAccountID string
	Region          string
	StackID         string
	StackName       string

	PollingAttempts         int
	LastPolledAt            *time.Time
	ProvisioningCompletedAt *time.Time
	ProvisioningFailedAt    *time.Time
	PollingTimeoutAt        *time.Time

	CreatedAt    time.Time
	LastModified time.Time
}

var tenantIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// New creates a new registry record in the pending state with validation.
// Private-tier tenants must name the AWS account that will host their stack.
func New(tenantID, name string, tier Tier, targetAccountID, region string) (*Tenant, error) {
	if !tenantIDPattern.MatchString(tenantID) {
		return nil, ErrInvalidTenantID
	}
	if name == "" {
		return nil, ErrInvalidName
	}
	if !tier.IsValid() {
		return nil, ErrInvalidTier
	}
	if tier == TierPrivate && targetAccountID == "" {
		return nil, ErrInvalidAccountID
	}

	now := time.Now().UTC()
	return &Tenant{
		TenantID:        tenantID,
		Name:            name,
		Tier:            tier,
		State:           StatePending,
		TargetAccountID: targetAccountID,
		Region:          region,
		CreatedAt:       now,
		LastModified:    now,
	}, nil
}

// transitions lists the forward-only edges of the lifecycle. Failed and
// timeout are reachable from any non-terminal state and are handled
// separately in CanTransition.
var transitions = map[ProvisioningState][]ProvisioningState{
	StatePending:  {StateCreating, StateActive},
	StateCreating: {StateActive},
	StateActive:   {StateDeleting, StateDeleted},
	StateDeleting: {StateDeleted},
}

// CanTransition reports whether the lifecycle allows moving from the
// current state to next. Public-tier tenants skip the creating/deleting
// intermediates, which is why pending->active and active->deleted are
// legal edges.
func (t *Tenant) CanTransition(next ProvisioningState) bool {
	if t.State == next {
		return true
	}
	if next == StateFailed || next == StateTimeout {
		return !t.State.IsTerminal()
	}
	for _, s := range transitions[t.State] {
		if s == next {
			return true
		}
	}
	return false
}

// Transition moves the record to the next lifecycle state, stamping the
// terminal timestamps exactly once.
func (t *Tenant) Transition(next ProvisioningState) error {
	if !t.CanTransition(next) {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	switch next {
	case StateActive, StateDeleted:
		if t.ProvisioningCompletedAt == nil {
			t.ProvisioningCompletedAt = &now
		}
	case StateFailed:
		if t.ProvisioningFailedAt == nil {
			t.ProvisioningFailedAt = &now
		}
	case StateTimeout:
		if t.PollingTimeoutAt == nil {
			t.PollingTimeoutAt = &now
		}
	}

	t.State = next
	t.LastModified = now
	return nil
}

// IsActive checks if the tenant's infrastructure is ready.
func (t *Tenant) IsActive() bool { return t.State == StateActive }

// IsDeleted checks if the tenant's infrastructure has been torn down.
func (t *Tenant) IsDeleted() bool { return t.State == StateDeleted }
