package tenant

import "context"

// StatusUpdate describes one reconciliation write against a registry
// record. Terminal timestamps implied by State are stamped by the store
// only if they have not been stamped before, so replaying the same
// update is harmless.
type StatusUpdate struct {
	State        ProvisioningState
	StatusReason string

	// Stack identifiers learned during provisioning. Empty values leave
	// the stored identifiers untouched.
	StackID   string
	StackName string
}

// Repository defines the interface for registry data access. This
// interface abstracts the underlying storage mechanism; the provisioning
// path depends only on keyed reads and conditional single-record updates.
type Repository interface {
	// Create persists a new registry record.
	// Returns ErrTenantAlreadyExists if the tenant id is taken.
	Create(ctx context.Context, tenant *Tenant) error

	// FindByID retrieves a registry record by tenant id.
	// Returns ErrTenantNotFound if no record exists.
	FindByID(ctx context.Context, tenantID string) (*Tenant, error)

	// UpdateInfrastructureStatus applies a reconciliation write as a
	// single atomic update and returns the record as stored. The write
	// is idempotent with respect to terminal timestamps.
	UpdateInfrastructureStatus(ctx context.Context, tenantID string, update StatusUpdate) (*Tenant, error)

	// RecordPollingAttempt stores the attempt counter and last-polled
	// timestamp for one poll cycle.
	RecordPollingAttempt(ctx context.Context, tenantID string, attempt int) error

	// RecordPollingTimeout moves the record to the terminal timeout
	// state, persisting the total attempt count.
	RecordPollingTimeout(ctx context.Context, tenantID string, totalAttempts int) error

	// Delete removes a registry record. Deprovisioning normally keeps
	// the record in the deleted state; this is for operator cleanup.
	Delete(ctx context.Context, tenantID string) error
}
