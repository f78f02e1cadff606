// Package postgres provides the PostgreSQL implementation of the tenant
// registry repository using the pgx driver.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackwarden/stackwarden/internal/domain/tenant"
	"github.com/stackwarden/stackwarden/internal/infra/storage"
)

var _ tenant.Repository = (*tenantStore)(nil)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

type tenantStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewTenantStore creates a tenant.Repository backed by PostgreSQL.
func NewTenantStore(pool *pgxpool.Pool, tracer trace.Tracer) tenant.Repository {
	return &tenantStore{pool: pool, tracer: tracer}
}

const tenantColumns = `
	tenant_id, name, tier, state, status_reason, target_account_id, region,
	stack_id, stack_name, polling_attempts, last_polled_at,
	provisioning_completed_at, provisioning_failed_at, polling_timeout_at,
	created_at, last_modified`

// Create persists a new registry record.
func (s *tenantStore) Create(ctx context.Context, t *tenant.Tenant) error {
	return storage.ExecuteAndTrace(ctx, s.tracer, "tenantStore.Create",
		[]attribute.KeyValue{attribute.String("tenant_id", t.TenantID)},
		func(ctx context.Context) error {
			_, err := s.pool.Exec(ctx, `
				INSERT INTO tenants (
					tenant_id, name, tier, state, target_account_id, region,
					stack_id, stack_name, created_at, last_modified
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
				t.TenantID, t.Name, string(t.Tier), string(t.State),
				t.TargetAccountID, t.Region, t.StackID, t.StackName,
				t.CreatedAt,
			)
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return tenant.ErrTenantAlreadyExists
			}
			return err
		})
}

// FindByID retrieves a registry record by tenant id.
func (s *tenantStore) FindByID(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	var t *tenant.Tenant
	err := storage.ExecuteAndTrace(ctx, s.tracer, "tenantStore.FindByID",
		[]attribute.KeyValue{attribute.String("tenant_id", tenantID)},
		func(ctx context.Context) error {
			row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE tenant_id = $1`, tenantID)

			var err error
			t, err = scanTenant(row)
			if errors.Is(err, pgx.ErrNoRows) {
				return tenant.ErrTenantNotFound
			}
			return err
		})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateInfrastructureStatus applies one reconciliation write as a
// single atomic update. Terminal timestamps are stamped only if still
// unset, so replaying a terminal result does not move them. Stack
// identifiers are only overwritten by non-empty values.
func (s *tenantStore) UpdateInfrastructureStatus(ctx context.Context, tenantID string, update tenant.StatusUpdate) (*tenant.Tenant, error) {
	var t *tenant.Tenant
	err := storage.ExecuteAndTrace(ctx, s.tracer, "tenantStore.UpdateInfrastructureStatus",
		[]attribute.KeyValue{
			attribute.String("tenant_id", tenantID),
			attribute.String("state", string(update.State)),
		},
		func(ctx context.Context) error {
			row := s.pool.QueryRow(ctx, `
				UPDATE tenants SET
					state = $2,
					status_reason = $3,
					stack_id = COALESCE(NULLIF($4, ''), stack_id),
					stack_name = COALESCE(NULLIF($5, ''), stack_name),
					provisioning_completed_at = CASE
						WHEN $2 IN ('active', 'deleted') THEN COALESCE(provisioning_completed_at, now())
						ELSE provisioning_completed_at
					END,
					provisioning_failed_at = CASE
						WHEN $2 = 'failed' THEN COALESCE(provisioning_failed_at, now())
						ELSE provisioning_failed_at
					END,
					last_modified = now()
				WHERE tenant_id = $1
				RETURNING `+tenantColumns,
				tenantID, string(update.State), update.StatusReason,
				update.StackID, update.StackName,
			)

			var err error
			t, err = scanTenant(row)
			if errors.Is(err, pgx.ErrNoRows) {
				return tenant.ErrTenantNotFound
			}
			return err
		})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// RecordPollingAttempt stores the attempt counter and last-polled
// timestamp.
func (s *tenantStore) RecordPollingAttempt(ctx context.Context, tenantID string, attempt int) error {
	return storage.ExecuteAndTrace(ctx, s.tracer, "tenantStore.RecordPollingAttempt",
		[]attribute.KeyValue{
			attribute.String("tenant_id", tenantID),
			attribute.Int("attempt", attempt),
		},
		func(ctx context.Context) error {
			tag, err := s.pool.Exec(ctx, `
				UPDATE tenants SET
					polling_attempts = $2,
					last_polled_at = now(),
					last_modified = now()
				WHERE tenant_id = $1`,
				tenantID, attempt,
			)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return tenant.ErrTenantNotFound
			}
			return nil
		})
}

// RecordPollingTimeout moves the record to the terminal timeout state.
// The timeout timestamp is stamped only once.
func (s *tenantStore) RecordPollingTimeout(ctx context.Context, tenantID string, totalAttempts int) error {
	return storage.ExecuteAndTrace(ctx, s.tracer, "tenantStore.RecordPollingTimeout",
		[]attribute.KeyValue{
			attribute.String("tenant_id", tenantID),
			attribute.Int("total_attempts", totalAttempts),
		},
		func(ctx context.Context) error {
			tag, err := s.pool.Exec(ctx, `
				UPDATE tenants SET
					state = 'timeout',
					polling_attempts = $2,
					polling_timeout_at = COALESCE(polling_timeout_at, now()),
					last_modified = now()
				WHERE tenant_id = $1`,
				tenantID, totalAttempts,
			)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return tenant.ErrTenantNotFound
			}
			return nil
		})
}

// Delete removes a registry record entirely. Operator cleanup only;
// deprovisioning keeps the record in the deleted state.
func (s *tenantStore) Delete(ctx context.Context, tenantID string) error {
	return storage.ExecuteAndTrace(ctx, s.tracer, "tenantStore.Delete",
		[]attribute.KeyValue{attribute.String("tenant_id", tenantID)},
		func(ctx context.Context) error {
			tag, err := s.pool.Exec(ctx, `DELETE FROM tenants WHERE tenant_id = $1`, tenantID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return tenant.ErrTenantNotFound
			}
			return nil
		})
}

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var (
		t            tenant.Tenant
		tier, state  string
		lastPolledAt *time.Time
		completedAt  *time.Time
		failedAt     *time.Time
		timeoutAt    *time.Time
	)

	err := row.Scan(
		&t.TenantID, &t.Name, &tier, &state, &t.StatusReason,
		&t.TargetAccountID, &t.Region, &t.StackID, &t.StackName,
		&t.PollingAttempts, &lastPolledAt,
		&completedAt, &failedAt, &timeoutAt,
		&t.CreatedAt, &t.LastModified,
	)
	if err != nil {
		return nil, err
	}

	t.Tier = tenant.Tier(tier)
	t.State = tenant.ProvisioningState(state)
	t.LastPolledAt = lastPolledAt
	t.ProvisioningCompletedAt = completedAt
	t.ProvisioningFailedAt = failedAt
	t.PollingTimeoutAt = timeoutAt
	return &t, nil
}
