package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/stackwarden/stackwarden/internal/application/provisioning"
	"github.com/stackwarden/stackwarden/internal/domain/tenant"
	"github.com/stackwarden/stackwarden/pkg/common/logger"
)

type mockRepo struct{ mock.Mock }

func (m *mockRepo) Create(ctx context.Context, t *tenant.Tenant) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockRepo) FindByID(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenant.Tenant), args.Error(1)
}

func (m *mockRepo) UpdateInfrastructureStatus(ctx context.Context, tenantID string, update tenant.StatusUpdate) (*tenant.Tenant, error) {
	args := m.Called(ctx, tenantID, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenant.Tenant), args.Error(1)
}

func (m *mockRepo) RecordPollingAttempt(ctx context.Context, tenantID string, attempt int) error {
	return m.Called(ctx, tenantID, attempt).Error(0)
}

func (m *mockRepo) RecordPollingTimeout(ctx context.Context, tenantID string, totalAttempts int) error {
	return m.Called(ctx, tenantID, totalAttempts).Error(0)
}

func (m *mockRepo) Delete(ctx context.Context, tenantID string) error {
	return m.Called(ctx, tenantID).Error(0)
}

type mockProvisioner struct{ mock.Mock }

func (m *mockProvisioner) LaunchStack(ctx context.Context, t *tenant.Tenant) (string, error) {
	args := m.Called(ctx, t)
	return args.String(0), args.Error(1)
}

func (m *mockProvisioner) TeardownStack(ctx context.Context, t *tenant.Tenant) error {
	return m.Called(ctx, t).Error(0)
}

type mockPoller struct{ mock.Mock }

func (m *mockPoller) Poll(ctx context.Context, inv provisioning.Invocation) (*provisioning.Envelope, error) {
	args := m.Called(ctx, inv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provisioning.Envelope), args.Error(1)
}

type fixture struct {
	repo        *mockRepo
	provisioner *mockProvisioner
	poller      *mockPoller
	svc         *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:        new(mockRepo),
		provisioner: new(mockProvisioner),
		poller:      new(mockPoller),
	}
	f.svc = NewService(
		f.repo,
		f.provisioner,
		f.poller,
		time.Millisecond,
		logger.Noop(),
		noop.NewTracerProvider().Tracer("test"),
	)
	return f
}

const testStackID = "arn:aws:cloudformation:us-east-1:123456789012:stack/tenant-acme/abc"

func waitForWorkflows(t *testing.T, svc *Service) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for svc.ActiveWorkflows() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("workflows did not drain")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRegister_PublicTier(t *testing.T) {
	f := newFixture(t)

	f.repo.On("Create", mock.Anything, mock.MatchedBy(func(rec *tenant.Tenant) bool {
		return rec.TenantID == "acme" && rec.State == tenant.StatePending
	})).Return(nil)
	f.poller.On("Poll", mock.Anything, mock.MatchedBy(func(inv provisioning.Invocation) bool {
		return inv.SubscriptionTier == "public" && inv.Operation == "CREATE"
	})).Return(&provisioning.Envelope{Status: provisioning.EnvelopeComplete}, nil)

	result, err := f.svc.Register(context.Background(), RegisterParams{
		TenantID: "acme",
		Name:     "Acme Corp",
		Tier:     tenant.TierPublic,
	})
	require.NoError(t, err)
	assert.Equal(t, tenant.StateActive, result.State)
	assert.Empty(t, result.StackID)

	// No stack launched for pooled infrastructure.
	f.provisioner.AssertNotCalled(t, "LaunchStack")
	assert.Zero(t, f.svc.ActiveWorkflows())
}

func TestRegister_PrivateTier(t *testing.T) {
	f := newFixture(t)

	f.repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.provisioner.On("LaunchStack", mock.Anything, mock.Anything).Return(testStackID, nil)
	f.repo.On("UpdateInfrastructureStatus", mock.Anything, "acme", tenant.StatusUpdate{
		State:     tenant.StateCreating,
		StackID:   testStackID,
		StackName: "tenant-acme",
	}).Return(&tenant.Tenant{
		TenantID:        "acme",
		Tier:            tenant.TierPrivate,
		State:           tenant.StateCreating,
		TargetAccountID: "123456789012",
		Region:          "us-east-1",
		StackID:         testStackID,
		StackName:       "tenant-acme",
	}, nil)
	f.poller.On("Poll", mock.Anything, mock.MatchedBy(func(inv provisioning.Invocation) bool {
		return inv.Operation == "CREATE" && inv.Infrastructure.StackID == testStackID
	})).Return(&provisioning.Envelope{
		Status:   provisioning.EnvelopeComplete,
		Metadata: provisioning.ResultMetadata{Attempts: 1},
	}, nil)

	result, err := f.svc.Register(context.Background(), RegisterParams{
		TenantID:        "acme",
		Name:            "Acme Corp",
		Tier:            tenant.TierPrivate,
		TargetAccountID: "123456789012",
		Region:          "us-east-1",
	})
	require.NoError(t, err)
	assert.Equal(t, tenant.StateCreating, result.State)
	assert.Equal(t, testStackID, result.StackID)

	waitForWorkflows(t, f.svc)
	f.poller.AssertExpectations(t)
}

func TestRegister_DuplicateTenant(t *testing.T) {
	f := newFixture(t)

	f.repo.On("Create", mock.Anything, mock.Anything).Return(tenant.ErrTenantAlreadyExists)

	_, err := f.svc.Register(context.Background(), RegisterParams{
		TenantID:        "acme",
		Name:            "Acme Corp",
		Tier:            tenant.TierPrivate,
		TargetAccountID: "123456789012",
	})
	assert.ErrorIs(t, err, tenant.ErrTenantAlreadyExists)
	f.provisioner.AssertNotCalled(t, "LaunchStack")
}

func TestRegister_InvalidParams(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterParams{
		TenantID: "acme",
		Name:     "Acme Corp",
		Tier:     tenant.TierPrivate, // no target account
	})
	assert.ErrorIs(t, err, tenant.ErrInvalidAccountID)
	f.repo.AssertNotCalled(t, "Create")
}

func TestRegister_LaunchFailureKeepsRecordPending(t *testing.T) {
	f := newFixture(t)

	launchErr := errors.New("CreateStack throttled")
	f.repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.provisioner.On("LaunchStack", mock.Anything, mock.Anything).Return("", launchErr)

	_, err := f.svc.Register(context.Background(), RegisterParams{
		TenantID:        "acme",
		Name:            "Acme Corp",
		Tier:            tenant.TierPrivate,
		TargetAccountID: "123456789012",
	})
	assert.ErrorIs(t, err, launchErr)
	f.repo.AssertNotCalled(t, "UpdateInfrastructureStatus")
}

func TestDeprovision_PublicTier(t *testing.T) {
	f := newFixture(t)

	f.repo.On("FindByID", mock.Anything, "acme").Return(&tenant.Tenant{
		TenantID: "acme",
		Tier:     tenant.TierPublic,
		State:    tenant.StateActive,
	}, nil)
	f.repo.On("UpdateInfrastructureStatus", mock.Anything, "acme", tenant.StatusUpdate{
		State: tenant.StateDeleted,
	}).Return(&tenant.Tenant{TenantID: "acme", State: tenant.StateDeleted}, nil)

	result, err := f.svc.Deprovision(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, tenant.StateDeleted, result.State)
	f.provisioner.AssertNotCalled(t, "TeardownStack")
}

func TestDeprovision_PrivateTier(t *testing.T) {
	f := newFixture(t)

	rec := &tenant.Tenant{
		TenantID:        "acme",
		Tier:            tenant.TierPrivate,
		State:           tenant.StateActive,
		TargetAccountID: "123456789012",
		Region:          "us-east-1",
		StackID:         testStackID,
	}
	f.repo.On("FindByID", mock.Anything, "acme").Return(rec, nil)
	f.provisioner.On("TeardownStack", mock.Anything, rec).Return(nil)
	f.repo.On("UpdateInfrastructureStatus", mock.Anything, "acme", tenant.StatusUpdate{
		State: tenant.StateDeleting,
	}).Return(&tenant.Tenant{
		TenantID:        "acme",
		Tier:            tenant.TierPrivate,
		State:           tenant.StateDeleting,
		TargetAccountID: "123456789012",
		Region:          "us-east-1",
		StackID:         testStackID,
	}, nil)
	f.poller.On("Poll", mock.Anything, mock.MatchedBy(func(inv provisioning.Invocation) bool {
		return inv.Operation == "DELETE"
	})).Return(&provisioning.Envelope{Status: provisioning.EnvelopeComplete}, nil)

	result, err := f.svc.Deprovision(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, tenant.StateDeleting, result.State)

	waitForWorkflows(t, f.svc)
}

func TestDeprovision_TerminalStateRejected(t *testing.T) {
	f := newFixture(t)

	f.repo.On("FindByID", mock.Anything, "acme").Return(&tenant.Tenant{
		TenantID: "acme",
		Tier:     tenant.TierPrivate,
		State:    tenant.StateFailed,
	}, nil)

	_, err := f.svc.Deprovision(context.Background(), "acme")
	assert.ErrorIs(t, err, tenant.ErrInvalidTransition)
}

func TestGet(t *testing.T) {
	f := newFixture(t)

	f.repo.On("FindByID", mock.Anything, "acme").Return(&tenant.Tenant{TenantID: "acme"}, nil)

	rec, err := f.svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", rec.TenantID)

	f.repo.On("FindByID", mock.Anything, "ghost").Return(nil, tenant.ErrTenantNotFound)
	_, err = f.svc.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}
