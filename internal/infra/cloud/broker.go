package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackwarden/stackwarden/internal/application/provisioning"
	"github.com/stackwarden/stackwarden/pkg/common/logger"
)

// ErrCrossAccountAccessDenied indicates the tenant account has not
// granted (or has revoked) the provisioning trust relationship. Callers
// can distinguish this from transient STS failures.
var ErrCrossAccountAccessDenied = errors.New("cross-account role assumption denied")

const (
	// tenantRoleName is the well-known role every managed tenant account
	// provisions for the control plane to assume.
	tenantRoleName = "stackwarden-tenant-provisioner"

	sessionDurationSeconds = 3600
)

// Broker exchanges a tenant's target account for short-lived scoped
// credentials via STS AssumeRole. It performs no internal retries.
type Broker struct {
	client STSAPI

	logger *logger.Logger
	tracer trace.Tracer
}

var _ provisioning.CredentialBroker = (*Broker)(nil)

// NewBroker creates a credential broker over the given STS client.
func NewBroker(client STSAPI, log *logger.Logger, tracer trace.Tracer) *Broker {
	return &Broker{
		client: client,
		logger: log.With("component", "credential_broker"),
		tracer: tracer,
	}
}

// AssumeTenantRole assumes the well-known provisioning role in the
// tenant's account. The tenant id doubles as the external id on the
// trust policy, so credentials minted for one tenant cannot be replayed
// against another account's role.
func (b *Broker) AssumeTenantRole(ctx context.Context, targetAccountID, tenantID string) (provisioning.Credentials, error) {
	ctx, span := b.tracer.Start(ctx, "broker.AssumeTenantRole", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("target_account_id", targetAccountID),
	))
	defer span.End()

	roleArn := fmt.Sprintf("arn:aws:iam::%s:role/%s", targetAccountID, tenantRoleName)

	out, err := b.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleArn),
		RoleSessionName: aws.String("stackwarden-provisioning-" + tenantID),
		ExternalId:      aws.String(tenantID),
		DurationSeconds: aws.Int32(sessionDurationSeconds),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assume role failed")

		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDenied" {
			b.logger.Warn(ctx, "tenant trust relationship missing or revoked",
				"tenant_id", tenantID,
				"target_account_id", targetAccountID,
			)
			return provisioning.Credentials{}, fmt.Errorf("%w: account %s: %v", ErrCrossAccountAccessDenied, targetAccountID, err)
		}
		return provisioning.Credentials{}, fmt.Errorf("assuming role %s: %w", roleArn, err)
	}

	creds := out.Credentials
	if creds == nil || creds.AccessKeyId == nil || creds.SecretAccessKey == nil {
		return provisioning.Credentials{}, fmt.Errorf("assuming role %s: empty credential set returned", roleArn)
	}

	result := provisioning.Credentials{
		AccessKeyID:     aws.ToString(creds.AccessKeyId),
		SecretAccessKey: aws.ToString(creds.SecretAccessKey),
		SessionToken:    aws.ToString(creds.SessionToken),
		Expiration:      aws.ToTime(creds.Expiration),
	}

	b.logger.Debug(ctx, "assumed tenant role",
		"tenant_id", tenantID,
		"target_account_id", targetAccountID,
		"expires_at", result.Expiration,
	)
	return result, nil
}
