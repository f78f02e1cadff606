package cloud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/stackwarden/stackwarden/pkg/common/logger"
)

type mockSTS struct{ mock.Mock }

func (m *mockSTS) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sts.AssumeRoleOutput), args.Error(1)
}

func newTestBroker(client STSAPI) *Broker {
	return NewBroker(client, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
}

func TestAssumeTenantRole(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	t.Run("mints scoped credentials", func(t *testing.T) {
		client := new(mockSTS)
		client.On("AssumeRole", mock.Anything, mock.MatchedBy(func(in *sts.AssumeRoleInput) bool {
			return aws.ToString(in.RoleArn) == "arn:aws:iam::123456789012:role/stackwarden-tenant-provisioner" &&
				aws.ToString(in.ExternalId) == "acme-corp" &&
				aws.ToInt32(in.DurationSeconds) == 3600
		})).Return(&sts.AssumeRoleOutput{
			Credentials: &ststypes.Credentials{
				AccessKeyId:     aws.String("AKIDEXAMPLE"),
				SecretAccessKey: aws.String("secret"),
				SessionToken:    aws.String("token"),
				Expiration:      aws.Time(expiry),
			},
		}, nil)

		creds, err := newTestBroker(client).AssumeTenantRole(context.Background(), "123456789012", "acme-corp")
		require.NoError(t, err)
		assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
		assert.Equal(t, "secret", creds.SecretAccessKey)
		assert.Equal(t, "token", creds.SessionToken)
		assert.Equal(t, expiry, creds.Expiration)
		client.AssertExpectations(t)
	})

	t.Run("access denied is distinguishable", func(t *testing.T) {
		client := new(mockSTS)
		client.On("AssumeRole", mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "not authorized"})

		_, err := newTestBroker(client).AssumeTenantRole(context.Background(), "123456789012", "acme-corp")
		assert.ErrorIs(t, err, ErrCrossAccountAccessDenied)
	})

	t.Run("transient failures surface unclassified", func(t *testing.T) {
		client := new(mockSTS)
		client.On("AssumeRole", mock.Anything, mock.Anything).
			Return(nil, errors.New("connection timeout"))

		_, err := newTestBroker(client).AssumeTenantRole(context.Background(), "123456789012", "acme-corp")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCrossAccountAccessDenied)
	})

	t.Run("empty credential set is an error", func(t *testing.T) {
		client := new(mockSTS)
		client.On("AssumeRole", mock.Anything, mock.Anything).
			Return(&sts.AssumeRoleOutput{}, nil)

		_, err := newTestBroker(client).AssumeTenantRole(context.Background(), "123456789012", "acme-corp")
		assert.Error(t, err)
	})
}
