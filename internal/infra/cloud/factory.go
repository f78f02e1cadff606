package cloud

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackwarden/stackwarden/internal/application/provisioning"
	"github.com/stackwarden/stackwarden/pkg/common/logger"
)

// Factory builds stack clients scoped to one invocation's brokered
// credentials. Clients are never cached; credentials expire with the
// invocation.
type Factory struct {
	logger *logger.Logger
	tracer trace.Tracer
}

var _ provisioning.StackQuerierFactory = (*Factory)(nil)

// NewFactory creates a stack client factory.
func NewFactory(log *logger.Logger, tracer trace.Tracer) *Factory {
	return &Factory{logger: log, tracer: tracer}
}

// QuerierFor builds a CloudFormation client bound to the given
// credentials and region.
func (f *Factory) QuerierFor(creds provisioning.Credentials, region string) provisioning.StackQuerier {
	return f.ClientFor(creds, region)
}

// ClientFor is QuerierFor with the full lifecycle surface, for callers
// that launch and tear down stacks rather than just polling them.
func (f *Factory) ClientFor(creds provisioning.Credentials, region string) *StackClient {
	cfg := aws.Config{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID,
			creds.SecretAccessKey,
			creds.SessionToken,
		),
	}
	return NewStackClient(cloudformation.NewFromConfig(cfg), f.logger, f.tracer)
}
