package cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackwarden/stackwarden/internal/application/provisioning"
	"github.com/stackwarden/stackwarden/internal/domain/stack"
	"github.com/stackwarden/stackwarden/pkg/common/logger"
)

// ErrStackNotFound indicates the stack id resolved to zero stacks. A
// missing stack is never treated as delete completion; identifiers are
// ARNs that stay describable after deletion.
var ErrStackNotFound = errors.New("stack not found")

// recentEventLimit caps the diagnostic events attached to failure
// envelopes.
const recentEventLimit = 20

// StackClient answers status questions about tenant stacks and drives
// their lifecycle. One client is scoped to a single credential set and
// region, built per invocation by the Factory.
type StackClient struct {
	client StackAPI

	logger *logger.Logger
	tracer trace.Tracer
}

var _ provisioning.StackQuerier = (*StackClient)(nil)

// NewStackClient creates a stack client over the given CloudFormation
// client.
func NewStackClient(client StackAPI, log *logger.Logger, tracer trace.Tracer) *StackClient {
	return &StackClient{
		client: client,
		logger: log.With("component", "stack_client"),
		tracer: tracer,
	}
}

// DescribeStack returns the stack's current status, outputs and
// parameters in one call.
func (c *StackClient) DescribeStack(ctx context.Context, stackID, tenantID string) (stack.PollResult, error) {
	ctx, span := c.tracer.Start(ctx, "stack.DescribeStack", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("stack_id", stackID),
	))
	defer span.End()

	out, err := c.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackID),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "describe stacks failed")
		if isStackMissing(err) {
			return stack.PollResult{}, fmt.Errorf("%w: %s", ErrStackNotFound, stackID)
		}
		return stack.PollResult{}, fmt.Errorf("describing stack %s: %w", stackID, err)
	}
	if len(out.Stacks) == 0 {
		span.SetStatus(codes.Error, "stack not found")
		return stack.PollResult{}, fmt.Errorf("%w: %s", ErrStackNotFound, stackID)
	}

	s := out.Stacks[0]
	result := stack.PollResult{
		StackID:    aws.ToString(s.StackId),
		StackName:  aws.ToString(s.StackName),
		Status:     stack.Status(s.StackStatus),
		Reason:     aws.ToString(s.StackStatusReason),
		Outputs:    toOutputs(s.Outputs),
		Parameters: toParameters(s.Parameters),
	}
	span.SetAttributes(attribute.String("stack_status", string(result.Status)))
	return result, nil
}

// RecentEvents fetches the most recent stack events for failure
// diagnostics. Best-effort: any error yields an empty slice.
func (c *StackClient) RecentEvents(ctx context.Context, stackID, tenantID string) []stack.Event {
	ctx, span := c.tracer.Start(ctx, "stack.RecentEvents", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("stack_id", stackID),
	))
	defer span.End()

	out, err := c.client.DescribeStackEvents(ctx, &cloudformation.DescribeStackEventsInput{
		StackName: aws.String(stackID),
	})
	if err != nil {
		span.RecordError(err)
		c.logger.Warn(ctx, "fetching stack events failed",
			"tenant_id", tenantID,
			"stack_id", stackID,
			"error", err,
		)
		return nil
	}

	events := out.StackEvents
	if len(events) > recentEventLimit {
		events = events[:recentEventLimit]
	}

	result := make([]stack.Event, 0, len(events))
	for _, e := range events {
		result = append(result, stack.Event{
			Timestamp:         aws.ToTime(e.Timestamp),
			LogicalResourceID: aws.ToString(e.LogicalResourceId),
			ResourceType:      aws.ToString(e.ResourceType),
			ResourceStatus:    string(e.ResourceStatus),
			StatusReason:      aws.ToString(e.ResourceStatusReason),
		})
	}
	return result
}

// LaunchInput describes the stack to create for a tenant.
type LaunchInput struct {
	StackName   string
	TemplateURL string
	Parameters  map[string]string
	Tags        map[string]string
}

// Launch creates the tenant's stack and returns its id. The stack is
// tagged with the tenant id so cost and audit tooling can attribute it.
func (c *StackClient) Launch(ctx context.Context, tenantID string, in LaunchInput) (string, error) {
	ctx, span := c.tracer.Start(ctx, "stack.Launch", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("stack_name", in.StackName),
	))
	defer span.End()

	params := make([]types.Parameter, 0, len(in.Parameters))
	for k, v := range in.Parameters {
		params = append(params, types.Parameter{
			ParameterKey:   aws.String(k),
			ParameterValue: aws.String(v),
		})
	}

	tags := []types.Tag{{Key: aws.String("stackwarden:tenant-id"), Value: aws.String(tenantID)}}
	for k, v := range in.Tags {
		tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}

	out, err := c.client.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:    aws.String(in.StackName),
		TemplateURL:  aws.String(in.TemplateURL),
		Parameters:   params,
		Tags:         tags,
		Capabilities: []types.Capability{types.CapabilityCapabilityNamedIam},
		OnFailure:    types.OnFailureDelete,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create stack failed")
		return "", fmt.Errorf("creating stack %s: %w", in.StackName, err)
	}

	stackID := aws.ToString(out.StackId)
	c.logger.Info(ctx, "stack creation started",
		"tenant_id", tenantID,
		"stack_id", stackID,
	)
	return stackID, nil
}

// Teardown starts deletion of the tenant's stack. Deletion of an
// already-deleted stack is a no-op on the provider side.
func (c *StackClient) Teardown(ctx context.Context, tenantID, stackID string) error {
	ctx, span := c.tracer.Start(ctx, "stack.Teardown", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("stack_id", stackID),
	))
	defer span.End()

	if _, err := c.client.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(stackID),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete stack failed")
		return fmt.Errorf("deleting stack %s: %w", stackID, err)
	}

	c.logger.Info(ctx, "stack deletion started",
		"tenant_id", tenantID,
		"stack_id", stackID,
	)
	return nil
}

// isStackMissing detects CloudFormation's "does not exist" validation
// error, which it reports instead of a typed not-found error.
func isStackMissing(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" &&
		strings.Contains(apiErr.ErrorMessage(), "does not exist")
}

func toOutputs(outputs []types.Output) map[string]stack.Output {
	if len(outputs) == 0 {
		return nil
	}
	m := make(map[string]stack.Output, len(outputs))
	for _, o := range outputs {
		m[aws.ToString(o.OutputKey)] = stack.Output{
			Value:       aws.ToString(o.OutputValue),
			Description: aws.ToString(o.Description),
		}
	}
	return m
}

func toParameters(params []types.Parameter) map[string]string {
	if len(params) == 0 {
		return nil
	}
	m := make(map[string]string, len(params))
	for _, p := range params {
		m[aws.ToString(p.ParameterKey)] = aws.ToString(p.ParameterValue)
	}
	return m
}
