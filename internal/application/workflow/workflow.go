// Package workflow runs the polling loop around the provisioning
// orchestrator. The orchestrator decides one iteration at a time; the
// workflow owns the delay between iterations and the accumulated attempt
// count, and delivers the final outcome on a channel.
package workflow

import (
	"context"
	"time"

	"github.com/stackwarden/stackwarden/internal/application/provisioning"
	"github.com/stackwarden/stackwarden/pkg/common/logger"
)

// Poller executes one polling iteration.
type Poller interface {
	Poll(ctx context.Context, inv provisioning.Invocation) (*provisioning.Envelope, error)
}

// Result is the consolidated outcome of a polling workflow execution.
type Result struct {
	Success     bool
	CompletedAt time.Time
	Attempts    int
	Envelope    *provisioning.Envelope
	Error       error
}

// Workflow defines the common interface for asynchronous workflows.
type Workflow interface {
	Start(ctx context.Context)
	ResultChan() <-chan Result
}

// PollingWorkflow re-invokes the orchestrator at a fixed interval until
// it returns a terminal envelope or error. Exactly one Result is
// delivered on the result channel.
//
// The orchestrator assumes at most one execution per tenant at a time;
// callers must not start two workflows for the same tenant concurrently.
type PollingWorkflow struct {
	poller     Poller
	invocation provisioning.Invocation
	interval   time.Duration

	logger     *logger.Logger
	resultChan chan Result
}

var _ Workflow = (*PollingWorkflow)(nil)

// NewPollingWorkflow creates a polling workflow for one invocation.
func NewPollingWorkflow(poller Poller, inv provisioning.Invocation, interval time.Duration, log *logger.Logger) *PollingWorkflow {
	return &PollingWorkflow{
		poller:     poller,
		invocation: inv,
		interval:   interval,
		logger:     log.With("component", "polling_workflow", "tenant_id", inv.TenantID),
		resultChan: make(chan Result, 1),
	}
}

// ResultChan returns the channel that will receive the final result.
func (w *PollingWorkflow) ResultChan() <-chan Result {
	return w.resultChan
}

// Start launches the polling loop in a new goroutine.
func (w *PollingWorkflow) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *PollingWorkflow) run(ctx context.Context) {
	inv := w.invocation

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		env, err := w.poller.Poll(ctx, inv)
		if err != nil {
			w.logger.Error(ctx, "polling workflow failed",
				"attempts", inv.Metadata.Attempts,
				"error", err,
			)
			w.deliver(Result{
				CompletedAt: time.Now().UTC(),
				Attempts:    inv.Metadata.Attempts,
				Error:       err,
			})
			return
		}

		if env.Status == provisioning.EnvelopeComplete {
			w.logger.Info(ctx, "polling workflow complete",
				"attempts", env.Metadata.Attempts,
			)
			w.deliver(Result{
				Success:     true,
				CompletedAt: time.Now().UTC(),
				Attempts:    env.Metadata.Attempts,
				Envelope:    env,
			})
			return
		}

		// IN_PROGRESS: carry the echoed attempt count into the next
		// iteration, exactly as an external engine would.
		inv.Metadata.Attempts = env.Metadata.Attempts

		timer.Reset(w.interval)
		select {
		case <-ctx.Done():
			w.deliver(Result{
				CompletedAt: time.Now().UTC(),
				Attempts:    inv.Metadata.Attempts,
				Error:       ctx.Err(),
			})
			return
		case <-timer.C:
		}
	}
}

func (w *PollingWorkflow) deliver(r Result) {
	select {
	case w.resultChan <- r:
	default:
	}
}
