package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackwarden/stackwarden/internal/application/provisioning"
	"github.com/stackwarden/stackwarden/pkg/common/logger"
)

// scriptedPoller returns one envelope or error per call, in order.
type scriptedPoller struct {
	calls     int
	envelopes []*provisioning.Envelope
	errs      []error
	attempts  []int
}

func (p *scriptedPoller) Poll(ctx context.Context, inv provisioning.Invocation) (*provisioning.Envelope, error) {
	i := p.calls
	p.calls++
	p.attempts = append(p.attempts, inv.Metadata.Attempts)
	if p.errs[i] != nil {
		return nil, p.errs[i]
	}
	return p.envelopes[i], nil
}

func inProgress(attempts int) *provisioning.Envelope {
	return &provisioning.Envelope{
		Status:   provisioning.EnvelopeInProgress,
		Metadata: provisioning.ResultMetadata{Attempts: attempts},
	}
}

func complete(attempts int) *provisioning.Envelope {
	return &provisioning.Envelope{
		Status:   provisioning.EnvelopeComplete,
		Metadata: provisioning.ResultMetadata{Attempts: attempts},
	}
}

func awaitResult(t *testing.T, w *PollingWorkflow) Result {
	t.Helper()

	select {
	case r := <-w.ResultChan():
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("workflow did not deliver a result")
		return Result{}
	}
}

func TestPollingWorkflow_CompletesAfterProgress(t *testing.T) {
	poller := &scriptedPoller{
		envelopes: []*provisioning.Envelope{inProgress(1), inProgress(2), complete(3)},
		errs:      make([]error, 3),
	}

	w := NewPollingWorkflow(poller, provisioning.Invocation{TenantID: "t1"}, time.Millisecond, logger.Noop())
	w.Start(context.Background())

	r := awaitResult(t, w)
	require.True(t, r.Success)
	assert.Equal(t, 3, r.Attempts)
	require.NotNil(t, r.Envelope)

	// Attempt counts round-trip: each iteration sees the previous echo.
	assert.Equal(t, []int{0, 1, 2}, poller.attempts)
}

func TestPollingWorkflow_DeliversTerminalError(t *testing.T) {
	failure := errors.New("provisioning failed")
	poller := &scriptedPoller{
		envelopes: []*provisioning.Envelope{inProgress(1), nil},
		errs:      []error{nil, failure},
	}

	w := NewPollingWorkflow(poller, provisioning.Invocation{TenantID: "t1"}, time.Millisecond, logger.Noop())
	w.Start(context.Background())

	r := awaitResult(t, w)
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Error, failure)
	assert.Equal(t, 1, r.Attempts)
}

func TestPollingWorkflow_StopsOnContextCancel(t *testing.T) {
	poller := &scriptedPoller{
		envelopes: []*provisioning.Envelope{inProgress(1)},
		errs:      make([]error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewPollingWorkflow(poller, provisioning.Invocation{TenantID: "t1"}, time.Hour, logger.Noop())
	w.Start(ctx)

	// Let the first iteration land, then cancel during the long wait.
	time.Sleep(50 * time.Millisecond)
	cancel()

	r := awaitResult(t, w)
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Error, context.Canceled)
	assert.Equal(t, 1, poller.calls)
}
