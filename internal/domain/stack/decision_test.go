package stack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stackwarden/stackwarden/internal/domain/stack"
)

func TestShouldContinuePolling_CompleteWinsOverAttempts(t *testing.T) {
	completes := []stack.Status{
		stack.StatusCreateComplete,
		stack.StatusUpdateComplete,
		stack.StatusDeleteComplete,
	}

	for _, status := range completes {
		for _, attempts := range []int{0, 1, 59, 60, 10000} {
			outcome := stack.ShouldContinuePolling(status, attempts, stack.DefaultMaxAttempts)
			assert.Equal(t, stack.DecisionComplete, outcome.Decision, "status %s attempts %d", status, attempts)
			assert.False(t, outcome.Continue)
		}
	}
}

func TestShouldContinuePolling_FailedWinsOverAttempts(t *testing.T) {
	failures := []stack.Status{
		stack.StatusCreateFailed,
		stack.StatusDeleteFailed,
		stack.StatusUpdateFailed,
		stack.StatusRollbackComplete,
		stack.StatusRollbackFailed,
		stack.StatusUpdateRollbackComplete,
		stack.StatusUpdateRollbackFailed,
	}

	for _, status := range failures {
		for _, attempts := range []int{0, 60, 9999} {
			outcome := stack.ShouldContinuePolling(status, attempts, stack.DefaultMaxAttempts)
			assert.Equal(t, stack.DecisionFailed, outcome.Decision, "status %s attempts %d", status, attempts)
			assert.False(t, outcome.Continue)
		}
	}
}

func TestShouldContinuePolling_InProgress(t *testing.T) {
	testCases := []struct {
		desc         string
		status       stack.Status
		attempts     int
		maxAttempts  int
		wantDecision stack.Decision
		wantContinue bool
	}{
		{
			desc:         "first attempt continues",
			status:       stack.StatusCreateInProgress,
			attempts:     0,
			maxAttempts:  60,
			wantDecision: stack.DecisionContinue,
			wantContinue: true,
		},
		{
			desc:         "just under the limit continues",
			status:       stack.StatusDeleteInProgress,
			attempts:     59,
			maxAttempts:  60,
			wantDecision: stack.DecisionContinue,
			wantContinue: true,
		},
		{
			desc:         "at the limit times out even though still in progress",
			status:       stack.StatusCreateInProgress,
			attempts:     60,
			maxAttempts:  60,
			wantDecision: stack.DecisionTimeout,
		},
		{
			desc:         "past the limit times out",
			status:       stack.StatusUpdateRollbackInProgress,
			attempts:     120,
			maxAttempts:  60,
			wantDecision: stack.DecisionTimeout,
		},
		{
			desc:         "non-positive max falls back to the default",
			status:       stack.StatusCreateInProgress,
			attempts:     59,
			maxAttempts:  0,
			wantDecision: stack.DecisionContinue,
			wantContinue: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			outcome := stack.ShouldContinuePolling(tc.status, tc.attempts, tc.maxAttempts)
			assert.Equal(t, tc.wantDecision, outcome.Decision)
			assert.Equal(t, tc.wantContinue, outcome.Continue)
			assert.NotEmpty(t, outcome.Reason)
		})
	}
}

func TestShouldContinuePolling_UnknownStatusStops(t *testing.T) {
	outcome := stack.ShouldContinuePolling(stack.Status("SOMETHING_NEW_FROM_THE_PROVIDER"), 1, 60)
	assert.Equal(t, stack.DecisionUnknown, outcome.Decision)
	assert.False(t, outcome.Continue)
}

func TestShouldContinuePolling_TimeoutBeatsUnknown(t *testing.T) {
	// Unknown status with exhausted attempts still reports timeout:
	// attempts are checked before the in-progress/unknown split.
	outcome := stack.ShouldContinuePolling(stack.Status("SOMETHING_NEW"), 60, 60)
	assert.Equal(t, stack.DecisionTimeout, outcome.Decision)
}
