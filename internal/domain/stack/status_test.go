package stack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stackwarden/stackwarden/internal/domain/stack"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		status stack.Status
		want   stack.Class
	}{
		{stack.StatusCreateComplete, stack.ClassComplete},
		{stack.StatusUpdateComplete, stack.ClassComplete},
		{stack.StatusDeleteComplete, stack.ClassComplete},
		{stack.StatusCreateFailed, stack.ClassFailed},
		{stack.StatusDeleteFailed, stack.ClassFailed},
		{stack.StatusRollbackComplete, stack.ClassFailed},
		{stack.StatusUpdateRollbackComplete, stack.ClassFailed},
		{stack.StatusCreateInProgress, stack.ClassInProgress},
		{stack.StatusDeleteInProgress, stack.ClassInProgress},
		{stack.StatusReviewInProgress, stack.ClassInProgress},
		{stack.Status("FUTURE_STATUS"), stack.ClassUnknown},
		{stack.Status(""), stack.ClassUnknown},
	}

	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.want, stack.Classify(tc.status))
		})
	}
}

func TestPollResultDerivedBooleans(t *testing.T) {
	complete := stack.PollResult{Status: stack.StatusCreateComplete}
	assert.True(t, complete.IsComplete())
	assert.False(t, complete.IsFailed())
	assert.False(t, complete.IsInProgress())

	failed := stack.PollResult{Status: stack.StatusRollbackComplete}
	assert.False(t, failed.IsComplete())
	assert.True(t, failed.IsFailed())

	inProgress := stack.PollResult{Status: stack.StatusDeleteInProgress}
	assert.True(t, inProgress.IsInProgress())

	unknown := stack.PollResult{Status: stack.Status("WAT")}
	assert.False(t, unknown.IsComplete())
	assert.False(t, unknown.IsFailed())
	assert.False(t, unknown.IsInProgress())
}

func TestParseOperation(t *testing.T) {
	op, err := stack.ParseOperation("CREATE")
	assert.NoError(t, err)
	assert.Equal(t, stack.OperationCreate, op)

	op, err = stack.ParseOperation("DELETE")
	assert.NoError(t, err)
	assert.Equal(t, stack.OperationDelete, op)

	_, err = stack.ParseOperation("UPSERT")
	assert.Error(t, err)
}

func TestDefaultCompleteStatus(t *testing.T) {
	assert.Equal(t, stack.StatusCreateComplete, stack.OperationCreate.DefaultCompleteStatus())
	assert.Equal(t, stack.StatusDeleteComplete, stack.OperationDelete.DefaultCompleteStatus())
}
