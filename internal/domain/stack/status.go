// Package stack models the cloud-side view of a tenant's infrastructure
// bundle: the orchestration service's status vocabulary, its static
// classification into terminal and in-flight sets, and the polling
// decision table built on top of that classification.
package stack

import (
	"fmt"
	"time"
)

// Status is one of the resource-orchestration service's stack states.
// The enumeration is closed: statuses outside the three classification
// sets fail closed as unknown instead of silently matching nothing.
type Status string

// Stack status vocabulary.
const (
	StatusCreateInProgress                Status = "CREATE_IN_PROGRESS"
	StatusCreateComplete                  Status = "CREATE_COMPLETE"
	StatusCreateFailed                    Status = "CREATE_FAILED"
	StatusDeleteInProgress                Status = "DELETE_IN_PROGRESS"
	StatusDeleteComplete                  Status = "DELETE_COMPLETE"
	StatusDeleteFailed                    Status = "DELETE_FAILED"
	StatusUpdateInProgress                Status = "UPDATE_IN_PROGRESS"
	StatusUpdateComplete                  Status = "UPDATE_COMPLETE"
	StatusUpdateFailed                    Status = "UPDATE_FAILED"
	StatusUpdateCompleteCleanupInProgress Status = "UPDATE_COMPLETE_CLEANUP_IN_PROGRESS"
	StatusRollbackInProgress              Status = "ROLLBACK_IN_PROGRESS"
	StatusRollbackComplete                Status = "ROLLBACK_COMPLETE"
	StatusRollbackFailed                  Status = "ROLLBACK_FAILED"
	StatusUpdateRollbackInProgress        Status = "UPDATE_ROLLBACK_IN_PROGRESS"
	StatusUpdateRollbackComplete          Status = "UPDATE_ROLLBACK_COMPLETE"
	StatusUpdateRollbackFailed            Status = "UPDATE_ROLLBACK_FAILED"
	StatusReviewInProgress                Status = "REVIEW_IN_PROGRESS"
)

// String returns the string representation of the status.
func (s Status) String() string { return string(s) }

// Class is the static classification of a stack status.
type Class int

// Classification outcomes.
const (
	ClassUnknown Class = iota
	ClassComplete
	ClassFailed
	ClassInProgress
)

// String returns the string representation of the classification.
func (c Class) String() string {
	switch c {
	case ClassComplete:
		return "complete"
	case ClassFailed:
		return "failed"
	case ClassInProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// completeStatuses are statuses where the requested operation finished
// successfully. A rollback that completed is NOT success; it lands in
// failedStatuses because the original change was undone.
var completeStatuses = map[Status]struct{}{
	StatusCreateComplete: {},
	StatusUpdateComplete: {},
	StatusDeleteComplete: {},
}

var failedStatuses = map[Status]struct{}{
	StatusCreateFailed:           {},
	StatusDeleteFailed:           {},
	StatusUpdateFailed:           {},
	StatusRollbackComplete:       {},
	StatusRollbackFailed:         {},
	StatusUpdateRollbackComplete: {},
	StatusUpdateRollbackFailed:   {},
}

var inProgressStatuses = map[Status]struct{}{
	StatusCreateInProgress:                {},
	StatusDeleteInProgress:                {},
	StatusUpdateInProgress:                {},
	StatusUpdateCompleteCleanupInProgress: {},
	StatusRollbackInProgress:              {},
	StatusUpdateRollbackInProgress:        {},
	StatusReviewInProgress:                {},
}

// Classify maps a status onto the static classification tables. A status
// outside all three sets (provider vocabulary drift, typos in test
// fixtures) classifies as unknown.
func Classify(s Status) Class {
	if _, ok := completeStatuses[s]; ok {
		return ClassComplete
	}
	if _, ok := failedStatuses[s]; ok {
		return ClassFailed
	}
	if _, ok := inProgressStatuses[s]; ok {
		return ClassInProgress
	}
	return ClassUnknown
}

// Output is one named stack output.
type Output struct {
	Value       string
	Description string
}

// PollResult is the ephemeral outcome of one status query: the raw
// status plus its classification and any extracted outputs/parameters.
type PollResult struct {
	StackID    string
	StackName  string
	Status     Status
	Reason     string
	Outputs    map[string]Output
	Parameters map[string]string
}

// IsComplete reports whether the stack reached successful completion.
func (r PollResult) IsComplete() bool { return Classify(r.Status) == ClassComplete }

// IsFailed reports whether the stack reached a failure state.
func (r PollResult) IsFailed() bool { return Classify(r.Status) == ClassFailed }

// IsInProgress reports whether the stack operation is still running.
func (r PollResult) IsInProgress() bool { return Classify(r.Status) == ClassInProgress }

// Event is one diagnostic stack event, used to explain a failure.
type Event struct {
	Timestamp         time.Time
	LogicalResourceID string
	ResourceType      string
	ResourceStatus    string
	StatusReason      string
}

// Operation is the direction of an infrastructure change.
type Operation string

// Supported operation directions.
const (
	OperationCreate Operation = "CREATE"
	OperationDelete Operation = "DELETE"
)

// IsValid checks if the operation direction is supported.
func (o Operation) IsValid() bool {
	return o == OperationCreate || o == OperationDelete
}

// String returns the string representation of the operation.
func (o Operation) String() string { return string(o) }

// ParseOperation converts a string to an operation direction with validation.
func ParseOperation(s string) (Operation, error) {
	o := Operation(s)
	if !o.IsValid() {
		return "", fmt.Errorf("invalid operation: %s", s)
	}
	return o, nil
}

// DefaultCompleteStatus is the status synthesized for tenants with no
// stack to poll (public tier), by operation direction.
func (o Operation) DefaultCompleteStatus() Status {
	if o == OperationDelete {
		return StatusDeleteComplete
	}
	return StatusCreateComplete
}
