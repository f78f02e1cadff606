package stack

import "fmt"

// DefaultMaxAttempts bounds how many poll cycles a stack operation may
// consume before the poller gives up. At the scheduler's default delay
// this is roughly an hour of patience.
const DefaultMaxAttempts = 60

// Decision is the classification of one poll cycle's outcome.
type Decision string

// Polling decisions.
const (
	DecisionContinue Decision = "CONTINUE"
	DecisionComplete Decision = "COMPLETE"
	DecisionFailed   Decision = "FAILED"
	DecisionTimeout  Decision = "TIMEOUT"
	DecisionUnknown  Decision = "UNKNOWN"
)

// Outcome pairs a decision with whether the caller should schedule
// another poll, and a human-readable reason.
type Outcome struct {
	Decision Decision
	Continue bool
	Reason   string
}

// ShouldContinuePolling is the pure decision table for one poll cycle.
//
// Precedence when several conditions hold at once:
//
//  1. complete statuses win regardless of attempt count
//  2. failed statuses win regardless of attempt count
//  3. attempts >= maxAttempts is a timeout
//  4. in-progress statuses continue
//  5. anything else is unknown and stops
//
// Completion and failure are facts about the resource and must not be
// masked by a timeout that only reflects the caller's patience; the
// timeout check precedes the in-progress check so an endless stream of
// in-progress responses cannot prevent termination.
func ShouldContinuePolling(status Status, attempts, maxAttempts int) Outcome {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	switch Classify(status) {
	case ClassComplete:
		return Outcome{
			Decision: DecisionComplete,
			Reason:   fmt.Sprintf("stack reached %s", status),
		}
	case ClassFailed:
		return Outcome{
			Decision: DecisionFailed,
			Reason:   fmt.Sprintf("stack reached %s", status),
		}
	}

	if attempts >= maxAttempts {
		return Outcome{
			Decision: DecisionTimeout,
			Reason:   fmt.Sprintf("gave up after %d of %d attempts with stack still %s", attempts, maxAttempts, status),
		}
	}

	if Classify(status) == ClassInProgress {
		return Outcome{
			Decision: DecisionContinue,
			Continue: true,
			Reason:   fmt.Sprintf("stack still %s, attempt %d of %d", status, attempts, maxAttempts),
		}
	}

	return Outcome{
		Decision: DecisionUnknown,
		Reason:   fmt.Sprintf("unrecognized stack status %q", status),
	}
}
