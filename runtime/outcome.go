package runtime

import (
	"github.com/pithecene-io/warden/types"
)

// Process exit codes. Every supervised run ends non-zero: a live worker is
// never "done" from the supervisor's point of view.
const (
	ExitCodeCompleted     = 0   // finite stream drained (replay only)
	ExitCodeAborted       = 1   // reviewer aborted the run
	ExitCodeConfigError   = 2   // invalid configuration
	ExitCodeSetupFailure  = 3   // worker server or session setup failed
	ExitCodeMaxIterations = 4   // iteration budget exhausted
	ExitCodeInterrupted   = 130 // SIGINT / context canceled
)

// ExitCodeForOutcome maps a terminal outcome to a process exit code.
func ExitCodeForOutcome(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeCompleted:
		return ExitCodeCompleted
	case types.OutcomeAborted:
		return ExitCodeAborted
	case types.OutcomeMaxIterations:
		return ExitCodeMaxIterations
	default:
		return ExitCodeAborted
	}
}
