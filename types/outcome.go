package types

// OutcomeStatus is the terminal state of a supervised run.
type OutcomeStatus string

const (
	// OutcomeAborted means the reviewer returned an abort decision.
	OutcomeAborted OutcomeStatus = "aborted"
	// OutcomeMaxIterations means the iteration limit was reached.
	OutcomeMaxIterations OutcomeStatus = "max_iterations"
	// OutcomeCompleted means a finite worker stream drained with nothing left
	// to review. Only produced when draining is allowed to end the run.
	OutcomeCompleted OutcomeStatus = "completed"
)

// RunOutcome describes how a run ended.
type RunOutcome struct {
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message"`
}
