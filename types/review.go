package types

// ReviewContext is everything the reviewer sees for one iteration.
type ReviewContext struct {
	// TaskDescription is the task the worker was given.
	TaskDescription string
	// Iteration is the 1-based iteration number being reviewed.
	Iteration int
	// PreviousSummaries are summary lines of earlier iterations, oldest first.
	PreviousSummaries []string
	// CurrentSample is the newline-joined sample of recent worker output.
	CurrentSample string
}
