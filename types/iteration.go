package types

import (
	"fmt"
	"time"
)

// IterationRecord is the immutable ledger entry for one reviewed iteration.
type IterationRecord struct {
	// Number is the 1-based iteration number.
	Number int `json:"number"`
	// Timestamp is when the decision was recorded.
	Timestamp time.Time `json:"timestamp"`
	// SampleSize is the number of lines in the reviewed sample.
	SampleSize int `json:"sample_size"`
	// Decision is the reviewer verdict (possibly a synthetic fallback).
	Decision Decision `json:"decision"`
	// RetryCount is the number of reviewer attempts beyond the first.
	RetryCount int `json:"retry_count"`
}

// Summary renders the one-line form used in reviewer prompts:
// "Iteration N (S lines): Continue - reason".
func (r IterationRecord) Summary() string {
	return fmt.Sprintf("Iteration %d (%d lines): %s - %s",
		r.Number, r.SampleSize, r.Decision.Action.Label(), r.Decision.Reason)
}
