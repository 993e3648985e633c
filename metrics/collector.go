// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single supervised run. It is a
// leaf package with no internal dependencies: event types and trigger kinds
// are passed as plain strings.
package metrics

import (
	"maps"
	"sync"
)

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted       int64 `json:"runs_started"`
	RunsAborted       int64 `json:"runs_aborted"`
	RunsMaxIterations int64 `json:"runs_max_iterations"`
	RunsCompleted     int64 `json:"runs_completed"`

	// Iterations
	IterationsStarted  int64 `json:"iterations_started"`
	IterationsRecorded int64 `json:"iterations_recorded"`
	EmptySamples       int64 `json:"empty_samples"`

	// Worker events
	EventsReceived int64            `json:"events_received"`
	EventsCaptured int64            `json:"events_captured"`
	EventsIgnored  int64            `json:"events_ignored"`
	IgnoredByType  map[string]int64 `json:"ignored_by_type"`

	// StreamTriggers counts why each streaming phase ended
	// (inactivity, completion, closed, transport_error).
	StreamTriggers map[string]int64 `json:"stream_triggers"`

	// Reviewer
	ReviewAttempts    int64 `json:"review_attempts"`
	ReviewFailures    int64 `json:"review_failures"`
	ReviewFallbacks   int64 `json:"review_fallbacks"`
	DecisionsContinue int64 `json:"decisions_continue"`
	DecisionsAbort    int64 `json:"decisions_abort"`

	// Observer / transcript / storage
	NotificationsDropped int64 `json:"notifications_dropped"`
	IPCDecodeErrors      int64 `json:"ipc_decode_errors"`
	LodeWriteSuccess     int64 `json:"lode_write_success"`
	LodeWriteFailure     int64 `json:"lode_write_failure"`

	// Dimensions (informational, set at construction)
	Worker         string `json:"worker"`
	ReviewerModel  string `json:"reviewer_model"`
	StorageBackend string `json:"storage_backend"`
	RunID          string `json:"run_id"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted       int64
	runsAborted       int64
	runsMaxIterations int64
	runsCompleted     int64

	iterationsStarted  int64
	iterationsRecorded int64
	emptySamples       int64

	eventsReceived int64
	eventsCaptured int64
	eventsIgnored  int64
	ignoredByType  map[string]int64

	streamTriggers map[string]int64

	reviewAttempts    int64
	reviewFailures    int64
	reviewFallbacks   int64
	decisionsContinue int64
	decisionsAbort    int64

	notificationsDropped int64
	ipcDecodeErrors      int64
	lodeWriteSuccess     int64
	lodeWriteFailure     int64

	worker         string
	reviewerModel  string
	storageBackend string
	runID          string
}

// NewCollector creates a Collector with dimension labels.
// storageBackend may be empty when no ledger export is configured.
func NewCollector(worker, reviewerModel, storageBackend, runID string) *Collector {
	return &Collector{
		ignoredByType:  make(map[string]int64),
		streamTriggers: make(map[string]int64),
		worker:         worker,
		reviewerModel:  reviewerModel,
		storageBackend: storageBackend,
		runID:          runID,
	}
}

func (c *Collector) inc(field *int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.inc(&c.runsStarted)
}

// IncRunOutcome records the terminal outcome of a run.
// Unknown statuses are ignored.
func (c *Collector) IncRunOutcome(status string) {
	if c == nil {
		return
	}
	switch status {
	case "aborted":
		c.inc(&c.runsAborted)
	case "max_iterations":
		c.inc(&c.runsMaxIterations)
	case "completed":
		c.inc(&c.runsCompleted)
	}
}

// --- Iterations ---

// IncIterationStarted records an iteration slot being opened.
func (c *Collector) IncIterationStarted() {
	if c == nil {
		return
	}
	c.inc(&c.iterationsStarted)
}

// IncIterationRecorded records a decision appended to the ledger.
func (c *Collector) IncIterationRecorded() {
	if c == nil {
		return
	}
	c.inc(&c.iterationsRecorded)
}

// IncEmptySample records a review skipped because the sample was empty.
func (c *Collector) IncEmptySample() {
	if c == nil {
		return
	}
	c.inc(&c.emptySamples)
}

// --- Worker events ---

// IncEventCaptured records an event that contributed to the sample.
func (c *Collector) IncEventCaptured() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsReceived++
	c.eventsCaptured++
	c.mu.Unlock()
}

// IncEventIgnored records an event that was received but not sampled.
func (c *Collector) IncEventIgnored(eventType string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsReceived++
	c.eventsIgnored++
	c.ignoredByType[eventType]++
	c.mu.Unlock()
}

// IncStreamTrigger records why a streaming phase ended.
func (c *Collector) IncStreamTrigger(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamTriggers[kind]++
	c.mu.Unlock()
}

// --- Reviewer ---

// RecordReview records one ReviewWithRetry outcome.
// failures is the number of failed attempts.
func (c *Collector) RecordReview(attempts, failures int, fallback bool, action string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reviewAttempts += int64(attempts)
	c.reviewFailures += int64(failures)
	if fallback {
		c.reviewFallbacks++
	}
	switch action {
	case "continue":
		c.decisionsContinue++
	case "abort":
		c.decisionsAbort++
	}
}

// --- Observer / transcript / storage ---

// IncNotificationDropped records a notification the observer could not accept.
func (c *Collector) IncNotificationDropped() {
	if c == nil {
		return
	}
	c.inc(&c.notificationsDropped)
}

// IncIPCDecodeErrors records a transcript frame decode error.
func (c *Collector) IncIPCDecodeErrors() {
	if c == nil {
		return
	}
	c.inc(&c.ipcDecodeErrors)
}

// IncLodeWriteSuccess records a successful Lode write operation (per-call).
func (c *Collector) IncLodeWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.lodeWriteSuccess)
}

// IncLodeWriteFailure records a failed Lode write operation (per-call).
func (c *Collector) IncLodeWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.lodeWriteFailure)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RunsStarted:       c.runsStarted,
		RunsAborted:       c.runsAborted,
		RunsMaxIterations: c.runsMaxIterations,
		RunsCompleted:     c.runsCompleted,

		IterationsStarted:  c.iterationsStarted,
		IterationsRecorded: c.iterationsRecorded,
		EmptySamples:       c.emptySamples,

		EventsReceived: c.eventsReceived,
		EventsCaptured: c.eventsCaptured,
		EventsIgnored:  c.eventsIgnored,
		IgnoredByType:  maps.Clone(c.ignoredByType),

		StreamTriggers: maps.Clone(c.streamTriggers),

		ReviewAttempts:    c.reviewAttempts,
		ReviewFailures:    c.reviewFailures,
		ReviewFallbacks:   c.reviewFallbacks,
		DecisionsContinue: c.decisionsContinue,
		DecisionsAbort:    c.decisionsAbort,

		NotificationsDropped: c.notificationsDropped,
		IPCDecodeErrors:      c.ipcDecodeErrors,
		LodeWriteSuccess:     c.lodeWriteSuccess,
		LodeWriteFailure:     c.lodeWriteFailure,

		Worker:         c.worker,
		ReviewerModel:  c.reviewerModel,
		StorageBackend: c.storageBackend,
		RunID:          c.runID,
	}
}
