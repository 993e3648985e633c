package lode

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/warden/types"
)

// Config holds export configuration. All fields are required.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Day is the partition key derived from run start time (YYYY-MM-DD UTC).
	Day string
	// RunID is the partition key for the run identifier.
	RunID string
}

// Validate checks that all partition keys are present.
func (c Config) Validate() error {
	switch {
	case c.Dataset == "":
		return errors.New("lode dataset is required")
	case c.Day == "":
		return errors.New("lode day partition is required")
	case c.RunID == "":
		return errors.New("lode run_id partition is required")
	}
	return nil
}

// Client abstracts the ledger export target.
type Client interface {
	// WriteIterations writes ledger entries in order as one snapshot.
	WriteIterations(ctx context.Context, records []types.IterationRecord) error
	// WriteSummary writes the run summary as one snapshot.
	WriteSummary(ctx context.Context, summary RunSummary) error
	// Close releases client resources.
	Close() error
}

// LodeClient is a Lode-backed implementation of Client.
type LodeClient struct {
	dataset lode.Dataset
	config  Config
}

// NewLodeClient creates a client with filesystem storage rooted at root.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LodeClient{dataset: ds, config: cfg}, nil
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteIterations implements Client. An empty ledger writes nothing.
func (c *LodeClient) WriteIterations(ctx context.Context, records []types.IterationRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, toIterationRecordMap(rec, c.config))
	}
	if _, err := c.dataset.Write(ctx, rows, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.partitionPath(RecordKindIteration))
	}
	return nil
}

// WriteSummary implements Client.
func (c *LodeClient) WriteSummary(ctx context.Context, summary RunSummary) error {
	row, err := toRunSummaryMap(summary, c.config)
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	if _, err := c.dataset.Write(ctx, []any{row}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.partitionPath(RecordKindRunSummary))
	}
	return nil
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	return nil
}

func (c *LodeClient) partitionPath(kind string) string {
	return fmt.Sprintf("%s/day=%s/run_id=%s/record_kind=%s", c.config.Dataset, c.config.Day, c.config.RunID, kind)
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)

// StubClient records writes without persisting. Use for tests.
type StubClient struct {
	Iterations [][]types.IterationRecord
	Summaries  []RunSummary
	Err        error
	Closed     bool
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteIterations implements Client.
func (c *StubClient) WriteIterations(_ context.Context, records []types.IterationRecord) error {
	if c.Err != nil {
		return c.Err
	}
	c.Iterations = append(c.Iterations, records)
	return nil
}

// WriteSummary implements Client.
func (c *StubClient) WriteSummary(_ context.Context, summary RunSummary) error {
	if c.Err != nil {
		return c.Err
	}
	c.Summaries = append(c.Summaries, summary)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.Closed = true
	return nil
}

// Verify StubClient implements Client.
var _ Client = (*StubClient)(nil)
