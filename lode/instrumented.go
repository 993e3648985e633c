package lode

import (
	"context"

	"github.com/pithecene-io/warden/metrics"
	"github.com/pithecene-io/warden/types"
)

// InstrumentedClient wraps a Client and counts each write as a
// lode_write_success or lode_write_failure on the collector.
type InstrumentedClient struct {
	inner     Client
	collector *metrics.Collector
}

// NewInstrumentedClient wraps a client with metrics instrumentation.
func NewInstrumentedClient(inner Client, collector *metrics.Collector) *InstrumentedClient {
	return &InstrumentedClient{inner: inner, collector: collector}
}

// WriteIterations delegates to the inner client and records success or failure.
func (c *InstrumentedClient) WriteIterations(ctx context.Context, records []types.IterationRecord) error {
	return c.count(c.inner.WriteIterations(ctx, records))
}

// WriteSummary delegates to the inner client and records success or failure.
func (c *InstrumentedClient) WriteSummary(ctx context.Context, summary RunSummary) error {
	return c.count(c.inner.WriteSummary(ctx, summary))
}

// Close delegates to the inner client.
func (c *InstrumentedClient) Close() error {
	return c.inner.Close()
}

func (c *InstrumentedClient) count(err error) error {
	if err != nil {
		c.collector.IncLodeWriteFailure()
	} else {
		c.collector.IncLodeWriteSuccess()
	}
	return err
}

// Verify InstrumentedClient implements Client.
var _ Client = (*InstrumentedClient)(nil)
