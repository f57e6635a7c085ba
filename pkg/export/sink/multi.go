package sink

import (
	"context"
	"errors"
	"sync"

	"mercator-hq/exporter/pkg/export"
)

var errClosed = errors.New("sink closed")

// Multi fans every record out to a set of sinks. A failing sink does not
// stop delivery to the others; Write returns the joined errors.
type Multi []export.Sink

// Write delivers the record to every sink.
func (m Multi) Write(ctx context.Context, shape string, record export.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, shape, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Item is a record captured by Collect.
type Item struct {
	Shape  string
	Record export.Record
}

// Collect keeps exported records in memory. It backs the CLI's table output
// and tests.
type Collect struct {
	mu     sync.Mutex
	items  []Item
	closed bool
}

// Write stores the record.
func (c *Collect) Write(_ context.Context, shape string, record export.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return export.NewSinkError("collect", shape, errClosed)
	}
	c.items = append(c.items, Item{Shape: shape, Record: record})
	return nil
}

// Close marks the sink closed. Collected items stay readable.
func (c *Collect) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Items returns a copy of the collected records in write order.
func (c *Collect) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Item(nil), c.items...)
}

// Len returns the number of collected records.
func (c *Collect) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
