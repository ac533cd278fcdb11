// Package feed provides market data sources for backtests and live
// runs.
package feed

import (
	"context"

	"github.com/tathienbao/algo-engine/internal/types"
)

// MarketDataFeed defines the interface for market data sources.
// Implementations can be live feeds or historical data. Events for one
// instrument are delivered in timestamp order; a feed never emits an
// event older than the one before it.
type MarketDataFeed interface {
	// Subscribe starts receiving market events for an instrument.
	// The channel is closed when the context is cancelled or the feed
	// ends.
	Subscribe(ctx context.Context, instrument string) (<-chan types.MarketEvent, error)

	// Close shuts down the feed and releases resources.
	Close() error

	// Name returns the feed identifier (e.g. "csv", "memory").
	Name() string
}

// MemoryFeed replays pre-loaded events. Useful for tests and for
// feeding a backtest from an already-parsed dataset.
type MemoryFeed struct {
	events []types.MarketEvent
}

// NewMemoryFeed creates a feed from pre-loaded events.
func NewMemoryFeed(events []types.MarketEvent) *MemoryFeed {
	return &MemoryFeed{events: events}
}

// Subscribe starts sending events from memory.
func (f *MemoryFeed) Subscribe(ctx context.Context, instrument string) (<-chan types.MarketEvent, error) {
	ch := make(chan types.MarketEvent, 100)

	go func() {
		defer close(ch)
		for _, event := range f.events {
			if instrument != "" && event.Instrument != instrument {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case ch <- event:
			}
		}
	}()

	return ch, nil
}

// Close releases resources.
func (f *MemoryFeed) Close() error {
	f.events = nil
	return nil
}

// Name returns the feed identifier.
func (f *MemoryFeed) Name() string {
	return "memory"
}
