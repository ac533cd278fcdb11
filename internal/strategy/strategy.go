// Package strategy implements signal-generating trading strategies.
package strategy

import (
	"context"

	"github.com/tathienbao/algo-engine/internal/types"
)

// Strategy defines the interface for trading strategies. Strategies
// receive market events and generate signals; sizing beyond the
// configured quantity and risk checks are not their concern.
type Strategy interface {
	// OnMarketEvent processes a market event and returns any signals.
	// Returns nil or an empty slice if no signal is generated.
	OnMarketEvent(ctx context.Context, event types.MarketEvent) []types.Signal

	// Name returns the strategy identifier.
	Name() string

	// Reset clears all strategy state.
	Reset()
}

// Multi runs several strategies over the same event stream.
type Multi struct {
	name       string
	strategies []Strategy
}

// NewMulti creates a strategy that fans events to sub-strategies.
func NewMulti(name string, strategies ...Strategy) *Multi {
	return &Multi{name: name, strategies: strategies}
}

// OnMarketEvent processes the event through every sub-strategy.
func (m *Multi) OnMarketEvent(ctx context.Context, event types.MarketEvent) []types.Signal {
	var all []types.Signal
	for _, s := range m.strategies {
		select {
		case <-ctx.Done():
			return all
		default:
			all = append(all, s.OnMarketEvent(ctx, event)...)
		}
	}
	return all
}

// Name returns the multi-strategy name.
func (m *Multi) Name() string {
	return m.name
}

// Reset resets all sub-strategies.
func (m *Multi) Reset() {
	for _, s := range m.strategies {
		s.Reset()
	}
}
