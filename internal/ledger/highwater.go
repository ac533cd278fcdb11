// Package ledger is the single source of truth for cash, positions,
// and realized/unrealized P&L.
package ledger

import (
	"sync"

	"github.com/shopspring/decimal"
)

// HighWaterMark tracks the peak portfolio equity, used for drawdown
// measurement. Thread-safe for concurrent access.
type HighWaterMark struct {
	mu      sync.RWMutex
	peak    decimal.Decimal
	current decimal.Decimal
}

// NewHighWaterMark creates a tracker seeded with initial equity.
func NewHighWaterMark(initialEquity decimal.Decimal) *HighWaterMark {
	return &HighWaterMark{
		peak:    initialEquity,
		current: initialEquity,
	}
}

// Update records the current equity and raises the peak if necessary.
// Returns true if a new peak was set.
func (h *HighWaterMark) Update(equity decimal.Decimal) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = equity

	if equity.GreaterThan(h.peak) {
		h.peak = equity
		return true
	}
	return false
}

// Peak returns the high-water mark.
func (h *HighWaterMark) Peak() decimal.Decimal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.peak
}

// Current returns the last recorded equity.
func (h *HighWaterMark) Current() decimal.Decimal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Drawdown returns (peak - current) / peak as a ratio; 0.15 means a
// 15% drawdown.
func (h *HighWaterMark) Drawdown() decimal.Decimal {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.peak.IsZero() || h.current.GreaterThanOrEqual(h.peak) {
		return decimal.Zero
	}
	return h.peak.Sub(h.current).Div(h.peak)
}
