// Package monitor scans open positions for target, stop-loss, and
// end-of-day exit conditions.
package monitor

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/algo-engine/internal/types"
)

// Config controls trigger evaluation.
type Config struct {
	// TargetFirst inverts the same-bar collision policy. The default
	// (false) assumes the worst case: when both stop and target
	// conditions hold within one event, the stop wins.
	TargetFirst bool

	// FillAtNextOpen fills triggered closures at the event's open
	// instead of the triggered price.
	FillAtNextOpen bool

	// EODEnabled closes every still-open position once an event
	// crosses the cutoff, regardless of target or stop.
	EODEnabled bool
	EODCutoff  TimeOfDay
}

// TimeOfDay is a wall-clock boundary within a trading day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Crossed reports whether ts is at or past the boundary on its day.
func (t TimeOfDay) Crossed(ts time.Time) bool {
	cutoff := time.Date(ts.Year(), ts.Month(), ts.Day(), t.Hour, t.Minute, 0, 0, ts.Location())
	return !ts.Before(cutoff)
}

// Monitor evaluates positions against market events.
type Monitor struct {
	cfg Config
}

// New creates a monitor.
func New(cfg Config) *Monitor {
	return &Monitor{cfg: cfg}
}

// Check returns a trigger if the position's stop-loss or target
// condition holds within the event, or nil. End-of-day closure is
// evaluated separately via CheckEOD so that it applies to positions
// without stops or targets too.
func (m *Monitor) Check(position *types.Position, event types.MarketEvent) *types.Trigger {
	if position == nil || position.Quantity == 0 || position.Instrument != event.Instrument {
		return nil
	}

	var stopHit, targetHit bool
	switch position.Side() {
	case types.SideLong:
		stopHit = !position.StopLossPrice.IsZero() && event.LowPrice().LessThanOrEqual(position.StopLossPrice)
		targetHit = !position.TargetPrice.IsZero() && event.HighPrice().GreaterThanOrEqual(position.TargetPrice)
	case types.SideShort:
		stopHit = !position.StopLossPrice.IsZero() && event.HighPrice().GreaterThanOrEqual(position.StopLossPrice)
		targetHit = !position.TargetPrice.IsZero() && event.LowPrice().LessThanOrEqual(position.TargetPrice)
	default:
		return nil
	}

	// Same-bar collision: stop priority unless the override is set.
	if stopHit && targetHit {
		if m.cfg.TargetFirst {
			stopHit = false
		} else {
			targetHit = false
		}
	}

	switch {
	case stopHit:
		return m.trigger(types.TriggerStopLoss, position.Instrument, position.StopLossPrice, event)
	case targetHit:
		return m.trigger(types.TriggerTarget, position.Instrument, position.TargetPrice, event)
	default:
		return nil
	}
}

// CheckEOD returns an end-of-day trigger if the event timestamp has
// crossed the configured cutoff and the position is still open.
func (m *Monitor) CheckEOD(position *types.Position, event types.MarketEvent) *types.Trigger {
	if !m.cfg.EODEnabled || position == nil || position.Quantity == 0 {
		return nil
	}
	if !m.cfg.EODCutoff.Crossed(event.Timestamp) {
		return nil
	}
	// EOD always fills at the event's reference price.
	return &types.Trigger{
		Kind:       types.TriggerEndOfDay,
		Instrument: position.Instrument,
		Price:      event.RefPrice(),
	}
}

func (m *Monitor) trigger(kind types.TriggerKind, instrument string, price decimal.Decimal, event types.MarketEvent) *types.Trigger {
	if m.cfg.FillAtNextOpen {
		price = event.RefPrice()
	} else {
		// A gap through the level clamps to the traded range: the
		// ledger never records a price the market did not print.
		if low := event.LowPrice(); price.LessThan(low) {
			price = low
		}
		if high := event.HighPrice(); price.GreaterThan(high) {
			price = high
		}
	}
	return &types.Trigger{Kind: kind, Instrument: instrument, Price: price}
}
