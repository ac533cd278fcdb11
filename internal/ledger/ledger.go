package ledger

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/algo-engine/internal/types"
)

// PnLPoint is one historical equity observation.
type PnLPoint struct {
	Timestamp     time.Time
	Equity        decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Drawdown      decimal.Decimal
}

// Ledger maintains cash, positions, and cumulative P&L. All state is
// guarded by a single lock: trade rates do not justify finer locking.
// Fills are applied at most once per trade id; redelivered fills are
// logged and dropped.
type Ledger struct {
	mu sync.RWMutex

	initialCapital decimal.Decimal
	cash           decimal.Decimal
	realized       decimal.Decimal
	commissions    decimal.Decimal
	positions      map[string]*types.Position
	applied        map[string]struct{} // trade ids already applied
	hwm            *HighWaterMark
	history        []PnLPoint
	lastMark       time.Time

	logger *slog.Logger
}

// New creates a ledger with the given starting capital.
func New(initialCapital decimal.Decimal, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]*types.Position),
		applied:        make(map[string]struct{}),
		hwm:            NewHighWaterMark(initialCapital),
		logger:         logger,
	}
}

// UpdateTrade applies a fill to cash and positions and accumulates
// realized P&L on any quantity-reducing portion. Returns
// ErrDuplicateFill for an already-applied trade id (the state is left
// untouched) and ErrInvalidFill when a reduce-only fill exceeds the
// closable quantity.
func (l *Ledger) UpdateTrade(fill types.Fill) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.applied[fill.TradeID]; seen {
		l.logger.Warn("duplicate fill dropped",
			"trade_id", fill.TradeID,
			"order_id", fill.OrderID,
		)
		return types.ErrDuplicateFill
	}
	if fill.Quantity <= 0 {
		return fmt.Errorf("%w: non-positive quantity %d", types.ErrInvalidFill, fill.Quantity)
	}

	signed := fill.Action.Sign() * fill.Quantity
	pos := l.positions[fill.Instrument]

	if fill.ReduceOnly {
		closable := int64(0)
		if pos != nil && sign(pos.Quantity) == -sign(signed) {
			closable = pos.AbsQuantity()
		}
		if fill.Quantity > closable {
			return fmt.Errorf("%w: fill %d exceeds closable %d for %s",
				types.ErrInvalidFill, fill.Quantity, closable, fill.Instrument)
		}
	}

	// Cash first: signed notional out, then commission.
	notional := fill.Price.Mul(decimal.NewFromInt(fill.Quantity))
	if fill.Action == types.ActionBuy {
		l.cash = l.cash.Sub(notional)
	} else {
		l.cash = l.cash.Add(notional)
	}
	l.cash = l.cash.Sub(fill.Commission)
	l.commissions = l.commissions.Add(fill.Commission)

	switch {
	case pos == nil || pos.Quantity == 0:
		l.openPosition(fill, signed)

	case sign(pos.Quantity) == sign(signed):
		// Same-direction entry: volume-weighted average moves.
		oldAbs := decimal.NewFromInt(pos.AbsQuantity())
		addAbs := decimal.NewFromInt(fill.Quantity)
		pos.AvgEntryPrice = pos.AvgEntryPrice.Mul(oldAbs).
			Add(fill.Price.Mul(addAbs)).
			Div(oldAbs.Add(addAbs))
		pos.Quantity += signed
		pos.Entries++
		pos.TradeIDs = append(pos.TradeIDs, fill.TradeID)
		pos.MarketPrice = fill.Price

	default:
		l.reducePosition(pos, fill, signed)
	}

	l.applied[fill.TradeID] = struct{}{}

	l.logger.Debug("fill applied",
		"trade_id", fill.TradeID,
		"instrument", fill.Instrument,
		"action", fill.Action.String(),
		"quantity", fill.Quantity,
		"price", fill.Price,
		"cash", l.cash,
		"realized_pnl", l.realized,
	)
	return nil
}

// openPosition creates a fresh position from the first fill after flat.
func (l *Ledger) openPosition(fill types.Fill, signed int64) {
	l.positions[fill.Instrument] = &types.Position{
		Instrument:    fill.Instrument,
		Quantity:      signed,
		AvgEntryPrice: fill.Price,
		Entries:       1,
		TradeIDs:      []string{fill.TradeID},
		MarketPrice:   fill.Price,
		OpenedAt:      fill.Timestamp,
	}
}

// reducePosition closes against the opposite sign: P&L is realized on
// the closed portion and the remainder's average price is unchanged. A
// fill larger than the position crosses through flat and reopens on
// the other side at the fill price.
func (l *Ledger) reducePosition(pos *types.Position, fill types.Fill, signed int64) {
	closeQty := fill.Quantity
	if closeQty > pos.AbsQuantity() {
		closeQty = pos.AbsQuantity()
	}

	diff := fill.Price.Sub(pos.AvgEntryPrice).Mul(decimal.NewFromInt(closeQty))
	if pos.Quantity > 0 {
		l.realized = l.realized.Add(diff)
	} else {
		l.realized = l.realized.Sub(diff)
	}

	remainder := pos.Quantity + signed
	switch {
	case remainder == 0:
		delete(l.positions, fill.Instrument)
	case sign(remainder) == sign(pos.Quantity):
		pos.Quantity = remainder
		pos.TradeIDs = append(pos.TradeIDs, fill.TradeID)
		pos.MarketPrice = fill.Price
	default:
		// Crossed through flat: the surplus opens the opposite side.
		pos.Quantity = remainder
		pos.AvgEntryPrice = fill.Price
		pos.Entries = 1
		pos.TradeIDs = []string{fill.TradeID}
		pos.MarketPrice = fill.Price
		pos.OpenedAt = fill.Timestamp
		pos.TargetPrice = decimal.Zero
		pos.StopLossPrice = decimal.Zero
	}
}

// SetExitLevels attaches target/stop levels and the opener strategy to
// an open position. The latest levels win, matching pyramiding
// semantics where a new entry's levels govern the whole position.
func (l *Ledger) SetExitLevels(instrument, strategyID string, target, stop decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return
	}
	if pos.StrategyID == "" {
		pos.StrategyID = strategyID
	}
	if !target.IsZero() {
		pos.TargetPrice = target
	}
	if !stop.IsZero() {
		pos.StopLossPrice = stop
	}
}

// OnMarketData marks every open position on the event's instrument to
// market, recomputes unrealized P&L, and advances the high-water mark.
func (l *Ledger) OnMarketData(event types.MarketEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pos, ok := l.positions[event.Instrument]; ok {
		pos.MarketPrice = event.MarkPrice()
		pos.UnrealizedPnL = pos.MarketPrice.Sub(pos.AvgEntryPrice).
			Mul(decimal.NewFromInt(pos.Quantity))
	}

	equity := l.equityLocked()
	l.hwm.Update(equity)
	l.lastMark = event.Timestamp

	l.history = append(l.history, PnLPoint{
		Timestamp:     event.Timestamp,
		Equity:        equity,
		RealizedPnL:   l.realized,
		UnrealizedPnL: l.unrealizedLocked(),
		Drawdown:      l.hwm.Drawdown(),
	})
}

// Snapshot returns a point-in-time deep copy of the portfolio state.
func (l *Ledger) Snapshot() types.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := make(map[string]*types.Position, len(l.positions))
	for instrument, pos := range l.positions {
		positions[instrument] = pos.Clone()
	}

	return types.Snapshot{
		Timestamp:      l.lastMark,
		InitialCapital: l.initialCapital,
		Cash:           l.cash,
		Equity:         l.equityLocked(),
		RealizedPnL:    l.realized,
		UnrealizedPnL:  l.unrealizedLocked(),
		HighWaterMark:  l.hwm.Peak(),
		Positions:      positions,
	}
}

// HistoricalPnL returns the equity observations within [from, to].
// Zero bounds are open-ended.
func (l *Ledger) HistoricalPnL(from, to time.Time) []PnLPoint {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []PnLPoint
	for _, point := range l.history {
		if !from.IsZero() && point.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && point.Timestamp.After(to) {
			continue
		}
		out = append(out, point)
	}
	return out
}

// Position returns a copy of the open position for an instrument.
// Absence means flat.
func (l *Ledger) Position(instrument string) (*types.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// Seen reports whether a trade id has already been applied.
func (l *Ledger) Seen(tradeID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, seen := l.applied[tradeID]
	return seen
}

// RealizedPnL returns cumulative realized P&L, commissions excluded.
func (l *Ledger) RealizedPnL() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.realized
}

// CommissionsPaid returns cumulative commissions.
func (l *Ledger) CommissionsPaid() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.commissions
}

// Equity returns cash plus the market value of open positions.
func (l *Ledger) Equity() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.equityLocked()
}

// HighWater returns the equity high-water mark.
func (l *Ledger) HighWater() decimal.Decimal {
	return l.hwm.Peak()
}

// Drawdown returns the current drawdown ratio from the peak.
func (l *Ledger) Drawdown() decimal.Decimal {
	return l.hwm.Drawdown()
}

// CheckInvariant verifies the ledger's conservation property:
//
//	cash + Σ(quantity × market_price)
//	  = initial_capital + realized_pnl − commissions + unrealized_pnl
//
// A violation indicates an engine bug; backtests abort on it.
func (l *Ledger) CheckInvariant() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	equity := l.equityLocked()
	expected := l.initialCapital.Add(l.realized).Sub(l.commissions).Add(l.unrealizedLocked())
	if !equity.Equal(expected) {
		return fmt.Errorf("%w: equity %s != initial+realized-commissions+unrealized %s",
			types.ErrInvalidFill, equity, expected)
	}
	return nil
}

func (l *Ledger) equityLocked() decimal.Decimal {
	equity := l.cash
	for _, pos := range l.positions {
		equity = equity.Add(pos.MarketPrice.Mul(decimal.NewFromInt(pos.Quantity)))
	}
	return equity
}

func (l *Ledger) unrealizedLocked() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range l.positions {
		total = total.Add(pos.MarketPrice.Sub(pos.AvgEntryPrice).
			Mul(decimal.NewFromInt(pos.Quantity)))
	}
	return total
}

func sign(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
