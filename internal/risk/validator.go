// Package risk implements order validation against portfolio state.
package risk

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/algo-engine/internal/types"
)

// Response is the risk manager's verdict on an order.
type Response struct {
	Approved bool
	Reason   string
}

// Validator is consulted by the coordinator before any order enters
// the book. A rejection makes the order terminal (REJECTED) without
// insertion.
type Validator interface {
	ValidateOrder(order *types.Order, snapshot types.Snapshot) Response
}

// AllowAll approves every order. Useful for backtests that model risk
// elsewhere and for tests.
type AllowAll struct{}

func (AllowAll) ValidateOrder(*types.Order, types.Snapshot) Response {
	return Response{Approved: true}
}

// Config holds the default validator's limits. Zero values disable the
// corresponding check.
type Config struct {
	MaxOrderQuantity int64
	MaxExposurePct   decimal.Decimal // per-instrument notional / equity
	MaxDrawdownPct   decimal.Decimal // kill switch threshold
	RequireCash      bool            // reject buys exceeding available cash
}

// Engine is the default risk validator: notional exposure and cash
// checks plus a drawdown kill switch. Once the kill switch trips,
// every opening order is rejected until Reset is called.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	safeMode bool
	logger   *slog.Logger
}

// NewEngine creates the default validator.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// ValidateOrder applies the configured limits. Reduce-only orders are
// always approved: closing exposure must never be blocked.
func (e *Engine) ValidateOrder(order *types.Order, snapshot types.Snapshot) Response {
	if order.ReduceOnly {
		return Response{Approved: true}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.MaxDrawdownPct.IsZero() &&
		!snapshot.HighWaterMark.IsZero() &&
		snapshot.Equity.LessThan(snapshot.HighWaterMark) {
		drawdown := snapshot.HighWaterMark.Sub(snapshot.Equity).Div(snapshot.HighWaterMark)
		if drawdown.GreaterThanOrEqual(e.cfg.MaxDrawdownPct) {
			if !e.safeMode {
				e.safeMode = true
				e.logger.Error("kill switch activated",
					"equity", snapshot.Equity,
					"high_water_mark", snapshot.HighWaterMark,
					"drawdown", drawdown,
				)
			}
		}
	}
	if e.safeMode {
		return Response{Reason: "kill switch active: max drawdown exceeded"}
	}

	if e.cfg.MaxOrderQuantity > 0 && order.Quantity > e.cfg.MaxOrderQuantity {
		return Response{Reason: fmt.Sprintf("order quantity %d exceeds limit %d",
			order.Quantity, e.cfg.MaxOrderQuantity)}
	}

	price := e.referencePrice(order, snapshot)
	if price.IsZero() {
		// No price context yet; quantity checks already passed.
		return Response{Approved: true}
	}
	notional := price.Mul(decimal.NewFromInt(order.Quantity))

	if e.cfg.RequireCash && order.Action == types.ActionBuy && notional.GreaterThan(snapshot.Cash) {
		return Response{Reason: fmt.Sprintf("insufficient cash: need %s, have %s",
			notional, snapshot.Cash)}
	}

	if !e.cfg.MaxExposurePct.IsZero() && snapshot.Equity.IsPositive() {
		exposure := notional
		if pos, ok := snapshot.Positions[order.Instrument]; ok {
			exposure = exposure.Add(pos.MarketPrice.Mul(decimal.NewFromInt(pos.AbsQuantity())))
		}
		limit := snapshot.Equity.Mul(e.cfg.MaxExposurePct)
		if exposure.GreaterThan(limit) {
			return Response{Reason: fmt.Sprintf("exposure %s exceeds limit %s for %s",
				exposure, limit, order.Instrument)}
		}
	}

	return Response{Approved: true}
}

// InSafeMode reports whether the kill switch has tripped.
func (e *Engine) InSafeMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.safeMode
}

// Reset clears the kill switch. Manual operation only.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.safeMode {
		e.safeMode = false
		e.logger.Warn("kill switch reset manually")
	}
}

// referencePrice estimates the order's execution price for notional
// checks: the limit price when present, otherwise the instrument's
// last mark.
func (e *Engine) referencePrice(order *types.Order, snapshot types.Snapshot) decimal.Decimal {
	if !order.LimitPrice.IsZero() {
		return order.LimitPrice
	}
	if pos, ok := snapshot.Positions[order.Instrument]; ok {
		return pos.MarketPrice
	}
	return decimal.Zero
}
