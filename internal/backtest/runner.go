// Package backtest drives the engine over historical data and
// computes performance statistics.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/algo-engine/internal/engine"
	"github.com/tathienbao/algo-engine/internal/feed"
	"github.com/tathienbao/algo-engine/internal/ledger"
	"github.com/tathienbao/algo-engine/internal/strategy"
	"github.com/tathienbao/algo-engine/internal/types"
)

// Config holds backtest configuration.
type Config struct {
	Instrument string
	StartTime  time.Time
	EndTime    time.Time

	// InvariantCheckEvery verifies the ledger conservation identity
	// every N events. Zero checks on every event.
	InvariantCheckEvery int
}

// TradeRecord is one closing fill with the realized P&L it produced.
type TradeRecord struct {
	Fill  types.Fill
	NetPL decimal.Decimal // realized delta net of the fill's commission
}

// EquityPoint is equity at a point in time.
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
	Drawdown  decimal.Decimal
}

// Result holds backtest results.
type Result struct {
	StartEquity     decimal.Decimal
	EndEquity       decimal.Decimal
	TotalReturn     decimal.Decimal // ratio, 0.15 = 15%
	MaxDrawdown     decimal.Decimal // ratio
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	WinRate         decimal.Decimal
	ProfitFactor    decimal.Decimal
	SharpeRatio     decimal.Decimal
	CommissionsPaid decimal.Decimal
	Events          int
	Fills           []types.Fill
	Trades          []TradeRecord
	EquityCurve     []EquityPoint
}

// Runner replays a feed through a strategy and the execution
// coordinator. The loop is strictly sequential: signals emitted on the
// bar at T become orders that can only fill from T+1 onward.
type Runner struct {
	cfg    Config
	feed   feed.MarketDataFeed
	strat  strategy.Strategy
	coord  *engine.Coordinator
	ledger *ledger.Ledger
	logger *slog.Logger

	fills        []types.Fill
	trades       []TradeRecord
	equityCurve  []EquityPoint
	lastRealized decimal.Decimal
}

// NewRunner creates a backtest runner.
func NewRunner(
	cfg Config,
	dataFeed feed.MarketDataFeed,
	strat strategy.Strategy,
	coord *engine.Coordinator,
	led *ledger.Ledger,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		feed:   dataFeed,
		strat:  strat,
		coord:  coord,
		ledger: led,
		logger: logger,
	}
}

// Run executes the backtest to completion.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	events, err := r.feed.Subscribe(ctx, r.cfg.Instrument)
	if err != nil {
		return nil, fmt.Errorf("subscribe to feed: %w", err)
	}

	startEquity := r.ledger.Equity()
	r.lastRealized = r.ledger.RealizedPnL()
	r.coord.SetFillHandler(r.onFill)
	defer r.coord.SetFillHandler(nil)

	processed := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case event, ok := <-events:
			if !ok {
				return r.result(startEquity, processed), nil
			}
			if !r.cfg.StartTime.IsZero() && event.Timestamp.Before(r.cfg.StartTime) {
				continue
			}
			if !r.cfg.EndTime.IsZero() && event.Timestamp.After(r.cfg.EndTime) {
				return r.result(startEquity, processed), nil
			}

			if err := r.step(ctx, event); err != nil {
				return nil, fmt.Errorf("event at %s: %w", event.Timestamp, err)
			}
			processed++

			if r.cfg.InvariantCheckEvery <= 1 || processed%r.cfg.InvariantCheckEvery == 0 {
				if err := r.ledger.CheckInvariant(); err != nil {
					return nil, fmt.Errorf("ledger invariant violated at %s: %w",
						event.Timestamp, err)
				}
			}
		}
	}
}

// step processes one event: fills and triggers first, then new signals
// against the post-event state.
func (r *Runner) step(ctx context.Context, event types.MarketEvent) error {
	if _, err := r.coord.OnMarketEvent(ctx, event); err != nil {
		return err
	}

	for _, signal := range r.strat.OnMarketEvent(ctx, event) {
		outcome, err := r.coord.ProcessSignal(ctx, signal)
		if err != nil {
			// Malformed signals and ambiguous reversals are strategy
			// defects, not engine failures. Log and move on.
			r.logger.Warn("signal not executed",
				"signal_id", signal.ID,
				"outcome", outcome.Kind.String(),
				"err", err,
			)
		}
	}

	r.equityCurve = append(r.equityCurve, EquityPoint{
		Timestamp: event.Timestamp,
		Equity:    r.ledger.Equity(),
		Drawdown:  r.ledger.Drawdown(),
	})
	return nil
}

// onFill observes every applied fill. A fill that moved realized P&L,
// or that only closed exposure, completes a trade.
func (r *Runner) onFill(fill types.Fill) {
	r.fills = append(r.fills, fill)

	realized := r.ledger.RealizedPnL()
	delta := realized.Sub(r.lastRealized)
	r.lastRealized = realized

	if fill.ReduceOnly || !delta.IsZero() {
		r.trades = append(r.trades, TradeRecord{
			Fill:  fill,
			NetPL: delta.Sub(fill.Commission),
		})
	}
}

func (r *Runner) result(startEquity decimal.Decimal, processed int) *Result {
	endEquity := r.ledger.Equity()

	res := &Result{
		StartEquity:     startEquity,
		EndEquity:       endEquity,
		CommissionsPaid: r.ledger.CommissionsPaid(),
		Events:          processed,
		Fills:           r.fills,
		Trades:          r.trades,
		EquityCurve:     r.equityCurve,
		TotalTrades:     len(r.trades),
	}

	if startEquity.IsPositive() {
		res.TotalReturn = endEquity.Sub(startEquity).Div(startEquity)
	}

	for _, trade := range r.trades {
		if trade.NetPL.IsPositive() {
			res.WinningTrades++
		} else if trade.NetPL.IsNegative() {
			res.LosingTrades++
		}
	}

	m := NewMetrics(r.trades, r.equityCurve, decimal.Zero)
	res.MaxDrawdown = m.MaxDrawdown()
	res.WinRate = m.WinRate()
	res.ProfitFactor = m.ProfitFactor()
	res.SharpeRatio = m.SharpeRatio()

	return res
}
