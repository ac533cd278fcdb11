package strategy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tathienbao/algo-engine/internal/types"
	"github.com/tathienbao/algo-engine/pkg/indicator"
)

// CrossoverConfig holds configuration for the SMA crossover strategy.
type CrossoverConfig struct {
	FastPeriod int
	SlowPeriod int
	Quantity   int64

	// Exit distances as percent of the close at signal time. Zero
	// leaves the level unset.
	TargetPct decimal.Decimal
	StopPct   decimal.Decimal
}

// DefaultCrossoverConfig returns sensible defaults.
func DefaultCrossoverConfig() CrossoverConfig {
	return CrossoverConfig{
		FastPeriod: 10,
		SlowPeriod: 30,
		Quantity:   1,
	}
}

// Crossover emits a BUY signal when the fast SMA crosses above the
// slow SMA and a SELL signal on the opposite cross. Signals are market
// orders; the coordinator's reversal policy decides how they interact
// with an open position.
type Crossover struct {
	cfg  CrossoverConfig
	fast *indicator.SMA
	slow *indicator.SMA

	// -1 fast below slow, +1 above, 0 unknown.
	lastState int
}

// NewCrossover creates an SMA crossover strategy.
func NewCrossover(cfg CrossoverConfig) *Crossover {
	if cfg.Quantity <= 0 {
		cfg.Quantity = 1
	}
	return &Crossover{
		cfg:  cfg,
		fast: indicator.NewSMA(cfg.FastPeriod),
		slow: indicator.NewSMA(cfg.SlowPeriod),
	}
}

// Name returns the strategy identifier.
func (c *Crossover) Name() string {
	return fmt.Sprintf("sma_crossover_%d_%d", c.cfg.FastPeriod, c.cfg.SlowPeriod)
}

// OnMarketEvent updates the moving averages and emits a signal on a
// cross. The first observation after warmup only records the state; a
// signal needs an actual transition.
func (c *Crossover) OnMarketEvent(_ context.Context, event types.MarketEvent) []types.Signal {
	price := event.MarkPrice()
	fast := c.fast.Update(price)
	slow := c.slow.Update(price)

	if !c.fast.Ready() || !c.slow.Ready() {
		return nil
	}

	state := 0
	switch {
	case fast.GreaterThan(slow):
		state = 1
	case fast.LessThan(slow):
		state = -1
	}
	if state == 0 {
		return nil
	}

	prev := c.lastState
	c.lastState = state
	if prev == 0 || prev == state {
		return nil
	}

	action := types.ActionBuy
	if state < 0 {
		action = types.ActionSell
	}

	return []types.Signal{c.buildSignal(event, action)}
}

func (c *Crossover) buildSignal(event types.MarketEvent, action types.Action) types.Signal {
	signal := types.Signal{
		ID:         uuid.New().String(),
		StrategyID: c.Name(),
		Timestamp:  event.Timestamp,
		Instrument: event.Instrument,
		Action:     action,
		OrderType:  types.OrderTypeMarket,
		Quantity:   c.cfg.Quantity,
		Reason:     "sma_cross",
	}

	price := event.MarkPrice()
	hundred := decimal.NewFromInt(100)
	if !c.cfg.TargetPct.IsZero() {
		offset := price.Mul(c.cfg.TargetPct).Div(hundred)
		if action == types.ActionBuy {
			signal.TargetPrice = price.Add(offset)
		} else {
			signal.TargetPrice = price.Sub(offset)
		}
	}
	if !c.cfg.StopPct.IsZero() {
		offset := price.Mul(c.cfg.StopPct).Div(hundred)
		if action == types.ActionBuy {
			signal.StopLossPrice = price.Sub(offset)
		} else {
			signal.StopLossPrice = price.Add(offset)
		}
	}
	return signal
}

// Reset clears indicator and cross state.
func (c *Crossover) Reset() {
	c.fast.Reset()
	c.slow.Reset()
	c.lastState = 0
}
