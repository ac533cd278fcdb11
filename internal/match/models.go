// Package match implements fill decisions against market events,
// together with the slippage and commission models applied to fills.
package match

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/algo-engine/internal/types"
)

var hundred = decimal.NewFromInt(100)

// SlippageModel adjusts a base fill price in the adverse direction for
// the side taken: buys fill higher, sells fill lower. A fill must never
// slip in the trader's favor under the default models.
type SlippageModel interface {
	// Adjust returns the slipped price and the per-unit slippage applied.
	Adjust(price decimal.Decimal, action types.Action) (decimal.Decimal, decimal.Decimal)
}

// NoSlippage fills at the base price.
type NoSlippage struct{}

func (NoSlippage) Adjust(price decimal.Decimal, _ types.Action) (decimal.Decimal, decimal.Decimal) {
	return price, decimal.Zero
}

// PercentSlippage slips the price by a fixed percentage of itself.
type PercentSlippage struct {
	Percent decimal.Decimal // 0.05 means 0.05%
}

func (s PercentSlippage) Adjust(price decimal.Decimal, action types.Action) (decimal.Decimal, decimal.Decimal) {
	amount := price.Mul(s.Percent).Div(hundred)
	return applyAdverse(price, amount, action), amount
}

// PerUnitSlippage slips the price by a fixed absolute amount.
type PerUnitSlippage struct {
	Amount decimal.Decimal
}

func (s PerUnitSlippage) Adjust(price decimal.Decimal, action types.Action) (decimal.Decimal, decimal.Decimal) {
	return applyAdverse(price, s.Amount, action), s.Amount
}

// StochasticSlippage slips by a uniformly random percentage in
// [0, MaxPercent], still always adverse. The model owns its own seeded
// source so a run remains reproducible for a fixed seed.
type StochasticSlippage struct {
	MaxPercent decimal.Decimal
	rng        *rand.Rand
}

// NewStochasticSlippage creates a seeded stochastic slippage model.
func NewStochasticSlippage(maxPercent decimal.Decimal, seed int64) *StochasticSlippage {
	return &StochasticSlippage{
		MaxPercent: maxPercent,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (s *StochasticSlippage) Adjust(price decimal.Decimal, action types.Action) (decimal.Decimal, decimal.Decimal) {
	fraction := decimal.NewFromFloat(s.rng.Float64())
	amount := price.Mul(s.MaxPercent).Mul(fraction).Div(hundred)
	return applyAdverse(price, amount, action), amount
}

func applyAdverse(price, amount decimal.Decimal, action types.Action) decimal.Decimal {
	if action == types.ActionBuy {
		return price.Add(amount)
	}
	return price.Sub(amount)
}

// CommissionModel computes the commission for a fill, floor-clamped to
// a configured minimum per trade.
type CommissionModel interface {
	Charge(price decimal.Decimal, quantity int64) decimal.Decimal
}

// NoCommission charges nothing.
type NoCommission struct{}

func (NoCommission) Charge(decimal.Decimal, int64) decimal.Decimal {
	return decimal.Zero
}

// PercentCommission charges a percentage of the trade notional.
type PercentCommission struct {
	Percent decimal.Decimal // 0.01 means 0.01%
	Minimum decimal.Decimal
}

func (c PercentCommission) Charge(price decimal.Decimal, quantity int64) decimal.Decimal {
	notional := price.Mul(decimal.NewFromInt(quantity))
	return clampMin(notional.Mul(c.Percent).Div(hundred), c.Minimum)
}

// PerUnitCommission charges a fixed amount per unit traded.
type PerUnitCommission struct {
	Amount  decimal.Decimal
	Minimum decimal.Decimal
}

func (c PerUnitCommission) Charge(_ decimal.Decimal, quantity int64) decimal.Decimal {
	return clampMin(c.Amount.Mul(decimal.NewFromInt(quantity)), c.Minimum)
}

// Tier is one notional band of a tiered commission schedule.
type Tier struct {
	UpToNotional decimal.Decimal // zero = unbounded
	Percent      decimal.Decimal
}

// TieredCommission charges a percentage that depends on the trade
// notional. Tiers must be ordered by ascending UpToNotional with the
// final tier unbounded.
type TieredCommission struct {
	Tiers   []Tier
	Minimum decimal.Decimal
}

func (c TieredCommission) Charge(price decimal.Decimal, quantity int64) decimal.Decimal {
	notional := price.Mul(decimal.NewFromInt(quantity))
	for _, tier := range c.Tiers {
		if tier.UpToNotional.IsZero() || notional.LessThanOrEqual(tier.UpToNotional) {
			return clampMin(notional.Mul(tier.Percent).Div(hundred), c.Minimum)
		}
	}
	return clampMin(decimal.Zero, c.Minimum)
}

func clampMin(commission, minimum decimal.Decimal) decimal.Decimal {
	if commission.LessThan(minimum) {
		return minimum
	}
	return commission
}

// SlippageConfig selects and parameterizes a slippage model.
type SlippageConfig struct {
	Model      string // "none" | "percent" | "per_unit" | "stochastic"
	Percent    decimal.Decimal
	Amount     decimal.Decimal
	MaxPercent decimal.Decimal
	Seed       int64
}

// NewSlippageModel builds the configured slippage model.
func NewSlippageModel(cfg SlippageConfig) (SlippageModel, error) {
	switch cfg.Model {
	case "", "none":
		return NoSlippage{}, nil
	case "percent":
		return PercentSlippage{Percent: cfg.Percent}, nil
	case "per_unit":
		return PerUnitSlippage{Amount: cfg.Amount}, nil
	case "stochastic":
		return NewStochasticSlippage(cfg.MaxPercent, cfg.Seed), nil
	default:
		return nil, fmt.Errorf("%w: unknown slippage model %q", types.ErrInvalidConfig, cfg.Model)
	}
}

// CommissionConfig selects and parameterizes a commission model.
type CommissionConfig struct {
	Model   string // "none" | "percent" | "per_unit" | "tiered"
	Percent decimal.Decimal
	Amount  decimal.Decimal
	Minimum decimal.Decimal
	Tiers   []Tier
}

// NewCommissionModel builds the configured commission model.
func NewCommissionModel(cfg CommissionConfig) (CommissionModel, error) {
	switch cfg.Model {
	case "", "none":
		return NoCommission{}, nil
	case "percent":
		return PercentCommission{Percent: cfg.Percent, Minimum: cfg.Minimum}, nil
	case "per_unit":
		return PerUnitCommission{Amount: cfg.Amount, Minimum: cfg.Minimum}, nil
	case "tiered":
		return TieredCommission{Tiers: cfg.Tiers, Minimum: cfg.Minimum}, nil
	default:
		return nil, fmt.Errorf("%w: unknown commission model %q", types.ErrInvalidConfig, cfg.Model)
	}
}
