package match

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tathienbao/algo-engine/internal/types"
)

// Engine decides whether a pending order fills against a market event
// and at what price. Fill generation is pure given (order, event,
// models); only the stochastic slippage model carries its own seeded
// randomness.
type Engine struct {
	slippage   SlippageModel
	commission CommissionModel
}

// NewEngine creates a matching engine with the given models.
func NewEngine(slippage SlippageModel, commission CommissionModel) *Engine {
	if slippage == nil {
		slippage = NoSlippage{}
	}
	if commission == nil {
		commission = NoCommission{}
	}
	return &Engine{slippage: slippage, commission: commission}
}

// TryFill returns the fill for the order against the event, or nil if
// the order does not fill. An order never fills on an event at or
// before its creation time, so an order created in reaction to the bar
// at T cannot use that bar's prices.
func (e *Engine) TryFill(order *types.Order, event types.MarketEvent) *types.Fill {
	if order.Status.IsFinal() || order.Remaining <= 0 {
		return nil
	}
	if order.Instrument != event.Instrument {
		return nil
	}
	if !event.Timestamp.After(order.CreatedAt) {
		return nil
	}

	var base decimal.Decimal
	switch order.Type {
	case types.OrderTypeMarket:
		base = event.RefPrice()

	case types.OrderTypeLimit:
		if order.Action == types.ActionBuy {
			if event.LowPrice().GreaterThan(order.LimitPrice) {
				return nil
			}
			base = decimal.Min(event.RefPrice(), order.LimitPrice)
		} else {
			if event.HighPrice().LessThan(order.LimitPrice) {
				return nil
			}
			base = decimal.Max(event.RefPrice(), order.LimitPrice)
		}

	default:
		return nil
	}

	return e.fill(order, base, event)
}

// FillAt fills the order at the supplied base price, bypassing the
// market/limit conditions. Used for target, stop, and end-of-day
// closures that settle within the event that triggered them. Slippage
// and commission still apply.
func (e *Engine) FillAt(order *types.Order, base decimal.Decimal, event types.MarketEvent) *types.Fill {
	if order.Status.IsFinal() || order.Remaining <= 0 {
		return nil
	}
	return e.fill(order, base, event)
}

func (e *Engine) fill(order *types.Order, base decimal.Decimal, event types.MarketEvent) *types.Fill {
	price, slippage := e.slippage.Adjust(base, order.Action)
	quantity := order.Remaining

	return &types.Fill{
		TradeID:    uuid.New().String(),
		OrderID:    order.ID,
		Instrument: order.Instrument,
		Action:     order.Action,
		Quantity:   quantity,
		Price:      price,
		Commission: e.commission.Charge(price, quantity),
		Slippage:   slippage,
		ReduceOnly: order.ReduceOnly,
		Reason:     order.Reason,
		Timestamp:  event.Timestamp,
	}
}
