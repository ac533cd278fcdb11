// Package types defines the shared domain model of the trading engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the direction of a signal, order, or fill.
type Action int

const (
	ActionBuy Action = iota
	ActionSell
)

func (a Action) String() string {
	if a == ActionSell {
		return "SELL"
	}
	return "BUY"
}

// Sign returns +1 for BUY and -1 for SELL, the factor applied to
// position quantity and cash flow.
func (a Action) Sign() int64 {
	if a == ActionSell {
		return -1
	}
	return 1
}

// Opposite returns the opposite action.
func (a Action) Opposite() Action {
	if a == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

// Side is the direction of an open position.
type Side int

const (
	SideFlat Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "LONG"
	case SideShort:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// OrderType distinguishes market and limit orders.
type OrderType int

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
)

func (t OrderType) String() string {
	if t == OrderTypeLimit {
		return "LIMIT"
	}
	return "MARKET"
}

// OrderStatus represents the state of an order.
type OrderStatus int

const (
	OrderStatusPending OrderStatus = iota
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "PENDING"
	case OrderStatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// IsFinal returns true if the order is in a terminal state.
func (s OrderStatus) IsFinal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// legalTransitions is the single source of truth for the order state
// machine. Every status change goes through Order.Transition.
var legalTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {
		OrderStatusPartiallyFilled,
		OrderStatusFilled,
		OrderStatusCancelled,
		OrderStatusRejected,
	},
	OrderStatusPartiallyFilled: {
		OrderStatusPartiallyFilled,
		OrderStatusFilled,
		OrderStatusCancelled,
	},
}

// CanTransition reports whether moving from s to next is legal.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// EventKind distinguishes bar and tick market events.
type EventKind int

const (
	EventBar EventKind = iota
	EventTick
)

// MarketEvent is a single market data update. Bars carry OHLCV; ticks
// carry only an instantaneous price and size. Timestamps from a feed
// must be monotonically non-decreasing.
type MarketEvent struct {
	Kind       EventKind
	Instrument string
	Timestamp  time.Time
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     int64
	Price      decimal.Decimal // tick only
	Size       int64           // tick only
}

// RefPrice is the reference fill price of the event: the bar open, or
// the instantaneous price in tick-fill mode.
func (e MarketEvent) RefPrice() decimal.Decimal {
	if e.Kind == EventTick {
		return e.Price
	}
	return e.Open
}

// HighPrice is the highest price observable within the event window.
func (e MarketEvent) HighPrice() decimal.Decimal {
	if e.Kind == EventTick {
		return e.Price
	}
	return e.High
}

// LowPrice is the lowest price observable within the event window.
func (e MarketEvent) LowPrice() decimal.Decimal {
	if e.Kind == EventTick {
		return e.Price
	}
	return e.Low
}

// MarkPrice is the price used for mark-to-market valuation.
func (e MarketEvent) MarkPrice() decimal.Decimal {
	if e.Kind == EventTick {
		return e.Price
	}
	return e.Close
}

// Signal is a strategy-generated trade recommendation. Immutable once
// created.
type Signal struct {
	ID            string
	StrategyID    string
	Timestamp     time.Time
	Instrument    string
	Action        Action
	OrderType     OrderType
	Quantity      int64
	LimitPrice    decimal.Decimal // required iff OrderType is LIMIT
	TargetPrice   decimal.Decimal // zero = unset
	StopLossPrice decimal.Decimal // zero = unset
	Reason        string
}

// Order is an engine-created instruction awaiting a fill. Remaining
// tracks the unfilled quantity across partial fills.
type Order struct {
	ID            string
	SignalID      string
	Instrument    string
	Action        Action
	Type          OrderType
	Quantity      int64
	Remaining     int64
	LimitPrice    decimal.Decimal
	TargetPrice   decimal.Decimal
	StopLossPrice decimal.Decimal
	Status        OrderStatus
	ReduceOnly    bool // closing order: must never grow a position
	Reason        string
	CreatedAt     time.Time
}

// Transition moves the order to the next status, enforcing the state
// machine. Illegal transitions return ErrIllegalTransition.
func (o *Order) Transition(next OrderStatus) error {
	if !o.Status.CanTransition(next) {
		return ErrIllegalTransition
	}
	o.Status = next
	return nil
}

// Fill is a confirmed execution against an order. Immutable,
// append-only.
type Fill struct {
	TradeID    string
	OrderID    string
	Instrument string
	Action     Action
	Quantity   int64
	Price      decimal.Decimal
	Commission decimal.Decimal
	Slippage   decimal.Decimal
	ReduceOnly bool
	Reason     string
	Timestamp  time.Time
}

// Position is the open exposure in one instrument. Quantity is signed:
// positive long, negative short, zero means logically closed.
// AvgEntryPrice is meaningful only while Quantity is non-zero: it is
// the volume-weighted average of all same-direction entries since the
// position was last flat.
type Position struct {
	Instrument    string
	Quantity      int64
	AvgEntryPrice decimal.Decimal
	TargetPrice   decimal.Decimal
	StopLossPrice decimal.Decimal
	StrategyID    string
	TradeIDs      []string
	Entries       int // same-direction entries since last flat
	MarketPrice   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	OpenedAt      time.Time
}

// Side derives the position direction from the signed quantity.
func (p *Position) Side() Side {
	switch {
	case p.Quantity > 0:
		return SideLong
	case p.Quantity < 0:
		return SideShort
	default:
		return SideFlat
	}
}

// AbsQuantity returns the unsigned open quantity.
func (p *Position) AbsQuantity() int64 {
	if p.Quantity < 0 {
		return -p.Quantity
	}
	return p.Quantity
}

// Clone returns a deep copy safe to hand to consumers.
func (p *Position) Clone() *Position {
	cp := *p
	cp.TradeIDs = append([]string(nil), p.TradeIDs...)
	return &cp
}

// Snapshot is a point-in-time copy of the portfolio state. Consumers
// never observe partial mutation through it.
type Snapshot struct {
	Timestamp      time.Time
	InitialCapital decimal.Decimal
	Cash           decimal.Decimal
	Equity         decimal.Decimal
	RealizedPnL    decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	HighWaterMark  decimal.Decimal
	Positions      map[string]*Position
}

// TriggerKind classifies a monitor trigger.
type TriggerKind int

const (
	TriggerStopLoss TriggerKind = iota
	TriggerTarget
	TriggerEndOfDay
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerStopLoss:
		return "stop_loss"
	case TriggerTarget:
		return "target"
	case TriggerEndOfDay:
		return "end_of_day"
	default:
		return "unknown"
	}
}

// Trigger is a monitor decision to close a position.
type Trigger struct {
	Kind       TriggerKind
	Instrument string
	Price      decimal.Decimal // triggered price; zero when filling at the next open
}
