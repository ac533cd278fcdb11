// Package engine coordinates signals, order matching, exit monitoring,
// and ledger updates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tathienbao/algo-engine/internal/alerting"
	"github.com/tathienbao/algo-engine/internal/book"
	"github.com/tathienbao/algo-engine/internal/ledger"
	"github.com/tathienbao/algo-engine/internal/match"
	"github.com/tathienbao/algo-engine/internal/metrics"
	"github.com/tathienbao/algo-engine/internal/monitor"
	"github.com/tathienbao/algo-engine/internal/risk"
	"github.com/tathienbao/algo-engine/internal/types"
)

// ReversalPolicy selects how an opposite-direction signal against an
// open position is executed. The policy is fixed per run.
type ReversalPolicy int

const (
	// ReversalNetOut creates a single order that crosses the position.
	ReversalNetOut ReversalPolicy = iota
	// ReversalSquareThenOpen creates two orders: flatten, then open.
	ReversalSquareThenOpen
)

func (p ReversalPolicy) String() string {
	if p == ReversalSquareThenOpen {
		return "square_then_open"
	}
	return "net_out"
}

// OutcomeKind classifies the result of processing a signal.
type OutcomeKind int

const (
	OutcomeCreated OutcomeKind = iota
	OutcomeIgnoredNoPyramiding
	OutcomeRejectedByRisk
	OutcomeInvalidReversal
	OutcomeValidationError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCreated:
		return "CREATED"
	case OutcomeIgnoredNoPyramiding:
		return "IGNORED_NO_PYRAMIDING"
	case OutcomeRejectedByRisk:
		return "REJECTED_BY_RISK"
	case OutcomeInvalidReversal:
		return "INVALID_REVERSAL"
	case OutcomeValidationError:
		return "VALIDATION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the result of ProcessSignal.
type Outcome struct {
	Kind   OutcomeKind
	Orders []*types.Order
	Reason string
}

// Config holds coordinator policy settings.
type Config struct {
	PyramidingEnabled bool
	MaxPyramidEntries int
	Reversal          ReversalPolicy

	// Default exit percentages applied at fill time when a signal
	// carries no explicit levels. 2.0 means 2%.
	DefaultStopPct   decimal.Decimal
	DefaultTargetPct decimal.Decimal

	// CancelOpenOrdersAtEOD sweeps unfilled orders when the EOD
	// boundary is crossed.
	CancelOpenOrdersAtEOD bool

	// LiveMode relaxes invariant failures from fatal to isolating:
	// the affected order is frozen and the run continues.
	LiveMode bool
}

// FillHandler observes every fill after it has been applied to the
// ledger.
type FillHandler func(fill types.Fill)

// Coordinator orchestrates the order book, matching engine, monitor,
// and ledger. One lock serializes signal processing, market events,
// execution updates, and cancels; per spec trade rates this is cheap.
type Coordinator struct {
	cfg       Config
	book      *book.Book
	matcher   *match.Engine
	monitor   *monitor.Monitor
	ledger    *ledger.Ledger
	validator risk.Validator
	alerter   alerting.Alerter
	recorder  *metrics.Recorder
	logger    *slog.Logger

	mu          sync.Mutex
	orders      map[string]*types.Order // every order ever created, terminal included
	frozen      map[string]bool         // live-mode orders pending manual reconciliation
	fillHandler FillHandler
}

// NewCoordinator creates an execution coordinator.
func NewCoordinator(
	cfg Config,
	matcher *match.Engine,
	mon *monitor.Monitor,
	led *ledger.Ledger,
	validator risk.Validator,
	alerter alerting.Alerter,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if validator == nil {
		validator = risk.AllowAll{}
	}
	if cfg.MaxPyramidEntries <= 0 {
		cfg.MaxPyramidEntries = 1
	}

	return &Coordinator{
		cfg:       cfg,
		book:      book.New(),
		matcher:   matcher,
		monitor:   mon,
		ledger:    led,
		validator: validator,
		alerter:   alerter,
		recorder:  metrics.NewRecorder(),
		logger:    logger,
		orders:    make(map[string]*types.Order),
		frozen:    make(map[string]bool),
	}
}

// SetFillHandler registers a callback invoked synchronously for every
// applied fill.
func (c *Coordinator) SetFillHandler(handler FillHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fillHandler = handler
}

// Book exposes the order book for inspection.
func (c *Coordinator) Book() *book.Book {
	return c.book
}

// Order returns any order ever created by the coordinator.
func (c *Coordinator) Order(orderID string) (*types.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	order, ok := c.orders[orderID]
	return order, ok
}

// ProcessSignal validates the signal, applies the position policy, and
// inserts the resulting orders into the book as PENDING.
func (c *Coordinator) ProcessSignal(ctx context.Context, signal types.Signal) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reason := validateSignal(signal); reason != "" {
		c.recorder.RecordSignalRejected("validation")
		return Outcome{Kind: OutcomeValidationError, Reason: reason},
			fmt.Errorf("%w: %s", types.ErrInvalidSignal, reason)
	}

	pos, hasPos := c.ledger.Position(signal.Instrument)

	var orders []*types.Order
	switch {
	case !hasPos || pos.Quantity == 0:
		orders = []*types.Order{c.newOrderFromSignal(signal, signal.Quantity, false, signal.Reason)}

	case sameDirection(pos, signal.Action):
		if !c.cfg.PyramidingEnabled {
			c.logger.Info("signal ignored: pyramiding disabled",
				"signal_id", signal.ID,
				"instrument", signal.Instrument,
			)
			c.recorder.RecordSignalRejected("no_pyramiding")
			return Outcome{Kind: OutcomeIgnoredNoPyramiding, Reason: "pyramiding disabled"}, nil
		}
		if pos.Entries >= c.cfg.MaxPyramidEntries {
			c.logger.Info("signal ignored: max pyramid entries reached",
				"signal_id", signal.ID,
				"instrument", signal.Instrument,
				"entries", pos.Entries,
			)
			c.recorder.RecordSignalRejected("max_pyramid_entries")
			return Outcome{
				Kind:   OutcomeIgnoredNoPyramiding,
				Reason: fmt.Sprintf("max pyramid entries reached (%d)", c.cfg.MaxPyramidEntries),
			}, nil
		}
		orders = []*types.Order{c.newOrderFromSignal(signal, signal.Quantity, false, signal.Reason)}

	default:
		var err error
		orders, err = c.reversalOrders(signal, pos)
		if err != nil {
			c.recorder.RecordSignalRejected("invalid_reversal")
			return Outcome{Kind: OutcomeInvalidReversal, Reason: err.Error()}, err
		}
	}

	// Risk validation before any insertion; all-or-nothing for
	// multi-order policies so a half-executed reversal cannot occur.
	snapshot := c.ledger.Snapshot()
	for _, order := range orders {
		resp := c.validator.ValidateOrder(order, snapshot)
		if resp.Approved {
			continue
		}
		for _, o := range orders {
			o.Status = types.OrderStatusRejected
			c.orders[o.ID] = o
		}
		c.recorder.RecordOrder(signal.Instrument, signal.Action.String(), "rejected")
		c.logger.Warn("order rejected by risk",
			"order_id", order.ID,
			"signal_id", signal.ID,
			"reason", resp.Reason,
		)
		c.alert(ctx, alerting.SeverityWarning, "Order rejected by risk",
			"instrument", signal.Instrument,
			"reason", resp.Reason,
		)
		return Outcome{Kind: OutcomeRejectedByRisk, Orders: orders, Reason: resp.Reason}, nil
	}

	for _, order := range orders {
		if err := c.book.Insert(order); err != nil {
			return Outcome{}, fmt.Errorf("insert order %s: %w", order.ID, err)
		}
		c.orders[order.ID] = order
		c.recorder.RecordOrder(order.Instrument, order.Action.String(), "created")
		c.logger.Info("order created",
			"order_id", order.ID,
			"signal_id", signal.ID,
			"instrument", order.Instrument,
			"action", order.Action.String(),
			"type", order.Type.String(),
			"quantity", order.Quantity,
			"reduce_only", order.ReduceOnly,
		)
	}

	return Outcome{Kind: OutcomeCreated, Orders: orders}, nil
}

// reversalOrders builds the orders for an opposite-direction signal.
func (c *Coordinator) reversalOrders(signal types.Signal, pos *types.Position) ([]*types.Order, error) {
	switch c.cfg.Reversal {
	case ReversalNetOut:
		if signal.Quantity == pos.AbsQuantity() {
			return nil, fmt.Errorf("%w: %s quantity %d exactly flattens position",
				types.ErrInvalidReversal, signal.Instrument, signal.Quantity)
		}
		// A single order that reduces, or crosses through, the position.
		return []*types.Order{c.newOrderFromSignal(signal, signal.Quantity, false, signal.Reason)}, nil

	case ReversalSquareThenOpen:
		square := c.newOrder(signal, signal.Action, types.OrderTypeMarket,
			pos.AbsQuantity(), true, "square")
		open := c.newOrderFromSignal(signal, signal.Quantity, false, signal.Reason)
		return []*types.Order{square, open}, nil

	default:
		return nil, fmt.Errorf("%w: unknown reversal policy", types.ErrInvalidConfig)
	}
}

// OnMarketEvent resolves the event against pending orders, open
// position triggers, and the EOD boundary, in that fixed order, then
// marks the ledger to market. Every fill is applied to the ledger
// before the next one is generated, and the full set is applied before
// this method returns, so state is consistent before the next event.
func (c *Coordinator) OnMarketEvent(ctx context.Context, event types.MarketEvent) ([]types.Fill, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fills []types.Fill

	// Phase 1: pending orders, insertion order. In live mode fills
	// arrive from the venue through OnExecutionUpdate instead.
	if !c.cfg.LiveMode {
		for _, order := range c.book.PendingForInstrument(event.Instrument) {
			if c.frozen[order.ID] {
				continue
			}
			fill := c.matcher.TryFill(order, event)
			if fill == nil {
				continue
			}
			if err := c.applyFill(ctx, order, *fill); err != nil {
				return fills, err
			}
			fills = append(fills, *fill)
		}
	}

	// Phase 2: target/stop triggers, evaluated against positions as
	// they stand after phase 1 so a fresh entry can stop out within
	// its own bar.
	if pos, ok := c.ledger.Position(event.Instrument); ok {
		if trigger := c.monitor.Check(pos, event); trigger != nil {
			fill, err := c.closePosition(ctx, pos, trigger, event)
			if err != nil {
				return fills, err
			}
			if fill != nil {
				fills = append(fills, *fill)
			}
		}
	}

	// Phase 3: end-of-day closure, regardless of target/stop.
	if pos, ok := c.ledger.Position(event.Instrument); ok {
		if trigger := c.monitor.CheckEOD(pos, event); trigger != nil {
			fill, err := c.closePosition(ctx, pos, trigger, event)
			if err != nil {
				return fills, err
			}
			if fill != nil {
				fills = append(fills, *fill)
			}
			if c.cfg.CancelOpenOrdersAtEOD {
				c.sweepPending(event.Instrument)
			}
		}
	}

	c.ledger.OnMarketData(event)
	c.recorder.RecordEquity(c.ledger.Equity(), c.ledger.HighWater(), c.ledger.Drawdown())

	return fills, nil
}

// closePosition turns a trigger into a reduce-only market order and
// fills it against the same event that produced the trigger.
func (c *Coordinator) closePosition(ctx context.Context, pos *types.Position, trigger *types.Trigger, event types.MarketEvent) (*types.Fill, error) {
	action := types.ActionSell
	if pos.Quantity < 0 {
		action = types.ActionBuy
	}

	order := &types.Order{
		ID:         uuid.New().String(),
		Instrument: pos.Instrument,
		Action:     action,
		Type:       types.OrderTypeMarket,
		Quantity:   pos.AbsQuantity(),
		Remaining:  pos.AbsQuantity(),
		Status:     types.OrderStatusPending,
		ReduceOnly: true,
		Reason:     trigger.Kind.String(),
		CreatedAt:  event.Timestamp,
	}
	c.orders[order.ID] = order

	fill := c.matcher.FillAt(order, trigger.Price, event)
	if fill == nil {
		return nil, nil
	}

	c.logger.Info("position closure triggered",
		"instrument", pos.Instrument,
		"kind", trigger.Kind.String(),
		"price", trigger.Price,
		"quantity", order.Quantity,
	)
	c.recorder.RecordTrigger(pos.Instrument, trigger.Kind.String())

	if err := c.applyFill(ctx, order, *fill); err != nil {
		return nil, err
	}
	return fill, nil
}

// applyFill pushes a fill into the ledger and updates order state.
// Duplicate fills are logged and dropped; invalid fills are fatal in
// backtest mode and freeze the order in live mode.
func (c *Coordinator) applyFill(ctx context.Context, order *types.Order, fill types.Fill) error {
	if err := c.ledger.UpdateTrade(fill); err != nil {
		switch {
		case errors.Is(err, types.ErrDuplicateFill):
			c.recorder.RecordError("duplicate_fill")
			return nil

		case c.cfg.LiveMode:
			c.frozen[order.ID] = true
			c.book.Remove(order.ID)
			c.recorder.RecordError("invalid_fill")
			c.logger.Error("invalid fill: order frozen pending reconciliation",
				"order_id", order.ID,
				"trade_id", fill.TradeID,
				"err", err,
			)
			c.alert(ctx, alerting.SeverityCritical, "Invalid fill: order frozen",
				"order_id", order.ID,
				"instrument", fill.Instrument,
				"error", err.Error(),
			)
			return nil

		default:
			// Backtest: an invalid fill is an engine bug. Fail fast.
			c.recorder.RecordError("invalid_fill")
			return fmt.Errorf("apply fill %s: %w", fill.TradeID, err)
		}
	}

	order.Remaining -= fill.Quantity
	if order.Remaining <= 0 {
		if err := order.Transition(types.OrderStatusFilled); err != nil {
			return err
		}
		c.book.Remove(order.ID)
	} else {
		if err := order.Transition(types.OrderStatusPartiallyFilled); err != nil {
			return err
		}
	}

	// Exit levels attach only when the fill opened or extended the
	// position. A net-out fill that merely reduced it must not replace
	// the remaining quantity's levels with opposite-direction ones.
	if !fill.ReduceOnly {
		if pos, ok := c.ledger.Position(fill.Instrument); ok && extendsPosition(pos, fill) {
			target, stop := c.exitLevels(order, fill)
			c.ledger.SetExitLevels(fill.Instrument, order.SignalID, target, stop)
		}
	}

	c.recorder.RecordFill(fill.Instrument, fill.Action.String(), fill.Reason)
	c.logger.Info("fill applied",
		"trade_id", fill.TradeID,
		"order_id", order.ID,
		"instrument", fill.Instrument,
		"action", fill.Action.String(),
		"quantity", fill.Quantity,
		"price", fill.Price,
		"commission", fill.Commission,
		"status", order.Status.String(),
	)

	if c.fillHandler != nil {
		c.fillHandler(fill)
	}
	return nil
}

// extendsPosition reports whether the fill's direction matches the
// post-fill position, i.e. the fill opened, extended, or crossed into
// the position rather than reducing it.
func extendsPosition(pos *types.Position, fill types.Fill) bool {
	switch pos.Side() {
	case types.SideLong:
		return fill.Action == types.ActionBuy
	case types.SideShort:
		return fill.Action == types.ActionSell
	default:
		return false
	}
}

// exitLevels resolves the target/stop attached to an opening fill:
// explicit order levels win, else the configured default percentages
// are anchored at the fill price.
func (c *Coordinator) exitLevels(order *types.Order, fill types.Fill) (target, stop decimal.Decimal) {
	target = order.TargetPrice
	stop = order.StopLossPrice

	long := fill.Action == types.ActionBuy
	if target.IsZero() && !c.cfg.DefaultTargetPct.IsZero() {
		offset := fill.Price.Mul(c.cfg.DefaultTargetPct).Div(decimal.NewFromInt(100))
		if long {
			target = fill.Price.Add(offset)
		} else {
			target = fill.Price.Sub(offset)
		}
	}
	if stop.IsZero() && !c.cfg.DefaultStopPct.IsZero() {
		offset := fill.Price.Mul(c.cfg.DefaultStopPct).Div(decimal.NewFromInt(100))
		if long {
			stop = fill.Price.Sub(offset)
		} else {
			stop = fill.Price.Add(offset)
		}
	}
	return target, stop
}

// sweepPending cancels every pending order for an instrument.
func (c *Coordinator) sweepPending(instrument string) {
	for _, order := range c.book.PendingForInstrument(instrument) {
		if err := order.Transition(types.OrderStatusCancelled); err != nil {
			continue
		}
		c.book.Remove(order.ID)
		c.recorder.RecordOrder(order.Instrument, order.Action.String(), "cancelled")
		c.logger.Info("order cancelled by EOD sweep", "order_id", order.ID)
	}
}

func (c *Coordinator) newOrderFromSignal(signal types.Signal, quantity int64, reduceOnly bool, reason string) *types.Order {
	return c.newOrder(signal, signal.Action, signal.OrderType, quantity, reduceOnly, reason)
}

func (c *Coordinator) newOrder(signal types.Signal, action types.Action, orderType types.OrderType, quantity int64, reduceOnly bool, reason string) *types.Order {
	limit := decimal.Decimal{}
	if orderType == types.OrderTypeLimit {
		limit = signal.LimitPrice
	}
	createdAt := signal.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &types.Order{
		ID:            uuid.New().String(),
		SignalID:      signal.ID,
		Instrument:    signal.Instrument,
		Action:        action,
		Type:          orderType,
		Quantity:      quantity,
		Remaining:     quantity,
		LimitPrice:    limit,
		TargetPrice:   signal.TargetPrice,
		StopLossPrice: signal.StopLossPrice,
		Status:        types.OrderStatusPending,
		ReduceOnly:    reduceOnly,
		Reason:        reason,
		CreatedAt:     createdAt,
	}
}

func (c *Coordinator) alert(ctx context.Context, severity alerting.Severity, message string, fields ...any) {
	if c.alerter == nil {
		return
	}
	if err := c.alerter.Alert(ctx, severity, message, fields...); err != nil {
		c.logger.Warn("failed to send alert", "err", err)
	}
}

// validateSignal returns a rejection reason, or "" if the signal is
// well-formed.
func validateSignal(signal types.Signal) string {
	if signal.Instrument == "" {
		return "missing instrument"
	}
	if signal.Quantity <= 0 {
		return fmt.Sprintf("non-positive quantity %d", signal.Quantity)
	}
	switch signal.OrderType {
	case types.OrderTypeLimit:
		if signal.LimitPrice.IsZero() {
			return "limit order without limit price"
		}
		if signal.LimitPrice.IsNegative() {
			return "negative limit price"
		}
	case types.OrderTypeMarket:
		if !signal.LimitPrice.IsZero() {
			return "market order with limit price"
		}
	default:
		return "unknown order type"
	}
	return ""
}

func sameDirection(pos *types.Position, action types.Action) bool {
	return (pos.Quantity > 0 && action == types.ActionBuy) ||
		(pos.Quantity < 0 && action == types.ActionSell)
}
