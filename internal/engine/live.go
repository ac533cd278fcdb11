package engine

import (
	"context"
	"fmt"

	"github.com/tathienbao/algo-engine/internal/alerting"
	"github.com/tathienbao/algo-engine/internal/types"
)

// ExecutionUpdate is a broker callback: either a (possibly partial)
// fill for a known order, or a rejection.
type ExecutionUpdate struct {
	OrderID  string
	Fill     *types.Fill
	Rejected bool
	Reason   string
}

// OnExecutionUpdate applies a broker execution report. Fills for one
// order are expected in sequence; redeliveries are detected by trade id
// and dropped. Updates for unknown orders are an error: the broker and
// the engine disagree about what was submitted.
func (c *Coordinator) OnExecutionUpdate(ctx context.Context, update ExecutionUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.orders[update.OrderID]
	if !ok {
		c.recorder.RecordError("unknown_order")
		return fmt.Errorf("%w: %s", types.ErrOrderNotFound, update.OrderID)
	}

	if update.Rejected {
		if err := order.Transition(types.OrderStatusRejected); err != nil {
			return fmt.Errorf("reject order %s: %w", update.OrderID, err)
		}
		c.book.Remove(order.ID)
		c.recorder.RecordOrder(order.Instrument, order.Action.String(), "rejected")
		c.logger.Warn("order rejected by broker",
			"order_id", order.ID,
			"reason", update.Reason,
		)
		c.alert(ctx, alerting.SeverityWarning, "Order rejected by broker",
			"order_id", order.ID,
			"instrument", order.Instrument,
			"reason", update.Reason,
		)
		return nil
	}

	if update.Fill == nil {
		return fmt.Errorf("%w: execution update without fill or rejection", types.ErrInvalidFill)
	}
	// Redelivery check before the overfill guard: a venue retry of the
	// final fill arrives with Remaining already zero and must still be
	// dropped silently.
	if c.ledger.Seen(update.Fill.TradeID) {
		c.recorder.RecordError("duplicate_fill")
		c.logger.Debug("redelivered fill dropped",
			"order_id", order.ID,
			"trade_id", update.Fill.TradeID,
		)
		return nil
	}
	if update.Fill.Quantity > order.Remaining {
		c.recorder.RecordError("overfill")
		return fmt.Errorf("%w: fill %d exceeds remaining %d on order %s",
			types.ErrInvalidFill, update.Fill.Quantity, order.Remaining, order.ID)
	}

	return c.applyFill(ctx, order, *update.Fill)
}

// CancelOrder cancels a pending or partially filled order. A cancel
// racing a fill that already completed the order is a no-op and
// returns ErrStaleCancel so the caller can tell the difference.
func (c *Coordinator) CancelOrder(orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrOrderNotFound, orderID)
	}

	switch order.Status {
	case types.OrderStatusFilled:
		c.logger.Info("cancel after fill: no-op", "order_id", orderID)
		return types.ErrStaleCancel
	case types.OrderStatusCancelled:
		return nil // idempotent
	case types.OrderStatusRejected:
		return types.ErrStaleCancel
	}

	if err := order.Transition(types.OrderStatusCancelled); err != nil {
		return err
	}
	c.book.Remove(orderID)
	c.recorder.RecordOrder(order.Instrument, order.Action.String(), "cancelled")
	c.logger.Info("order cancelled",
		"order_id", orderID,
		"remaining", order.Remaining,
	)
	return nil
}
