// Package paper provides a simulated venue for paper trading: orders
// rest until market data arrives, then fill through the same matching
// models the backtester uses.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/tathienbao/algo-engine/internal/broker"
	"github.com/tathienbao/algo-engine/internal/match"
	"github.com/tathienbao/algo-engine/internal/types"
)

// Config holds paper trading configuration.
type Config struct {
	// MaxOrdersPerSecond throttles submissions the way a real venue
	// would. Zero disables throttling.
	MaxOrdersPerSecond int

	Slippage   match.SlippageConfig
	Commission match.CommissionConfig
}

// Broker implements broker.Adapter against simulated executions.
type Broker struct {
	cfg     Config
	logger  *slog.Logger
	matcher *match.Engine
	limiter *rate.Limiter
	state   atomic.Int32

	mu      sync.Mutex
	orders  map[string]*types.Order
	seq     []string // submission order, fills are deterministic
	handler broker.ExecutionHandler
}

// New creates a paper broker.
func New(cfg Config, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	slippage, err := match.NewSlippageModel(cfg.Slippage)
	if err != nil {
		return nil, fmt.Errorf("slippage model: %w", err)
	}
	commission, err := match.NewCommissionModel(cfg.Commission)
	if err != nil {
		return nil, fmt.Errorf("commission model: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.MaxOrdersPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxOrdersPerSecond), cfg.MaxOrdersPerSecond)
	}

	b := &Broker{
		cfg:     cfg,
		logger:  logger,
		matcher: match.NewEngine(slippage, commission),
		limiter: limiter,
		orders:  make(map[string]*types.Order),
	}
	b.state.Store(int32(broker.StateDisconnected))
	return b, nil
}

// Connect marks the venue available.
func (b *Broker) Connect(_ context.Context) error {
	b.state.Store(int32(broker.StateConnected))
	b.logger.Info("paper broker connected")
	return nil
}

// Disconnect drops all resting orders.
func (b *Broker) Disconnect() error {
	b.state.Store(int32(broker.StateDisconnected))

	b.mu.Lock()
	b.orders = make(map[string]*types.Order)
	b.seq = nil
	b.mu.Unlock()

	b.logger.Info("paper broker disconnected")
	return nil
}

// IsConnected reports whether the venue is available.
func (b *Broker) IsConnected() bool {
	return broker.ConnectionState(b.state.Load()) == broker.StateConnected
}

// Name returns the adapter identifier.
func (b *Broker) Name() string {
	return "paper"
}

// SetExecutionHandler registers the fill callback.
func (b *Broker) SetExecutionHandler(handler broker.ExecutionHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

// SubmitOrder accepts an order for simulated execution. The order
// rests until OnMarketEvent produces a fill. Submissions beyond the
// configured rate block until the limiter admits them.
func (b *Broker) SubmitOrder(ctx context.Context, order *types.Order) error {
	if !b.IsConnected() {
		return broker.ErrNotConnected
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", broker.ErrRateLimited, err)
		}
	}

	// Copy so venue-side state never aliases the engine's order.
	resting := *order

	b.mu.Lock()
	b.orders[order.ID] = &resting
	b.seq = append(b.seq, order.ID)
	b.mu.Unlock()

	b.logger.Debug("order accepted",
		"order_id", order.ID,
		"instrument", order.Instrument,
		"type", order.Type.String(),
	)
	return nil
}

// CancelOrder removes a resting order.
func (b *Broker) CancelOrder(_ context.Context, orderID string) error {
	if !b.IsConnected() {
		return broker.ErrNotConnected
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.orders[orderID]; !ok {
		return fmt.Errorf("%w: %s", broker.ErrUnknownOrder, orderID)
	}
	delete(b.orders, orderID)
	b.dropFromSeq(orderID)
	return nil
}

func (b *Broker) dropFromSeq(orderID string) {
	for i, id := range b.seq {
		if id == orderID {
			b.seq = append(b.seq[:i], b.seq[i+1:]...)
			return
		}
	}
}

// OnMarketEvent matches resting orders against the event and reports
// fills through the execution handler. The live engine feeds every
// market event here after processing it.
func (b *Broker) OnMarketEvent(event types.MarketEvent) {
	if !b.IsConnected() {
		return
	}

	b.mu.Lock()
	var updates []broker.ExecutionUpdate
	remaining := b.seq[:0]
	for _, id := range b.seq {
		order := b.orders[id]
		fill := b.matcher.TryFill(order, event)
		if fill != nil {
			order.Remaining -= fill.Quantity
			updates = append(updates, broker.ExecutionUpdate{OrderID: id, Fill: fill})
			if order.Remaining <= 0 {
				delete(b.orders, id)
				continue
			}
		}
		remaining = append(remaining, id)
	}
	b.seq = remaining
	handler := b.handler
	b.mu.Unlock()

	if handler == nil {
		return
	}
	for _, update := range updates {
		handler(update)
	}
}

// RestingOrders returns the number of orders awaiting execution.
func (b *Broker) RestingOrders() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}
