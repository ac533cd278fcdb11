package paper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/algo-engine/internal/broker"
	"github.com/tathienbao/algo-engine/internal/match"
	"github.com/tathienbao/algo-engine/internal/types"
)

func newConnected(t *testing.T, cfg Config) *Broker {
	t.Helper()
	b, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return b
}

func pendingOrder(id string, qty int64) *types.Order {
	return &types.Order{
		ID:         id,
		Instrument: "INFY",
		Action:     types.ActionBuy,
		Type:       types.OrderTypeMarket,
		Quantity:   qty,
		Remaining:  qty,
		Status:     types.OrderStatusPending,
		CreatedAt:  time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC),
	}
}

func event(minutesAfter int, price float64) types.MarketEvent {
	p := decimal.NewFromFloat(price)
	return types.MarketEvent{
		Kind:       types.EventBar,
		Instrument: "INFY",
		Timestamp:  time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC).Add(time.Duration(minutesAfter) * time.Minute),
		Open:       p,
		High:       p,
		Low:        p,
		Close:      p,
	}
}

func TestSubmitAndFill(t *testing.T) {
	b := newConnected(t, Config{})

	var mu sync.Mutex
	var updates []broker.ExecutionUpdate
	b.SetExecutionHandler(func(u broker.ExecutionUpdate) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
	})

	if err := b.SubmitOrder(context.Background(), pendingOrder("o1", 100)); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if b.RestingOrders() != 1 {
		t.Fatalf("resting = %d, want 1", b.RestingOrders())
	}

	b.OnMarketEvent(event(1, 50))

	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updates))
	}
	fill := updates[0].Fill
	if fill == nil || fill.Quantity != 100 || !fill.Price.Equal(decimal.NewFromInt(50)) {
		t.Errorf("fill = %+v", fill)
	}
	if b.RestingOrders() != 0 {
		t.Error("filled order still resting")
	}
}

func TestFillsFollowSubmissionOrder(t *testing.T) {
	b := newConnected(t, Config{})
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	b.SetExecutionHandler(func(u broker.ExecutionUpdate) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, u.OrderID)
	})

	ids := []string{"o1", "o2", "o3"}
	for _, id := range ids {
		if err := b.SubmitOrder(ctx, pendingOrder(id, 10)); err != nil {
			t.Fatalf("SubmitOrder %s: %v", id, err)
		}
	}

	b.OnMarketEvent(event(1, 50))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("updates = %d, want 3", len(got))
	}
	for i, id := range ids {
		if got[i] != id {
			t.Fatalf("fill order = %v, want %v", got, ids)
		}
	}
}

func TestSubmitRequiresConnection(t *testing.T) {
	b, err := New(Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SubmitOrder(context.Background(), pendingOrder("o1", 1)); !errors.Is(err, broker.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestCancelRestingOrder(t *testing.T) {
	b := newConnected(t, Config{})
	ctx := context.Background()

	if err := b.SubmitOrder(ctx, pendingOrder("o1", 100)); err != nil {
		t.Fatal(err)
	}
	if err := b.CancelOrder(ctx, "o1"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if err := b.CancelOrder(ctx, "o1"); !errors.Is(err, broker.ErrUnknownOrder) {
		t.Errorf("repeat cancel err = %v, want ErrUnknownOrder", err)
	}

	// Cancelled order never fills.
	b.SetExecutionHandler(func(broker.ExecutionUpdate) {
		t.Error("cancelled order produced a fill")
	})
	b.OnMarketEvent(event(1, 50))
}

func TestCommissionAndSlippageApplied(t *testing.T) {
	b := newConnected(t, Config{
		Slippage:   match.SlippageConfig{Model: "percent", Percent: decimal.NewFromInt(1)},
		Commission: match.CommissionConfig{Model: "per_unit", Amount: decimal.NewFromFloat(0.5)},
	})

	var got *types.Fill
	b.SetExecutionHandler(func(u broker.ExecutionUpdate) { got = u.Fill })

	if err := b.SubmitOrder(context.Background(), pendingOrder("o1", 10)); err != nil {
		t.Fatal(err)
	}
	b.OnMarketEvent(event(1, 100))

	if got == nil {
		t.Fatal("no fill")
	}
	// Buy slips up 1%: 101. Commission 10 * 0.5 = 5.
	if !got.Price.Equal(decimal.NewFromInt(101)) {
		t.Errorf("price = %s, want 101", got.Price)
	}
	if !got.Commission.Equal(decimal.NewFromInt(5)) {
		t.Errorf("commission = %s, want 5", got.Commission)
	}
}

func TestRateLimiterThrottles(t *testing.T) {
	b := newConnected(t, Config{MaxOrdersPerSecond: 1000})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		order := pendingOrder("o", 1)
		order.ID = order.ID + string(rune('0'+i))
		if err := b.SubmitOrder(ctx, order); err != nil {
			t.Fatalf("SubmitOrder %d: %v", i, err)
		}
	}
	// Burst capacity covers these; just assert no pathological stall.
	if time.Since(start) > time.Second {
		t.Error("rate limiter stalled a burst within capacity")
	}

	// A cancelled context surfaces as a rate limit error once the
	// burst is exhausted.
	ctxCancelled, cancel := context.WithCancel(ctx)
	cancel()
	b2 := newConnected(t, Config{MaxOrdersPerSecond: 1})
	_ = b2.SubmitOrder(context.Background(), pendingOrder("warm", 1)) // consume the burst
	if err := b2.SubmitOrder(ctxCancelled, pendingOrder("x", 1)); !errors.Is(err, broker.ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}

func TestDisconnectDropsOrders(t *testing.T) {
	b := newConnected(t, Config{})
	if err := b.SubmitOrder(context.Background(), pendingOrder("o1", 1)); err != nil {
		t.Fatal(err)
	}
	if err := b.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if b.RestingOrders() != 0 {
		t.Error("orders survived disconnect")
	}
	if b.IsConnected() {
		t.Error("still connected")
	}
}
