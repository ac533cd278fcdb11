package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/algo-engine/internal/alerting"
	"github.com/tathienbao/algo-engine/internal/ledger"
	"github.com/tathienbao/algo-engine/internal/match"
	"github.com/tathienbao/algo-engine/internal/monitor"
	"github.com/tathienbao/algo-engine/internal/risk"
	"github.com/tathienbao/algo-engine/internal/types"
)

var t0 = time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)

type fixture struct {
	coord   *Coordinator
	ledger  *ledger.Ledger
	alerter *alerting.MockAlerter
}

func newFixture(t *testing.T, cfg Config, validator risk.Validator, monCfg monitor.Config) *fixture {
	t.Helper()

	led := ledger.New(decimal.NewFromInt(100000), nil)
	mock := alerting.NewMockAlerter()
	coord := NewCoordinator(
		cfg,
		match.NewEngine(nil, nil),
		monitor.New(monCfg),
		led,
		validator,
		mock,
		nil,
	)
	return &fixture{coord: coord, ledger: led, alerter: mock}
}

func bar(minutesAfter int, open, high, low, close float64) types.MarketEvent {
	return types.MarketEvent{
		Kind:       types.EventBar,
		Instrument: "INFY",
		Timestamp:  t0.Add(time.Duration(minutesAfter) * time.Minute),
		Open:       decimal.NewFromFloat(open),
		High:       decimal.NewFromFloat(high),
		Low:        decimal.NewFromFloat(low),
		Close:      decimal.NewFromFloat(close),
		Volume:     1000,
	}
}

func marketSignal(id string, action types.Action, qty int64) types.Signal {
	return types.Signal{
		ID:         id,
		StrategyID: "test",
		Timestamp:  t0,
		Instrument: "INFY",
		Action:     action,
		OrderType:  types.OrderTypeMarket,
		Quantity:   qty,
	}
}

// openLong opens a long position of qty at the given price.
func (f *fixture) openLong(t *testing.T, qty int64, price float64) {
	t.Helper()
	ctx := context.Background()

	outcome, err := f.coord.ProcessSignal(ctx, marketSignal("open-"+t.Name(), types.ActionBuy, qty))
	if err != nil || outcome.Kind != OutcomeCreated {
		t.Fatalf("open signal: outcome=%s err=%v", outcome.Kind, err)
	}
	fills, err := f.coord.OnMarketEvent(ctx, bar(1, price, price, price, price))
	if err != nil {
		t.Fatalf("open event: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("open fills = %d, want 1", len(fills))
	}
}

func TestProcessSignalValidation(t *testing.T) {
	f := newFixture(t, Config{}, nil, monitor.Config{})
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*types.Signal)
	}{
		{"zero quantity", func(s *types.Signal) { s.Quantity = 0 }},
		{"negative quantity", func(s *types.Signal) { s.Quantity = -5 }},
		{"missing instrument", func(s *types.Signal) { s.Instrument = "" }},
		{"limit without price", func(s *types.Signal) { s.OrderType = types.OrderTypeLimit }},
		{"market with limit price", func(s *types.Signal) {
			s.LimitPrice = decimal.NewFromInt(50)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := marketSignal("s1", types.ActionBuy, 100)
			tt.mutate(&signal)

			outcome, err := f.coord.ProcessSignal(ctx, signal)
			if !errors.Is(err, types.ErrInvalidSignal) {
				t.Errorf("err = %v, want ErrInvalidSignal", err)
			}
			if outcome.Kind != OutcomeValidationError {
				t.Errorf("outcome = %s, want VALIDATION_ERROR", outcome.Kind)
			}
		})
	}

	if f.coord.Book().Len() != 0 {
		t.Errorf("book has %d orders after rejected signals", f.coord.Book().Len())
	}
}

func TestProcessSignalCreatesPendingOrder(t *testing.T) {
	f := newFixture(t, Config{}, nil, monitor.Config{})

	outcome, err := f.coord.ProcessSignal(context.Background(), marketSignal("s1", types.ActionBuy, 100))
	if err != nil {
		t.Fatalf("ProcessSignal: %v", err)
	}
	if outcome.Kind != OutcomeCreated || len(outcome.Orders) != 1 {
		t.Fatalf("outcome = %s with %d orders", outcome.Kind, len(outcome.Orders))
	}

	order := outcome.Orders[0]
	if order.Status != types.OrderStatusPending {
		t.Errorf("status = %s, want PENDING", order.Status)
	}
	if got, ok := f.coord.Book().Get(order.ID); !ok || got.ID != order.ID {
		t.Error("order not in book")
	}
}

func TestNoLookahead(t *testing.T) {
	f := newFixture(t, Config{}, nil, monitor.Config{})
	ctx := context.Background()

	if _, err := f.coord.ProcessSignal(ctx, marketSignal("s1", types.ActionBuy, 100)); err != nil {
		t.Fatal(err)
	}

	// Event at the signal's own timestamp must not fill.
	sameBar := bar(0, 50, 51, 49, 50)
	fills, err := f.coord.OnMarketEvent(ctx, sameBar)
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 0 {
		t.Fatalf("order filled on its creation bar")
	}

	// The next event fills at its open.
	fills, err = f.coord.OnMarketEvent(ctx, bar(1, 52, 53, 51, 52))
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	if !fills[0].Price.Equal(decimal.NewFromInt(52)) {
		t.Errorf("fill price = %s, want 52", fills[0].Price)
	}

	pos, ok := f.ledger.Position("INFY")
	if !ok || pos.Quantity != 100 {
		t.Fatalf("position after fill = %+v", pos)
	}
}

func TestPyramidingDisabled(t *testing.T) {
	f := newFixture(t, Config{}, nil, monitor.Config{})
	f.openLong(t, 100, 50)

	outcome, err := f.coord.ProcessSignal(context.Background(), marketSignal("s2", types.ActionBuy, 50))
	if err != nil {
		t.Fatalf("ProcessSignal: %v", err)
	}
	if outcome.Kind != OutcomeIgnoredNoPyramiding {
		t.Errorf("outcome = %s, want IGNORED_NO_PYRAMIDING", outcome.Kind)
	}
	if f.coord.Book().Len() != 0 {
		t.Error("ignored signal left an order in the book")
	}
}

func TestPyramidingMaxEntries(t *testing.T) {
	f := newFixture(t, Config{PyramidingEnabled: true, MaxPyramidEntries: 2}, nil, monitor.Config{})
	ctx := context.Background()
	f.openLong(t, 100, 50)

	// Second entry allowed.
	outcome, err := f.coord.ProcessSignal(ctx, marketSignal("s2", types.ActionBuy, 50))
	if err != nil || outcome.Kind != OutcomeCreated {
		t.Fatalf("second entry: outcome=%s err=%v", outcome.Kind, err)
	}
	if _, err := f.coord.OnMarketEvent(ctx, bar(2, 52, 52, 52, 52)); err != nil {
		t.Fatal(err)
	}

	pos, _ := f.ledger.Position("INFY")
	if pos.Quantity != 150 || pos.Entries != 2 {
		t.Fatalf("position = qty %d entries %d", pos.Quantity, pos.Entries)
	}

	// Third entry hits the cap.
	outcome, err = f.coord.ProcessSignal(ctx, marketSignal("s3", types.ActionBuy, 50))
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != OutcomeIgnoredNoPyramiding {
		t.Errorf("outcome = %s, want IGNORED_NO_PYRAMIDING", outcome.Kind)
	}
}

func TestReversalNetOut(t *testing.T) {
	f := newFixture(t, Config{Reversal: ReversalNetOut}, nil, monitor.Config{})
	ctx := context.Background()
	f.openLong(t, 100, 50)

	outcome, err := f.coord.ProcessSignal(ctx, marketSignal("s2", types.ActionSell, 150))
	if err != nil || outcome.Kind != OutcomeCreated {
		t.Fatalf("reversal: outcome=%s err=%v", outcome.Kind, err)
	}
	if len(outcome.Orders) != 1 {
		t.Fatalf("net-out created %d orders, want 1", len(outcome.Orders))
	}

	fills, err := f.coord.OnMarketEvent(ctx, bar(2, 55, 55, 55, 55))
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}

	pos, ok := f.ledger.Position("INFY")
	if !ok || pos.Quantity != -50 {
		t.Fatalf("position = %+v, want short 50", pos)
	}
	if !pos.AvgEntryPrice.Equal(decimal.NewFromInt(55)) {
		t.Errorf("avg entry = %s, want 55", pos.AvgEntryPrice)
	}
	// Realized on the closed 100: (55-50)*100.
	if !f.ledger.RealizedPnL().Equal(decimal.NewFromInt(500)) {
		t.Errorf("realized = %s, want 500", f.ledger.RealizedPnL())
	}
}

func TestReversalNetOutExactFlattenRejected(t *testing.T) {
	f := newFixture(t, Config{Reversal: ReversalNetOut}, nil, monitor.Config{})
	f.openLong(t, 100, 50)

	outcome, err := f.coord.ProcessSignal(context.Background(), marketSignal("s2", types.ActionSell, 100))
	if !errors.Is(err, types.ErrInvalidReversal) {
		t.Errorf("err = %v, want ErrInvalidReversal", err)
	}
	if outcome.Kind != OutcomeInvalidReversal {
		t.Errorf("outcome = %s, want INVALID_REVERSAL", outcome.Kind)
	}
	if f.coord.Book().Len() != 0 {
		t.Error("invalid reversal left orders in the book")
	}
}

func TestReversalSquareThenOpen(t *testing.T) {
	f := newFixture(t, Config{Reversal: ReversalSquareThenOpen}, nil, monitor.Config{})
	ctx := context.Background()
	f.openLong(t, 100, 50)

	outcome, err := f.coord.ProcessSignal(ctx, marketSignal("s2", types.ActionSell, 150))
	if err != nil || outcome.Kind != OutcomeCreated {
		t.Fatalf("reversal: outcome=%s err=%v", outcome.Kind, err)
	}
	if len(outcome.Orders) != 2 {
		t.Fatalf("square-then-open created %d orders, want 2", len(outcome.Orders))
	}
	if !outcome.Orders[0].ReduceOnly || outcome.Orders[0].Quantity != 100 {
		t.Errorf("square leg = %+v", outcome.Orders[0])
	}
	if outcome.Orders[1].ReduceOnly || outcome.Orders[1].Quantity != 150 {
		t.Errorf("open leg = %+v", outcome.Orders[1])
	}

	fills, err := f.coord.OnMarketEvent(ctx, bar(2, 55, 55, 55, 55))
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 2 {
		t.Fatalf("fills = %d, want 2 sequential fills", len(fills))
	}
	if !fills[0].ReduceOnly {
		t.Error("flatten did not settle first")
	}

	pos, ok := f.ledger.Position("INFY")
	if !ok || pos.Quantity != -150 {
		t.Fatalf("position = %+v, want short 150", pos)
	}
}

func TestRiskRejection(t *testing.T) {
	validator := risk.NewEngine(risk.Config{MaxOrderQuantity: 10}, nil)
	f := newFixture(t, Config{}, validator, monitor.Config{})

	outcome, err := f.coord.ProcessSignal(context.Background(), marketSignal("s1", types.ActionBuy, 100))
	if err != nil {
		t.Fatalf("ProcessSignal: %v", err)
	}
	if outcome.Kind != OutcomeRejectedByRisk {
		t.Fatalf("outcome = %s, want REJECTED_BY_RISK", outcome.Kind)
	}
	if f.coord.Book().Len() != 0 {
		t.Error("rejected order entered the book")
	}
	if outcome.Orders[0].Status != types.OrderStatusRejected {
		t.Errorf("order status = %s, want REJECTED", outcome.Orders[0].Status)
	}
	if !f.alerter.HasAlertWithSeverity(alerting.SeverityWarning) {
		t.Error("no warning alert for risk rejection")
	}
}

func TestStopLossTrigger(t *testing.T) {
	f := newFixture(t, Config{}, nil, monitor.Config{})
	ctx := context.Background()

	signal := marketSignal("s1", types.ActionBuy, 100)
	signal.StopLossPrice = decimal.NewFromInt(48)
	signal.TargetPrice = decimal.NewFromInt(60)
	if _, err := f.coord.ProcessSignal(ctx, signal); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.OnMarketEvent(ctx, bar(1, 50, 50, 50, 50)); err != nil {
		t.Fatal(err)
	}

	// Bar trades through the stop.
	fills, err := f.coord.OnMarketEvent(ctx, bar(2, 49, 49.5, 47, 47.5))
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1 closure", len(fills))
	}
	if fills[0].Reason != "stop_loss" {
		t.Errorf("reason = %q, want stop_loss", fills[0].Reason)
	}
	if !fills[0].Price.Equal(decimal.NewFromInt(48)) {
		t.Errorf("closure price = %s, want the stop 48", fills[0].Price)
	}
	if _, ok := f.ledger.Position("INFY"); ok {
		t.Error("position still open after stop")
	}
}

func TestStopWithinEntryBar(t *testing.T) {
	f := newFixture(t, Config{}, nil, monitor.Config{})
	ctx := context.Background()

	signal := marketSignal("s1", types.ActionBuy, 100)
	signal.StopLossPrice = decimal.NewFromInt(48)
	if _, err := f.coord.ProcessSignal(ctx, signal); err != nil {
		t.Fatal(err)
	}

	// Entry fills at the open, and the same bar's low takes out the stop.
	fills, err := f.coord.OnMarketEvent(ctx, bar(1, 50, 51, 47, 49))
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 2 {
		t.Fatalf("fills = %d, want entry + stop", len(fills))
	}
	if fills[1].Reason != "stop_loss" {
		t.Errorf("second fill reason = %q", fills[1].Reason)
	}
	if _, ok := f.ledger.Position("INFY"); ok {
		t.Error("position survived its entry bar stop")
	}
}

func TestDefaultExitLevels(t *testing.T) {
	cfg := Config{
		DefaultStopPct:   decimal.NewFromInt(2),
		DefaultTargetPct: decimal.NewFromInt(4),
	}
	f := newFixture(t, cfg, nil, monitor.Config{})
	f.openLong(t, 100, 100)

	pos, ok := f.ledger.Position("INFY")
	if !ok {
		t.Fatal("no position")
	}
	if !pos.StopLossPrice.Equal(decimal.NewFromInt(98)) {
		t.Errorf("stop = %s, want 98", pos.StopLossPrice)
	}
	if !pos.TargetPrice.Equal(decimal.NewFromInt(104)) {
		t.Errorf("target = %s, want 104", pos.TargetPrice)
	}
}

func TestNetOutReductionKeepsExitLevels(t *testing.T) {
	cfg := Config{
		Reversal:       ReversalNetOut,
		DefaultStopPct: decimal.NewFromInt(2),
	}
	f := newFixture(t, cfg, nil, monitor.Config{})
	ctx := context.Background()
	f.openLong(t, 100, 50)

	// SELL 40 partially reduces the long; it must not attach a
	// short-direction stop above the market to the surviving 60.
	if _, err := f.coord.ProcessSignal(ctx, marketSignal("s2", types.ActionSell, 40)); err != nil {
		t.Fatal(err)
	}
	fills, err := f.coord.OnMarketEvent(ctx, bar(2, 55, 55, 55, 55))
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1 (reduction only, no stop closure)", len(fills))
	}

	pos, ok := f.ledger.Position("INFY")
	if !ok || pos.Quantity != 60 {
		t.Fatalf("position = %+v, want long 60", pos)
	}
	// Entry levels from the 50 fill survive the reduction.
	if !pos.StopLossPrice.Equal(decimal.NewFromInt(49)) {
		t.Errorf("stop = %s, want 49", pos.StopLossPrice)
	}
}

func TestNetOutCrossingAttachesNewLevels(t *testing.T) {
	cfg := Config{
		Reversal:       ReversalNetOut,
		DefaultStopPct: decimal.NewFromInt(2),
	}
	f := newFixture(t, cfg, nil, monitor.Config{})
	ctx := context.Background()
	f.openLong(t, 100, 50)

	// SELL 150 crosses into a short 50; the new position gets a
	// short-direction stop anchored at the crossing fill price.
	if _, err := f.coord.ProcessSignal(ctx, marketSignal("s2", types.ActionSell, 150)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.OnMarketEvent(ctx, bar(2, 55, 55, 55, 55)); err != nil {
		t.Fatal(err)
	}

	pos, ok := f.ledger.Position("INFY")
	if !ok || pos.Quantity != -50 {
		t.Fatalf("position = %+v, want short 50", pos)
	}
	if !pos.StopLossPrice.Equal(decimal.NewFromFloat(56.1)) {
		t.Errorf("stop = %s, want 56.1", pos.StopLossPrice)
	}
}

func TestEndOfDayClosure(t *testing.T) {
	monCfg := monitor.Config{
		EODEnabled: true,
		EODCutoff:  monitor.TimeOfDay{Hour: 15, Minute: 15},
	}
	f := newFixture(t, Config{CancelOpenOrdersAtEOD: true}, nil, monCfg)
	ctx := context.Background()
	f.openLong(t, 100, 50)

	// A pending limit order far from the market: it never fills and
	// should be swept by the EOD cancel.
	limit := marketSignal("s2", types.ActionSell, 10)
	limit.OrderType = types.OrderTypeLimit
	limit.LimitPrice = decimal.NewFromInt(1000)
	if _, err := f.coord.ProcessSignal(ctx, limit); err != nil {
		t.Fatal(err)
	}

	// 15:20 bar crosses the cutoff.
	eodBar := bar(0, 52, 52, 52, 52)
	eodBar.Timestamp = time.Date(2026, 1, 5, 15, 20, 0, 0, time.UTC)
	fills, err := f.coord.OnMarketEvent(ctx, eodBar)
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1 EOD closure", len(fills))
	}
	if fills[0].Reason != "end_of_day" {
		t.Errorf("reason = %q", fills[0].Reason)
	}
	if !fills[0].Price.Equal(decimal.NewFromInt(52)) {
		t.Errorf("EOD fill price = %s, want the bar open 52", fills[0].Price)
	}
	if _, ok := f.ledger.Position("INFY"); ok {
		t.Error("position open past EOD")
	}
	if f.coord.Book().Len() != 0 {
		t.Error("pending order survived the EOD sweep")
	}
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t, Config{}, nil, monitor.Config{})
	ctx := context.Background()

	outcome, err := f.coord.ProcessSignal(ctx, marketSignal("s1", types.ActionBuy, 100))
	if err != nil {
		t.Fatal(err)
	}
	orderID := outcome.Orders[0].ID

	if err := f.coord.CancelOrder(orderID); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	if f.coord.Book().Len() != 0 {
		t.Error("cancelled order still in book")
	}
	// Second cancel is idempotent.
	if err := f.coord.CancelOrder(orderID); err != nil {
		t.Errorf("repeat cancel: %v", err)
	}

	if err := f.coord.CancelOrder("nope"); !errors.Is(err, types.ErrOrderNotFound) {
		t.Errorf("unknown order err = %v", err)
	}

	// Cancel racing a completed fill is a no-op.
	outcome, err = f.coord.ProcessSignal(ctx, marketSignal("s2", types.ActionBuy, 100))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.OnMarketEvent(ctx, bar(1, 50, 50, 50, 50)); err != nil {
		t.Fatal(err)
	}
	if err := f.coord.CancelOrder(outcome.Orders[0].ID); !errors.Is(err, types.ErrStaleCancel) {
		t.Errorf("cancel after fill err = %v, want ErrStaleCancel", err)
	}
}

func TestLiveModeFillsComeFromVenueOnly(t *testing.T) {
	f := newFixture(t, Config{LiveMode: true}, nil, monitor.Config{})
	ctx := context.Background()

	outcome, err := f.coord.ProcessSignal(ctx, marketSignal("s1", types.ActionBuy, 100))
	if err != nil || outcome.Kind != OutcomeCreated {
		t.Fatalf("outcome=%s err=%v", outcome.Kind, err)
	}

	// Market data alone never fills a live order.
	fills, err := f.coord.OnMarketEvent(ctx, bar(1, 50, 51, 49, 50))
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 0 {
		t.Fatalf("fills = %d, want 0", len(fills))
	}
	if outcome.Orders[0].Status != types.OrderStatusPending {
		t.Errorf("status = %s, want PENDING", outcome.Orders[0].Status)
	}
}

func TestOnExecutionUpdatePartialFills(t *testing.T) {
	f := newFixture(t, Config{LiveMode: true}, nil, monitor.Config{})
	ctx := context.Background()

	outcome, err := f.coord.ProcessSignal(ctx, marketSignal("s1", types.ActionBuy, 100))
	if err != nil {
		t.Fatal(err)
	}
	order := outcome.Orders[0]

	partial := types.Fill{
		TradeID:    "t1",
		OrderID:    order.ID,
		Instrument: "INFY",
		Action:     types.ActionBuy,
		Quantity:   60,
		Price:      decimal.NewFromInt(50),
		Timestamp:  t0.Add(time.Minute),
	}
	if err := f.coord.OnExecutionUpdate(ctx, ExecutionUpdate{OrderID: order.ID, Fill: &partial}); err != nil {
		t.Fatalf("partial fill: %v", err)
	}
	if order.Status != types.OrderStatusPartiallyFilled || order.Remaining != 40 {
		t.Fatalf("after partial: status=%s remaining=%d", order.Status, order.Remaining)
	}

	// Redelivery of the same trade id changes nothing.
	if err := f.coord.OnExecutionUpdate(ctx, ExecutionUpdate{OrderID: order.ID, Fill: &partial}); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	pos, _ := f.ledger.Position("INFY")
	if pos.Quantity != 60 {
		t.Fatalf("redelivered fill changed position to %d", pos.Quantity)
	}

	rest := partial
	rest.TradeID = "t2"
	rest.Quantity = 40
	if err := f.coord.OnExecutionUpdate(ctx, ExecutionUpdate{OrderID: order.ID, Fill: &rest}); err != nil {
		t.Fatalf("final fill: %v", err)
	}
	if order.Status != types.OrderStatusFilled {
		t.Errorf("status = %s, want FILLED", order.Status)
	}
	pos, _ = f.ledger.Position("INFY")
	if pos.Quantity != 100 {
		t.Errorf("position = %d, want 100", pos.Quantity)
	}

	// A venue retry of the final fill arrives with Remaining already
	// zero; it is dropped, not treated as an overfill.
	if err := f.coord.OnExecutionUpdate(ctx, ExecutionUpdate{OrderID: order.ID, Fill: &rest}); err != nil {
		t.Fatalf("redelivery after completion: %v", err)
	}
	pos, _ = f.ledger.Position("INFY")
	if pos.Quantity != 100 {
		t.Errorf("redelivered final fill changed position to %d", pos.Quantity)
	}

	// A further fill would overfill.
	over := partial
	over.TradeID = "t3"
	over.Quantity = 1
	if err := f.coord.OnExecutionUpdate(ctx, ExecutionUpdate{OrderID: order.ID, Fill: &over}); !errors.Is(err, types.ErrInvalidFill) {
		t.Errorf("overfill err = %v, want ErrInvalidFill", err)
	}
}

func TestOnExecutionUpdateRejection(t *testing.T) {
	f := newFixture(t, Config{LiveMode: true}, nil, monitor.Config{})
	ctx := context.Background()

	outcome, err := f.coord.ProcessSignal(ctx, marketSignal("s1", types.ActionBuy, 100))
	if err != nil {
		t.Fatal(err)
	}
	order := outcome.Orders[0]

	update := ExecutionUpdate{OrderID: order.ID, Rejected: true, Reason: "margin"}
	if err := f.coord.OnExecutionUpdate(ctx, update); err != nil {
		t.Fatalf("rejection: %v", err)
	}
	if order.Status != types.OrderStatusRejected {
		t.Errorf("status = %s, want REJECTED", order.Status)
	}
	if f.coord.Book().Len() != 0 {
		t.Error("rejected order still in book")
	}

	unknown := ExecutionUpdate{OrderID: "nope", Rejected: true}
	if err := f.coord.OnExecutionUpdate(ctx, unknown); !errors.Is(err, types.ErrOrderNotFound) {
		t.Errorf("unknown order err = %v", err)
	}
}

func TestFillHandlerObservesFills(t *testing.T) {
	f := newFixture(t, Config{}, nil, monitor.Config{})

	var seen []types.Fill
	f.coord.SetFillHandler(func(fill types.Fill) {
		seen = append(seen, fill)
	})

	f.openLong(t, 100, 50)
	if len(seen) != 1 || seen[0].Quantity != 100 {
		t.Fatalf("handler saw %d fills", len(seen))
	}
}
