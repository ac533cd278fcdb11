package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/algo-engine/internal/engine"
	"github.com/tathienbao/algo-engine/internal/feed"
	"github.com/tathienbao/algo-engine/internal/ledger"
	"github.com/tathienbao/algo-engine/internal/match"
	"github.com/tathienbao/algo-engine/internal/monitor"
	"github.com/tathienbao/algo-engine/internal/types"
)

var start = time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)

func flatBar(i int, price float64) types.MarketEvent {
	p := decimal.NewFromFloat(price)
	return types.MarketEvent{
		Kind:       types.EventBar,
		Instrument: "INFY",
		Timestamp:  start.Add(time.Duration(i) * time.Minute),
		Open:       p,
		High:       p,
		Low:        p,
		Close:      p,
		Volume:     1000,
	}
}

// scripted emits pre-planned signals at fixed bar indices.
type scripted struct {
	signals map[int][]types.Signal
	bar     int
}

func (s *scripted) OnMarketEvent(_ context.Context, event types.MarketEvent) []types.Signal {
	out := s.signals[s.bar]
	s.bar++
	for i := range out {
		out[i].Timestamp = event.Timestamp
		out[i].Instrument = event.Instrument
	}
	return out
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) Reset()       { s.bar = 0 }

func newBacktest(t *testing.T, events []types.MarketEvent, strat *scripted) (*Runner, *ledger.Ledger) {
	t.Helper()

	led := ledger.New(decimal.NewFromInt(100000), nil)
	coord := engine.NewCoordinator(
		engine.Config{Reversal: engine.ReversalNetOut},
		match.NewEngine(nil, nil),
		monitor.New(monitor.Config{}),
		led,
		nil,
		nil,
		nil,
	)
	runner := NewRunner(
		Config{Instrument: "INFY"},
		feed.NewMemoryFeed(events),
		strat,
		coord,
		led,
		nil,
	)
	return runner, led
}

func TestRunnerRoundTrip(t *testing.T) {
	events := []types.MarketEvent{
		flatBar(0, 50), // BUY 100 signal here
		flatBar(1, 50), // entry fills at 50
		flatBar(2, 55),
		flatBar(3, 55), // SELL 200 signal here
		flatBar(4, 60), // reversal fills at 60
		flatBar(5, 58),
	}
	strat := &scripted{signals: map[int][]types.Signal{
		0: {{ID: "s1", StrategyID: "scripted", Action: types.ActionBuy, OrderType: types.OrderTypeMarket, Quantity: 100}},
		3: {{ID: "s2", StrategyID: "scripted", Action: types.ActionSell, OrderType: types.OrderTypeMarket, Quantity: 200}},
	}}
	runner, led := newBacktest(t, events, strat)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Events != 6 {
		t.Errorf("events = %d, want 6", result.Events)
	}
	if len(result.Fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(result.Fills))
	}
	// Entry at 50, net-out reversal at 60 realizes (60-50)*100.
	if !led.RealizedPnL().Equal(decimal.NewFromInt(1000)) {
		t.Errorf("realized = %s, want 1000", led.RealizedPnL())
	}
	if result.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1", result.TotalTrades)
	}
	if !result.Trades[0].NetPL.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("trade NetPL = %s, want 1000", result.Trades[0].NetPL)
	}
	if result.WinningTrades != 1 || result.LosingTrades != 0 {
		t.Errorf("wins/losses = %d/%d", result.WinningTrades, result.LosingTrades)
	}

	// Ending state: short 100 from 60, marked at 58.
	pos, ok := led.Position("INFY")
	if !ok || pos.Quantity != -100 {
		t.Fatalf("position = %+v, want short 100", pos)
	}
	want := decimal.NewFromInt(101200)
	if !result.EndEquity.Equal(want) {
		t.Errorf("end equity = %s, want %s", result.EndEquity, want)
	}
	if !result.TotalReturn.Equal(decimal.NewFromFloat(0.012)) {
		t.Errorf("total return = %s, want 0.012", result.TotalReturn)
	}
	if len(result.EquityCurve) != 6 {
		t.Errorf("equity curve = %d points, want 6", len(result.EquityCurve))
	}
}

func TestRunnerTimeFilters(t *testing.T) {
	events := []types.MarketEvent{
		flatBar(0, 50),
		flatBar(1, 50),
		flatBar(2, 50),
		flatBar(3, 50),
	}
	strat := &scripted{signals: map[int][]types.Signal{}}
	runner, _ := newBacktest(t, events, strat)
	runner.cfg.StartTime = start.Add(1 * time.Minute)
	runner.cfg.EndTime = start.Add(2 * time.Minute)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Events != 2 {
		t.Errorf("events = %d, want 2 within window", result.Events)
	}
}

func TestRunnerSurvivesBadSignals(t *testing.T) {
	events := []types.MarketEvent{
		flatBar(0, 50),
		flatBar(1, 50),
	}
	strat := &scripted{signals: map[int][]types.Signal{
		0: {{ID: "bad", Action: types.ActionBuy, OrderType: types.OrderTypeMarket, Quantity: 0}},
	}}
	runner, led := newBacktest(t, events, strat)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run aborted on a strategy defect: %v", err)
	}
	if len(result.Fills) != 0 {
		t.Errorf("fills = %d, want 0", len(result.Fills))
	}
	if err := led.CheckInvariant(); err != nil {
		t.Errorf("invariant: %v", err)
	}
}

func TestRunnerContextCancellation(t *testing.T) {
	events := make([]types.MarketEvent, 100)
	for i := range events {
		events[i] = flatBar(i, 50)
	}
	runner, _ := newBacktest(t, events, &scripted{signals: map[int][]types.Signal{}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := runner.Run(ctx); err == nil {
		t.Error("expected context error")
	}
}
