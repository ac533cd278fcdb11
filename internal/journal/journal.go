// Package journal provides durable trade journaling: every order,
// fill, and equity snapshot the engine produces can be written to a
// local database for later review and recovery.
package journal

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tathienbao/algo-engine/internal/types"
)

// Journal defines the interface for trade journaling.
type Journal interface {
	// Order operations
	RecordOrder(ctx context.Context, order *types.Order) error
	UpdateOrder(ctx context.Context, order *types.Order) error
	OpenOrders(ctx context.Context) ([]types.Order, error)

	// Fill operations
	RecordFill(ctx context.Context, fill types.Fill) error
	Fills(ctx context.Context, instrument string, limit int) ([]types.Fill, error)

	// Equity operations
	RecordEquity(ctx context.Context, snapshot EquitySnapshot) error
	LatestEquity(ctx context.Context) (*EquitySnapshot, error)
	EquityHistory(ctx context.Context, from, to time.Time) ([]EquitySnapshot, error)

	// Daily summary operations
	RecordDailySummary(ctx context.Context, summary DailySummary) error
	DailySummaries(ctx context.Context, from, to time.Time) ([]DailySummary, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// EquitySnapshot is a persisted point-in-time portfolio valuation.
type EquitySnapshot struct {
	ID            int64
	Timestamp     time.Time
	Equity        decimal.Decimal
	Cash          decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	HighWaterMark decimal.Decimal
	Drawdown      decimal.Decimal
	OpenPositions int
}

// SnapshotFrom converts a portfolio snapshot into its persisted form.
func SnapshotFrom(s types.Snapshot) EquitySnapshot {
	drawdown := decimal.Zero
	if s.HighWaterMark.IsPositive() {
		drawdown = s.HighWaterMark.Sub(s.Equity).Div(s.HighWaterMark)
	}
	open := 0
	for _, p := range s.Positions {
		if p.Quantity != 0 {
			open++
		}
	}
	return EquitySnapshot{
		Timestamp:     s.Timestamp,
		Equity:        s.Equity,
		Cash:          s.Cash,
		RealizedPnL:   s.RealizedPnL,
		UnrealizedPnL: s.UnrealizedPnL,
		HighWaterMark: s.HighWaterMark,
		Drawdown:      drawdown,
		OpenPositions: open,
	}
}

// DailySummary aggregates one trading day.
type DailySummary struct {
	ID          int64
	Date        time.Time
	Fills       int
	Trades      int
	GrossPL     decimal.Decimal
	Commissions decimal.Decimal
	NetPL       decimal.Decimal
	EquityClose decimal.Decimal
}

// Nop is a Journal that records nothing. Used when journaling is
// disabled in configuration.
type Nop struct{}

func (Nop) RecordOrder(context.Context, *types.Order) error { return nil }
func (Nop) UpdateOrder(context.Context, *types.Order) error { return nil }
func (Nop) OpenOrders(context.Context) ([]types.Order, error) {
	return nil, nil
}
func (Nop) RecordFill(context.Context, types.Fill) error { return nil }
func (Nop) Fills(context.Context, string, int) ([]types.Fill, error) {
	return nil, nil
}
func (Nop) RecordEquity(context.Context, EquitySnapshot) error { return nil }
func (Nop) LatestEquity(context.Context) (*EquitySnapshot, error) {
	return nil, nil
}
func (Nop) EquityHistory(context.Context, time.Time, time.Time) ([]EquitySnapshot, error) {
	return nil, nil
}
func (Nop) RecordDailySummary(context.Context, DailySummary) error { return nil }
func (Nop) DailySummaries(context.Context, time.Time, time.Time) ([]DailySummary, error) {
	return nil, nil
}
func (Nop) Close() error                  { return nil }
func (Nop) Migrate(context.Context) error { return nil }
