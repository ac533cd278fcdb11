package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tathienbao/algo-engine/internal/types"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite journal at path.
func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	j := &SQLiteJournal{db: db}

	if err := j.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return j, nil
}

// Migrate runs database migrations.
func (j *SQLiteJournal) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			signal_id TEXT,
			instrument TEXT NOT NULL,
			action TEXT NOT NULL,
			type TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			remaining INTEGER NOT NULL,
			limit_price TEXT,
			target_price TEXT,
			stop_loss_price TEXT,
			status TEXT NOT NULL,
			reduce_only INTEGER NOT NULL DEFAULT 0,
			reason TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_instrument ON orders(instrument)`,

		`CREATE TABLE IF NOT EXISTS fills (
			trade_id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			instrument TEXT NOT NULL,
			action TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price TEXT NOT NULL,
			commission TEXT NOT NULL DEFAULT '0',
			slippage TEXT NOT NULL DEFAULT '0',
			reduce_only INTEGER NOT NULL DEFAULT 0,
			reason TEXT,
			timestamp DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fills_instrument ON fills(instrument)`,
		`CREATE INDEX IF NOT EXISTS idx_fills_timestamp ON fills(timestamp)`,

		`CREATE TABLE IF NOT EXISTS equity_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			equity TEXT NOT NULL,
			cash TEXT NOT NULL,
			realized_pl TEXT NOT NULL DEFAULT '0',
			unrealized_pl TEXT NOT NULL DEFAULT '0',
			high_water_mark TEXT NOT NULL,
			drawdown TEXT NOT NULL DEFAULT '0',
			open_positions INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_equity_timestamp ON equity_snapshots(timestamp)`,

		`CREATE TABLE IF NOT EXISTS daily_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date DATE UNIQUE NOT NULL,
			fills INTEGER NOT NULL DEFAULT 0,
			trades INTEGER NOT NULL DEFAULT 0,
			gross_pl TEXT NOT NULL DEFAULT '0',
			commissions TEXT NOT NULL DEFAULT '0',
			net_pl TEXT NOT NULL DEFAULT '0',
			equity_close TEXT NOT NULL DEFAULT '0',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := j.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// RecordOrder inserts a newly created order.
func (j *SQLiteJournal) RecordOrder(ctx context.Context, order *types.Order) error {
	query := `INSERT INTO orders
		(id, signal_id, instrument, action, type, quantity, remaining, limit_price, target_price, stop_loss_price, status, reduce_only, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, query,
		order.ID,
		order.SignalID,
		order.Instrument,
		order.Action.String(),
		order.Type.String(),
		order.Quantity,
		order.Remaining,
		order.LimitPrice.String(),
		order.TargetPrice.String(),
		order.StopLossPrice.String(),
		order.Status.String(),
		boolToInt(order.ReduceOnly),
		order.Reason,
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

// UpdateOrder writes the order's current status and remaining quantity.
func (j *SQLiteJournal) UpdateOrder(ctx context.Context, order *types.Order) error {
	query := `UPDATE orders SET status = ?, remaining = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	res, err := j.db.ExecContext(ctx, query, order.Status.String(), order.Remaining, order.ID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update order %s: %w", order.ID, types.ErrOrderNotFound)
	}

	return nil
}

// OpenOrders returns orders still awaiting execution.
func (j *SQLiteJournal) OpenOrders(ctx context.Context) ([]types.Order, error) {
	query := `SELECT id, signal_id, instrument, action, type, quantity, remaining, limit_price, target_price, stop_loss_price, status, reduce_only, reason, created_at
		FROM orders WHERE status IN ('PENDING', 'PARTIALLY_FILLED') ORDER BY created_at`

	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []types.Order
	for rows.Next() {
		var o types.Order
		var action, typ, limitPrice, targetPrice, stopPrice, status string
		var reduceOnly int

		if err := rows.Scan(&o.ID, &o.SignalID, &o.Instrument, &action, &typ, &o.Quantity, &o.Remaining,
			&limitPrice, &targetPrice, &stopPrice, &status, &reduceOnly, &o.Reason, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		o.Action = parseAction(action)
		o.Type = parseOrderType(typ)
		o.Status = parseStatus(status)
		o.ReduceOnly = reduceOnly != 0
		o.LimitPrice, _ = decimal.NewFromString(limitPrice)
		o.TargetPrice, _ = decimal.NewFromString(targetPrice)
		o.StopLossPrice, _ = decimal.NewFromString(stopPrice)

		orders = append(orders, o)
	}

	return orders, rows.Err()
}

// RecordFill inserts a confirmed execution. Redelivered fills with a
// known trade ID are ignored, mirroring the ledger's dedupe.
func (j *SQLiteJournal) RecordFill(ctx context.Context, fill types.Fill) error {
	query := `INSERT OR IGNORE INTO fills
		(trade_id, order_id, instrument, action, quantity, price, commission, slippage, reduce_only, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, query,
		fill.TradeID,
		fill.OrderID,
		fill.Instrument,
		fill.Action.String(),
		fill.Quantity,
		fill.Price.String(),
		fill.Commission.String(),
		fill.Slippage.String(),
		boolToInt(fill.ReduceOnly),
		fill.Reason,
		fill.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert fill: %w", err)
	}

	return nil
}

// Fills returns the most recent fills for an instrument. An empty
// instrument returns fills across all instruments.
func (j *SQLiteJournal) Fills(ctx context.Context, instrument string, limit int) ([]types.Fill, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT trade_id, order_id, instrument, action, quantity, price, commission, slippage, reduce_only, reason, timestamp
		FROM fills WHERE (? = '' OR instrument = ?) ORDER BY timestamp DESC LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, instrument, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var fills []types.Fill
	for rows.Next() {
		var f types.Fill
		var action, price, commission, slippage string
		var reduceOnly int

		if err := rows.Scan(&f.TradeID, &f.OrderID, &f.Instrument, &action, &f.Quantity,
			&price, &commission, &slippage, &reduceOnly, &f.Reason, &f.Timestamp); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		f.Action = parseAction(action)
		f.ReduceOnly = reduceOnly != 0
		f.Price, _ = decimal.NewFromString(price)
		f.Commission, _ = decimal.NewFromString(commission)
		f.Slippage, _ = decimal.NewFromString(slippage)

		fills = append(fills, f)
	}

	return fills, rows.Err()
}

// RecordEquity inserts an equity snapshot.
func (j *SQLiteJournal) RecordEquity(ctx context.Context, snapshot EquitySnapshot) error {
	query := `INSERT INTO equity_snapshots
		(timestamp, equity, cash, realized_pl, unrealized_pl, high_water_mark, drawdown, open_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, query,
		snapshot.Timestamp,
		snapshot.Equity.String(),
		snapshot.Cash.String(),
		snapshot.RealizedPnL.String(),
		snapshot.UnrealizedPnL.String(),
		snapshot.HighWaterMark.String(),
		snapshot.Drawdown.String(),
		snapshot.OpenPositions,
	)
	if err != nil {
		return fmt.Errorf("insert equity snapshot: %w", err)
	}

	return nil
}

// LatestEquity returns the most recent equity snapshot, or nil if the
// journal is empty.
func (j *SQLiteJournal) LatestEquity(ctx context.Context) (*EquitySnapshot, error) {
	query := `SELECT id, timestamp, equity, cash, realized_pl, unrealized_pl, high_water_mark, drawdown, open_positions
		FROM equity_snapshots ORDER BY timestamp DESC, id DESC LIMIT 1`

	var s EquitySnapshot
	var equity, cash, realized, unrealized, hwm, dd string

	err := j.db.QueryRowContext(ctx, query).Scan(
		&s.ID, &s.Timestamp, &equity, &cash, &realized, &unrealized, &hwm, &dd, &s.OpenPositions,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query equity snapshot: %w", err)
	}

	s.Equity, _ = decimal.NewFromString(equity)
	s.Cash, _ = decimal.NewFromString(cash)
	s.RealizedPnL, _ = decimal.NewFromString(realized)
	s.UnrealizedPnL, _ = decimal.NewFromString(unrealized)
	s.HighWaterMark, _ = decimal.NewFromString(hwm)
	s.Drawdown, _ = decimal.NewFromString(dd)

	return &s, nil
}

// EquityHistory returns equity snapshots in a time range.
func (j *SQLiteJournal) EquityHistory(ctx context.Context, from, to time.Time) ([]EquitySnapshot, error) {
	query := `SELECT id, timestamp, equity, cash, realized_pl, unrealized_pl, high_water_mark, drawdown, open_positions
		FROM equity_snapshots WHERE timestamp BETWEEN ? AND ? ORDER BY timestamp`

	rows, err := j.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query equity history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshots []EquitySnapshot
	for rows.Next() {
		var s EquitySnapshot
		var equity, cash, realized, unrealized, hwm, dd string

		if err := rows.Scan(&s.ID, &s.Timestamp, &equity, &cash, &realized, &unrealized, &hwm, &dd, &s.OpenPositions); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		s.Equity, _ = decimal.NewFromString(equity)
		s.Cash, _ = decimal.NewFromString(cash)
		s.RealizedPnL, _ = decimal.NewFromString(realized)
		s.UnrealizedPnL, _ = decimal.NewFromString(unrealized)
		s.HighWaterMark, _ = decimal.NewFromString(hwm)
		s.Drawdown, _ = decimal.NewFromString(dd)

		snapshots = append(snapshots, s)
	}

	return snapshots, rows.Err()
}

// RecordDailySummary upserts the summary row for the summary's date.
func (j *SQLiteJournal) RecordDailySummary(ctx context.Context, summary DailySummary) error {
	query := `INSERT INTO daily_summaries (date, fills, trades, gross_pl, commissions, net_pl, equity_close)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			fills = excluded.fills,
			trades = excluded.trades,
			gross_pl = excluded.gross_pl,
			commissions = excluded.commissions,
			net_pl = excluded.net_pl,
			equity_close = excluded.equity_close`

	_, err := j.db.ExecContext(ctx, query,
		summary.Date.Format("2006-01-02"),
		summary.Fills,
		summary.Trades,
		summary.GrossPL.String(),
		summary.Commissions.String(),
		summary.NetPL.String(),
		summary.EquityClose.String(),
	)
	if err != nil {
		return fmt.Errorf("insert daily summary: %w", err)
	}

	return nil
}

// DailySummaries returns summaries in a date range.
func (j *SQLiteJournal) DailySummaries(ctx context.Context, from, to time.Time) ([]DailySummary, error) {
	query := `SELECT id, date, fills, trades, gross_pl, commissions, net_pl, equity_close
		FROM daily_summaries WHERE date BETWEEN ? AND ? ORDER BY date`

	rows, err := j.db.QueryContext(ctx, query, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("query daily summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []DailySummary
	for rows.Next() {
		var s DailySummary
		var date, grossPL, commissions, netPL, equityClose string

		if err := rows.Scan(&s.ID, &date, &s.Fills, &s.Trades, &grossPL, &commissions, &netPL, &equityClose); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		s.Date, _ = time.Parse("2006-01-02", date)
		s.GrossPL, _ = decimal.NewFromString(grossPL)
		s.Commissions, _ = decimal.NewFromString(commissions)
		s.NetPL, _ = decimal.NewFromString(netPL)
		s.EquityClose, _ = decimal.NewFromString(equityClose)

		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseAction(s string) types.Action {
	if s == "SELL" {
		return types.ActionSell
	}
	return types.ActionBuy
}

func parseOrderType(s string) types.OrderType {
	if s == "LIMIT" {
		return types.OrderTypeLimit
	}
	return types.OrderTypeMarket
}

func parseStatus(s string) types.OrderStatus {
	switch s {
	case "PARTIALLY_FILLED":
		return types.OrderStatusPartiallyFilled
	case "FILLED":
		return types.OrderStatusFilled
	case "CANCELLED":
		return types.OrderStatusCancelled
	case "REJECTED":
		return types.OrderStatusRejected
	default:
		return types.OrderStatusPending
	}
}
