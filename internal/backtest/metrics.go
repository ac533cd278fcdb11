package backtest

import (
	"math"

	"github.com/shopspring/decimal"
)

// Metrics computes performance statistics over the trades and equity
// curve of a finished backtest.
type Metrics struct {
	trades       []TradeRecord
	equityCurve  []EquityPoint
	riskFreeRate decimal.Decimal // annual, 0.05 = 5%
}

// NewMetrics creates a metrics calculator.
func NewMetrics(trades []TradeRecord, curve []EquityPoint, riskFreeRate decimal.Decimal) *Metrics {
	return &Metrics{
		trades:       trades,
		equityCurve:  curve,
		riskFreeRate: riskFreeRate,
	}
}

// MaxDrawdown returns the maximum peak-to-trough drawdown as a ratio.
func (m *Metrics) MaxDrawdown() decimal.Decimal {
	if len(m.equityCurve) == 0 {
		return decimal.Zero
	}

	hwm := m.equityCurve[0].Equity
	maxDD := decimal.Zero
	for _, point := range m.equityCurve {
		if point.Equity.GreaterThan(hwm) {
			hwm = point.Equity
		}
		if hwm.IsPositive() {
			dd := hwm.Sub(point.Equity).Div(hwm)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// WinRate returns winning trades over total trades as a ratio.
func (m *Metrics) WinRate() decimal.Decimal {
	if len(m.trades) == 0 {
		return decimal.Zero
	}
	wins := 0
	for _, trade := range m.trades {
		if trade.NetPL.IsPositive() {
			wins++
		}
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(m.trades))))
}

// ProfitFactor returns gross profit over gross loss.
func (m *Metrics) ProfitFactor() decimal.Decimal {
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	for _, trade := range m.trades {
		if trade.NetPL.IsPositive() {
			grossProfit = grossProfit.Add(trade.NetPL)
		} else {
			grossLoss = grossLoss.Add(trade.NetPL.Abs())
		}
	}
	if grossLoss.IsZero() {
		return decimal.Zero
	}
	return grossProfit.Div(grossLoss)
}

// SharpeRatio returns the annualized Sharpe ratio of per-bar returns,
// assuming 252 trading days.
func (m *Metrics) SharpeRatio() decimal.Decimal {
	returns := m.barReturns()
	if len(returns) < 2 {
		return decimal.Zero
	}

	stdDev := standardDeviation(returns)
	if stdDev.IsZero() {
		return decimal.Zero
	}

	dailyRf := m.riskFreeRate.Div(decimal.NewFromInt(252))
	excess := mean(returns).Sub(dailyRf)
	return excess.Div(stdDev).Mul(decimal.NewFromFloat(math.Sqrt(252)))
}

// Expectancy returns the expected P&L per trade.
func (m *Metrics) Expectancy() decimal.Decimal {
	if len(m.trades) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, trade := range m.trades {
		total = total.Add(trade.NetPL)
	}
	return total.Div(decimal.NewFromInt(int64(len(m.trades))))
}

func (m *Metrics) barReturns() []decimal.Decimal {
	if len(m.equityCurve) < 2 {
		return nil
	}
	returns := make([]decimal.Decimal, 0, len(m.equityCurve)-1)
	for i := 1; i < len(m.equityCurve); i++ {
		prev := m.equityCurve[i-1].Equity
		if prev.IsZero() {
			continue
		}
		returns = append(returns, m.equityCurve[i].Equity.Sub(prev).Div(prev))
	}
	return returns
}

func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

func standardDeviation(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}
	m := mean(values)
	sumSquares := decimal.Zero
	for _, v := range values {
		diff := v.Sub(m)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}
	variance := sumSquares.Div(decimal.NewFromInt(int64(len(values) - 1))).InexactFloat64()
	if variance < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(math.Sqrt(variance))
}
