// Package indicator provides technical indicator calculations.
package indicator

import (
	"github.com/shopspring/decimal"
)

// SMA calculates a simple moving average over a fixed window, using a
// ring buffer and running sum so updates are O(1).
type SMA struct {
	period int
	buf    []decimal.Decimal
	next   int
	filled int
	sum    decimal.Decimal
}

// NewSMA creates an SMA calculator with the given period.
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{
		period: period,
		buf:    make([]decimal.Decimal, period),
	}
}

// Update adds a new value and returns the current SMA, or zero while
// the window is not yet full.
func (s *SMA) Update(value decimal.Decimal) decimal.Decimal {
	if s.filled == s.period {
		s.sum = s.sum.Sub(s.buf[s.next])
	} else {
		s.filled++
	}
	s.buf[s.next] = value
	s.sum = s.sum.Add(value)
	s.next = (s.next + 1) % s.period

	return s.Current()
}

// Current returns the current SMA without adding new data. Zero while
// the window is not yet full.
func (s *SMA) Current() decimal.Decimal {
	if s.filled < s.period {
		return decimal.Zero
	}
	return s.sum.Div(decimal.NewFromInt(int64(s.period)))
}

// Ready reports whether the window is full.
func (s *SMA) Ready() bool {
	return s.filled == s.period
}

// Period returns the window size.
func (s *SMA) Period() int {
	return s.period
}

// Reset clears all data.
func (s *SMA) Reset() {
	s.sum = decimal.Zero
	s.next = 0
	s.filled = 0
}
