package indicator

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestSMAWarmup(t *testing.T) {
	sma := NewSMA(3)

	if got := sma.Update(d(10)); !got.IsZero() {
		t.Errorf("SMA after 1 value = %s, want 0", got)
	}
	if sma.Ready() {
		t.Error("ready before window full")
	}
	sma.Update(d(20))
	got := sma.Update(d(30))
	if !got.Equal(d(20)) {
		t.Errorf("SMA(10,20,30) = %s, want 20", got)
	}
	if !sma.Ready() {
		t.Error("not ready after window full")
	}
}

func TestSMASlidingWindow(t *testing.T) {
	sma := NewSMA(3)
	for _, v := range []int64{10, 20, 30} {
		sma.Update(d(v))
	}

	// Window slides: (20+30+40)/3 = 30.
	if got := sma.Update(d(40)); !got.Equal(d(30)) {
		t.Errorf("SMA = %s, want 30", got)
	}
	// (30+40+50)/3 = 40.
	if got := sma.Update(d(50)); !got.Equal(d(40)) {
		t.Errorf("SMA = %s, want 40", got)
	}
}

func TestSMAReset(t *testing.T) {
	sma := NewSMA(2)
	sma.Update(d(10))
	sma.Update(d(20))
	sma.Reset()

	if sma.Ready() {
		t.Error("ready after reset")
	}
	if !sma.Current().IsZero() {
		t.Errorf("Current after reset = %s", sma.Current())
	}
}

func TestSMAInvalidPeriod(t *testing.T) {
	sma := NewSMA(0)
	if sma.Period() != 1 {
		t.Errorf("period = %d, want clamped to 1", sma.Period())
	}
	if got := sma.Update(d(7)); !got.Equal(d(7)) {
		t.Errorf("SMA(period 1) = %s, want 7", got)
	}
}
