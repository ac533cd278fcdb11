package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recorder provides methods for recording metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordOrder records an order lifecycle metric.
func (r *Recorder) RecordOrder(instrument, action, status string) {
	OrdersTotal.WithLabelValues(instrument, action, status).Inc()
}

// RecordFill records a fill applied to the ledger.
func (r *Recorder) RecordFill(instrument, action, reason string) {
	if reason == "" {
		reason = "signal"
	}
	FillsTotal.WithLabelValues(instrument, action, reason).Inc()
}

// RecordTrigger records a monitor-initiated closure.
func (r *Recorder) RecordTrigger(instrument, kind string) {
	TriggersTotal.WithLabelValues(instrument, kind).Inc()
}

// RecordSignal records a strategy signal.
func (r *Recorder) RecordSignal(strategy, action string) {
	SignalsGenerated.WithLabelValues(strategy, action).Inc()
}

// RecordSignalRejected records a signal that did not become an order.
func (r *Recorder) RecordSignalRejected(reason string) {
	SignalsRejected.WithLabelValues(reason).Inc()
}

// RecordEquity records equity gauges.
func (r *Recorder) RecordEquity(current, highWaterMark, drawdown decimal.Decimal) {
	EquityCurrent.Set(current.InexactFloat64())
	EquityHighWaterMark.Set(highWaterMark.InexactFloat64())
	DrawdownCurrent.Set(drawdown.InexactFloat64())
}

// RecordEvent records a processed market event and its latency.
func (r *Recorder) RecordEvent(instrument string, duration time.Duration) {
	EventsProcessed.WithLabelValues(instrument).Inc()
	EventLatency.Observe(duration.Seconds())
}

// RecordError records an error.
func (r *Recorder) RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordHeartbeat records a heartbeat.
func (r *Recorder) RecordHeartbeat() {
	HeartbeatTimestamp.Set(float64(time.Now().Unix()))
}

// Timer is a helper for measuring latency.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed duration.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
