// Package metrics exposes Prometheus instrumentation for the trading
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal counts orders by instrument, action, and final status.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_orders_total",
		Help: "Total number of orders by instrument, action, and status.",
	}, []string{"instrument", "action", "status"})

	// FillsTotal counts applied fills.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_fills_total",
		Help: "Total number of fills applied to the ledger.",
	}, []string{"instrument", "action", "reason"})

	// TriggersTotal counts monitor-initiated closures.
	TriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_triggers_total",
		Help: "Total number of target/stop/EOD closures.",
	}, []string{"instrument", "kind"})

	// SignalsGenerated counts strategy signals.
	SignalsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_signals_generated_total",
		Help: "Total number of signals generated by strategies.",
	}, []string{"strategy", "action"})

	// SignalsRejected counts signals that did not become orders.
	SignalsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_signals_rejected_total",
		Help: "Total number of signals rejected or ignored, by reason.",
	}, []string{"reason"})

	// EquityCurrent is the portfolio equity.
	EquityCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_equity_current",
		Help: "Current portfolio equity.",
	})

	// EquityHighWaterMark is the equity peak.
	EquityHighWaterMark = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_equity_high_water_mark",
		Help: "Highest equity observed.",
	})

	// DrawdownCurrent is the drawdown ratio from the peak.
	DrawdownCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_drawdown_current",
		Help: "Current drawdown ratio from the high-water mark.",
	})

	// EventsProcessed counts market events consumed.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_market_events_total",
		Help: "Total number of market events processed.",
	}, []string{"instrument"})

	// EventLatency observes per-event processing time.
	EventLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_event_latency_seconds",
		Help:    "Time spent processing one market event.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	// ErrorsTotal counts errors by type.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_errors_total",
		Help: "Total number of errors by type.",
	}, []string{"type"})

	// HeartbeatTimestamp is the unix time of the last heartbeat.
	HeartbeatTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_heartbeat_timestamp",
		Help: "Unix timestamp of the last heartbeat.",
	})

	// BuildInfo carries version metadata as constant labels.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "engine_build_info",
		Help: "Build information.",
	}, []string{"version", "commit", "date"})
)

// SetBuildInfo records the build metadata gauge.
func SetBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
}
