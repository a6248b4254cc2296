// Package metrics exposes the Prometheus instruments shared across the
// trading pipeline. Handlers are wired in the API server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignalsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradingbot_signals_generated_total",
			Help: "Total number of signals generated (by strategy).",
		},
		[]string{"strategy"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradingbot_orders_submitted_total",
			Help: "Total number of orders accepted by the execution engine (by strategy).",
		},
		[]string{"strategy"},
	)

	OrdersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradingbot_orders_rejected_total",
			Help: "Total number of orders rejected at submission (by strategy, reason).",
		},
		[]string{"strategy", "reason"},
	)

	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradingbot_fills_total",
			Help: "Total number of fills produced by the simulator (by strategy).",
		},
		[]string{"strategy"},
	)

	RiskViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradingbot_risk_violations_total",
			Help: "Total number of risk rule violations (by strategy, rule).",
		},
		[]string{"strategy", "rule"},
	)

	KillSwitches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradingbot_kill_switches_total",
			Help: "Total number of kill-switch activations (by strategy).",
		},
		[]string{"strategy"},
	)

	EquityGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradingbot_equity",
			Help: "Current portfolio equity (by strategy).",
		},
		[]string{"strategy"},
	)

	OpenPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradingbot_positions_open",
			Help: "Current number of open positions (by strategy).",
		},
		[]string{"strategy"},
	)

	FeedEventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradingbot_feed_events_dropped_total",
			Help: "Feed events dropped because a runner queue was full (by strategy).",
		},
		[]string{"strategy"},
	)

	FeedReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradingbot_feed_reconnects_total",
			Help: "Live feed reconnect attempts (by symbol).",
		},
		[]string{"symbol"},
	)

	ProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradingbot_provider_requests_total",
			Help: "Market data provider requests (by endpoint, outcome).",
		},
		[]string{"endpoint", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsGenerated,
		OrdersSubmitted,
		OrdersRejected,
		FillsTotal,
		RiskViolations,
		KillSwitches,
		EquityGauge,
		OpenPositions,
		FeedEventsDropped,
		FeedReconnects,
		ProviderRequests,
	)
}
