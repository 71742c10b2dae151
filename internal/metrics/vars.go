package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ReconcileLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trader_reconcile_latency_seconds",
		Help:    "Time for one reconciliation attempt to reach a terminal state",
		Buckets: prometheus.DefBuckets,
	})

	ReconcileReady = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trader_reconcile_ready_total",
		Help: "Reconciliation attempts that reached the ready state",
	})

	ReconcileAborts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_reconcile_aborts_total",
		Help: "Reconciliation attempts aborted, by reason",
	}, []string{"reason"})

	GasPriceGwei = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trader_gas_price_gwei",
		Help: "Last refreshed network gas price in gwei",
	})

	BookDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trader_orderbook_depth",
		Help: "Resting orders cached per pair and side",
	}, []string{"pair", "side"})

	FeedReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trader_feed_reconnects_total",
		Help: "Websocket feed reconnect attempts",
	})
)

func init() {
	prometheus.MustRegister(
		ReconcileLatency,
		ReconcileReady,
		ReconcileAborts,
		GasPriceGwei,
		BookDepth,
		FeedReconnects,
	)
}
