// Package metrics registers the prometheus collectors this service exposes
// on /metrics, the same promhttp wiring the teacher used.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersPlaced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dex_orders_placed_total",
		Help: "Total number of orders accepted by the engine.",
	}, []string{"market", "side"})

	OrdersCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dex_orders_cancelled_total",
		Help: "Total number of orders cancelled.",
	})

	WithdrawalsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dex_withdrawals_enqueued_total",
		Help: "Total number of withdrawals enqueued for settlement.",
	})

	WithdrawalsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dex_withdrawals_completed_total",
		Help: "Total number of withdrawals settled on-chain.",
	})

	WithdrawalsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dex_withdrawals_failed_total",
		Help: "Total number of withdrawals that failed settlement.",
	})

	PoolSwaps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dex_pool_swaps_total",
		Help: "Total number of confirmed on-chain pool swaps recorded.",
	}, []string{"pool_id"})

	ReconcileDrift = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dex_reconcile_drift",
		Help: "Most recently observed absolute drift per account, in token units.",
	}, []string{"user", "token"})

	ReconcileAutoPauses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dex_reconcile_auto_pauses_total",
		Help: "Total number of pools auto-paused by the reconciler.",
	})
)

// Registry bundles every collector this service exposes so main can
// register them once at startup.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		OrdersPlaced,
		OrdersCancelled,
		WithdrawalsEnqueued,
		WithdrawalsCompleted,
		WithdrawalsFailed,
		PoolSwaps,
		ReconcileDrift,
		ReconcileAutoPauses,
	}
}
