package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbConns, dbTxTotal) }

var dbConns = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_pool_connections",
		Help: "Postgres pool connections by state (max, total, idle, acquired).",
	},
	[]string{"state"},
)

var dbTxTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "db_transactions_total",
		Help: "Finished transactions by outcome.",
	},
	[]string{"outcome"}, // 'commit', 'rollback', 'retry'
)

func IncDBTx(outcome string) { dbTxTotal.WithLabelValues(norm(outcome)).Inc() }

type PoolStats struct {
	Max, Total, Idle, Acquired int32
}

func SetDBPoolStats(s PoolStats) {
	dbConns.WithLabelValues("max").Set(float64(s.Max))
	dbConns.WithLabelValues("total").Set(float64(s.Total))
	dbConns.WithLabelValues("idle").Set(float64(s.Idle))
	dbConns.WithLabelValues("acquired").Set(float64(s.Acquired))
}
