package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sweeperRunsTotal, sweeperTickSeconds, sessionTransitionsTotal) }

var (
	sweeperRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweeper_runs_total",
			Help: "Background sweeper ticks, labeled by job and result.",
		},
		[]string{"job", "result"}, // result: 'ok', 'failed'
	)

	sweeperTickSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweeper_tick_seconds",
			Help:    "Duration of one sweeper tick.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"job"},
	)

	sessionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_transitions_total",
			Help: "Session state changes applied by the sweeper and chat flow.",
		},
		[]string{"transition"}, // 'activated', 'ended', 'ended_by_user', 'cancelled'
	)
)

func IncSweeperRun(job, result string) {
	sweeperRunsTotal.WithLabelValues(norm(job), norm(result)).Inc()
}

func ObserveSweeperTick(job string, seconds float64) {
	sweeperTickSeconds.WithLabelValues(norm(job)).Observe(seconds)
}

func IncSessionTransition(transition string) {
	sessionTransitionsTotal.WithLabelValues(norm(transition)).Inc()
}
