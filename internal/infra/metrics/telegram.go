package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(updatesTotal, rateLimitedTotal, notificationsTotal) }

var (
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_total",
			Help: "Inbound updates by kind (message/callback/pre_checkout/payment/other).",
		},
		[]string{"kind"},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limited_total",
			Help: "Inbound updates dropped by the per-user rate limiter.",
		},
	)

	// kind: text|options|invoice|delete|edit; status: sent|error
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_notifications_total",
			Help: "Outbound transport requests by kind and delivery status.",
		},
		[]string{"kind", "status"},
	)
)

func IncUpdate(kind string) { updatesTotal.WithLabelValues(norm(kind)).Inc() }

func IncRateLimited() { rateLimitedTotal.Inc() }

func IncNotification(kind string, err error) {
	status := "sent"
	if err != nil {
		status = "error"
	}
	notificationsTotal.WithLabelValues(norm(kind), status).Inc()
}
