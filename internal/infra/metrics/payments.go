package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		preCheckoutTotal,
		paymentWebhookRequests,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment notifications by status (paid/already_paid/not_found/state_failed/failed/amount_mismatch).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of reconciled payments in minor units, labeled by currency.",
		},
		[]string{"currency"},
	)

	preCheckoutTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pre_checkout_total",
			Help: "Pre-checkout decisions by result (approved/denied).",
		},
		[]string{"result"},
	)

	// result: ok|fail; reason is bounded: bad_json|unauthorized|not_found|internal|none
	paymentWebhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_requests_total",
			Help: "Count of payment webhook calls by result and reason.",
		},
		[]string{"result", "reason"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncPreCheckout(approved bool) {
	result := "denied"
	if approved {
		result = "approved"
	}
	preCheckoutTotal.WithLabelValues(result).Inc()
}

func IncPaymentWebhook(result, reason string) {
	paymentWebhookRequests.WithLabelValues(norm(result), norm(reason)).Inc()
}
