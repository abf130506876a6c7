package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		bookingsTotal,
		bookingsExpiredTotal,
	)
}

var (
	bookingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_total",
			Help: "Booking operations by result (created/slot_taken/cancelled/completed/failed).",
		},
		[]string{"result"},
	)

	bookingsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_expired_total",
			Help: "Unpaid bookings purged after their hold expired.",
		},
	)
)

func IncBooking(result string) {
	bookingsTotal.WithLabelValues(norm(result)).Inc()
}

func AddBookingsExpired(n int64) {
	bookingsExpiredTotal.Add(float64(n))
}
