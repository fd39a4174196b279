package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groundslot",
			Name:      "reservations_created_total",
			Help:      "Count of reservations created by origin and status.",
		},
		[]string{"origin", "status"},
	)

	reservationConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "groundslot",
			Name:      "reservation_conflicts_total",
			Help:      "Count of reserve attempts rejected because the slot was taken.",
		},
	)

	paymentCallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groundslot",
			Name:      "payment_callbacks_total",
			Help:      "Count of payment callbacks by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	reservationsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "groundslot",
			Name:      "reservations_expired_total",
			Help:      "Count of provisional reservations cancelled by the sweeper.",
		},
	)

	statusCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groundslot",
			Name:      "status_cache_total",
			Help:      "Slot status cache lookups by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groundslot",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route.",
		},
		[]string{"route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reservationCreated, reservationConflicts, paymentCallbacks,
			reservationsExpired, statusCache, httpRequests,
		)
	})
}

func IncReservationCreated(origin, status string) {
	reservationCreated.WithLabelValues(origin, status).Inc()
}

func IncReservationConflict() {
	reservationConflicts.Inc()
}

// IncPaymentCallback records a callback; kind is success or failure.
func IncPaymentCallback(kind, outcome string) {
	paymentCallbacks.WithLabelValues(kind, outcome).Inc()
}

func AddReservationsExpired(n int) {
	reservationsExpired.Add(float64(n))
}

func IncStatusCache(hit bool) {
	if hit {
		statusCache.WithLabelValues("hit").Inc()
		return
	}
	statusCache.WithLabelValues("miss").Inc()
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}
