package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scheduling"

var (
	once sync.Once

	bookingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_requests_total",
			Help:      "Count of booking requests by result.",
		},
		[]string{"result"},
	)

	bookingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "booking_duration_seconds",
			Help:      "Time spent serving a booking request, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Count of appointment status transitions by target status.",
		},
		[]string{"to"},
	)

	outboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Count of outbox events handed to the publisher by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingRequests, bookingDuration, transitions, outboxPublished)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveBooking(result string, started time.Time) {
	bookingRequests.WithLabelValues(result).Inc()
	bookingDuration.Observe(time.Since(started).Seconds())
}

func IncTransition(to string) {
	transitions.WithLabelValues(to).Inc()
}

func IncOutboxPublished(result string) {
	outboxPublished.WithLabelValues(result).Inc()
}
