package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "montevecchio"

var (
	once sync.Once

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Count of accepted bookings and claims by kind.",
		},
		[]string{"kind"},
	)

	rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Count of rejected requests by rejection code.",
		},
		[]string{"code"},
	)

	cleaningRotations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleaning_rotations_total",
			Help:      "Count of weekly cleaning rotations that archived assignments.",
		},
	)

	storeConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_conflicts_total",
			Help:      "Count of document saves retried after a version conflict.",
		},
	)

	storeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_failures_total",
			Help:      "Count of failed document loads and saves.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Count of Telegram notifications by status.",
		},
		[]string{"status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingsCreated,
			rejections,
			cleaningRotations,
			storeConflicts,
			storeFailures,
			httpRequests,
			notificationsSent,
		)
	})
}

func IncBookingCreated(kind string) {
	bookingsCreated.WithLabelValues(kind).Inc()
}

func IncRejection(code string) {
	rejections.WithLabelValues(code).Inc()
}

func IncCleaningRotation() {
	cleaningRotations.Inc()
}

func IncStoreConflict() {
	storeConflicts.Inc()
}

func IncStoreFailure() {
	storeFailures.Inc()
}

func IncHTTPRequest(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncNotification(status string) {
	notificationsSent.WithLabelValues(status).Inc()
}
