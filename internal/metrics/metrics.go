package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "menza",
			Name:      "reservation_admissions_total",
			Help:      "Count of reservation admission attempts by outcome.",
		},
		[]string{"outcome"},
	)

	cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "menza",
			Name:      "reservation_cancellations_total",
			Help:      "Count of reservations cancelled, by source (student or canteen_delete).",
		},
		[]string{"source"},
	)

	canteenOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "menza",
			Name:      "canteen_operations_total",
			Help:      "Count of canteen admin operations.",
		},
		[]string{"op"},
	)

	availabilityDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "menza",
			Name:      "availability_duration_seconds",
			Help:      "Latency of availability computations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"cache"},
	)

	reservationsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "menza",
			Name:      "reservations",
			Help:      "Number of stored reservations by status.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "menza",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	backups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "menza",
			Name:      "backups_total",
			Help:      "Scheduled database backups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			admissions,
			cancellations,
			canteenOps,
			availabilityDuration,
			reservationsByStatus,
			httpRequests,
			backups,
		)
	})
}

// IncAdmission counts an admission attempt. outcome is "admitted" or the rejecting error kind.
func IncAdmission(outcome string) {
	admissions.WithLabelValues(outcome).Inc()
}

func AddCancellations(source string, n int) {
	cancellations.WithLabelValues(source).Add(float64(n))
}

func IncCanteenOp(op string) {
	canteenOps.WithLabelValues(op).Inc()
}

// ObserveAvailability records how long an availability query took.
func ObserveAvailability(cached bool, d time.Duration) {
	label := "miss"
	if cached {
		label = "hit"
	}
	availabilityDuration.WithLabelValues(label).Observe(d.Seconds())
}

func SetReservations(status string, n int) {
	reservationsByStatus.WithLabelValues(status).Set(float64(n))
}

func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func IncBackup(result string) {
	backups.WithLabelValues(result).Inc()
}
