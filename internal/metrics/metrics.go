package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiobron",
			Name:      "reservation_created_total",
			Help:      "Count of reservations created by scenario.",
		},
		[]string{"scenario"},
	)

	reservationCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "studiobron",
			Name:      "reservation_cancelled_total",
			Help:      "Count of reservations cancelled.",
		},
	)

	availabilityConflict = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiobron",
			Name:      "availability_conflict_total",
			Help:      "Count of rejected availability checks by field.",
		},
		[]string{"field"},
	)

	paymentRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiobron",
			Name:      "payment_recorded_total",
			Help:      "Count of ledger entries recorded by type.",
		},
		[]string{"type"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reservationCreated, reservationCancelled, availabilityConflict, paymentRecorded)
	})
}

func IncReservationCreated(scenario string) {
	reservationCreated.WithLabelValues(scenario).Inc()
}

func IncReservationCancelled() {
	reservationCancelled.Inc()
}

func IncAvailabilityConflict(field string) {
	availabilityConflict.WithLabelValues(field).Inc()
}

func IncPaymentRecorded(paymentType string) {
	paymentRecorded.WithLabelValues(paymentType).Inc()
}
