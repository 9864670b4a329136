package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorbook",
			Name:      "booking_created_total",
			Help:      "Count of bookings created by type.",
		},
		[]string{"type"},
	)

	bookingConflict = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorbook",
			Name:      "booking_conflict_total",
			Help:      "Count of booking attempts rejected by kind.",
		},
		[]string{"kind"},
	)

	bookingCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorbook",
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled by actor role.",
		},
		[]string{"actor"},
	)

	slotDeactivated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tutorbook",
			Name:      "slot_deactivated_total",
			Help:      "Count of slot definitions deactivated.",
		},
	)

	bookingsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tutorbook",
			Name:      "bookings_swept_total",
			Help:      "Count of past bookings auto-completed by the sweeper.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorbook",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreated, bookingConflict, bookingCancelled,
			slotDeactivated, bookingsSwept, httpRequests)
	})
}

func IncBookingCreated(bookingType string) {
	bookingCreated.WithLabelValues(bookingType).Inc()
}

func IncBookingConflict(kind string) {
	bookingConflict.WithLabelValues(kind).Inc()
}

func IncBookingCancelled(actor string) {
	bookingCancelled.WithLabelValues(actor).Inc()
}

func IncSlotDeactivated() {
	slotDeactivated.Inc()
}

func AddBookingsSwept(n float64) {
	bookingsSwept.Add(n)
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
