package metrics

import "github.com/prometheus/client_golang/prometheus"

// Scheduling exposes counters/histograms for the booking and lifecycle flows.
type Scheduling struct {
	bookings      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	slotConflicts *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	archived      prometheus.Counter
}

func NewScheduling(reg prometheus.Registerer) *Scheduling {
	m := &Scheduling{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by resolved kind, intake channel and outcome",
		}, []string{"kind", "channel", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "state_transitions_total",
			Help:      "Lifecycle transitions applied, by entity and target state",
		}, []string{"entity", "state"}),
		slotConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "slot_conflicts_total",
			Help:      "Operations rejected or degraded because the slot was occupied",
		}, []string{"operation"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "operation_duration_seconds",
			Help:      "Latency of scheduling operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "appointments_archived_total",
			Help:      "Finished appointments moved to medical history",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.transitions, m.slotConflicts, m.latency, m.archived)
	return m
}

func (m *Scheduling) ObserveBooking(kind, channel, outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(kind, channel, outcome).Inc()
}

func (m *Scheduling) ObserveTransition(entity, state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, state).Inc()
}

func (m *Scheduling) ObserveSlotConflict(operation string) {
	if m == nil {
		return
	}
	m.slotConflicts.WithLabelValues(operation).Inc()
}

func (m *Scheduling) ObserveLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(operation).Observe(seconds)
}

func (m *Scheduling) ObserveArchived(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.archived.Add(float64(n))
}
