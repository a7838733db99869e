package metrics

import "github.com/prometheus/client_golang/prometheus"

// AppointmentMetrics exposes counters/histograms for the appointment core.
type AppointmentMetrics struct {
	transitionsTotal   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	slotQueryLatency   *prometheus.HistogramVec
}

func NewAppointmentMetrics(reg prometheus.Registerer) *AppointmentMetrics {
	m := &AppointmentMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by event and outcome",
		}, []string{"event", "outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "notifications_total",
			Help:      "Outbound notifications by channel and status",
		}, []string{"channel", "status"}),
		slotQueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "slot_query_seconds",
			Help:      "Latency of slot availability computations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.notificationsTotal, m.slotQueryLatency)
	return m
}

func (m *AppointmentMetrics) ObserveTransition(event, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(event, outcome).Inc()
}

func (m *AppointmentMetrics) ObserveNotification(channel, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(channel, status).Inc()
}

func (m *AppointmentMetrics) ObserveSlotQuery(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.slotQueryLatency.WithLabelValues(kind).Observe(seconds)
}
