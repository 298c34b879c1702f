package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for slot transactions.
type BookingMetrics struct {
	transactionsTotal *prometheus.CounterVec
	attempts          *prometheus.HistogramVec
	latency           *prometheus.HistogramVec
	staleReleases     prometheus.Counter
	outboxDelivered   *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		transactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindcare",
			Subsystem: "booking",
			Name:      "transactions_total",
			Help:      "Reservation and cancellation transactions by outcome",
		}, []string{"op", "outcome"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mindcare",
			Subsystem: "booking",
			Name:      "transaction_attempts",
			Help:      "Attempts needed per transaction, including retries after conflicts",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}, []string{"op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mindcare",
			Subsystem: "booking",
			Name:      "transaction_latency_seconds",
			Help:      "Wall time of reservation and cancellation transactions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		staleReleases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mindcare",
			Subsystem: "booking",
			Name:      "stale_releases_total",
			Help:      "Cancellations whose slot was already held by another appointment",
		}),
		outboxDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindcare",
			Subsystem: "booking",
			Name:      "outbox_events_total",
			Help:      "Appointment events handed to the delivery sink",
		}, []string{"type", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transactionsTotal, m.attempts, m.latency, m.staleReleases, m.outboxDelivered)
	return m
}

func (m *BookingMetrics) ObserveTransaction(op, outcome string, attempts int, seconds float64) {
	if m == nil {
		return
	}
	m.transactionsTotal.WithLabelValues(op, outcome).Inc()
	if attempts > 0 {
		m.attempts.WithLabelValues(op).Observe(float64(attempts))
	}
	m.latency.WithLabelValues(op).Observe(seconds)
}

func (m *BookingMetrics) ObserveStaleRelease() {
	if m == nil {
		return
	}
	m.staleReleases.Inc()
}

func (m *BookingMetrics) ObserveOutbox(eventType, status string) {
	if m == nil {
		return
	}
	m.outboxDelivered.WithLabelValues(eventType, status).Inc()
}
