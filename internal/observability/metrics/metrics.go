package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the slot-booking engine.
type BookingMetrics struct {
	bookingsTotal *prometheus.CounterVec
	listFreeTotal prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docbot",
			Subsystem: "schedule",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		listFreeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docbot",
			Subsystem: "schedule",
			Name:      "list_free_total",
			Help:      "Free-slot listings served",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.listFreeTotal)
	return m
}

// ObserveBooking records one booking attempt. Outcome is one of
// "booked", "conflict", "not_found", or "error".
func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveListFree() {
	if m == nil {
		return
	}
	m.listFreeTotal.Inc()
}

// RetrievalMetrics exposes counters/histograms for the hybrid index.
type RetrievalMetrics struct {
	buildsTotal  *prometheus.CounterVec
	queryLatency prometheus.Histogram
}

func NewRetrievalMetrics(reg prometheus.Registerer) *RetrievalMetrics {
	m := &RetrievalMetrics{
		buildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docbot",
			Subsystem: "retrieval",
			Name:      "index_builds_total",
			Help:      "Index builds by outcome (built, skipped, error)",
		}, []string{"outcome"}),
		queryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docbot",
			Subsystem: "retrieval",
			Name:      "query_latency_seconds",
			Help:      "Latency of hybrid retrieval queries",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.buildsTotal, m.queryLatency)
	return m
}

func (m *RetrievalMetrics) ObserveBuild(outcome string) {
	if m == nil {
		return
	}
	m.buildsTotal.WithLabelValues(outcome).Inc()
}

func (m *RetrievalMetrics) ObserveQueryLatency(seconds float64) {
	if m == nil {
		return
	}
	m.queryLatency.Observe(seconds)
}

// PlannerMetrics tracks tool usage and turn latency per conversation turn.
type PlannerMetrics struct {
	toolCallsTotal *prometheus.CounterVec
	turnLatency    prometheus.Histogram
}

func NewPlannerMetrics(reg prometheus.Registerer) *PlannerMetrics {
	m := &PlannerMetrics{
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docbot",
			Subsystem: "planner",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and status",
		}, []string{"tool", "status"}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docbot",
			Subsystem: "planner",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end latency of a conversation turn",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.toolCallsTotal, m.turnLatency)
	return m
}

func (m *PlannerMetrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

func (m *PlannerMetrics) ObserveTurnLatency(seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.Observe(seconds)
}
