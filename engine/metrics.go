package engine

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for task outcome.
const (
	labelSuccess   = "success"
	labelFailure   = "failure"
	labelCancelled = "cancelled"
)

// metrics holds the engine's Prometheus instruments. Every engine owns
// its own instances; they are only registered when the caller supplies
// a Registerer via WithMetrics, so multiple engines coexist without
// duplicate-registration panics.
type metrics struct {
	submitted prometheus.Counter
	completed *prometheus.CounterVec
	retries   prometheus.Counter

	queueDepth prometheus.Gauge
	running    prometheus.Gauge

	duration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		submitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "execq_tasks_submitted_total",
				Help: "Total number of tasks accepted by Submit or TrySubmit.",
			},
		),
		completed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execq_tasks_completed_total",
				Help: "Total number of tasks that reached a terminal outcome.",
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "execq_task_retries_total",
				Help: "Total number of retry re-enqueues.",
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "execq_queue_depth",
				Help: "Number of tasks currently waiting in the queue.",
			},
		),
		running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "execq_tasks_running",
				Help: "Number of tasks currently executing.",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "execq_task_duration_seconds",
				Help:    "Time from submission to terminal outcome, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.submitted,
			m.completed,
			m.retries,
			m.queueDepth,
			m.running,
			m.duration,
		)

		// Pre-initialize outcome labels so they appear with value 0
		// from startup rather than after the first observation.
		m.completed.WithLabelValues(labelSuccess)
		m.completed.WithLabelValues(labelFailure)
		m.completed.WithLabelValues(labelCancelled)
	}

	return m
}

func outcomeLabel(o Outcome) string {
	switch o {
	case OutcomeSuccess:
		return labelSuccess
	case OutcomeFailure:
		return labelFailure
	default:
		return labelCancelled
	}
}
