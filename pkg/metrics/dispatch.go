package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values shared by the dispatch and webhook collectors.
const (
	OutcomeSucceeded    = "succeeded"
	OutcomeRetried      = "retried"
	OutcomeDeadLetter   = "dead_lettered"
	OutcomeQueueFull    = "queue_full"
	OutcomeDuplicate    = "duplicate"
	OutcomeUnauthorized = "unauthorized"
	OutcomeBadRequest   = "bad_request"
	OutcomeFailed       = "failed"
	OutcomeAcked        = "acked"
	OutcomeIgnored      = "ignored"
	OutcomeInProgress   = "in_progress"
)

// DispatchMetrics tracks side-effect tasks flowing through the worker pool.
type DispatchMetrics struct {
	tasks      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	queueDepth prometheus.Gauge
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	tasks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invsync_dispatch_tasks_total",
		Help: "Side-effect tasks by kind and outcome.",
	}, []string{"kind", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invsync_dispatch_task_duration_seconds",
		Help:    "Wall time of a task including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "invsync_dispatch_queue_depth",
		Help: "Tasks waiting for a worker.",
	})
	reg.MustRegister(tasks, duration, depth)
	return &DispatchMetrics{tasks: tasks, duration: duration, queueDepth: depth}
}

func (d *DispatchMetrics) IncOutcome(kind, outcome string) {
	if d == nil || d.tasks == nil {
		return
	}
	d.tasks.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func (d *DispatchMetrics) ObserveDuration(kind string, duration time.Duration) {
	if d == nil || d.duration == nil {
		return
	}
	d.duration.WithLabelValues(normalizeLabel(kind)).Observe(duration.Seconds())
}

func (d *DispatchMetrics) SetQueueDepth(depth int) {
	if d == nil || d.queueDepth == nil {
		return
	}
	d.queueDepth.Set(float64(depth))
}
