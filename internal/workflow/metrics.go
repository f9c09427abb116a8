package workflow

import (
	"github.com/prometheus/client_golang/prometheus"

	"vidqueue/internal/queue"
)

// Outcome labels for processed deliveries.
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
	OutcomeOrphaned  = "orphaned"
)

// Metrics are the worker pool's Prometheus collectors.
type Metrics struct {
	Deliveries  *prometheus.CounterVec
	RunDuration prometheus.Histogram
	ActiveJobs  prometheus.Gauge
	QueueTasks  *prometheus.GaugeVec
	Reclaimed   prometheus.Counter
	PrunedTasks prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vidqueue",
			Name:      "deliveries_total",
			Help:      "Processed queue deliveries by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vidqueue",
			Name:      "pipeline_duration_seconds",
			Help:      "Wall time of pipeline runs, successful or not.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vidqueue",
			Name:      "active_jobs",
			Help:      "Jobs currently held by a worker.",
		}),
		QueueTasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vidqueue",
			Name:      "queue_tasks",
			Help:      "Queue tasks by state as of the last maintenance pass.",
		}, []string{"state"}),
		Reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vidqueue",
			Name:      "reclaimed_deliveries_total",
			Help:      "Deliveries returned to the queue after missed heartbeats.",
		}),
		PrunedTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vidqueue",
			Name:      "pruned_tasks_total",
			Help:      "Settled queue tasks removed by retention.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Deliveries, m.RunDuration, m.ActiveJobs, m.QueueTasks, m.Reclaimed, m.PrunedTasks)
	}
	return m
}

func (m *Metrics) observeQueue(stats queue.Stats) {
	m.QueueTasks.WithLabelValues("queued").Set(float64(stats.Queued))
	m.QueueTasks.WithLabelValues("delayed").Set(float64(stats.Delayed))
	m.QueueTasks.WithLabelValues("active").Set(float64(stats.Active))
	m.QueueTasks.WithLabelValues("completed").Set(float64(stats.Completed))
	m.QueueTasks.WithLabelValues("failed").Set(float64(stats.Failed))
}
