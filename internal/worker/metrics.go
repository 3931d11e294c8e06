package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task outcome label values for workerMetrics.tasksTotal.
const (
	outcomeOK          = "ok"
	outcomeDecodeError = "decode_error"
	outcomeInvalid     = "invalid"
	outcomeEmbedError  = "embed_error"
	outcomeUpsertError = "upsert_error"
)

// workerMetrics holds all Prometheus metrics owned by the ingestion worker.
// A single instance is created in New so tests can inject a fresh
// prometheus.Registry without polluting the default one.
type workerMetrics struct {
	// tasksTotal counts processed tasks, partitioned by outcome.
	tasksTotal *prometheus.CounterVec

	// taskDurationSeconds records the wall-clock time per successfully
	// indexed task, from dequeue to upsert completion.
	taskDurationSeconds prometheus.Histogram

	// dequeueErrorsTotal counts failed blocking dequeue attempts (broker
	// connectivity, not per-task failures).
	dequeueErrorsTotal prometheus.Counter
}

// newWorkerMetrics registers all worker metrics against reg. promauto.With
// keeps unit tests hermetic by registering into the provided registry.
func newWorkerMetrics(reg prometheus.Registerer) *workerMetrics {
	factory := promauto.With(reg)

	return &workerMetrics{
		tasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketpulse",
			Subsystem: "worker",
			Name:      "tasks_total",
			Help:      "Total number of ingestion tasks processed, partitioned by outcome.",
		}, []string{"outcome"}),

		taskDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "marketpulse",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "Wall-clock duration of successfully indexed tasks, dequeue to upsert.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		dequeueErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "marketpulse",
			Subsystem: "worker",
			Name:      "dequeue_errors_total",
			Help:      "Total number of failed blocking dequeue attempts.",
		}),
	}
}
