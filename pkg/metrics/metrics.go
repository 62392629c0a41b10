// Package metrics holds the Prometheus collectors shared by the clone engine,
// the recovery sweep, the task processor and storage upkeep. Collectors
// register with the default registry; cmd/ndexgraph serves them on /metrics
// when enabled.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ndexgraph"

var (
	// CloneOperations counts clone and update calls.
	// Labels: operation (clone, update), result (success, validation,
	// reference, locked, error)
	CloneOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "clone",
		Name:      "operations_total",
		Help:      "Clone and update operations by outcome",
	}, []string{"operation", "result"})

	// CloneDuration measures whole clone and update calls.
	// Labels: operation
	CloneDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "clone",
		Name:      "duration_seconds",
		Help:      "Clone and update latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"operation"})

	// EntitiesCloned counts entities written by committed and aborted passes.
	// Labels: kind
	EntitiesCloned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "clone",
		Name:      "entities_total",
		Help:      "Entities created by clone passes",
	}, []string{"kind"})

	// IntentsRecovered counts intents settled by the recovery sweep.
	// Labels: state (building, built, swapped), action (unlocked, abandoned,
	// resumed, discarded, resubmitted)
	IntentsRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recovery",
		Name:      "intents_total",
		Help:      "Clone intents settled by recovery",
	}, []string{"state", "action"})

	// TasksProcessed counts tasks leaving a worker.
	// Labels: type, result (completed, failed, unsupported, discarded)
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "processed_total",
		Help:      "Tasks processed by outcome",
	}, []string{"type", "result"})

	// ValueLogGC counts value log GC rounds run after network deletions.
	// Labels: result (rewritten, clean, error)
	ValueLogGC = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "value_log_gc_total",
		Help:      "Value log GC rounds by outcome",
	}, []string{"result"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
