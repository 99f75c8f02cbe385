// Package metrics exposes the engine's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters shared by the activator and workers.
type Metrics struct {
	TriggerEvents       *prometheus.CounterVec
	WorkflowsMatched    prometheus.Counter
	DispatchSuppressed  *prometheus.CounterVec
	ExecutionsStarted   prometheus.Counter
	ExecutionsCompleted prometheus.Counter
	ExecutionsFailed    prometheus.Counter
	ExecutionDuration   prometheus.Histogram
}

// New registers the counters on the given registerer. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TriggerEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_trigger_events_total",
			Help: "Inbound domain events by type.",
		}, []string{"event_type"}),
		WorkflowsMatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "pulse_workflows_matched_total",
			Help: "Workflows matched by trigger evaluation.",
		}),
		DispatchSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_dispatch_suppressed_total",
			Help: "Matched workflows suppressed before dispatch, by reason.",
		}, []string{"reason"}),
		ExecutionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pulse_executions_started_total",
			Help: "Workflow executions started.",
		}),
		ExecutionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pulse_executions_completed_total",
			Help: "Workflow executions completed successfully.",
		}),
		ExecutionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pulse_executions_failed_total",
			Help: "Workflow executions that ended in failure.",
		}),
		ExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulse_execution_duration_seconds",
			Help:    "Wall-clock duration of completed executions.",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 10),
		}),
	}
}
