// Package metrics holds Nova's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MemoryWrites counts Unifier writes by kind and outcome
	// (ok, partial, failed, rejected).
	MemoryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nova_memory_writes_total",
		Help: "Memory writes by record kind and outcome",
	}, []string{"kind", "outcome"})

	// BackendFailures counts best-effort backend failures that were
	// swallowed by the Unifier.
	BackendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nova_memory_backend_failures_total",
		Help: "Swallowed best-effort backend failures by backend and operation",
	}, []string{"backend", "op"})

	// SearchLatency observes Unifier.Search wall time.
	SearchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nova_memory_search_duration_seconds",
		Help:    "Memory search latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	}, []string{"cache"})

	// ToolCalls counts router executions by tool and outcome
	// (ok, failed, unknown, invalid_args).
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nova_tool_calls_total",
		Help: "Tool router executions by tool and outcome",
	}, []string{"tool", "outcome"})

	// ToolAttempts counts individual attempts, including retries.
	ToolAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nova_tool_attempts_total",
		Help: "Tool capability attempts by tool and result",
	}, []string{"tool", "result"})

	// PlannerSteps counts autonomy loop steps by outcome.
	PlannerSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nova_engine_steps_total",
		Help: "Autonomy loop steps by outcome",
	}, []string{"outcome"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
