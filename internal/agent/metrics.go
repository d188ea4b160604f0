package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the reconciliation agent
type Metrics struct {
	// Run metrics
	RunsStarted   prometheus.Counter
	RunsCompleted *prometheus.CounterVec
	RunDuration   prometheus.Histogram

	// Iteration metrics
	Iterations      prometheus.Counter
	IterationsPerRun prometheus.Histogram

	// Sandbox metrics
	SandboxExecutions *prometheus.CounterVec
	SandboxDuration   prometheus.Histogram

	// LLM metrics
	LLMRequests *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reconagent_runs_started_total",
			Help: "Total number of reconciliation runs started",
		}),

		// Outcome: "succeeded" or "failed"
		RunsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reconagent_runs_completed_total",
			Help: "Total number of reconciliation runs reaching a terminal state",
		}, []string{"outcome"}),

		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconagent_run_duration_seconds",
			Help:    "End-to-end reconciliation run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600}, // multi-iteration LLM runs take minutes
		}),

		Iterations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reconagent_iterations_total",
			Help: "Total number of code generation attempts across all runs",
		}),

		IterationsPerRun: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconagent_iterations_per_run",
			Help:    "Generation attempts needed per run",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		}),

		// Kind: "" for success, else the error kind
		SandboxExecutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reconagent_sandbox_executions_total",
			Help: "Total number of sandbox executions by outcome kind",
		}, []string{"kind"}),

		SandboxDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconagent_sandbox_duration_seconds",
			Help:    "Sandbox execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		}),

		// Outcome: "ok", "rate_limited", "unavailable", "error"
		LLMRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reconagent_llm_requests_total",
			Help: "Total number of LLM requests by outcome",
		}, []string{"outcome"}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance, initializing it on first use.
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return InitMetrics()
	}
	return globalMetrics
}
