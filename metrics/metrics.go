// Package metrics provides the Prometheus metrics registry for agentcore:
// iterations, tool calls, checkpoint operations, command executions, and
// token usage, all namespaced "agentcore_".
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is one process's Prometheus metrics collection. Construct one
// with New and share it across the session, autonomy controller,
// checkpoint manager, and command phase.
type Metrics struct {
	iterationsTotal    *prometheus.CounterVec
	iterationLatency   *prometheus.HistogramVec
	toolCallsTotal     *prometheus.CounterVec
	checkpointsTotal   *prometheus.CounterVec
	restoresTotal      *prometheus.CounterVec
	commandsTotal      *prometheus.CounterVec
	commandLatency     *prometheus.HistogramVec
	budgetExhausted    *prometheus.CounterVec
	tokensTotal        *prometheus.CounterVec
	inflightIterations prometheus.Gauge
}

// New creates and registers every agentcore metric against registry. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	m := &Metrics{}

	m.iterationsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Name:      "iterations_total",
		Help:      "Autonomy loop iterations completed, by outcome",
	}, []string{"task_id", "outcome"}) // outcome: succeeded, failed

	m.iterationLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentcore",
		Name:      "iteration_latency_ms",
		Help:      "Autonomy loop iteration duration in milliseconds",
		Buckets:   []float64{50, 100, 500, 1000, 5000, 10000, 30000, 60000},
	}, []string{"task_id"})

	m.toolCallsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Name:      "tool_calls_total",
		Help:      "Tool invocations dispatched by the agentic loop, by tool and status",
	}, []string{"task_id", "tool", "status"}) // status: succeeded, failed

	m.checkpointsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Name:      "checkpoints_created_total",
		Help:      "Checkpoints created before a mutating operation",
	}, []string{"task_id"})

	m.restoresTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Name:      "checkpoint_restores_total",
		Help:      "Checkpoint restores performed, by outcome",
	}, []string{"task_id", "outcome"}) // outcome: succeeded, not_found

	m.commandsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Name:      "commands_total",
		Help:      "Shell commands run through CommandPhase, by exit status",
	}, []string{"task_id", "status"}) // status: ok, failed, spawn_error

	m.commandLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentcore",
		Name:      "command_duration_ms",
		Help:      "Shell command wall-clock duration in milliseconds",
		Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 30000, 120000},
	}, []string{"task_id"})

	m.budgetExhausted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Name:      "budget_exhausted_total",
		Help:      "Autonomy budget exhaustion events, by budget kind",
	}, []string{"task_id", "budget"}) // budget: iterations, tool_calls, wall_time

	m.tokensTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Name:      "llm_tokens_total",
		Help:      "LLM token usage, by provider and token kind",
	}, []string{"provider", "kind"}) // kind: input, output

	m.inflightIterations = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentcore",
		Name:      "inflight_iterations",
		Help:      "Autonomy iterations currently executing",
	})

	return m
}

// RecordIteration observes one autonomy iteration's outcome and latency.
func (m *Metrics) RecordIteration(taskID string, succeeded bool, latency time.Duration) {
	if m == nil {
		return
	}
	outcome := "succeeded"
	if !succeeded {
		outcome = "failed"
	}
	m.iterationsTotal.WithLabelValues(taskID, outcome).Inc()
	m.iterationLatency.WithLabelValues(taskID).Observe(float64(latency.Milliseconds()))
}

// RecordToolCall observes one tool dispatch.
func (m *Metrics) RecordToolCall(taskID, tool string, succeeded bool) {
	if m == nil {
		return
	}
	status := "succeeded"
	if !succeeded {
		status = "failed"
	}
	m.toolCallsTotal.WithLabelValues(taskID, tool, status).Inc()
}

// RecordCheckpointCreated increments the checkpoint-creation counter.
func (m *Metrics) RecordCheckpointCreated(taskID string) {
	if m == nil {
		return
	}
	m.checkpointsTotal.WithLabelValues(taskID).Inc()
}

// RecordRestore observes one checkpoint restore attempt.
func (m *Metrics) RecordRestore(taskID string, found bool) {
	if m == nil {
		return
	}
	outcome := "succeeded"
	if !found {
		outcome = "not_found"
	}
	m.restoresTotal.WithLabelValues(taskID, outcome).Inc()
}

// RecordCommand observes one completed command's exit status and
// duration. status should be "ok", "failed", or "spawn_error".
func (m *Metrics) RecordCommand(taskID, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(taskID, status).Inc()
	m.commandLatency.WithLabelValues(taskID).Observe(float64(duration.Milliseconds()))
}

// RecordBudgetExhausted increments the exhaustion counter for the given
// budget kind ("iterations", "tool_calls", "wall_time").
func (m *Metrics) RecordBudgetExhausted(taskID, budget string) {
	if m == nil {
		return
	}
	m.budgetExhausted.WithLabelValues(taskID, budget).Inc()
}

// RecordTokens adds to the running token totals for provider.
func (m *Metrics) RecordTokens(provider string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	if inputTokens > 0 {
		m.tokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.tokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// SetInflightIterations sets the current number of executing iterations.
func (m *Metrics) SetInflightIterations(n int) {
	if m == nil {
		return
	}
	m.inflightIterations.Set(float64(n))
}
