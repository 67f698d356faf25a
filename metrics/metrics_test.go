package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordIteration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordIteration("t1", true, 250*time.Millisecond)
	m.RecordIteration("t1", false, 10*time.Millisecond)

	require.Equal(t, float64(1), testutil.ToFloat64(m.iterationsTotal.WithLabelValues("t1", "succeeded")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.iterationsTotal.WithLabelValues("t1", "failed")))
}

func TestMetrics_RecordToolCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordToolCall("t1", "edit_file", true)
	m.RecordToolCall("t1", "edit_file", false)

	require.Equal(t, float64(1), testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("t1", "edit_file", "succeeded")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("t1", "edit_file", "failed")))
}

func TestMetrics_RecordCheckpointAndRestore(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordCheckpointCreated("t1")
	m.RecordRestore("t1", true)
	m.RecordRestore("t1", false)

	require.Equal(t, float64(1), testutil.ToFloat64(m.checkpointsTotal.WithLabelValues("t1")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.restoresTotal.WithLabelValues("t1", "succeeded")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.restoresTotal.WithLabelValues("t1", "not_found")))
}

func TestMetrics_RecordCommand(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordCommand("t1", "ok", 500*time.Millisecond)

	require.Equal(t, float64(1), testutil.ToFloat64(m.commandsTotal.WithLabelValues("t1", "ok")))
}

func TestMetrics_RecordBudgetExhausted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordBudgetExhausted("t1", "iterations")

	require.Equal(t, float64(1), testutil.ToFloat64(m.budgetExhausted.WithLabelValues("t1", "iterations")))
}

func TestMetrics_RecordTokens(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordTokens("anthropic", 100, 50)
	m.RecordTokens("anthropic", 0, 25)

	require.Equal(t, float64(100), testutil.ToFloat64(m.tokensTotal.WithLabelValues("anthropic", "input")))
	require.Equal(t, float64(75), testutil.ToFloat64(m.tokensTotal.WithLabelValues("anthropic", "output")))
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordIteration("t1", true, time.Second)
		m.RecordToolCall("t1", "x", true)
		m.RecordCheckpointCreated("t1")
		m.RecordRestore("t1", true)
		m.RecordCommand("t1", "ok", time.Second)
		m.RecordBudgetExhausted("t1", "iterations")
		m.RecordTokens("p", 1, 1)
		m.SetInflightIterations(1)
	})
}
