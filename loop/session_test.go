package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kalyank1144/agentcore/llm"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestSession_CanContinueAndBudgetExhaustion(t *testing.T) {
	s := NewSession("s1", "t1", "step1", Limits{MaxIterPerRun: 5, MaxTotalIterations: 10, MaxTotalTokens: 1000}, fixedNow())
	require.True(t, s.CanContinue())

	s.IterationCount = 10
	require.True(t, s.IsIterationBudgetExhausted())
	require.False(t, s.CanContinue())
}

func TestSession_TokenBudgetExhaustion(t *testing.T) {
	s := NewSession("s1", "t1", "step1", Limits{MaxTotalTokens: 100}, fixedNow())
	s.TokenTotals = TokenTotals{Input: 60, Output: 40}
	require.True(t, s.IsTokenBudgetExhausted())
	require.False(t, s.CanContinue())
}

func TestSession_RemainingContinues(t *testing.T) {
	s := NewSession("s1", "t1", "step1", Limits{MaxIterPerRun: 5, MaxTotalIterations: 12}, fixedNow())
	require.Equal(t, 2, s.RemainingContinues())

	s.IterationCount = 12
	require.Equal(t, 0, s.RemainingContinues())
}

func TestSession_RecordRunAccumulates(t *testing.T) {
	s := NewSession("s1", "t1", "step1", Limits{MaxTotalIterations: 100, MaxTotalTokens: 10000}, fixedNow())
	result := RunResult{
		FinalText:   "done",
		StopReason:  StopEndTurn,
		Iterations:  2,
		ToolCalls:   []ToolCallRecord{{Name: "read_file"}},
		TotalTokens: llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
	later := fixedNow().Add(time.Minute)
	s.RecordRun(result, later)

	require.Equal(t, 2, s.IterationCount)
	require.Equal(t, 1, s.ToolCallsCount)
	require.Equal(t, TokenTotals{Input: 10, Output: 5}, s.TokenTotals)
	require.Equal(t, StopEndTurn, s.LastStopReason)
	require.Equal(t, "done", s.FinalText)
	require.Equal(t, 1, s.ContinueCount)
	require.Equal(t, later, s.UpdatedAt)
}
