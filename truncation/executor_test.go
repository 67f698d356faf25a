package truncation

import (
	"context"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/kalyank1144/agentcore/llm"
	"github.com/kalyank1144/agentcore/llmedit"
)

// scriptedClient returns one canned response (or error) per call,
// advancing through the script in order; it never sees more calls than
// scripted.
type scriptedClient struct {
	responses []llm.MessageResponse
	errs      []error
	calls     int
}

func (c *scriptedClient) CreateMessage(ctx context.Context, req llm.MessageRequest) (llm.MessageResponse, error) {
	i := c.calls
	c.calls++
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	var resp llm.MessageResponse
	if i < len(c.responses) {
		resp = c.responses[i]
	}
	return resp, err
}

func (c *scriptedClient) StreamMessage(ctx context.Context, req llm.MessageRequest) (<-chan llm.StreamEvent, error) {
	return nil, nil
}

func noDelayBackOff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

// Seed scenario G: a combined call comes back truncated (max_tokens),
// forcing the per-file split path, which then completes cleanly.
func TestExecutor_TruncatedCombinedCallFallsBackToSplit(t *testing.T) {
	client := &scriptedClient{
		responses: []llm.MessageResponse{
			{Text: `{"unified_diff":"partial`, StopReason: llm.StopMaxTokens},
			{Text: `{"file":"a.go","action":"update","unified_diff":"--- a/a.go\n+++ b/a.go\n","base_sha":"1","complete":true}`, StopReason: llm.StopEndTurn},
		},
	}
	edit := llmedit.New(client, llmedit.Budgets{})
	exec := &Executor{Edit: edit, Client: client, MaxAttemptsPerFile: 2, NewBackOff: noDelayBackOff}

	result, err := exec.Execute(context.Background(), "m", "edit a.go", "combined prompt", []string{"a.go"}, 10,
		func(file string) string { return "edit " + file })

	require.NoError(t, err)
	require.False(t, result.PausedForDecision)
	require.True(t, result.WasSplit)
	require.True(t, result.TruncationDetected)
	require.Equal(t, llmedit.StatusOK, result.Output.ValidationStatus)
	require.Equal(t, llmedit.ConfidenceHigh, result.Output.Confidence)
	require.Len(t, result.Output.TouchedFiles, 1)
	require.Equal(t, "a.go", result.Output.TouchedFiles[0].Path)
	require.Contains(t, result.Output.UnifiedDiff, "a.go")
}

func TestExecutor_CleanCombinedCallSkipsSplit(t *testing.T) {
	client := &scriptedClient{
		responses: []llm.MessageResponse{
			{Text: `{"unified_diff":"--- a/x.go\n+++ b/x.go\n","touched_files":[{"path":"x.go","action":"update","new_content":"package x\n","base_sha":"1"}],"confidence":"high","notes":"","validation_status":"ok"}`, StopReason: llm.StopEndTurn},
		},
	}
	edit := llmedit.New(client, llmedit.Budgets{})
	exec := &Executor{Edit: edit, Client: client, MaxAttemptsPerFile: 2, NewBackOff: noDelayBackOff}

	result, err := exec.Execute(context.Background(), "m", "edit x.go", "combined prompt", []string{"x.go"}, 10, nil)
	require.NoError(t, err)
	require.False(t, result.PausedForDecision)
	require.False(t, result.WasSplit)
	require.False(t, result.TruncationDetected)
	require.Len(t, result.Output.TouchedFiles, 1)
}

func TestExecutor_PreflightForcesSplitForMultipleFiles(t *testing.T) {
	client := &scriptedClient{
		responses: []llm.MessageResponse{
			{Text: `{"file":"a.go","no_changes":true,"complete":true}`, StopReason: llm.StopEndTurn},
			{Text: `{"file":"b.go","no_changes":true,"complete":true}`, StopReason: llm.StopEndTurn},
		},
	}
	edit := llmedit.New(client, llmedit.Budgets{})
	exec := &Executor{Edit: edit, Client: client, MaxAttemptsPerFile: 2, NewBackOff: noDelayBackOff}

	result, err := exec.Execute(context.Background(), "m", "", "unused", []string{"a.go", "b.go"}, 10,
		func(file string) string { return "edit " + file })
	require.NoError(t, err)
	require.False(t, result.PausedForDecision)
	require.True(t, result.WasSplit)
	require.False(t, result.TruncationDetected, "a preflight-forced split is not itself a detected truncation")
	// both files resolved via no_changes, so nothing to touch
	require.Empty(t, result.Output.TouchedFiles)
	require.Equal(t, 2, client.calls)
}

func TestExecutor_PausesAfterExhaustingRetries(t *testing.T) {
	client := &scriptedClient{
		errs: []error{
			errTransient{},
		},
	}
	edit := llmedit.New(client, llmedit.Budgets{})
	exec := &Executor{Edit: edit, Client: client, MaxAttemptsPerFile: 1, NewBackOff: noDelayBackOff}

	// A large context line count forces ComplexityHigh in preflight, so
	// Execute skips the combined-call path and goes straight to the
	// per-file ledger, isolating this test to split-path retry exhaustion.
	result, err := exec.Execute(context.Background(), "m", "", "unused", []string{"a.go"}, 3000,
		func(file string) string { return "edit " + file })
	require.NoError(t, err)
	require.True(t, result.PausedForDecision)
	require.Contains(t, result.PauseReason, "a.go")
	require.True(t, result.WasSplit)
	require.False(t, result.TruncationDetected, "forced by preflight complexity, not a detected truncation")
}

// Scenario G: a combined call comes back truncated, the L1→L2 fallback
// starts per-file recovery, and recovery itself then exhausts retries and
// pauses. The result must expose both that a split happened and that it
// was triggered by a detected truncation, not a preflight-only split.
func TestExecutor_PausesAfterTruncationTriggeredSplitExhaustsRetries(t *testing.T) {
	client := &scriptedClient{
		responses: []llm.MessageResponse{
			{Text: `{"unified_diff":"partial`, StopReason: llm.StopMaxTokens},
		},
		errs: []error{
			nil,
			errTransient{},
		},
	}
	edit := llmedit.New(client, llmedit.Budgets{})
	exec := &Executor{Edit: edit, Client: client, MaxAttemptsPerFile: 1, NewBackOff: noDelayBackOff}

	result, err := exec.Execute(context.Background(), "m", "edit a.go", "combined prompt", []string{"a.go"}, 10,
		func(file string) string { return "edit " + file })
	require.NoError(t, err)
	require.True(t, result.PausedForDecision)
	require.True(t, result.WasSplit)
	require.True(t, result.TruncationDetected)
}

// errTransient is not a retryable pattern (no 429/529/overload wording),
// so each call should fail permanently on first attempt rather than
// retrying indefinitely via backoff.
type errTransient struct{}

func (errTransient) Error() string { return "boom: not a retryable pattern" }

func TestExecutor_RetriesOverloadedErrorThenSucceeds(t *testing.T) {
	client := &scriptedClient{
		errs: []error{
			overloadedErr{},
		},
		responses: []llm.MessageResponse{
			{},
			{Text: `{"file":"a.go","no_changes":true,"complete":true}`, StopReason: llm.StopEndTurn},
		},
	}
	edit := llmedit.New(client, llmedit.Budgets{})
	exec := &Executor{Edit: edit, Client: client, MaxAttemptsPerFile: 2, NewBackOff: noDelayBackOff}

	result, err := exec.Execute(context.Background(), "m", "", "unused", []string{"a.go"}, 3000,
		func(file string) string { return "edit " + file })
	require.NoError(t, err)
	require.False(t, result.PausedForDecision)
	require.Equal(t, 2, client.calls)
}

type overloadedErr struct{}

func (overloadedErr) Error() string { return "anthropic API error (status 529): overloaded_error" }

func TestIsRetryableLLMError(t *testing.T) {
	require.True(t, isRetryableLLMError(overloadedErr{}))
	require.True(t, isRetryableLLMError(errStr("429 too many requests")))
	require.False(t, isRetryableLLMError(errTransient{}))
	require.False(t, isRetryableLLMError(nil))
}

type errStr string

func (e errStr) Error() string { return string(e) }

func TestNewExecutor_DefaultBackOffIsExponential(t *testing.T) {
	exec := NewExecutor(nil, nil, 3)
	bo := exec.backOff()
	require.IsType(t, &backoff.ExponentialBackOff{}, bo)
}
