package loop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kalyank1144/agentcore/conversation"
	"github.com/kalyank1144/agentcore/event"
	"github.com/kalyank1144/agentcore/internal/idgen"
	"github.com/kalyank1144/agentcore/llm"
)

// scriptedClient returns one canned MessageResponse per call, in order.
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

// fakeTools always succeeds, echoing the tool name as its output.
type fakeTools struct {
	calls []string
}

func (f *fakeTools) ExecuteTool(ctx context.Context, name string, input map[string]any) (llm.ToolResult, error) {
	f.calls = append(f.calls, name)
	return llm.ToolResult{Success: true, Output: "ok:" + name}, nil
}

func newTestBus(t *testing.T) *event.Bus {
	t.Helper()
	store := event.NewMemoryStore()
	return event.NewBus(store, idgen.NewDefault())
}

// Scenario A: single text turn.
func TestLoop_SingleTextTurn(t *testing.T) {
	client := &scriptedClient{responses: []llm.MessageResponse{
		{Text: "Hello world!", StopReason: llm.StopEndTurn},
	}}
	l := &Loop{Client: client, Tools: &fakeTools{}, Bus: newTestBus(t), TaskID: "t1"}
	history := conversation.New()

	result, err := l.Run(context.Background(), history)
	require.NoError(t, err)
	require.Equal(t, 1, result.Iterations)
	require.Empty(t, result.ToolCalls)
	require.Equal(t, "Hello world!", result.FinalText)
	require.Equal(t, StopEndTurn, result.StopReason)
	require.Equal(t, 1, history.Length())
}

// Scenario B: single tool call then a final text turn.
func TestLoop_SingleToolCall(t *testing.T) {
	client := &scriptedClient{responses: []llm.MessageResponse{
		{StopReason: llm.StopToolUse, ToolCalls: []llm.ToolCall{{ID: "1", Name: "read_file", Input: map[string]any{"path": "src/index.ts"}}}},
		{Text: "done", StopReason: llm.StopEndTurn},
	}}
	tools := &fakeTools{}
	l := &Loop{Client: client, Tools: tools, Bus: newTestBus(t), TaskID: "t1"}
	history := conversation.New()

	result, err := l.Run(context.Background(), history)
	require.NoError(t, err)
	require.Equal(t, 2, result.Iterations)
	require.Len(t, result.ToolCalls, 1)
	require.Equal(t, "read_file", result.ToolCalls[0].Name)
	require.True(t, result.ToolCalls[0].Success)
	require.Equal(t, 3, history.Length())
}

// Scenario C: iteration cap.
func TestLoop_IterationCap(t *testing.T) {
	client := &scriptedClient{responses: []llm.MessageResponse{
		{StopReason: llm.StopToolUse, ToolCalls: []llm.ToolCall{{ID: "1", Name: "t"}}},
		{StopReason: llm.StopToolUse, ToolCalls: []llm.ToolCall{{ID: "2", Name: "t"}}},
		{StopReason: llm.StopToolUse, ToolCalls: []llm.ToolCall{{ID: "3", Name: "t"}}},
		{StopReason: llm.StopToolUse, ToolCalls: []llm.ToolCall{{ID: "4", Name: "t"}}},
	}}
	l := &Loop{Client: client, Tools: &fakeTools{}, Bus: newTestBus(t), TaskID: "t1", Budgets: Budgets{MaxIterations: 3}}
	history := conversation.New()

	result, err := l.Run(context.Background(), history)
	require.NoError(t, err)
	require.Equal(t, StopMaxIterations, result.StopReason)
	require.Equal(t, 3, result.Iterations)
	require.Len(t, result.ToolCalls, 3)
	require.Equal(t, 3, client.calls)
}

// Scenario D: token cap, checked after each call using the last call's
// own usage as the projection for the next.
func TestLoop_TokenCap(t *testing.T) {
	client := &scriptedClient{responses: []llm.MessageResponse{
		{StopReason: llm.StopToolUse, ToolCalls: []llm.ToolCall{{ID: "1", Name: "t"}}, Usage: llm.Usage{InputTokens: 100, OutputTokens: 50}},
		{Text: "done", StopReason: llm.StopEndTurn, Usage: llm.Usage{InputTokens: 100, OutputTokens: 50}},
	}}
	l := &Loop{Client: client, Tools: &fakeTools{}, Bus: newTestBus(t), TaskID: "t1", Budgets: Budgets{MaxIterations: 100, MaxTotalTokens: 200}}
	history := conversation.New()

	result, err := l.Run(context.Background(), history)
	require.NoError(t, err)
	require.Equal(t, StopMaxTokens, result.StopReason)
	require.Equal(t, 1, result.Iterations)
	require.Equal(t, 1, client.calls, "loop must stop before issuing the second call")
}

func TestLoop_LLMErrorStopsWithErrorReason(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("boom")}}
	l := &Loop{Client: client, Tools: &fakeTools{}, Bus: newTestBus(t), TaskID: "t1"}
	history := conversation.New()

	result, err := l.Run(context.Background(), history)
	require.NoError(t, err)
	require.Equal(t, StopError, result.StopReason)
	require.Equal(t, 1, result.Iterations)
}

func TestLoop_ToolExecutionFailureRecordedNotPropagated(t *testing.T) {
	client := &scriptedClient{responses: []llm.MessageResponse{
		{StopReason: llm.StopToolUse, ToolCalls: []llm.ToolCall{{ID: "1", Name: "bad_tool"}}},
		{Text: "done", StopReason: llm.StopEndTurn},
	}}
	l := &Loop{Client: client, Tools: &failingTools{}, Bus: newTestBus(t), TaskID: "t1"}
	history := conversation.New()

	result, err := l.Run(context.Background(), history)
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	require.False(t, result.ToolCalls[0].Success)
}

type failingTools struct{}

func (failingTools) ExecuteTool(ctx context.Context, name string, input map[string]any) (llm.ToolResult, error) {
	return llm.ToolResult{}, errors.New("tool exploded")
}
