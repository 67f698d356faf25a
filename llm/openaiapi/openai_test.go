package openaiapi

import (
	"context"
	"testing"

	openaisdk "github.com/openai/openai-go"
	"github.com/stretchr/testify/require"

	"github.com/kalyank1144/agentcore/conversation"
	"github.com/kalyank1144/agentcore/llm"
)

type fakeOpenAIClient struct {
	resp  *openaisdk.ChatCompletion
	err   error
	calls int
}

func (f *fakeOpenAIClient) createChatCompletion(ctx context.Context, params openaisdk.ChatCompletionNewParams) (*openaisdk.ChatCompletion, error) {
	f.calls++
	return f.resp, f.err
}

func (f *fakeOpenAIClient) streamChatCompletion(ctx context.Context, params openaisdk.ChatCompletionNewParams) streamHandle {
	return nil
}

func TestMapFinishReason(t *testing.T) {
	require.Equal(t, llm.StopEndTurn, mapFinishReason("stop"))
	require.Equal(t, llm.StopToolUse, mapFinishReason("tool_calls"))
	require.Equal(t, llm.StopLength, mapFinishReason("length"))
}

func TestIsTransientError_MatchesKnownPatterns(t *testing.T) {
	require.True(t, isTransientError(&rateLimitError{message: "rate limited"}))
	require.True(t, isTransientError(errStr("connection reset")))
	require.False(t, isTransientError(errStr("invalid api key")))
}

func TestClient_CreateMessage_DoesNotRetryNonTransient(t *testing.T) {
	fake := &fakeOpenAIClient{err: errStr("invalid api key")}
	c := &Client{apiKey: "k", sdk: fake, maxRetries: 3}
	_, err := c.CreateMessage(context.Background(), llm.MessageRequest{Model: "gpt-4o"})
	require.Error(t, err)
	require.Equal(t, 1, fake.calls)
}

func TestClient_CreateMessage_RejectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Client{apiKey: "k", sdk: &fakeOpenAIClient{}}
	_, err := c.CreateMessage(ctx, llm.MessageRequest{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestConvertMessages_TextOnly(t *testing.T) {
	out := convertMessages(llm.MessageRequest{
		SystemPrompt: "be helpful",
		Messages: []conversation.Message{
			conversation.TextMessage(conversation.RoleUser, "hello"),
			conversation.TextMessage(conversation.RoleAssistant, "hi there"),
		},
	})
	require.Len(t, out, 3)
}

func TestConvertMessages_ToolUseBlockCarriesToolCalls(t *testing.T) {
	out := convertMessages(llm.MessageRequest{
		Messages: []conversation.Message{
			conversation.BlockMessage(conversation.RoleAssistant,
				conversation.ToolUseBlockOf("call_1", "read_file", map[string]any{"path": "a.go"})),
		},
	})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfAssistant)
	require.Len(t, out[0].OfAssistant.ToolCalls, 1)
	tc := out[0].OfAssistant.ToolCalls[0]
	require.Equal(t, "call_1", tc.ID)
	require.Equal(t, "read_file", tc.Function.Name)
	require.JSONEq(t, `{"path":"a.go"}`, tc.Function.Arguments)
}

func TestConvertMessages_ToolResultBlockBecomesToolMessage(t *testing.T) {
	out := convertMessages(llm.MessageRequest{
		Messages: []conversation.Message{
			conversation.BlockMessage(conversation.RoleUser,
				conversation.ToolResultBlockOf("call_1", "file contents")),
		},
	})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfTool)
	require.Equal(t, "call_1", out[0].OfTool.ToolCallID)
}

func TestConvertMessages_MixedToolUseAndToolResultAcrossLoopTurns(t *testing.T) {
	out := convertMessages(llm.MessageRequest{
		Messages: []conversation.Message{
			conversation.TextMessage(conversation.RoleUser, "read a.go"),
			conversation.BlockMessage(conversation.RoleAssistant,
				conversation.ToolUseBlockOf("call_1", "read_file", map[string]any{"path": "a.go"})),
			conversation.BlockMessage(conversation.RoleUser,
				conversation.ToolResultBlockOf("call_1", "package main")),
		},
	})
	require.Len(t, out, 3)
	require.NotNil(t, out[1].OfAssistant)
	require.Len(t, out[1].OfAssistant.ToolCalls, 1)
	require.NotNil(t, out[2].OfTool)
}

type errStr string

func (e errStr) Error() string { return string(e) }
