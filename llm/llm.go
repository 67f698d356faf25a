// Package llm defines LLMClient and ToolProvider (spec §6): the
// provider-agnostic contracts AgenticLoop, streaming, and LLMEditTool
// call through. Concrete adapters live in llm/anthropicapi,
// llm/openaiapi, and llm/googleapi.
//
// Generalized from the teacher's graph/model.ChatModel (a single
// Chat(ctx, messages, tools) call returning text-or-tool-calls) into
// two calls — CreateMessage and StreamMessage — because the spec's
// AgenticLoop needs structured stop_reason/usage fields the teacher's
// ChatOut does not carry, and its streaming driver (§4.9) needs a
// channel of incremental events rather than one final result.
package llm

import (
	"context"

	"github.com/kalyank1144/agentcore/conversation"
)

// StopReason is why a CreateMessage/StreamMessage call ended, mirroring
// the provider stop-reason vocabulary the TruncationSafeExecutor and
// AgenticLoop inspect (spec §4.1, §4.7).
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopLength       StopReason = "length"
	StopStopSequence StopReason = "stop_sequence"
	StopError        StopReason = "error"
)

// Usage is token accounting for one LLM call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ToolSpec describes one tool the LLM may call, generalized from the
// teacher's model.ToolSpec (unchanged shape: name, description, JSON
// schema).
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// MessageRequest is the input to CreateMessage/StreamMessage: a system
// prompt, the full conversation to date expressed as content blocks
// (spec §3 ConversationMessage), the tools on offer, the model id or
// alias, and a max-tokens cap.
type MessageRequest struct {
	SystemPrompt string
	Messages     []conversation.Message
	Tools        []ToolSpec
	Model        string
	MaxTokens    int
}

// MessageResponse is the result of one CreateMessage call: any text the
// model produced, any tool_use blocks it requested, why it stopped, and
// token usage.
type MessageResponse struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
}

// ToolCall is one tool invocation the model requested, carrying the
// provider's call id so the caller can correlate a later ToolResult
// block back to it (spec §3 tool_use/tool_result pairing).
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// StreamEventKind distinguishes the event shapes a StreamMessage channel
// delivers (spec §4.9).
type StreamEventKind string

const (
	StreamTextDelta    StreamEventKind = "text_delta"
	StreamToolCall     StreamEventKind = "tool_call"
	StreamMessageDelta StreamEventKind = "message_delta"
	StreamError        StreamEventKind = "error"
)

// StreamEvent is one incremental event from a StreamMessage channel.
// Only the fields relevant to Kind are populated.
type StreamEvent struct {
	Kind       StreamEventKind
	TextDelta  string
	ToolCall   ToolCall
	StopReason StopReason
	Usage      Usage
	Err        error
}

// LLMClient is the provider-agnostic contract every adapter satisfies
// (spec §6).
type LLMClient interface {
	CreateMessage(ctx context.Context, req MessageRequest) (MessageResponse, error)
	StreamMessage(ctx context.Context, req MessageRequest) (<-chan StreamEvent, error)
}

// ToolResult is the outcome of one ToolProvider.ExecuteTool call (spec
// §4.8 step 3): a thrown exception is recorded as Success:false with an
// empty Output rather than propagated, so the caller can always append a
// tool_result block.
type ToolResult struct {
	Success bool
	Output  string
	Error   string
}

// ToolProvider executes tools the LLM requests via tool_use blocks.
type ToolProvider interface {
	ExecuteTool(ctx context.Context, name string, input map[string]any) (ToolResult, error)
}
