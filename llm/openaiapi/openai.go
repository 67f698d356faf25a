// Package openaiapi adapts llm.LLMClient to OpenAI's Chat Completions
// API.
//
// Grounded on the teacher's graph/model/openai/openai.go: same
// interface-wrapped SDK client, same transient-error retry loop with
// linear delay on rate limits, generalized to the spec's
// MessageRequest/MessageResponse shape and extended with a streaming
// path the teacher's adapter did not have.
package openaiapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kalyank1144/agentcore/conversation"
	"github.com/kalyank1144/agentcore/llm"
)

// Client implements llm.LLMClient for OpenAI's API.
type Client struct {
	apiKey     string
	sdk        openaiClient
	maxRetries int
	retryDelay time.Duration
}

type openaiClient interface {
	createChatCompletion(ctx context.Context, params openaisdk.ChatCompletionNewParams) (*openaisdk.ChatCompletion, error)
	streamChatCompletion(ctx context.Context, params openaisdk.ChatCompletionNewParams) streamHandle
}

// streamHandle abstracts the SDK's SSE iterator.
type streamHandle interface {
	Next() bool
	Current() openaisdk.ChatCompletionChunk
	Err() error
}

// NewClient constructs an OpenAI-backed llm.LLMClient with 3 retries and
// a 1 second base delay, matching the teacher's defaults.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		sdk:        &sdkClient{apiKey: apiKey},
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// CreateMessage implements llm.LLMClient, retrying transient errors
// (timeouts, 5xx, rate limits) with linear backoff on rate limits.
func (c *Client) CreateMessage(ctx context.Context, req llm.MessageRequest) (llm.MessageResponse, error) {
	if ctx.Err() != nil {
		return llm.MessageResponse{}, ctx.Err()
	}
	params := buildParams(req)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.sdk.createChatCompletion(ctx, params)
		if err == nil {
			return convertResponse(resp), nil
		}
		lastErr = err

		if !isTransientError(err) {
			return llm.MessageResponse{}, err
		}
		if attempt >= c.maxRetries {
			break
		}

		delay := c.retryDelay
		if isRateLimitError(err) {
			delay = c.retryDelay * time.Duration(attempt+1)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return llm.MessageResponse{}, ctx.Err()
		}
	}
	return llm.MessageResponse{}, fmt.Errorf("openai API failed after %d retries: %w", c.maxRetries, lastErr)
}

// StreamMessage implements llm.LLMClient, translating chat-completion
// stream chunks into llm.StreamEvent values (spec §4.9).
func (c *Client) StreamMessage(ctx context.Context, req llm.MessageRequest) (<-chan llm.StreamEvent, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	params := buildParams(req)

	out := make(chan llm.StreamEvent, 16)
	go func() {
		defer close(out)
		stream := c.sdk.streamChatCompletion(ctx, params)

		var stopReason llm.StopReason
		var usage llm.Usage
		toolCalls := map[int64]*llm.ToolCall{}

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				out <- llm.StreamEvent{Kind: llm.StreamTextDelta, TextDelta: choice.Delta.Content}
			}
			for _, tc := range choice.Delta.ToolCalls {
				existing, ok := toolCalls[tc.Index]
				if !ok {
					existing = &llm.ToolCall{ID: tc.ID, Name: tc.Function.Name}
					toolCalls[tc.Index] = existing
				}
			}
			if choice.FinishReason != "" {
				stopReason = mapFinishReason(choice.FinishReason)
			}
			if chunk.Usage.TotalTokens > 0 {
				usage.InputTokens = int(chunk.Usage.PromptTokens)
				usage.OutputTokens = int(chunk.Usage.CompletionTokens)
			}
		}
		if err := stream.Err(); err != nil {
			out <- llm.StreamEvent{Kind: llm.StreamError, Err: fmt.Errorf("openai API error: %w", err)}
			return
		}
		for _, tc := range toolCalls {
			out <- llm.StreamEvent{Kind: llm.StreamToolCall, ToolCall: *tc}
		}
		out <- llm.StreamEvent{Kind: llm.StreamMessageDelta, StopReason: stopReason, Usage: usage}
	}()
	return out, nil
}

func buildParams(req llm.MessageRequest) openaisdk.ChatCompletionNewParams {
	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(req.Model),
		Messages: convertMessages(req),
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params
}

func convertMessages(req llm.MessageRequest) []openaisdk.ChatCompletionMessageParamUnion {
	result := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		result = append(result, toSDKMessages(msg)...)
	}
	return result
}

// toSDKMessages converts one conversation.Message into the one or more
// Chat Completions messages it requires: a plain message for text-only
// content, or for block-form content (mirroring
// llm/anthropicapi.toSDKBlocks) an assistant message carrying tool_calls
// for every tool_use block plus one "tool" role message per tool_result
// block, keyed by tool_call_id. Chat Completions has no single content
// block that carries a tool result the way Anthropic's does, so a
// block-form message can expand into several SDK messages.
func toSDKMessages(msg conversation.Message) []openaisdk.ChatCompletionMessageParamUnion {
	if !msg.IsBlockForm() {
		if msg.Role == conversation.RoleAssistant {
			return []openaisdk.ChatCompletionMessageParamUnion{openaisdk.AssistantMessage(msg.Text)}
		}
		return []openaisdk.ChatCompletionMessageParamUnion{openaisdk.UserMessage(msg.Text)}
	}

	var text string
	var toolCalls []openaisdk.ChatCompletionMessageToolCallParam
	var toolResults []openaisdk.ChatCompletionMessageParamUnion
	for _, b := range msg.Blocks {
		switch {
		case b.Text != nil:
			if text != "" {
				text += "\n"
			}
			text += b.Text.Text
		case b.ToolUse != nil:
			toolCalls = append(toolCalls, openaisdk.ChatCompletionMessageToolCallParam{
				ID: b.ToolUse.ID,
				Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
					Name:      b.ToolUse.Name,
					Arguments: marshalToolArguments(b.ToolUse.Input),
				},
			})
		case b.ToolResult != nil:
			toolResults = append(toolResults, openaisdk.ToolMessage(b.ToolResult.Content, b.ToolResult.ToolUseID))
		}
	}

	var out []openaisdk.ChatCompletionMessageParamUnion
	if text != "" || len(toolCalls) > 0 {
		assistantMsg := openaisdk.AssistantMessage(text)
		if len(toolCalls) > 0 {
			assistantMsg.OfAssistant.ToolCalls = toolCalls
		}
		out = append(out, assistantMsg)
	}
	return append(out, toolResults...)
}

// marshalToolArguments encodes a tool_use block's input as the JSON
// string the Chat Completions API expects for a tool call's arguments.
func marshalToolArguments(input map[string]any) string {
	if input == nil {
		return "{}"
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func convertTools(tools []llm.ToolSpec) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, len(tools))
	for i, tool := range tools {
		result[i] = openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openaisdk.String(tool.Description),
				Parameters:  shared.FunctionParameters(tool.Schema),
			},
		}
	}
	return result
}

func convertResponse(resp *openaisdk.ChatCompletion) llm.MessageResponse {
	out := llm.MessageResponse{
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.Text = choice.Message.Content
	out.StopReason = mapFinishReason(choice.FinishReason)
	if len(choice.Message.ToolCalls) > 0 {
		out.ToolCalls = make([]llm.ToolCall, len(choice.Message.ToolCalls))
		for i, tc := range choice.Message.ToolCalls {
			out.ToolCalls[i] = llm.ToolCall{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: parseToolInput(tc.Function.Arguments),
			}
		}
	}
	return out
}

func parseToolInput(jsonStr string) map[string]any {
	if jsonStr == "" {
		return nil
	}
	return map[string]any{"_raw": jsonStr}
}

func mapFinishReason(reason string) llm.StopReason {
	switch reason {
	case "stop":
		return llm.StopEndTurn
	case "tool_calls":
		return llm.StopToolUse
	case "length":
		return llm.StopLength
	default:
		return llm.StopReason(reason)
	}
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	var rateLimitErr *rateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}
	msgLower := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "network", "connection", "temporary", "503", "502", "500"} {
		if strings.Contains(msgLower, pattern) {
			return true
		}
	}
	return false
}

func isRateLimitError(err error) bool {
	var rateLimitErr *rateLimitError
	return errors.As(err, &rateLimitErr)
}

type rateLimitError struct{ message string }

func (e *rateLimitError) Error() string { return e.message }

// sdkClient wraps the official OpenAI SDK client.
type sdkClient struct{ apiKey string }

func (c *sdkClient) createChatCompletion(ctx context.Context, params openaisdk.ChatCompletionNewParams) (*openaisdk.ChatCompletion, error) {
	if c.apiKey == "" {
		return nil, errors.New("openai API key is required")
	}
	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))
	return client.Chat.Completions.New(ctx, params)
}

func (c *sdkClient) streamChatCompletion(ctx context.Context, params openaisdk.ChatCompletionNewParams) streamHandle {
	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))
	return client.Chat.Completions.NewStreaming(ctx, params)
}
