// Package anthropicapi adapts llm.LLMClient to Anthropic's Claude API.
//
// Grounded on the teacher's graph/model/anthropic/anthropic.go: same
// split between a thin exported ChatModel-alike wrapper and an
// interface-wrapped SDK client for mockability, same system-prompt
// extraction (Anthropic takes system as a separate parameter, not a
// message role), same error-translation shape. Streaming is new — it
// follows the channel-producer pattern the hector pack example uses for
// its Anthropic SSE reader, but drives the real
// github.com/anthropics/anthropic-sdk-go streaming client instead of a
// hand-rolled SSE parser.
package anthropicapi

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kalyank1144/agentcore/conversation"
	"github.com/kalyank1144/agentcore/llm"
)

const defaultMaxTokens = 4096

// Client implements llm.LLMClient for Anthropic's Claude API.
type Client struct {
	apiKey string
	sdk    anthropicClient
}

// anthropicClient is the subset of the SDK this adapter calls, wrapped
// behind an interface for test doubles.
type anthropicClient interface {
	createMessage(ctx context.Context, params anthropicsdk.MessageNewParams) (*anthropicsdk.Message, error)
	streamMessage(ctx context.Context, params anthropicsdk.MessageNewParams) streamHandle
}

// streamHandle abstracts the SDK's server-sent-events iterator so tests
// can substitute a fake one.
type streamHandle interface {
	Next() bool
	Current() anthropicsdk.MessageStreamEventUnion
	Err() error
}

// NewClient constructs an Anthropic-backed llm.LLMClient.
func NewClient(apiKey string) *Client {
	return &Client{apiKey: apiKey, sdk: &sdkClient{apiKey: apiKey}}
}

// CreateMessage implements llm.LLMClient.
func (c *Client) CreateMessage(ctx context.Context, req llm.MessageRequest) (llm.MessageResponse, error) {
	if ctx.Err() != nil {
		return llm.MessageResponse{}, ctx.Err()
	}
	params, err := buildParams(req)
	if err != nil {
		return llm.MessageResponse{}, err
	}

	msg, err := c.sdk.createMessage(ctx, params)
	if err != nil {
		return llm.MessageResponse{}, translateError(err)
	}
	return convertResponse(msg), nil
}

// StreamMessage implements llm.LLMClient, translating the SDK's
// server-sent-events stream into llm.StreamEvent values on a channel
// (spec §4.9): text deltas as they arrive, a tool_call event per
// completed tool_use block, and a final message_delta event carrying
// stop_reason and usage.
func (c *Client) StreamMessage(ctx context.Context, req llm.MessageRequest) (<-chan llm.StreamEvent, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.StreamEvent, 16)
	go func() {
		defer close(out)
		stream := c.sdk.streamMessage(ctx, params)

		toolIndex := map[int64]*llm.ToolCall{}
		var stopReason llm.StopReason
		var usage llm.Usage

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropicsdk.ContentBlockStartEvent:
				if tu, ok := ev.ContentBlock.AsAny().(anthropicsdk.ToolUseBlock); ok {
					toolIndex[ev.Index] = &llm.ToolCall{ID: tu.ID, Name: tu.Name}
				}
			case anthropicsdk.ContentBlockDeltaEvent:
				switch d := ev.Delta.AsAny().(type) {
				case anthropicsdk.TextDelta:
					out <- llm.StreamEvent{Kind: llm.StreamTextDelta, TextDelta: d.Text}
				default:
					// input_json deltas (tool argument streaming) are ignored
					// per spec §4.9, so the emitted tool_call carries the
					// tool's ID and Name but no Input.
				}
			case anthropicsdk.ContentBlockStopEvent:
				if tc, ok := toolIndex[ev.Index]; ok {
					out <- llm.StreamEvent{Kind: llm.StreamToolCall, ToolCall: *tc}
				}
			case anthropicsdk.MessageDeltaEvent:
				stopReason = mapStopReason(string(ev.Delta.StopReason))
				usage.OutputTokens = int(ev.Usage.OutputTokens)
			}
		}
		if err := stream.Err(); err != nil {
			out <- llm.StreamEvent{Kind: llm.StreamError, Err: translateError(err)}
			return
		}
		out <- llm.StreamEvent{Kind: llm.StreamMessageDelta, StopReason: stopReason, Usage: usage}
	}()
	return out, nil
}

func buildParams(req llm.MessageRequest) (anthropicsdk.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  convertMessages(req.Messages),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params, nil
}

func convertMessages(messages []conversation.Message) []anthropicsdk.MessageParam {
	result := make([]anthropicsdk.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := toSDKBlocks(msg)
		switch msg.Role {
		case conversation.RoleAssistant:
			result = append(result, anthropicsdk.NewAssistantMessage(blocks...))
		default:
			result = append(result, anthropicsdk.NewUserMessage(blocks...))
		}
	}
	return result
}

func toSDKBlocks(msg conversation.Message) []anthropicsdk.ContentBlockParamUnion {
	if !msg.IsBlockForm() {
		return []anthropicsdk.ContentBlockParamUnion{anthropicsdk.NewTextBlock(msg.Text)}
	}
	blocks := make([]anthropicsdk.ContentBlockParamUnion, 0, len(msg.Blocks))
	for _, b := range msg.Blocks {
		switch {
		case b.Text != nil:
			blocks = append(blocks, anthropicsdk.NewTextBlock(b.Text.Text))
		case b.ToolUse != nil:
			blocks = append(blocks, anthropicsdk.NewToolUseBlock(b.ToolUse.ID, b.ToolUse.Input, b.ToolUse.Name))
		case b.ToolResult != nil:
			blocks = append(blocks, anthropicsdk.NewToolResultBlock(b.ToolResult.ToolUseID, b.ToolResult.Content, false))
		}
	}
	return blocks
}

func convertTools(tools []llm.ToolSpec) []anthropicsdk.ToolUnionParam {
	result := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var properties any
		var required []string
		if tool.Schema != nil {
			if props, ok := tool.Schema["properties"]; ok {
				properties = props
			}
			if req, ok := tool.Schema["required"].([]string); ok {
				required = req
			}
		}
		result = append(result, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        tool.Name,
				Description: anthropicsdk.String(tool.Description),
				InputSchema: anthropicsdk.ToolInputSchemaParam{Properties: properties, Required: required},
			},
		})
	}
	return result
}

func convertResponse(msg *anthropicsdk.Message) llm.MessageResponse {
	out := llm.MessageResponse{
		StopReason: mapStopReason(string(msg.StopReason)),
		Usage: llm.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += b.Text
		case anthropicsdk.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:    b.ID,
				Name:  b.Name,
				Input: convertToolInput(b.Input),
			})
		}
	}
	return out
}

func convertToolInput(input any) map[string]any {
	if input == nil {
		return nil
	}
	if m, ok := input.(map[string]any); ok {
		return m
	}
	return map[string]any{"_raw": input}
}

func mapStopReason(raw string) llm.StopReason {
	switch raw {
	case "end_turn":
		return llm.StopEndTurn
	case "tool_use":
		return llm.StopToolUse
	case "max_tokens":
		return llm.StopMaxTokens
	case "stop_sequence":
		return llm.StopStopSequence
	case "":
		return ""
	default:
		return llm.StopReason(raw)
	}
}

// translateError preserves Anthropic's structured API-error type
// information for the caller (e.g. the TruncationSafeExecutor's
// overloaded/rate-limit retry detection), matching the teacher's
// translateAnthropicError shape.
func translateError(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("anthropic API error (status %d): %w", apiErr.StatusCode, apiErr)
	}
	return fmt.Errorf("anthropic API error: %w", err)
}

// sdkClient wraps the official Anthropic SDK client.
type sdkClient struct {
	apiKey string
}

func (c *sdkClient) createMessage(ctx context.Context, params anthropicsdk.MessageNewParams) (*anthropicsdk.Message, error) {
	if c.apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))
	return client.Messages.New(ctx, params)
}

func (c *sdkClient) streamMessage(ctx context.Context, params anthropicsdk.MessageNewParams) streamHandle {
	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))
	return client.Messages.NewStreaming(ctx, params)
}
