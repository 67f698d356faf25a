// Package googleapi adapts llm.LLMClient to Google's Gemini API.
//
// Grounded on the teacher's graph/model/google/google.go: same
// interface-wrapped client, same safety-filter error type, same schema
// conversion helpers. Streaming is new, built on genai's
// GenerateContentStream iterator rather than the teacher's single-shot
// GenerateContent.
package googleapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/kalyank1144/agentcore/llm"
)

// Client implements llm.LLMClient for Google's Gemini API.
type Client struct {
	apiKey string
	sdk    googleClient
}

type googleClient interface {
	generateContent(ctx context.Context, model string, tools []llm.ToolSpec, parts []genai.Part) (*genai.GenerateContentResponse, error)
	generateContentStream(ctx context.Context, model string, tools []llm.ToolSpec, parts []genai.Part) streamIterator
}

// streamIterator abstracts genai's streaming response iterator.
type streamIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

// NewClient constructs a Google-backed llm.LLMClient.
func NewClient(apiKey string) *Client {
	return &Client{apiKey: apiKey, sdk: &sdkClient{apiKey: apiKey}}
}

// CreateMessage implements llm.LLMClient, translating SafetyFilterError
// blocks into an ordinary error while preserving category information
// for errors.As callers, matching the teacher's handleSafetyFilterError.
func (c *Client) CreateMessage(ctx context.Context, req llm.MessageRequest) (llm.MessageResponse, error) {
	if ctx.Err() != nil {
		return llm.MessageResponse{}, ctx.Err()
	}
	parts := convertMessages(req)
	resp, err := c.sdk.generateContent(ctx, req.Model, req.Tools, parts)
	if err != nil {
		var safetyErr *SafetyFilterError
		if errors.As(err, &safetyErr) {
			return llm.MessageResponse{}, safetyErr
		}
		return llm.MessageResponse{}, err
	}
	return convertResponse(resp), nil
}

// StreamMessage implements llm.LLMClient by draining genai's streaming
// iterator onto a channel of llm.StreamEvent (spec §4.9).
func (c *Client) StreamMessage(ctx context.Context, req llm.MessageRequest) (<-chan llm.StreamEvent, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	parts := convertMessages(req)

	out := make(chan llm.StreamEvent, 16)
	go func() {
		defer close(out)
		iter := c.sdk.generateContentStream(ctx, req.Model, req.Tools, parts)

		var usage llm.Usage
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				out <- llm.StreamEvent{Kind: llm.StreamError, Err: fmt.Errorf("google API error: %w", err)}
				return
			}
			converted := convertResponse(resp)
			if converted.Text != "" {
				out <- llm.StreamEvent{Kind: llm.StreamTextDelta, TextDelta: converted.Text}
			}
			for _, tc := range converted.ToolCalls {
				out <- llm.StreamEvent{Kind: llm.StreamToolCall, ToolCall: tc}
			}
			if resp.UsageMetadata != nil {
				usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
				usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
		}
		out <- llm.StreamEvent{Kind: llm.StreamMessageDelta, StopReason: llm.StopEndTurn, Usage: usage}
	}()
	return out, nil
}

func convertMessages(req llm.MessageRequest) []genai.Part {
	var parts []genai.Part
	if req.SystemPrompt != "" {
		parts = append(parts, genai.Text(req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		if msg.IsBlockForm() {
			for _, b := range msg.Blocks {
				if b.Text != nil {
					parts = append(parts, genai.Text(b.Text.Text))
				}
			}
			continue
		}
		if msg.Text != "" {
			parts = append(parts, genai.Text(msg.Text))
		}
	}
	return parts
}

func convertTools(tools []llm.ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  convertSchemaToGenai(tool.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func convertSchemaToGenai(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	result := &genai.Schema{Type: genai.TypeObject}
	if props, ok := schema["properties"].(map[string]any); ok {
		properties := make(map[string]*genai.Schema)
		for key, val := range props {
			if propMap, ok := val.(map[string]any); ok {
				propSchema := &genai.Schema{}
				if typeStr, ok := propMap["type"].(string); ok {
					propSchema.Type = convertTypeString(typeStr)
				}
				if desc, ok := propMap["description"].(string); ok {
					propSchema.Description = desc
				}
				properties[key] = propSchema
			}
		}
		result.Properties = properties
	}
	if required, ok := schema["required"].([]string); ok {
		result.Required = required
	}
	return result
}

func convertTypeString(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func convertResponse(resp *genai.GenerateContentResponse) llm.MessageResponse {
	out := llm.MessageResponse{StopReason: llm.StopEndTurn}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{Name: p.Name, Input: p.Args})
			out.StopReason = llm.StopToolUse
		}
	}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out
}

// SafetyFilterError represents a Google safety filter block, preserving
// reason/category for errors.As callers.
type SafetyFilterError struct {
	reason   string
	category string
}

func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.category
}

func (e *SafetyFilterError) Category() string { return e.category }
func (e *SafetyFilterError) Reason() string   { return e.reason }

// sdkClient wraps the official Google Gemini SDK client.
type sdkClient struct{ apiKey string }

func (c *sdkClient) generateContent(ctx context.Context, model string, tools []llm.ToolSpec, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	defer client.Close()

	genModel := client.GenerativeModel(model)
	if len(tools) > 0 {
		genModel.Tools = convertTools(tools)
	}
	resp, err := genModel.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("google API error: %w", err)
	}
	return resp, nil
}

func (c *sdkClient) generateContentStream(ctx context.Context, model string, tools []llm.ToolSpec, parts []genai.Part) streamIterator {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return errIterator{err: fmt.Errorf("failed to create google client: %w", err)}
	}
	genModel := client.GenerativeModel(model)
	if len(tools) > 0 {
		genModel.Tools = convertTools(tools)
	}
	return &closingIterator{iter: genModel.GenerateContentStream(ctx, parts...), client: client}
}

// closingIterator wraps genai's stream iterator and closes the
// underlying client once the stream is exhausted or errors.
type closingIterator struct {
	iter   *genai.GenerateContentResponseIterator
	client *genai.Client
}

func (c *closingIterator) Next() (*genai.GenerateContentResponse, error) {
	resp, err := c.iter.Next()
	if err != nil {
		c.client.Close()
	}
	return resp, err
}

// errIterator always returns a single error, used when client
// construction itself fails.
type errIterator struct{ err error }

func (e errIterator) Next() (*genai.GenerateContentResponse, error) { return nil, e.err }
