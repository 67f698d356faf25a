package googleapi

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"

	"github.com/kalyank1144/agentcore/llm"
)

type fakeGoogleClient struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeGoogleClient) generateContent(ctx context.Context, model string, tools []llm.ToolSpec, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	return f.resp, f.err
}

func (f *fakeGoogleClient) generateContentStream(ctx context.Context, model string, tools []llm.ToolSpec, parts []genai.Part) streamIterator {
	return errIterator{err: f.err}
}

func TestClient_CreateMessage_PropagatesSafetyFilterError(t *testing.T) {
	c := &Client{apiKey: "k", sdk: &fakeGoogleClient{err: &SafetyFilterError{reason: "blocked", category: "HARM_CATEGORY_HATE_SPEECH"}}}
	_, err := c.CreateMessage(context.Background(), llm.MessageRequest{Model: "gemini-1.5-flash"})
	require.Error(t, err)

	var safetyErr *SafetyFilterError
	require.ErrorAs(t, err, &safetyErr)
	require.Equal(t, "HARM_CATEGORY_HATE_SPEECH", safetyErr.Category())
}

func TestClient_CreateMessage_RejectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Client{apiKey: "k", sdk: &fakeGoogleClient{}}
	_, err := c.CreateMessage(ctx, llm.MessageRequest{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestConvertTypeString(t *testing.T) {
	require.Equal(t, genai.TypeString, convertTypeString("string"))
	require.Equal(t, genai.TypeObject, convertTypeString("object"))
	require.Equal(t, genai.TypeUnspecified, convertTypeString("nonsense"))
}
