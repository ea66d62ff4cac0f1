package llm

import (
	"context"
	"testing"

	"github.com/manole-ai/neurofind/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider implements Provider for testing.
type mockProvider struct {
	name    string
	resp    *CompletionResponse
	caption string
	err     error
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.resp != nil {
		return m.resp, nil
	}
	return &CompletionResponse{Content: "test response", FinishReason: "stop"}, nil
}

func (m *mockProvider) Stream(ctx context.Context, req *CompletionRequest, onToken func(string)) (*CompletionResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	onToken("test")
	return &CompletionResponse{Content: "test", FinishReason: "stop"}, nil
}

func (m *mockProvider) CaptionImage(ctx context.Context, imageBytes []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.caption, nil
}

func TestModelRouter_ForTextAndVision(t *testing.T) {
	router := NewModelRouter(&config.ModelConfig{
		TextURL:     "http://127.0.0.1:8080",
		TextModel:   "local-text-gguf",
		VisionURL:   "http://127.0.0.1:8081",
		VisionModel: "local-vision-gguf",
		MaxTokens:   256,
		TimeoutSecs: 30,
	})

	require.NotNil(t, router.ForText())
	require.NotNil(t, router.ForVision())
	assert.True(t, router.HasVision())
}

func TestModelRouter_NoVisionWhenURLEmpty(t *testing.T) {
	router := NewModelRouter(&config.ModelConfig{
		TextURL:     "http://127.0.0.1:8080",
		TextModel:   "local-text-gguf",
		TimeoutSecs: 30,
	})

	assert.False(t, router.HasVision())
	assert.Nil(t, router.ForVision())
}

func TestModelRouter_CompleteFixesDecodingParams(t *testing.T) {
	router := &ModelRouter{text: &mockProvider{name: "text"}}

	req := &CompletionRequest{Temperature: 0.9, TopP: 0.1}
	resp, err := router.Complete(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "test response", resp.Content)
	assert.Equal(t, DeterministicTemperature, req.Temperature)
	assert.Equal(t, DeterministicTopP, req.TopP)
}

func TestModelRouter_CaptionWithoutVisionReturnsUnavailable(t *testing.T) {
	router := &ModelRouter{text: &mockProvider{name: "text"}}

	_, err := router.Caption(context.Background(), []byte("fake-image"))

	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestModelRouter_CaptionDelegatesToVisionProvider(t *testing.T) {
	router := &ModelRouter{
		text:   &mockProvider{name: "text"},
		vision: &mockProvider{name: "vision", caption: "a red bicycle leaning against a wall"},
	}

	caption, err := router.Caption(context.Background(), []byte("fake-image"))

	require.NoError(t, err)
	assert.Equal(t, "a red bicycle leaning against a wall", caption)
}

func TestModelRouter_StreamDeliversTokens(t *testing.T) {
	var got string
	router := &ModelRouter{text: &mockProvider{name: "text"}}

	resp, err := router.Stream(context.Background(), &CompletionRequest{}, func(tok string) { got += tok })

	require.NoError(t, err)
	assert.Equal(t, "test", got)
	assert.Equal(t, "test", resp.Content)
}
