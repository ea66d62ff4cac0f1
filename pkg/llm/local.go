package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LocalProvider talks to a local llama.cpp/Ollama-compatible chat endpoint
// bound to 127.0.0.1. Grounded on the teacher's OllamaProvider: same
// request/response shape, same /api/chat path, generalized to carry a
// provider name so text and vision endpoints log distinctly.
type LocalProvider struct {
	name       string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewLocalProvider constructs a provider pointed at a local chat endpoint.
func NewLocalProvider(name, baseURL, model string, timeout time.Duration) *LocalProvider {
	return &LocalProvider{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider for logging.
func (p *LocalProvider) Name() string { return p.name }

// Complete generates a full completion.
func (p *LocalProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	ollamaReq := p.toOllamaRequest(req, false)
	respBody, err := p.post(ctx, ollamaReq)
	if err != nil {
		return nil, err
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return p.fromOllamaResponse(&ollamaResp), nil
}

// Stream generates a completion, delivering each text delta via onToken.
func (p *LocalProvider) Stream(ctx context.Context, req *CompletionRequest, onToken func(string)) (*CompletionResponse, error) {
	ollamaReq := p.toOllamaRequest(req, true)

	body, err := json.Marshal(ollamaReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Code: "unavailable", Message: "connect to local model", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{Provider: p.name, Code: "inference", Message: string(respBody)}
	}

	var full strings.Builder
	var final ollamaResponse
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Message.Content != "" {
			full.WriteString(chunk.Message.Content)
			onToken(chunk.Message.Content)
		}
		if chunk.Done {
			final = chunk
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	out := p.fromOllamaResponse(&final)
	out.Content = full.String()
	return out, nil
}

// CaptionImage is not supported by the text provider.
func (p *LocalProvider) CaptionImage(ctx context.Context, imageBytes []byte) (string, error) {
	return "", &ProviderError{Provider: p.name, Code: "unavailable", Message: "text provider does not support vision"}
}

func (p *LocalProvider) post(ctx context.Context, ollamaReq *ollamaRequest) ([]byte, error) {
	body, err := json.Marshal(ollamaReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Code: "unavailable", Message: "connect to local model", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: p.name, Code: "inference", Message: string(respBody)}
	}
	return respBody, nil
}

func (p *LocalProvider) toOllamaRequest(req *CompletionRequest, stream bool) *ollamaRequest {
	messages := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			continue
		}
		if msg.Role == "tool" {
			messages = append(messages, ollamaMessage{Role: "user", Content: fmt.Sprintf("[Tool Result]: %s", msg.Content)})
			continue
		}
		messages = append(messages, ollamaMessage{Role: msg.Role, Content: msg.Content})
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	return &ollamaRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Options: &ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
		},
	}
}

func (p *LocalProvider) fromOllamaResponse(resp *ollamaResponse) *CompletionResponse {
	finish := "stop"
	if resp.DoneReason != "" {
		finish = resp.DoneReason
	}
	return &CompletionResponse{
		Content:      resp.Message.Content,
		FinishReason: finish,
		Usage: TokenUsage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}
}

// VisionProvider is the same HTTP shape as LocalProvider, pointed at a
// second local endpoint serving the vision-language GGUF variant. It is
// used exclusively by ImageCaptioner through CaptionImage; Complete and
// Stream exist to satisfy the Provider interface for uniform wiring in
// ModelRouter, but callers needing text generation use ForText instead.
type VisionProvider struct {
	*LocalProvider
}

// NewVisionProvider constructs a vision provider pointed at a local
// multimodal chat endpoint.
func NewVisionProvider(baseURL, model string, timeout time.Duration) *VisionProvider {
	return &VisionProvider{LocalProvider: NewLocalProvider("vision", baseURL, model, timeout)}
}

// CaptionImage sends the image as base64-encoded inline content and asks
// for a short, factual caption.
func (p *VisionProvider) CaptionImage(ctx context.Context, imageBytes []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(imageBytes)

	ollamaReq := &ollamaRequest{
		Model: p.model,
		Messages: []ollamaMessage{
			{
				Role:    "user",
				Content: "Describe this image in one concise, factual sentence. Do not speculate.",
				Images:  []string{encoded},
			},
		},
		Stream: false,
		Options: &ollamaOptions{
			Temperature: 0.1,
			TopP:        0.9,
			NumPredict:  128,
		},
	}

	respBody, err := p.post(ctx, ollamaReq)
	if err != nil {
		return "", err
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return "", fmt.Errorf("unmarshal caption response: %w", err)
	}
	return strings.TrimSpace(ollamaResp.Message.Content), nil
}

// ollamaRequest is the Ollama /api/chat request format.
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// ollamaResponse is the Ollama /api/chat response format.
type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	TotalDuration   int64         `json:"total_duration"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}
