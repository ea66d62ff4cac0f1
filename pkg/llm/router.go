package llm

import (
	"context"
	"sync"
	"time"

	"github.com/manole-ai/neurofind/internal/config"
)

// Deterministic decoding parameters fixed for every outbound request,
// per spec §4.2: the answering path never varies temperature or top_p.
const (
	DeterministicTemperature = 0.1
	DeterministicTopP        = 0.9
)

// ModelRouter is the Model port (spec §4.2): it owns the single text
// provider and the optional vision provider, and serializes every call
// to either behind one lock so that a single local inference process
// never receives concurrent requests (spec §5's model-call lock).
//
// Grounded on the teacher's pkg/llm.Router, trimmed from a multi-model
// ForPlanning/ForExecution/ForValidation selection down to the two
// roles this domain actually has, with no fallback chain: each role
// has exactly one fixed local endpoint, and a provider's error is
// returned to the caller as is rather than retried against a different
// provider.
type ModelRouter struct {
	mu sync.Mutex

	text   Provider
	vision Provider // nil if captioning is disabled
}

// NewModelRouter builds a ModelRouter from process configuration.
func NewModelRouter(cfg *config.ModelConfig) *ModelRouter {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	r := &ModelRouter{
		text: NewLocalProvider("text", cfg.TextURL, cfg.TextModel, timeout),
	}
	if cfg.VisionURL != "" {
		r.vision = NewVisionProvider(cfg.VisionURL, cfg.VisionModel, timeout)
	}
	return r
}

// NewModelRouterWithProviders wires explicit Provider implementations
// directly, bypassing config-driven construction. Used by tests and by
// any caller that already holds a constructed Provider.
func NewModelRouterWithProviders(text, vision Provider) *ModelRouter {
	return &ModelRouter{text: text, vision: vision}
}

// ForText returns the text-completion provider.
func (r *ModelRouter) ForText() Provider { return r.text }

// ForVision returns the vision provider, or nil if captioning is disabled.
func (r *ModelRouter) ForVision() Provider { return r.vision }

// HasVision reports whether a vision provider is configured.
func (r *ModelRouter) HasVision() bool { return r.vision != nil }

// Complete serializes a text completion behind the model-call lock and
// fixes deterministic decoding parameters before dispatching.
func (r *ModelRouter) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	req.Temperature = DeterministicTemperature
	req.TopP = DeterministicTopP

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text.Complete(ctx, req)
}

// Stream serializes a streaming text completion behind the model-call lock.
func (r *ModelRouter) Stream(ctx context.Context, req *CompletionRequest, onToken func(string)) (*CompletionResponse, error) {
	req.Temperature = DeterministicTemperature
	req.TopP = DeterministicTopP

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text.Stream(ctx, req, onToken)
}

// Caption serializes an image-captioning call behind the model-call lock.
// Returns ModelUnavailable if no vision provider is configured.
func (r *ModelRouter) Caption(ctx context.Context, imageBytes []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vision == nil {
		return "", &ProviderError{Provider: "vision", Code: "unavailable", Message: "no vision model configured"}
	}
	return r.vision.CaptionImage(ctx, imageBytes)
}
