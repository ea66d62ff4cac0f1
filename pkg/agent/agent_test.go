package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manole-ai/neurofind/pkg/llm"
	"github.com/manole-ai/neurofind/pkg/searcher"
	"github.com/manole-ai/neurofind/pkg/toolbox"
	"github.com/manole-ai/neurofind/pkg/toolregistry"
	"github.com/manole-ai/neurofind/pkg/vectorindex"
)

// scriptedProvider returns one response per Complete call, in order,
// looping on the last entry once exhausted.
type scriptedProvider struct {
	responses []string
	calls     int
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return &llm.CompletionResponse{Content: s.responses[idx]}, nil
}

func (s *scriptedProvider) Stream(ctx context.Context, req *llm.CompletionRequest, onToken func(string)) (*llm.CompletionResponse, error) {
	return s.Complete(ctx, req)
}

func (s *scriptedProvider) CaptionImage(ctx context.Context, imageBytes []byte) (string, error) {
	return "", nil
}

func fakeEmbed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func newTestRegistry(t *testing.T, model *llm.ModelRouter) *toolregistry.Registry {
	t.Helper()
	idx, err := vectorindex.Open(chromem.NewDB(), "test", fakeEmbed)
	require.NoError(t, err)
	require.NoError(t, idx.Build(context.Background(), []vectorindex.Passage{
		{ID: "a#0", Text: "The budget was $50,000.", Metadata: map[string]string{"file_name": "budget.txt"}},
	}))
	s := searcher.New(idx, model, nil, nil)
	tb := toolbox.New(t.TempDir())
	return toolregistry.New(s, tb)
}

func TestRun_RespondTerminatesImmediately(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		fmt.Sprintf("%srespond(answer=\"The answer is 42.\")%s", sentinelStart, sentinelEnd),
	}}
	router := llm.NewModelRouterWithProviders(provider, nil)
	a := New(newTestRegistry(t, router), router)

	text, sources := a.Run(context.Background(), "what is the answer", "what is the answer", "factual", nil, nil, nil)

	assert.Equal(t, "The answer is 42.", text)
	assert.Empty(t, sources)
	assert.Equal(t, 1, provider.calls)
}

func TestRun_ToolCallThenRespond(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		fmt.Sprintf(`%ssemantic_search(query="budget")%s`, sentinelStart, sentinelEnd),
		fmt.Sprintf(`%srespond(answer="Found it.")%s`, sentinelStart, sentinelEnd),
	}}
	router := llm.NewModelRouterWithProviders(provider, nil)
	registryModel := llm.NewModelRouterWithProviders(&scriptedProvider{responses: []string{`{"relevant": true, "facts": ["Budget: $50,000"]}`}}, nil)
	a := New(newTestRegistry(t, registryModel), router)

	text, sources := a.Run(context.Background(), "what is the budget", "what is the budget", "factual", nil, nil, nil)

	assert.Equal(t, "Found it.", text)
	assert.Equal(t, []string{"budget.txt"}, sources)
}

func TestRun_NoToolCallAtStepZeroUsesRouter(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"I don't know.",
		fmt.Sprintf(`%srespond(answer="Done.")%s`, sentinelStart, sentinelEnd),
	}}
	router := llm.NewModelRouterWithProviders(provider, nil)
	var steps []StepEvent
	a := New(newTestRegistry(t, router), router)

	text, _ := a.Run(context.Background(), "how much disk space am I using", "how much disk space am I using", "metadata", nil, nil, func(e StepEvent) {
		steps = append(steps, e)
	})

	require.NotEmpty(t, steps)
	assert.Equal(t, "folder_stats", steps[0].Tool)
	assert.Equal(t, "Done.", text)
}

func TestRun_UnknownToolNameFallsThroughToRouter(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		fmt.Sprintf(`%sread_my_mind(query="what")%s`, sentinelStart, sentinelEnd),
		fmt.Sprintf(`%srespond(answer="Done.")%s`, sentinelStart, sentinelEnd),
	}}
	router := llm.NewModelRouterWithProviders(provider, nil)
	var steps []StepEvent
	a := New(newTestRegistry(t, router), router)

	text, _ := a.Run(context.Background(), "how much disk space am I using", "how much disk space am I using", "metadata", nil, nil, func(e StepEvent) {
		steps = append(steps, e)
	})

	require.NotEmpty(t, steps)
	assert.Equal(t, "folder_stats", steps[0].Tool)
	assert.Equal(t, "Done.", text)
}

func TestRun_LoopExhaustionForcesFinalAnswer(t *testing.T) {
	responses := make([]string, 0, MaxSteps+1)
	for i := 0; i < MaxSteps; i++ {
		responses = append(responses, fmt.Sprintf(`%scount_files(extension="txt")%s`, sentinelStart, sentinelEnd))
	}
	responses = append(responses, "Final answer after exhaustion.")
	provider := &scriptedProvider{responses: responses}
	router := llm.NewModelRouterWithProviders(provider, nil)
	a := New(newTestRegistry(t, router), router)

	text, _ := a.Run(context.Background(), "count my files", "count my files", "factual", nil, nil, nil)

	assert.Equal(t, "Final answer after exhaustion.", text)
	assert.Equal(t, MaxSteps+1, provider.calls)
}

func TestFollowUp_ForcesGrepThenSemanticSearchThenAccepts(t *testing.T) {
	name, params, ok := followUp("budget report", "nothing relevant here", false, false)
	require.True(t, ok)
	assert.Equal(t, toolregistry.ToolGrepFiles, name)
	assert.Contains(t, params["pattern"], "")

	name, _, ok = followUp("budget report", "nothing relevant here", true, false)
	require.True(t, ok)
	assert.Equal(t, toolregistry.ToolSemanticSearch, name)

	_, _, ok = followUp("budget report", "nothing relevant here", true, true)
	assert.False(t, ok)

	_, _, ok = followUp("budget report", "the budget report is complete", true, true)
	assert.False(t, ok)
}

func TestParseToolCall_SentinelForm(t *testing.T) {
	text := fmt.Sprintf(`%ssemantic_search(query="budget report", top_k=3)%s`, sentinelStart, sentinelEnd)
	name, params, ok := ParseToolCall(text)
	require.True(t, ok)
	assert.Equal(t, "semantic_search", name)
	assert.Equal(t, "budget report", params["query"])
	assert.Equal(t, 3, params["top_k"])
}

func TestParseToolCall_JSONForm(t *testing.T) {
	text := `{"name": "file_metadata", "params": {"name_hint": "invoice"}}`
	name, params, ok := ParseToolCall(text)
	require.True(t, ok)
	assert.Equal(t, "file_metadata", name)
	assert.Equal(t, "invoice", params["name_hint"])
}

func TestParseToolCall_NoCall(t *testing.T) {
	_, _, ok := ParseToolCall("just a plain sentence with no tool call")
	assert.False(t, ok)
}
