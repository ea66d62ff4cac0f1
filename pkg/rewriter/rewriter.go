// Package rewriter implements the QueryRewriter port (spec §4.9): an
// LLM-based rewrite of a raw query into a resolved question, a search
// query optimized for embedding, and an intent tag, with a safe
// identity fallback whenever the model's output cannot be trusted.
// Grounded on the teacher's pkg/index/llm.go pattern: build prompt,
// call model, parse JSON, fall back to a safe default on any error.
package rewriter

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"

	"github.com/manole-ai/neurofind/pkg/llm"
)

// Result is the rewriter's output.
type Result struct {
	Intent        string `json:"intent"`
	SearchQuery   string `json:"search_query"`
	ResolvedQuery string `json:"resolved_query"`
}

var validIntents = map[string]bool{
	"factual": true, "count": true, "list": true,
	"compare": true, "summarize": true, "metadata": true,
}

const systemPrompt = `You resolve a user's follow-up question against prior conversation
context, expand it with likely synonyms, and classify its intent.

Respond with a single JSON object exactly of the form:
{"intent": "<one of factual|count|list|compare|summarize|metadata>", "search_query": "<query optimized for semantic search>", "resolved_query": "<the fully resolved standalone question>"}

Do not include any other text.`

// Rewriter rewrites raw queries using a Model.
type Rewriter struct {
	model *llm.ModelRouter
	debug atomic.Bool
}

// New creates a Rewriter bound to the shared model.
func New(model *llm.ModelRouter) *Rewriter {
	return &Rewriter{model: model}
}

// SetDebug toggles verbose rewrite logging (spec §4.15's toggle_debug).
func (r *Rewriter) SetDebug(on bool) { r.debug.Store(on) }

// Debug reports the current debug flag.
func (r *Rewriter) Debug() bool { return r.debug.Load() }

// Rewrite resolves query against optional prior-turn context. context,
// when present, is prepended to the user message as transcript-style
// lines — never placed in the system prompt.
func (r *Rewriter) Rewrite(ctx context.Context, query string, conversationContext string) Result {
	identity := Result{Intent: "factual", SearchQuery: query, ResolvedQuery: query}
	if strings.TrimSpace(query) == "" {
		return identity
	}

	userMsg := query
	if conversationContext != "" {
		userMsg = conversationContext + "\n\nCurrent question: " + query
	}

	resp, err := r.model.Complete(ctx, &llm.CompletionRequest{
		System:    systemPrompt,
		Messages:  []llm.Message{llm.UserMessage(userMsg)},
		MaxTokens: 300,
	})
	if err != nil || resp.Content == "" {
		return identity
	}

	var parsed Result
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &parsed); err != nil {
		return identity
	}
	if parsed.SearchQuery == "" || parsed.ResolvedQuery == "" {
		return identity
	}
	if !validIntents[parsed.Intent] {
		parsed.Intent = "factual"
	}
	return parsed
}

// extractJSONObject trims any leading/trailing prose outside the span
// from the first '{' to the last '}', tolerating models that wrap JSON
// in commentary. Braces are not balanced-matched.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
