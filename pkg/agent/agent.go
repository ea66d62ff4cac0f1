// Package agent implements the Agent (spec §4.10): the bounded
// tool-calling reasoning loop that answers one query turn. Grounded
// structurally on the teacher's pkg/agent.LoopController (a step-bounded
// loop with per-step execution and an explicit termination condition),
// reimplemented around a fixed MAX_STEPS budget and a text-embedded tool
// call instead of the teacher's planning/execution/validation phases —
// this domain has one phase, not three. The teacher's circuit breaker
// and rate limiter guard a multi-hour autonomous coding loop against
// runaway retries; a 5-step Q&A loop against a local model has no
// equivalent failure mode, so neither is carried (see DESIGN.md).
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/manole-ai/neurofind/pkg/keywords"
	"github.com/manole-ai/neurofind/pkg/llm"
	"github.com/manole-ai/neurofind/pkg/toolregistry"
	"github.com/manole-ai/neurofind/pkg/toolrouter"
)

// MaxSteps bounds the reasoning loop (spec §4.10).
const MaxSteps = 5

const maxHistoryMessages = 4

const baseSystemPromptTemplate = `You are a local file assistant. Answer the user's question using the tools below.
Call at most one tool per turn, using this exact form:
%stool_name(key="value", key2=123)%s
When you have a final answer, call respond(answer="...") — never state a final answer without calling it.
Never fabricate file contents, file names, or facts that no tool result supports.

Available tools:
%s`

// StepEvent reports one executed tool call, for streaming progress UIs.
type StepEvent struct {
	Step   int
	Tool   string
	Params map[string]any
}

// Agent runs the bounded tool-calling reasoning loop for one directory.
type Agent struct {
	registry *toolregistry.Registry
	model    *llm.ModelRouter
	debug    atomic.Bool
}

// New creates an Agent bound to one directory's tool registry and the
// shared model router.
func New(registry *toolregistry.Registry, model *llm.ModelRouter) *Agent {
	return &Agent{registry: registry, model: model}
}

// SetDebug toggles verbose step logging (spec §4.15's toggle_debug).
func (a *Agent) SetDebug(on bool) { a.debug.Store(on) }

// Debug reports the current debug flag.
func (a *Agent) Debug() bool { return a.debug.Load() }

// Run executes the loop for one query turn, returning the final answer
// text and the accumulated source filenames.
//
// originalQuery is the raw user text, used by the Router fallback (step
// 0) and the follow-up keyword-coverage check (§4.10.1). resolvedQuery
// is what the QueryRewriter produced and is what is actually sent to the
// model. history holds the server's stored chat turns (assistant finals
// and raw user text only); at most the last 4 entries are used.
func (a *Agent) Run(ctx context.Context, originalQuery, resolvedQuery, intent string, history []llm.ChatMessage, onToken func(string), onStep func(StepEvent)) (string, []string) {
	messages := a.buildMessages(resolvedQuery, history)

	var accumulatedSources []string
	var toolResultText strings.Builder
	usedGrep := false
	usedSemanticSearch := false

	runTool := func(step int, name string, params map[string]any) string {
		if name == toolregistry.ToolGrepFiles {
			usedGrep = true
		}
		if name == toolregistry.ToolSemanticSearch {
			usedSemanticSearch = true
		}
		text, sources := a.registry.Call(ctx, name, params)
		accumulatedSources = appendUnique(accumulatedSources, sources)
		toolResultText.WriteString(text)
		toolResultText.WriteString("\n")
		if onStep != nil {
			onStep(StepEvent{Step: step, Tool: name, Params: params})
		}
		return text
	}

	for step := 0; step < MaxSteps; step++ {
		resp, err := a.generate(ctx, messages, onToken)
		if err != nil {
			return fmt.Sprintf("error: %v", err), accumulatedSources
		}

		name, params, hasCall := ParseToolCall(resp.Content)
		if hasCall && !a.registry.Known(name) {
			// Unknown tool name: treat as no tool call (spec §4.10 step 2)
			// rather than burn a step on "Unknown tool: T".
			hasCall = false
		}

		if hasCall && name == toolregistry.ToolRespond {
			answer, _ := params["answer"].(string)
			if answer == "" {
				answer = resp.Content
			}
			return answer, accumulatedSources
		}

		if hasCall {
			result := runTool(step, name, params)
			messages = append(messages, llm.AssistantMessage(resp.Content), llm.ToolMessage(result))
			continue
		}

		if step == 0 {
			routedName, routedParams := toolrouter.Route(originalQuery, intent)
			result := runTool(step, routedName, routedParams)
			messages = append(messages, llm.AssistantMessage(resp.Content), llm.ToolMessage(result))
			continue
		}

		followUpName, followUpParams, shouldFollowUp := followUp(originalQuery, toolResultText.String(), usedGrep, usedSemanticSearch)
		if shouldFollowUp {
			result := runTool(step, followUpName, followUpParams)
			messages = append(messages, llm.AssistantMessage(resp.Content), llm.ToolMessage(result))
			continue
		}

		return resp.Content, accumulatedSources
	}

	messages = append(messages, llm.UserMessage("Give a concise final answer based on the information above."))
	resp, err := a.generate(ctx, messages, onToken)
	if err != nil {
		return fmt.Sprintf("error: %v", err), accumulatedSources
	}
	return resp.Content, accumulatedSources
}

// followUp implements the Python-orchestrated follow-up check (spec
// §4.10.1): when the model answers directly without a tool call, verify
// the user's keywords are covered by the tool results gathered so far.
func followUp(originalQuery, accumulatedToolText string, usedGrep, usedSemanticSearch bool) (string, map[string]any, bool) {
	kws := keywords.Extract(originalQuery)
	missing := keywords.Coverage(kws, accumulatedToolText)
	if len(missing) == 0 {
		return "", nil, false
	}
	if !usedGrep {
		return toolregistry.ToolGrepFiles, map[string]any{"pattern": missing[0]}, true
	}
	if !usedSemanticSearch {
		return toolregistry.ToolSemanticSearch, map[string]any{"query": strings.Join(missing, " ")}, true
	}
	return "", nil, false
}

func (a *Agent) buildMessages(resolvedQuery string, history []llm.ChatMessage) []llm.Message {
	start := 0
	if len(history) > maxHistoryMessages {
		start = len(history) - maxHistoryMessages
	}
	messages := make([]llm.Message, 0, len(history)-start+1)
	for _, h := range history[start:] {
		messages = append(messages, llm.NewMessage(h.Role, h.Content))
	}
	messages = append(messages, llm.UserMessage(resolvedQuery))
	return messages
}

func (a *Agent) generate(ctx context.Context, messages []llm.Message, onToken func(string)) (*llm.CompletionResponse, error) {
	req := &llm.CompletionRequest{
		System:    a.systemPrompt(),
		Messages:  messages,
		MaxTokens: 800,
	}
	if onToken != nil {
		return a.model.Stream(ctx, req, onToken)
	}
	return a.model.Complete(ctx, req)
}

func (a *Agent) systemPrompt() string {
	var sb strings.Builder
	for _, tool := range a.registry.Schemas() {
		data, err := json.Marshal(tool)
		if err != nil {
			continue
		}
		sb.Write(data)
		sb.WriteString("\n")
	}
	return fmt.Sprintf(baseSystemPromptTemplate, sentinelStart, sentinelEnd, sb.String())
}

func appendUnique(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	for _, s := range add {
		if !seen[s] {
			seen[s] = true
			existing = append(existing, s)
		}
	}
	return existing
}
