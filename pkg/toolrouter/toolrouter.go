// Package toolrouter implements the fallback Router (spec §4.6): a
// deterministic, side-effect-free keyword mapping from a raw query to a
// tool call, used only when the Agent fails to produce a parseable tool
// call of its own. Grounded structurally on the teacher's pkg/llm.Router
// (a small dispatch object with deterministic selection), reimplemented
// around keyword rules since this domain routes tools, not models.
package toolrouter

import (
	"regexp"
	"strings"

	"github.com/manole-ai/neurofind/pkg/toolbox"
)

var spaceKeywords = []string{"space", "biggest", "largest", "storage", "heavy", "disk usage"}
var usageKeywords = []string{"total", "usage", "overview", "summary"}
var treeKeywords = []string{"folder", "tree", "directory", "structure"}
var attributeKeywords = []string{"size", "age", "modified", "created", "how big", "how large", "how old"}
var countKeywords = []string{"how many", "count", "number of"}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "was": true, "of": true,
	"for": true, "in": true, "on": true, "my": true, "me": true, "to": true,
	"file": true, "files": true, "it": true, "that": true, "this": true,
}

var extWordRe = regexp.MustCompile(`\b[\w-]+\.[a-zA-Z0-9]{1,5}\b`)

// Route maps a raw query (and optional intent tag) to a tool name and
// its parameters. Pure and deterministic — no I/O, no randomness (P5).
func Route(query string, intent string) (string, map[string]any) {
	lower := strings.ToLower(query)

	if intent == "count" || containsAny(lower, countKeywords) {
		return "count_files", map[string]any{"extension": DetectExtension(query)}
	}

	if intent == "metadata" || containsAny(lower, spaceKeywords) {
		if containsAny(lower, usageKeywords) {
			return "disk_usage", map[string]any{}
		}
		return "folder_stats", map[string]any{"sort_by": "size"}
	}

	if containsAny(lower, treeKeywords) {
		return "directory_tree", map[string]any{}
	}

	if containsAny(lower, attributeKeywords) {
		return "file_metadata", map[string]any{"name_hint": extractNameHint(query)}
	}

	return "semantic_search", map[string]any{"query": query}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// extractNameHint pulls a filename-with-extension out of the query if
// present, otherwise falls back to the last non-stopword token.
func extractNameHint(query string) string {
	if m := extWordRe.FindString(query); m != "" {
		return m
	}

	tokens := strings.Fields(strings.ToLower(query))
	for i := len(tokens) - 1; i >= 0; i-- {
		tok := strings.Trim(tokens[i], ".,!?;:")
		if tok != "" && !stopwords[tok] {
			return tok
		}
	}
	if len(tokens) > 0 {
		return tokens[len(tokens)-1]
	}
	return ""
}

// DetectExtension scans query for whole-word extension keywords and
// returns the canonical extension, or "" if none match.
func DetectExtension(query string) string {
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		tok = strings.Trim(tok, ".,!?;:")
		if ext := toolbox.CanonicalExtension(tok); ext != "" {
			return ext
		}
	}
	return ""
}
