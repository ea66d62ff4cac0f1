// Package keywords implements the shared keyword-extraction logic used
// both by Searcher's filename fallback (spec §4.8 step 5) and by the
// Agent's follow-up coverage check (spec §4.10.1) — the spec requires
// both to use "the same stopword logic", so it lives in one place.
package keywords

import (
	"regexp"
	"strings"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "to": true,
	"of": true, "in": true, "on": true, "at": true, "for": true, "with": true,
	"about": true, "from": true, "by": true, "and": true, "or": true, "but": true,
	"do": true, "does": true, "did": true, "have": true, "has": true, "had": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "my": true, "your": true, "me": true, "what": true, "which": true,
	"who": true, "whom": true, "this": true, "that": true, "these": true, "those": true,
	"can": true, "could": true, "will": true, "would": true, "should": true,
	"file": true, "files": true, "find": true, "show": true, "tell": true,
}

var wordRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

// Extract tokenizes text, lowercases it, and drops stopwords and tokens
// of length <= 2, returning the remaining keywords in first-seen order
// with duplicates removed.
func Extract(text string) []string {
	tokens := wordRe.FindAllString(strings.ToLower(text), -1)

	seen := make(map[string]bool, len(tokens))
	var out []string
	for _, tok := range tokens {
		if len(tok) <= 2 || stopwords[tok] {
			continue
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// Coverage returns the subset of keywords that do NOT appear as a
// substring of the lowercased corpus.
func Coverage(keywords []string, corpus string) (missing []string) {
	lower := strings.ToLower(corpus)
	for _, kw := range keywords {
		if !strings.Contains(lower, kw) {
			missing = append(missing, kw)
		}
	}
	return missing
}
