package engine

import (
	"strings"
	"unicode"
)

// Lead-in phrases of the gamemaster's rhetorical closing question.
// Matching is case-sensitive.
var questionLeadIns = []string{
	"What do you want to",
	"What would you like to",
}

// StripTrailingQuestion removes a trailing "leading question" from model
// output: a terminal sentence that starts with one of the known lead-in
// phrases and runs to a closing '?'. Without this, the model's own rhetorical
// prompts pollute the context of the next turn. Best-effort heuristic, not a
// parser; unmatched text is returned unchanged.
func StripTrailingQuestion(text string) string {
	trimmed := strings.TrimRightFunc(text, unicode.IsSpace)
	if !strings.HasSuffix(trimmed, "?") {
		return text
	}

	cut := -1
	for _, phrase := range questionLeadIns {
		if idx := strings.LastIndex(trimmed, phrase); idx > cut {
			cut = idx
		}
	}
	if cut < 0 {
		return text
	}

	// The lead-in must start the terminal sentence: nothing between it and
	// the final '?' may end a sentence of its own.
	tail := trimmed[cut : len(trimmed)-1]
	if strings.ContainsAny(tail, "?.!") {
		return text
	}
	return text[:cut]
}
