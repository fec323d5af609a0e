package chunker

import (
	"strings"
	"unicode/utf8"
)

// charsPerToken is the approximate average characters per token for English text.
const charsPerToken = 4

// EstimateTokens gives a rough token count for a chunk. It takes the larger of
// a word-based and a character-based estimate so dense text (tables, ids, code)
// is not undercounted.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	byWords := int(float64(len(strings.Fields(text))) * 1.33)
	byChars := utf8.RuneCountInString(text) / charsPerToken
	tokens := max(byWords, byChars)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
