// Package section classifies a line of text as a section header.
package section

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxHeaderLen      = 100
	maxTitleCaseLen   = 80
	maxTitleCaseWords = 6
)

// Header patterns, tried in order.
var headerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d+\.\s+(.+)$`),       // "1. Introduction"
	regexp.MustCompile(`^[A-Z\s]+$`),           // "OVERVIEW"
	regexp.MustCompile(`^\w+\s+\d+:?\s*(.*)$`), // "Chapter 1: Introduction"
}

// Detect reports whether line looks like a section header and returns the
// trimmed line as its label. It keeps no state and is safe for concurrent use.
func Detect(line string) (string, bool) {
	text := strings.TrimSpace(line)
	if text == "" {
		return "", false
	}
	n := utf8.RuneCountInString(text)

	if n < maxHeaderLen {
		for _, re := range headerPatterns {
			if re.MatchString(text) {
				return text, true
			}
		}
	}

	if isTitle(text) &&
		len(strings.Fields(text)) <= maxTitleCaseWords &&
		n < maxTitleCaseLen &&
		!strings.HasSuffix(text, ".") {
		return text, true
	}

	return "", false
}

// isTitle reports whether every cased run in s starts with an upper-case rune
// followed only by lower-case runes, and s has at least one cased rune.
func isTitle(s string) bool {
	cased := false
	prevCased := false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r) || unicode.IsTitle(r):
			if prevCased {
				return false
			}
			prevCased = true
			cased = true
		case unicode.IsLower(r):
			if !prevCased {
				return false
			}
			prevCased = true
			cased = true
		default:
			prevCased = false
		}
	}
	return cased
}
