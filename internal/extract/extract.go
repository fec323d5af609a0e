// Package extract pulls requirements, features and workflows out of document
// text with fixed regular-expression templates.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/testbook/internal/section"
)

// Options configures an Extractor.
type Options struct {
	// Dedupe drops candidates whose normalized text repeats an earlier one.
	// Overlapping templates produce duplicates when it is off.
	Dedupe bool
	// Policy overrides the keyword classification rules.
	Policy *Policy
}

// Extractor runs the pattern templates. It holds only configuration and is
// safe for concurrent use.
type Extractor struct {
	policy Policy
	dedupe bool
}

// New returns an Extractor for opts.
func New(opts Options) *Extractor {
	p := DefaultPolicy()
	if opts.Policy != nil {
		p = *opts.Policy
	}
	return &Extractor{policy: p, dedupe: opts.Dedupe}
}

// sectionLookback is how many physical lines above a match are searched for
// its section header.
const sectionLookback = 20

// candidate is one captured span and where its match began in the text.
type candidate struct {
	text  string
	start int
}

// collect gathers the first capture group of every match of every pattern,
// in pattern order, trimmed and filtered to lengths in [minLen, maxLen).
func collect(patterns []*regexp.Regexp, text string, minLen, maxLen int) []candidate {
	var out []candidate
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			span := strings.TrimSpace(text[m[2]:m[3]])
			n := utf8.RuneCountInString(span)
			if n < minLen || n >= maxLen {
				continue
			}
			out = append(out, candidate{text: span, start: m[0]})
		}
	}
	return out
}

var spaceRun = regexp.MustCompile(`\s+`)

// dedupe keeps the first candidate for each case- and whitespace-normalized text.
func dedupe(cands []candidate) []candidate {
	seen := make(map[string]bool, len(cands))
	out := cands[:0:0]
	for _, c := range cands {
		key := strings.ToLower(spaceRun.ReplaceAllString(c.text, " "))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// sourceSection returns the nearest header in the lines ending at pos,
// or "" when none of them is one.
func sourceSection(text string, pos int) string {
	lines := strings.Split(text[:pos], "\n")
	if len(lines) > sectionLookback {
		lines = lines[len(lines)-sectionLookback:]
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if label, ok := section.Detect(lines[i]); ok {
			return label
		}
	}
	return ""
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
