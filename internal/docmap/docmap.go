// Package docmap builds the section outline of a document.
package docmap

import (
	"strings"

	"github.com/dgallion1/testbook/internal/document"
	"github.com/dgallion1/testbook/internal/section"
)

// Build scans content line by line and returns its section outline.
// Consecutive repeats of a header collapse into one position; a header that
// recurs later is appended again. Each position is related to its immediate
// neighbors in the outline.
func Build(content string) document.Map {
	m := document.Map{
		Sections:      []string{},
		Relationships: []document.Relationship{},
	}
	for _, line := range strings.Split(content, "\n") {
		label, ok := section.Detect(line)
		if !ok {
			continue
		}
		if n := len(m.Sections); n > 0 && m.Sections[n-1] == label {
			continue
		}
		m.Sections = append(m.Sections, label)
	}

	for i, s := range m.Sections {
		rel := document.Relationship{Section: s}
		if i > 0 {
			rel.Predecessor = m.Sections[i-1]
		}
		if i+1 < len(m.Sections) {
			rel.Successor = m.Sections[i+1]
		}
		m.Relationships = append(m.Relationships, rel)
	}
	return m
}
