package extract

import (
	"fmt"
	"regexp"

	"github.com/dgallion1/testbook/internal/document"
)

var requirementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?ims)(?:the system|application|software|platform|solution)\s+(?:shall|must|should|will)\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?ims)(?:it is )?required\s+that\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?ims)(?:the|a)\s+(?:user|admin|system)\s+(?:shall|must|should|will be able to)\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?ims)requirement:?\s*(.+?)(?:\n|$)`),
}

const (
	minRequirementLen = 10
	maxRequirementLen = 500
	maxTitleLen       = 100
)

// Requirements returns the requirement statements found in text, numbered
// from REQ-000.
func (e *Extractor) Requirements(text string) []document.Requirement {
	cands := collect(requirementPatterns, text, minRequirementLen, maxRequirementLen)
	if e.dedupe {
		cands = dedupe(cands)
	}

	reqs := make([]document.Requirement, 0, len(cands))
	for i, c := range cands {
		reqs = append(reqs, document.Requirement{
			ID:            fmt.Sprintf("REQ-%03d", i),
			Title:         truncate(c.text, maxTitleLen),
			Description:   c.text,
			Priority:      e.policy.Priority.Classify(c.text),
			SourceSection: sourceSection(text, c.start),
		})
	}
	return reqs
}
