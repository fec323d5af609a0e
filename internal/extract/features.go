package extract

import (
	"fmt"
	"regexp"

	"github.com/dgallion1/testbook/internal/document"
)

var featurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)(?:feature|functionality|capability|function):\s*(.+?)(?:\n|$)`),
	regexp.MustCompile(`(?im)(?:the system|application)\s+(?:provides|offers|includes|supports)\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?im)(?:users?\s+can|able to)\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?im)(?:login|authentication|registration|dashboard|reporting|search|filter|export|import)\s+(.{10,100}?)(?:\.|$)`),
}

const (
	minFeatureLen = 10
	maxFeatureLen = 300
	maxNameLen    = 80
)

// Features returns the capabilities described in text, numbered from FEAT-000.
func (e *Extractor) Features(text string) []document.Feature {
	cands := collect(featurePatterns, text, minFeatureLen, maxFeatureLen)
	if e.dedupe {
		cands = dedupe(cands)
	}

	feats := make([]document.Feature, 0, len(cands))
	for i, c := range cands {
		feats = append(feats, document.Feature{
			ID:          fmt.Sprintf("FEAT-%03d", i),
			Name:        truncate(c.text, maxNameLen),
			Description: c.text,
			Complexity:  e.policy.Complexity.Classify(c.text),
		})
	}
	return feats
}
