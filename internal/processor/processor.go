// Package processor runs one extraction pass over a document's text.
package processor

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/dgallion1/testbook/internal/chunker"
	"github.com/dgallion1/testbook/internal/docmap"
	"github.com/dgallion1/testbook/internal/document"
	"github.com/dgallion1/testbook/internal/extract"
	"github.com/google/uuid"
)

// Options configures an extraction pass.
type Options struct {
	Chunking  chunker.Config
	Extractor *extract.Extractor // Defaults to extract.New(extract.Options{}).
}

// DefaultOptions returns the standard chunking settings and extractor.
func DefaultOptions() Options {
	return Options{Chunking: chunker.DefaultConfig()}
}

// Process chunks text, extracts requirements, features and workflows, and maps
// its sections. Empty or whitespace-only text fails with document.ErrNoText.
func Process(filename, text string, opts Options) (*document.Structured, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("process %s: %w", filename, document.ErrNoText)
	}
	ex := opts.Extractor
	if ex == nil {
		ex = extract.New(extract.Options{})
	}

	chunks := chunker.Chunk(text, opts.Chunking)
	reqs := ex.Requirements(text)
	feats := ex.Features(text)
	flows := ex.Workflows(text)
	m := docmap.Build(text)

	return &document.Structured{
		ID:           uuid.NewString(),
		Filename:     filepath.Base(filename),
		Title:        Title(text, filename),
		Content:      text,
		Chunks:       chunks,
		Requirements: reqs,
		Features:     feats,
		Workflows:    flows,
		Map:          m,
		Status:       document.StatusProcessed,
		Metadata: document.Metadata{
			FileSize:         len(text),
			ChunkCount:       len(chunks),
			FeatureCount:     len(feats),
			RequirementCount: len(reqs),
			WorkflowCount:    len(flows),
			SectionCount:     len(m.Sections),
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

const titleScanLines = 10

var titleWords = []string{"specification", "requirements", "manual", "guide", "documentation"}

// Title picks a title from the first lines of text, falling back to the
// filename without its extension.
func Title(text, filename string) string {
	lines := strings.SplitN(text, "\n", titleScanLines+1)
	if len(lines) > titleScanLines {
		lines = lines[:titleScanLines]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		r := []rune(line)
		if len(r) <= 10 || len(r) >= 100 {
			continue
		}
		lower := strings.ToLower(line)
		for _, w := range titleWords {
			if strings.Contains(lower, w) {
				return line
			}
		}
		if !strings.ContainsFunc(string(r[:5]), unicode.IsDigit) {
			return line
		}
	}

	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return titleCase(stem)
}

// titleCase upper-cases the first letter of each run of letters and
// lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
