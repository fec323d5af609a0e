package parser

import (
	"testing"

	"github.com/fumiama/go-docx"
)

func TestDocxHeadingLevel(t *testing.T) {
	tests := []struct {
		style string
		want  int
	}{
		{"Heading1", 1},
		{"heading 3", 3},
		{"HEADING6", 6},
		{"Heading7", 0},
		{"Heading", 0},
		{"Normal", 0},
	}
	for _, tt := range tests {
		para := &docx.Paragraph{Properties: &docx.ParagraphProperties{Style: &docx.Style{Val: tt.style}}}
		if got := docxHeadingLevel(para); got != tt.want {
			t.Errorf("style %q: expected %d, got %d", tt.style, tt.want, got)
		}
	}
	if got := docxHeadingLevel(&docx.Paragraph{}); got != 0 {
		t.Errorf("no properties: expected 0, got %d", got)
	}
}
