package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dgallion1/testbook/internal/document"
)

// Labeled spans run from the label to the next blank line or the end of text.
var workflowSpanPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)(?:workflow|process|procedure|steps?):\s*(.+?)(?:\n[ \t]*\n|\z)`),
	regexp.MustCompile(`(?is)follow these steps?:?\s*(.+?)(?:\n[ \t]*\n|\z)`),
}

// stepFamily recognizes the first line of a step and reads its ordinal.
type stepFamily struct {
	start   *regexp.Regexp // Group 1 is the ordinal, group 2 the text.
	ordinal func(string) int
}

func digitOrdinal(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func letterOrdinal(s string) int {
	return int(s[0]-'a') + 1
}

// Families in priority order; the first one that matches any line wins.
var stepFamilies = []stepFamily{
	{regexp.MustCompile(`^\s*(\d+)\.\s*(.*)$`), digitOrdinal},
	{regexp.MustCompile(`(?i)^\s*Step\s+(\d+):?\s*(.*)$`), digitOrdinal},
	{regexp.MustCompile(`^\s*([a-z])\.\s*(.*)$`), letterOrdinal},
}

const (
	minWorkflowSteps   = 2
	maxWorkflowDescLen = 200
)

type orderedStep struct {
	ordinal int
	text    string
}

// Workflows returns the multi-step procedures found in labeled spans of text,
// numbered from WF-000.
func (e *Extractor) Workflows(text string) []document.Workflow {
	var flows []document.Workflow
	seen := make(map[string]bool)

	for _, re := range workflowSpanPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			span := strings.TrimSpace(m[1])
			if span == "" || seen[span] {
				continue
			}
			seen[span] = true

			steps := parseSteps(span)
			if len(steps) < minWorkflowSteps {
				continue
			}
			id := len(flows)
			flows = append(flows, document.Workflow{
				ID:          fmt.Sprintf("WF-%03d", id),
				Name:        fmt.Sprintf("Workflow %d", id+1),
				Description: truncate(span, maxWorkflowDescLen),
				Steps:       steps,
			})
		}
	}
	return flows
}

// parseSteps reads span with the first step family that matches, joining
// continuation lines onto the step above them, and returns the step texts
// in ordinal order.
func parseSteps(span string) []string {
	lines := strings.Split(span, "\n")
	for _, fam := range stepFamilies {
		steps := readFamily(lines, fam)
		if len(steps) == 0 {
			continue
		}
		sort.SliceStable(steps, func(i, j int) bool { return steps[i].ordinal < steps[j].ordinal })

		out := make([]string, 0, len(steps))
		for _, s := range steps {
			if s.text != "" {
				out = append(out, s.text)
			}
		}
		return out
	}
	return nil
}

func readFamily(lines []string, fam stepFamily) []orderedStep {
	var steps []orderedStep
	for _, line := range lines {
		if m := fam.start.FindStringSubmatch(line); m != nil {
			steps = append(steps, orderedStep{
				ordinal: fam.ordinal(m[1]),
				text:    strings.TrimSpace(m[2]),
			})
			continue
		}
		cont := strings.TrimSpace(line)
		if cont == "" || len(steps) == 0 {
			continue
		}
		last := &steps[len(steps)-1]
		if last.text == "" {
			last.text = cont
		} else {
			last.text += " " + cont
		}
	}
	return steps
}
