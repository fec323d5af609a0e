package generate

import (
	"fmt"
	"strings"
)

const (
	maxContextChunks  = 3
	contextChunkRunes = 200
)

// SystemPrompt frames the model as a QA engineer writing manual procedures.
const SystemPrompt = `You are an expert QA engineer who writes manual test procedures that real testers can execute step by step.

Focus on clear, actionable steps, specific expected results, evidence collection, realistic test data, and edge cases and error conditions.`

// ProcedurePrompt describes the JSON shape the normalizer reads.
const ProcedurePrompt = `Create 2-4 manual test procedures for the feature below, covering basic functional behavior, edge cases and error scenarios, and security or performance concerns where they apply.

Return a JSON array. Each procedure object must have these fields:

- "title": short name of the procedure (string)
- "description": what the procedure verifies (string)
- "category": one of "functional", "security", "performance", "integration", "usability", "compatibility"
- "priority": one of "critical", "high", "medium", "low"
- "preconditions": list of strings
- "test_steps": list of objects with "step_number" (integer), "action" (string), "input_data" (string), "expected_behavior" (string), "screenshot_required" (boolean), "notes" (string)
- "expected_results": list of objects with "id", "description", "success_criteria" (strings) and "failure_indicators" (list of strings)
- "evidence_requirements": list of objects with "id", "type" (one of "screenshot", "log_file", "video", "data_export", "manual_observation"), "description" (string) and "mandatory" (boolean)
- "estimated_duration": minutes (integer)
- "source_requirements": ids of the requirements listed below that the procedure verifies (list of strings)
- "tags": list of strings

Respond with ONLY the JSON array, no other text.`

// BuildPrompt renders the user message for req: the feature, its related
// requirements, and up to three excerpts of surrounding document text.
func BuildPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString(ProcedurePrompt)
	sb.WriteString("\n\n---\n")
	fmt.Fprintf(&sb, "Feature: %s\n", req.Feature.Name)
	fmt.Fprintf(&sb, "Description: %s\n", req.Feature.Description)
	if req.Feature.Complexity != "" {
		fmt.Fprintf(&sb, "Complexity: %s\n", req.Feature.Complexity)
	}

	if len(req.Requirements) > 0 {
		sb.WriteString("\nRelated Requirements:\n")
		for _, r := range req.Requirements {
			fmt.Fprintf(&sb, "- %s %s: %s\n", r.ID, r.Title, r.Description)
		}
	}

	if len(req.Context) > 0 {
		sb.WriteString("\nAdditional Context:\n")
		for _, c := range req.Context[:min(len(req.Context), maxContextChunks)] {
			fmt.Fprintf(&sb, "- %s\n", truncate(c.Content, contextChunkRunes))
		}
	}
	sb.WriteString("---\n")
	return sb.String()
}
