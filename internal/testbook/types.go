// Package testbook normalizes generated test procedures into a strict schema,
// groups them into a testbook, and audits the result.
package testbook

// Category classifies what a procedure tests.
type Category string

const (
	CategoryFunctional    Category = "functional"
	CategorySecurity      Category = "security"
	CategoryPerformance   Category = "performance"
	CategoryIntegration   Category = "integration"
	CategoryUsability     Category = "usability"
	CategoryCompatibility Category = "compatibility"
)

// Categories lists every category in matching order.
var Categories = []Category{
	CategoryFunctional,
	CategorySecurity,
	CategoryPerformance,
	CategoryIntegration,
	CategoryUsability,
	CategoryCompatibility,
}

// Priority ranks how urgently a procedure should run.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Priorities lists every priority in matching order.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// EvidenceType is the kind of artifact a tester must capture.
type EvidenceType string

const (
	EvidenceScreenshot        EvidenceType = "screenshot"
	EvidenceLogFile           EvidenceType = "log_file"
	EvidenceVideo             EvidenceType = "video"
	EvidenceDataExport        EvidenceType = "data_export"
	EvidenceManualObservation EvidenceType = "manual_observation"
)

var evidenceTypes = []EvidenceType{
	EvidenceScreenshot,
	EvidenceLogFile,
	EvidenceVideo,
	EvidenceDataExport,
	EvidenceManualObservation,
}

// Step is one numbered action in a procedure.
type Step struct {
	StepNumber         int    `json:"step_number"`
	Action             string `json:"action"`
	InputData          string `json:"input_data,omitempty"`
	ExpectedBehavior   string `json:"expected_behavior"`
	ScreenshotRequired bool   `json:"screenshot_required"`
	Notes              string `json:"notes,omitempty"`
}

type ExpectedResult struct {
	ID                string   `json:"id"`
	Description       string   `json:"description"`
	SuccessCriteria   string   `json:"success_criteria"`
	FailureIndicators []string `json:"failure_indicators"`
}

type EvidenceRequirement struct {
	ID          string       `json:"id"`
	Type        EvidenceType `json:"type"`
	Description string       `json:"description"`
	Mandatory   bool         `json:"mandatory"`
}

// Procedure is one executable manual test.
type Procedure struct {
	ID                   string                `json:"id"`
	Title                string                `json:"title"`
	Description          string                `json:"description"`
	Category             Category              `json:"category"`
	Priority             Priority              `json:"priority"`
	Preconditions        []string              `json:"preconditions"`
	Steps                []Step                `json:"test_steps"`
	ExpectedResults      []ExpectedResult      `json:"expected_results"`
	EvidenceRequirements []EvidenceRequirement `json:"evidence_requirements"`
	EstimatedDuration    int                   `json:"estimated_duration"` // Minutes
	SourceRequirements   []string              `json:"source_requirements"`
	SourceFeatures       []string              `json:"source_features"`
	Tags                 []string              `json:"tags"`
}

// RawRecord is one loosely-typed procedure description as produced by a
// generator, typically decoded from JSON. A nil RawRecord stands for an
// element that was not a JSON object.
type RawRecord map[string]any
