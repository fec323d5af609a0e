// Package document holds the records produced by one extraction pass over a
// document's text.
package document

import (
	"errors"
	"time"
)

// ErrNoText is returned when a document yields no usable text. It is fatal to
// the whole extraction pass.
var ErrNoText = errors.New("no text content could be extracted from the document")

// Status is the processing state of a structured document. A pass either
// yields a processed document or fails with an error; job progress is
// tracked by the pipeline.
type Status string

const StatusProcessed Status = "processed"

// Chunk is a bounded span of source text with provenance, ready for retrieval.
type Chunk struct {
	ID         string        `json:"id"`      // Sequence number within the pass
	Content    string        `json:"content"` // Never empty or whitespace-only
	PageNumber int           `json:"page_number,omitempty"`
	Section    string        `json:"section,omitempty"` // Active section label when emitted
	Metadata   ChunkMetadata `json:"metadata"`
}

// ChunkMetadata carries size statistics for a chunk.
type ChunkMetadata struct {
	WordCount     int `json:"word_count"`
	CharCount     int `json:"char_count"`
	TokenEstimate int `json:"token_estimate"`
}

// Priority levels assigned to requirements.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Complexity levels assigned to features.
const (
	ComplexitySimple  = "simple"
	ComplexityMedium  = "medium"
	ComplexityComplex = "complex"
)

// Requirement is a "shall/must"-style statement found in the text.
type Requirement struct {
	ID            string `json:"id"` // REQ-NNN
	Title         string `json:"title"`
	Description   string `json:"description"`
	Priority      string `json:"priority"`
	SourceSection string `json:"source_section,omitempty"`
}

// Feature is a capability the document says the system offers.
type Feature struct {
	ID          string `json:"id"` // FEAT-NNN
	Name        string `json:"name"`
	Description string `json:"description"`
	Complexity  string `json:"complexity"`
}

// Workflow is an ordered, multi-step procedure described in the text.
type Workflow struct {
	ID          string   `json:"id"` // WF-NNN
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
}

// Map is the ordered section outline of a document.
type Map struct {
	Sections      []string       `json:"sections"`
	Relationships []Relationship `json:"relationships"` // Aligned with Sections by position
}

// Relationship lists the neighbors of the section at one outline position.
// Endpoints have an empty Predecessor or Successor.
type Relationship struct {
	Section     string `json:"section"`
	Predecessor string `json:"predecessor,omitempty"`
	Successor   string `json:"successor,omitempty"`
}

// Related returns the neighbors of every position holding label, in outline order.
func (m Map) Related(label string) []string {
	var out []string
	for _, rel := range m.Relationships {
		if rel.Section != label {
			continue
		}
		if rel.Predecessor != "" {
			out = append(out, rel.Predecessor)
		}
		if rel.Successor != "" {
			out = append(out, rel.Successor)
		}
	}
	return out
}

// Structured is the aggregate produced by one extraction pass. It is rebuilt
// wholesale when its inputs change.
type Structured struct {
	ID           string        `json:"id"`
	Filename     string        `json:"filename"`
	Title        string        `json:"title"`
	Content      string        `json:"-"`
	Chunks       []Chunk       `json:"chunks"`
	Requirements []Requirement `json:"requirements"`
	Features     []Feature     `json:"features"`
	Workflows    []Workflow    `json:"workflows"`
	Map          Map           `json:"document_map"`
	Status       Status        `json:"status"`
	Metadata     Metadata      `json:"metadata"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Metadata summarizes the size of a structured document.
type Metadata struct {
	FileSize         int `json:"file_size"`
	ChunkCount       int `json:"chunk_count"`
	FeatureCount     int `json:"feature_count"`
	RequirementCount int `json:"requirement_count"`
	WorkflowCount    int `json:"workflow_count"`
	SectionCount     int `json:"section_count"`
}

// ScopedID qualifies a per-pass identifier with the document it came from.
// Pass-local ids such as REQ-000 repeat across documents; scoped ids do not.
func (d *Structured) ScopedID(id string) string {
	return d.ID + "/" + id
}
