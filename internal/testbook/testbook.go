package testbook

import (
	"time"

	"github.com/dgallion1/testbook/internal/document"
	"github.com/google/uuid"
)

// Testbook groups the procedures generated for one document by category.
// Usability and compatibility procedures land in OtherProcedures.
type Testbook struct {
	ID                    string      `json:"id"`
	Name                  string      `json:"name"`
	Description           string      `json:"description"`
	Version               string      `json:"version"`
	SourceDocumentID      string      `json:"source_document_id,omitempty"`
	FunctionalProcedures  []Procedure `json:"functional_procedures"`
	SecurityProcedures    []Procedure `json:"security_procedures"`
	PerformanceProcedures []Procedure `json:"performance_procedures"`
	IntegrationProcedures []Procedure `json:"integration_procedures"`
	OtherProcedures       []Procedure `json:"other_procedures"`
	TotalEstimatedMinutes int         `json:"total_estimated_time"`
	Coverage              *Coverage   `json:"coverage_statistics,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
}

// Assemble builds a testbook from procs, keeping their order within each bucket.
func Assemble(name, description, sourceDocID string, procs []Procedure) *Testbook {
	tb := &Testbook{
		ID:                    uuid.NewString(),
		Name:                  name,
		Description:           description,
		Version:               "1.0",
		SourceDocumentID:      sourceDocID,
		FunctionalProcedures:  []Procedure{},
		SecurityProcedures:    []Procedure{},
		PerformanceProcedures: []Procedure{},
		IntegrationProcedures: []Procedure{},
		OtherProcedures:       []Procedure{},
		CreatedAt:             time.Now().UTC(),
	}
	for _, p := range procs {
		switch p.Category {
		case CategoryFunctional:
			tb.FunctionalProcedures = append(tb.FunctionalProcedures, p)
		case CategorySecurity:
			tb.SecurityProcedures = append(tb.SecurityProcedures, p)
		case CategoryPerformance:
			tb.PerformanceProcedures = append(tb.PerformanceProcedures, p)
		case CategoryIntegration:
			tb.IntegrationProcedures = append(tb.IntegrationProcedures, p)
		default:
			tb.OtherProcedures = append(tb.OtherProcedures, p)
		}
	}
	tb.TotalEstimatedMinutes = tb.TotalEstimatedTime()
	return tb
}

// ForFeature assembles a testbook for a single feature with its coverage.
func ForFeature(feature document.Feature, procs []Procedure) *Testbook {
	tb := Assemble("Manual Testbook - "+feature.Name, "", "", procs)
	return tb.WithCoverage(ComputeCoverage(tb, []document.Feature{feature}, nil))
}

// WithCoverage returns a copy of tb carrying cov.
func (tb *Testbook) WithCoverage(cov Coverage) *Testbook {
	out := *tb
	out.Coverage = &cov
	return &out
}

// All returns every procedure, bucket by bucket.
func (tb *Testbook) All() []Procedure {
	if tb == nil {
		return nil
	}
	n := len(tb.FunctionalProcedures) + len(tb.SecurityProcedures) + len(tb.PerformanceProcedures) +
		len(tb.IntegrationProcedures) + len(tb.OtherProcedures)
	out := make([]Procedure, 0, n)
	out = append(out, tb.FunctionalProcedures...)
	out = append(out, tb.SecurityProcedures...)
	out = append(out, tb.PerformanceProcedures...)
	out = append(out, tb.IntegrationProcedures...)
	out = append(out, tb.OtherProcedures...)
	return out
}

// ByCategory returns the procedures whose category is c.
func (tb *Testbook) ByCategory(c Category) []Procedure {
	var out []Procedure
	for _, p := range tb.All() {
		if p.Category == c {
			out = append(out, p)
		}
	}
	return out
}

// TotalEstimatedTime sums procedure durations in minutes.
func (tb *Testbook) TotalEstimatedTime() int {
	total := 0
	for _, p := range tb.All() {
		total += p.EstimatedDuration
	}
	return total
}

// Coverage reports how much of a document the procedures trace back to.
type Coverage struct {
	TotalRequirements   int              `json:"total_requirements"`
	CoveredRequirements int              `json:"covered_requirements"`
	TotalFeatures       int              `json:"total_features"`
	CoveredFeatures     int              `json:"covered_features"`
	Percentage          float64          `json:"coverage_percentage"`
	ByCategory          map[Category]int `json:"by_category"`
	ByPriority          map[Priority]int `json:"by_priority"`
}

// ComputeCoverage counts the features and requirements that at least one
// procedure lists in its SourceFeatures or SourceRequirements.
func ComputeCoverage(tb *Testbook, features []document.Feature, reqs []document.Requirement) Coverage {
	cov := Coverage{
		TotalRequirements: len(reqs),
		TotalFeatures:     len(features),
		ByCategory:        map[Category]int{},
		ByPriority:        map[Priority]int{},
	}

	featureRefs := map[string]bool{}
	reqRefs := map[string]bool{}
	for _, p := range tb.All() {
		cov.ByCategory[p.Category]++
		cov.ByPriority[p.Priority]++
		for _, id := range p.SourceFeatures {
			featureRefs[id] = true
		}
		for _, id := range p.SourceRequirements {
			reqRefs[id] = true
		}
	}

	for _, f := range features {
		if featureRefs[f.ID] {
			cov.CoveredFeatures++
		}
	}
	for _, r := range reqs {
		if reqRefs[r.ID] {
			cov.CoveredRequirements++
		}
	}

	if total := cov.TotalFeatures + cov.TotalRequirements; total > 0 {
		cov.Percentage = float64(cov.CoveredFeatures+cov.CoveredRequirements) / float64(total) * 100
	}
	return cov
}
