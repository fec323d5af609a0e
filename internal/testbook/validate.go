package testbook

import "fmt"

const (
	minProcedures      = 5
	maxTotalMinutes    = 480
	emptyTestbookIssue = "Testbook contains no test procedures"
)

// Statistics summarizes a testbook's size.
type Statistics struct {
	TotalProcedures    int              `json:"total_procedures"`
	ByCategory         map[Category]int `json:"by_category"`
	TotalEstimatedTime int              `json:"total_estimated_time"` // Minutes
}

// Report is the outcome of auditing a testbook. Findings are data, never errors.
type Report struct {
	IsComplete      bool       `json:"is_complete"`
	Issues          []string   `json:"issues"`
	Warnings        []string   `json:"warnings"`
	Statistics      Statistics `json:"statistics"`
	Recommendations []string   `json:"recommendations"`
}

// Validate audits tb. It is complete exactly when no issue was found.
func Validate(tb *Testbook) Report {
	r := Report{
		Issues:          []string{},
		Warnings:        []string{},
		Recommendations: []string{},
		Statistics:      Statistics{ByCategory: map[Category]int{}},
	}

	procs := tb.All()
	if len(procs) == 0 {
		r.Issues = append(r.Issues, emptyTestbookIssue)
		return r
	}

	r.Statistics.TotalProcedures = len(procs)
	for _, p := range procs {
		r.Statistics.ByCategory[p.Category]++
		r.Statistics.TotalEstimatedTime += p.EstimatedDuration
		r.Issues = append(r.Issues, procedureIssues(p)...)
	}

	if r.Statistics.ByCategory[CategoryFunctional] == 0 {
		r.Warnings = append(r.Warnings, "No functional tests found")
	}
	if r.Statistics.ByCategory[CategorySecurity] == 0 {
		r.Warnings = append(r.Warnings, "No security tests found")
	}

	if len(procs) < minProcedures {
		r.Recommendations = append(r.Recommendations, "Consider adding more test procedures for better coverage")
	}
	if r.Statistics.TotalEstimatedTime > maxTotalMinutes {
		r.Recommendations = append(r.Recommendations, "Consider breaking down complex tests or prioritizing critical tests")
	}

	r.IsComplete = len(r.Issues) == 0
	return r
}

func procedureIssues(p Procedure) []string {
	var issues []string
	if p.Title == "" {
		issues = append(issues, fmt.Sprintf("Procedure %s missing title", p.ID))
	}
	if p.Description == "" {
		issues = append(issues, fmt.Sprintf("Procedure %s missing description", p.ID))
	}
	if len(p.Steps) == 0 {
		issues = append(issues, fmt.Sprintf("Procedure %s has no test steps", p.ID))
	}
	if len(p.ExpectedResults) == 0 {
		issues = append(issues, fmt.Sprintf("Procedure %s has no expected results", p.ID))
	}
	for _, s := range p.Steps {
		if s.Action == "" {
			issues = append(issues, fmt.Sprintf("Procedure %s has step with no action", p.ID))
		}
		if s.ExpectedBehavior == "" {
			issues = append(issues, fmt.Sprintf("Procedure %s has step with no expected behavior", p.ID))
		}
	}
	return issues
}
