package testbook

import (
	"fmt"
	"testing"

	"github.com/dgallion1/testbook/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wellFormed returns a procedure that passes every per-procedure check.
func wellFormed(id string, c Category, minutes int) Procedure {
	return Procedure{
		ID:          id,
		Title:       "Procedure " + id,
		Description: "Checks " + id,
		Category:    c,
		Priority:    PriorityMedium,
		Steps: []Step{
			{StepNumber: 1, Action: "Do the thing", ExpectedBehavior: "The thing happens"},
		},
		ExpectedResults:   []ExpectedResult{{ID: "ER-1", Description: "ok", SuccessCriteria: "ok"}},
		EstimatedDuration: minutes,
	}
}

func TestAssemble_Buckets(t *testing.T) {
	procs := []Procedure{
		wellFormed("f1", CategoryFunctional, 10),
		wellFormed("s1", CategorySecurity, 10),
		wellFormed("p1", CategoryPerformance, 10),
		wellFormed("i1", CategoryIntegration, 10),
		wellFormed("u1", CategoryUsability, 10),
		wellFormed("c1", CategoryCompatibility, 10),
		wellFormed("f2", CategoryFunctional, 5),
	}
	tb := Assemble("Book", "desc", "doc-1", procs)

	assert.NotEmpty(t, tb.ID)
	assert.Equal(t, "1.0", tb.Version)
	assert.Len(t, tb.FunctionalProcedures, 2)
	assert.Len(t, tb.SecurityProcedures, 1)
	assert.Len(t, tb.PerformanceProcedures, 1)
	assert.Len(t, tb.IntegrationProcedures, 1)
	require.Len(t, tb.OtherProcedures, 2)
	assert.Equal(t, "u1", tb.OtherProcedures[0].ID)
	assert.Equal(t, "c1", tb.OtherProcedures[1].ID)

	assert.Len(t, tb.All(), len(procs), "no procedure is lost")
	assert.Equal(t, 65, tb.TotalEstimatedTime())
	assert.Equal(t, 65, tb.TotalEstimatedMinutes)

	usability := tb.ByCategory(CategoryUsability)
	require.Len(t, usability, 1)
	assert.Equal(t, "u1", usability[0].ID)
}

func TestAll_NilTestbook(t *testing.T) {
	var tb *Testbook
	assert.Empty(t, tb.All())
	assert.Equal(t, 0, tb.TotalEstimatedTime())
}

func TestComputeCoverage(t *testing.T) {
	features := []document.Feature{{ID: "FEAT-000"}, {ID: "FEAT-001"}, {ID: "FEAT-002"}, {ID: "FEAT-003"}}
	reqs := []document.Requirement{{ID: "REQ-000"}, {ID: "REQ-001"}}

	a := wellFormed("a", CategoryFunctional, 10)
	a.SourceFeatures = []string{"FEAT-000"}
	a.SourceRequirements = []string{"REQ-001"}
	b := wellFormed("b", CategorySecurity, 10)
	b.Priority = PriorityHigh
	b.SourceFeatures = []string{"FEAT-002", "FEAT-999"}

	tb := Assemble("Book", "", "", []Procedure{a, b})
	cov := ComputeCoverage(tb, features, reqs)

	assert.Equal(t, 4, cov.TotalFeatures)
	assert.Equal(t, 2, cov.CoveredFeatures)
	assert.Equal(t, 2, cov.TotalRequirements)
	assert.Equal(t, 1, cov.CoveredRequirements)
	assert.InDelta(t, 50.0, cov.Percentage, 0.001)
	assert.Equal(t, map[Category]int{CategoryFunctional: 1, CategorySecurity: 1}, cov.ByCategory)
	assert.Equal(t, map[Priority]int{PriorityMedium: 1, PriorityHigh: 1}, cov.ByPriority)

	withCov := tb.WithCoverage(cov)
	require.NotNil(t, withCov.Coverage)
	assert.Nil(t, tb.Coverage, "original testbook is left untouched")
}

func TestComputeCoverage_Empty(t *testing.T) {
	cov := ComputeCoverage(Assemble("Book", "", "", nil), nil, nil)
	assert.Zero(t, cov.Percentage)
	assert.Zero(t, cov.TotalFeatures)
}

func TestFallbackCoversEveryFeature(t *testing.T) {
	n := NewNormalizer(nil)
	var features []document.Feature
	var procs []Procedure
	for i := range 3 {
		f := document.Feature{ID: fmt.Sprintf("FEAT-%03d", i), Name: fmt.Sprintf("Feature %d", i)}
		features = append(features, f)
		procs = append(procs, n.NormalizeBatch(nil, f).Procedures...)
	}
	cov := ComputeCoverage(Assemble("Book", "", "", procs), features, nil)
	assert.Equal(t, 3, cov.CoveredFeatures)
	assert.InDelta(t, 100.0, cov.Percentage, 0.001)
}

func TestForFeature(t *testing.T) {
	b := NewNormalizer(nil).NormalizeBatch(nil, loginFeature)
	tb := ForFeature(loginFeature, b.Procedures)

	assert.Equal(t, "Manual Testbook - User Login", tb.Name)
	require.NotNil(t, tb.Coverage)
	assert.Equal(t, 1, tb.Coverage.CoveredFeatures)
	assert.Len(t, tb.FunctionalProcedures, 1)
}
