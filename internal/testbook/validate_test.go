package testbook

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_EmptyTestbook(t *testing.T) {
	for _, tb := range []*Testbook{nil, Assemble("Empty", "", "", nil)} {
		r := Validate(tb)
		assert.False(t, r.IsComplete)
		assert.Equal(t, []string{"Testbook contains no test procedures"}, r.Issues)
		assert.Empty(t, r.Warnings)
		assert.Empty(t, r.Recommendations)
		assert.Zero(t, r.Statistics.TotalProcedures)
	}
}

func TestValidate_WellFormedFunctionalAndSecurity(t *testing.T) {
	var procs []Procedure
	for i := range 3 {
		procs = append(procs, wellFormed(fmt.Sprintf("f%d", i), CategoryFunctional, 30))
		procs = append(procs, wellFormed(fmt.Sprintf("s%d", i), CategorySecurity, 30))
	}
	r := Validate(Assemble("Book", "", "", procs))

	assert.True(t, r.IsComplete)
	assert.Empty(t, r.Issues)
	assert.Empty(t, r.Warnings)
	assert.Empty(t, r.Recommendations)
	assert.Equal(t, 6, r.Statistics.TotalProcedures)
	assert.Equal(t, 3, r.Statistics.ByCategory[CategoryFunctional])
	assert.Equal(t, 3, r.Statistics.ByCategory[CategorySecurity])
	assert.Equal(t, 180, r.Statistics.TotalEstimatedTime)
}

func TestValidate_ProcedureIssues(t *testing.T) {
	bare := Procedure{ID: "p1", Category: CategoryFunctional}
	broken := wellFormed("p2", CategorySecurity, 10)
	broken.Steps = []Step{{StepNumber: 1}}

	r := Validate(Assemble("Book", "", "", []Procedure{bare, broken}))

	assert.False(t, r.IsComplete)
	assert.Equal(t, []string{
		"Procedure p1 missing title",
		"Procedure p1 missing description",
		"Procedure p1 has no test steps",
		"Procedure p1 has no expected results",
		"Procedure p2 has step with no action",
		"Procedure p2 has step with no expected behavior",
	}, r.Issues)
}

func TestValidate_CoverageWarnings(t *testing.T) {
	r := Validate(Assemble("Book", "", "", []Procedure{wellFormed("f", CategoryFunctional, 10)}))
	assert.True(t, r.IsComplete, "warnings do not make a testbook incomplete")
	assert.Equal(t, []string{"No security tests found"}, r.Warnings)

	r = Validate(Assemble("Book", "", "", []Procedure{wellFormed("p", CategoryPerformance, 10)}))
	assert.Equal(t, []string{"No functional tests found", "No security tests found"}, r.Warnings)
}

func TestValidate_Recommendations(t *testing.T) {
	procs := []Procedure{
		wellFormed("f", CategoryFunctional, 300),
		wellFormed("s", CategorySecurity, 200),
	}
	r := Validate(Assemble("Book", "", "", procs))

	require.Len(t, r.Recommendations, 2)
	assert.Equal(t, "Consider adding more test procedures for better coverage", r.Recommendations[0])
	assert.Equal(t, "Consider breaking down complex tests or prioritizing critical tests", r.Recommendations[1])
	assert.True(t, r.IsComplete)
}

func TestValidate_FallbackProcedureIsComplete(t *testing.T) {
	b := NewNormalizer(nil).NormalizeBatch(nil, loginFeature)
	r := Validate(Assemble("Book", "", "", b.Procedures))
	assert.Empty(t, r.Issues)
}
