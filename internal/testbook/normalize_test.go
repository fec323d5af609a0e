package testbook

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dgallion1/testbook/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loginFeature = document.Feature{
	ID:          "FEAT-001",
	Name:        "User Login",
	Description: "users can log in with email and password",
	Complexity:  document.ComplexityMedium,
}

func record(t *testing.T, js string) RawRecord {
	t.Helper()
	var rec RawRecord
	require.NoError(t, json.Unmarshal([]byte(js), &rec))
	return rec
}

func TestNormalize_EmptyRecordFallsBack(t *testing.T) {
	res, err := NewNormalizer(nil).Normalize(RawRecord{}, loginFeature)
	require.NoError(t, err)

	p := res.Procedure
	assert.Equal(t, PathFallback, res.Path)
	assert.Equal(t, "Basic Test - User Login", p.Title)
	assert.Equal(t, "Basic functional test for User Login", p.Description)
	assert.Equal(t, CategoryFunctional, p.Category)
	assert.Equal(t, PriorityMedium, p.Priority)
	require.Len(t, p.Steps, 3)
	assert.Equal(t, "Navigate to User Login functionality", p.Steps[0].Action)
	assert.Equal(t, "Execute primary User Login operation", p.Steps[1].Action)
	assert.Equal(t, "Verify results", p.Steps[2].Action)
	require.Len(t, p.ExpectedResults, 1)
	assert.Equal(t, "User Login functions as described in requirements", p.ExpectedResults[0].Description)
	require.Len(t, p.EvidenceRequirements, 1)
	assert.Equal(t, EvidenceScreenshot, p.EvidenceRequirements[0].Type)
	assert.True(t, p.EvidenceRequirements[0].Mandatory)
	assert.Equal(t, 10, p.EstimatedDuration)
	assert.Equal(t, []string{"FEAT-001"}, p.SourceFeatures)
	assert.Equal(t, []string{"user_login"}, p.Tags)
	assert.NotEmpty(t, p.ID)
}

func TestNormalize_UnrecognizedKeysFallBack(t *testing.T) {
	res, err := NewNormalizer(nil).Normalize(RawRecord{"foo": "bar"}, loginFeature)
	require.NoError(t, err)
	assert.Equal(t, PathFallback, res.Path)
}

func TestNormalize_Strict(t *testing.T) {
	rec := record(t, `{
		"title": "Checkout with saved card",
		"description": "Verify checkout using a stored card",
		"category": "functional",
		"priority": "high",
		"preconditions": ["Card on file"],
		"test_steps": [
			{"step_number": 4, "action": "Open cart", "expected_behavior": "Cart shows items"},
			{"step_number": 9, "action": "Pay", "input_data": "card ending 4242", "expected_behavior": "Payment accepted", "screenshot_required": true}
		],
		"expected_results": [{"description": "Order placed", "success_criteria": "Confirmation shown", "failure_indicators": ["Error banner"]}],
		"evidence_requirements": [{"type": "video", "description": "Recording of checkout"}],
		"estimated_duration": 12,
		"source_requirements": ["REQ-003"],
		"tags": ["checkout"]
	}`)

	res, err := NewNormalizer(nil).Normalize(rec, loginFeature)
	require.NoError(t, err)
	assert.Equal(t, PathStrict, res.Path)

	p := res.Procedure
	assert.Equal(t, "Checkout with saved card", p.Title)
	assert.Equal(t, PriorityHigh, p.Priority)
	assert.Equal(t, []string{"Card on file"}, p.Preconditions)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, 1, p.Steps[0].StepNumber)
	assert.Equal(t, 2, p.Steps[1].StepNumber)
	assert.Equal(t, "card ending 4242", p.Steps[1].InputData)
	assert.True(t, p.Steps[1].ScreenshotRequired)
	require.Len(t, p.ExpectedResults, 1)
	assert.Equal(t, "ER-1", p.ExpectedResults[0].ID)
	assert.Equal(t, []string{"Error banner"}, p.ExpectedResults[0].FailureIndicators)
	require.Len(t, p.EvidenceRequirements, 1)
	assert.Equal(t, EvidenceVideo, p.EvidenceRequirements[0].Type)
	assert.True(t, p.EvidenceRequirements[0].Mandatory)
	assert.Equal(t, 12, p.EstimatedDuration)
	assert.Equal(t, []string{"REQ-003"}, p.SourceRequirements)
	assert.Equal(t, []string{"FEAT-001"}, p.SourceFeatures)
	assert.Equal(t, []string{"checkout"}, p.Tags)
}

func TestNormalize_Permissive(t *testing.T) {
	rec := record(t, `{
		"title": "Login works",
		"category": "Security Testing",
		"priority": "HIGH priority",
		"preconditions": "User exists",
		"steps": [
			"Open login page",
			{"action": "Enter credentials", "input_data": {"user": "a"}, "expected_behavior": "Accepted", "screenshot_required": true}
		],
		"expected_results": ["User is logged in"],
		"evidence_requirements": [
			"Screenshot of dashboard",
			{"type": "log_file", "description": "auth log", "mandatory": false},
			{"type": "hologram", "description": "unknown kind"}
		],
		"estimated_duration": "20"
	}`)

	res, err := NewNormalizer(nil).Normalize(rec, loginFeature)
	require.NoError(t, err)
	assert.Equal(t, PathPermissive, res.Path)

	p := res.Procedure
	assert.Equal(t, "Login works", p.Title)
	assert.Equal(t, "Test procedure for User Login", p.Description)
	assert.Equal(t, CategorySecurity, p.Category)
	assert.Equal(t, PriorityHigh, p.Priority)
	assert.Equal(t, []string{"User exists"}, p.Preconditions)

	require.Len(t, p.Steps, 2)
	assert.Equal(t, Step{StepNumber: 1, Action: "Open login page", ExpectedBehavior: "Verify step completes successfully"}, p.Steps[0])
	assert.Equal(t, 2, p.Steps[1].StepNumber)
	assert.Equal(t, `{"user":"a"}`, p.Steps[1].InputData)
	assert.True(t, p.Steps[1].ScreenshotRequired)

	require.Len(t, p.ExpectedResults, 1)
	assert.Equal(t, "ER-1", p.ExpectedResults[0].ID)
	assert.Equal(t, "User is logged in", p.ExpectedResults[0].Description)
	assert.Equal(t, "User is logged in", p.ExpectedResults[0].SuccessCriteria)

	require.Len(t, p.EvidenceRequirements, 3)
	assert.Equal(t, EvidenceRequirement{ID: "EV-1", Type: EvidenceScreenshot, Description: "Screenshot of dashboard", Mandatory: true}, p.EvidenceRequirements[0])
	assert.Equal(t, EvidenceLogFile, p.EvidenceRequirements[1].Type)
	assert.False(t, p.EvidenceRequirements[1].Mandatory)
	assert.Equal(t, "EV-3", p.EvidenceRequirements[2].ID)
	assert.Equal(t, EvidenceScreenshot, p.EvidenceRequirements[2].Type)

	assert.Equal(t, 20, p.EstimatedDuration)
	assert.Equal(t, []string{"user_login"}, p.Tags)
	assert.Equal(t, []string{"FEAT-001"}, p.SourceFeatures)
}

func TestNormalize_PermissiveDefaults(t *testing.T) {
	res, err := NewNormalizer(nil).Normalize(RawRecord{"category": "nonsense"}, loginFeature)
	require.NoError(t, err)

	p := res.Procedure
	assert.Equal(t, PathPermissive, res.Path)
	assert.Equal(t, "Test User Login", p.Title)
	assert.Equal(t, CategoryFunctional, p.Category)
	assert.Equal(t, PriorityMedium, p.Priority)
	assert.Empty(t, p.Preconditions)
	assert.Len(t, p.Steps, 3, "a record without steps gets the generic steps")
	assert.Equal(t, 15, p.EstimatedDuration)
}

func TestNormalize_StepsAlwaysRenumbered(t *testing.T) {
	rec := RawRecord{
		"title": "t",
		"test_steps": []any{
			map[string]any{"step_number": 7.0, "action": "a", "expected_behavior": "x"},
			map[string]any{"step_number": 3.0, "action": "b", "expected_behavior": "y"},
			"c",
		},
	}
	res, err := NewNormalizer(nil).Normalize(rec, loginFeature)
	require.NoError(t, err)
	for i, s := range res.Procedure.Steps {
		assert.Equal(t, i+1, s.StepNumber)
	}
}

func TestNormalize_CoercionErrors(t *testing.T) {
	tests := []struct {
		name  string
		rec   RawRecord
		field string
	}{
		{"not an object", nil, "record"},
		{"title not a string", RawRecord{"title": 5.0}, "title"},
		{"steps not a list", RawRecord{"test_steps": "do it"}, "test_steps"},
		{"step not string or object", RawRecord{"test_steps": []any{42.0}}, "test_steps[0]"},
		{"step action not a string", RawRecord{"steps": []any{map[string]any{"action": true}}}, "steps[0].action"},
		{"screenshot flag not a bool", RawRecord{"steps": []any{map[string]any{"action": "a", "screenshot_required": "yes"}}}, "steps[0].screenshot_required"},
		{"duration not numeric", RawRecord{"estimated_duration": "soon"}, "estimated_duration"},
		{"negative duration", RawRecord{"estimated_duration": -5.0}, "estimated_duration"},
		{"duration out of range", RawRecord{"title": "x", "estimated_duration": 1e20}, "estimated_duration"},
		{"duration string out of range", RawRecord{"estimated_duration": "1e20"}, "estimated_duration"},
		{"precondition not a string", RawRecord{"preconditions": []any{1.0}}, "preconditions[0]"},
		{"evidence not string or object", RawRecord{"evidence_requirements": []any{[]any{}}}, "evidence_requirements[0]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewNormalizer(nil).Normalize(tc.rec, loginFeature)
			var ce *CoercionError
			require.True(t, errors.As(err, &ce), "expected CoercionError, got %v", err)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestNormalizeBatch_DropsFailingRecords(t *testing.T) {
	records := []RawRecord{
		{"title": "first", "test_steps": []any{"a"}},
		{"title": 12.0},
		{"title": "third", "test_steps": []any{"b"}},
	}
	b := NewNormalizer(nil).NormalizeBatch(records, loginFeature)

	require.Len(t, b.Procedures, 2)
	assert.Equal(t, "first", b.Procedures[0].Title)
	assert.Equal(t, "third", b.Procedures[1].Title)
	assert.Equal(t, []DecodePath{PathPermissive, PathPermissive}, b.Paths)
	require.Len(t, b.Dropped, 1)
	assert.Equal(t, 1, b.Dropped[0].Index)
	assert.Contains(t, b.Dropped[0].Reason, "title")
}

func TestNormalizeBatch_NoRecordsYieldsFallback(t *testing.T) {
	b := NewNormalizer(nil).NormalizeBatch(nil, loginFeature)
	require.Len(t, b.Procedures, 1)
	assert.Equal(t, []DecodePath{PathFallback}, b.Paths)
	assert.Len(t, b.Procedures[0].Steps, 3)
	assert.Empty(t, b.Dropped)
}

func TestNormalizeBatch_AllDroppedYieldsFallback(t *testing.T) {
	b := NewNormalizer(nil).NormalizeBatch([]RawRecord{{"title": 1.0}}, loginFeature)
	require.Len(t, b.Procedures, 1)
	assert.Equal(t, PathFallback, b.Paths[0])
	assert.Len(t, b.Dropped, 1)
}

func TestNormalize_UniqueIDs(t *testing.T) {
	n := NewNormalizer(nil)
	a, err := n.Normalize(RawRecord{}, loginFeature)
	require.NoError(t, err)
	b, err := n.Normalize(RawRecord{}, loginFeature)
	require.NoError(t, err)
	assert.NotEqual(t, a.Procedure.ID, b.Procedure.ID)
}

func TestNormalizeBatch_HugeDurationDropped(t *testing.T) {
	records := []RawRecord{
		{"title": "huge", "estimated_duration": 1e20},
		{"title": "normal", "test_steps": []any{"a"}, "estimated_duration": 500.0},
	}
	b := NewNormalizer(nil).NormalizeBatch(records, loginFeature)
	require.Len(t, b.Procedures, 1)
	require.Len(t, b.Dropped, 1)
	assert.Equal(t, 0, b.Dropped[0].Index)

	r := Validate(Assemble("Book", "", "", b.Procedures))
	assert.Equal(t, 500, r.Statistics.TotalEstimatedTime)
	assert.Contains(t, r.Recommendations, "Consider breaking down complex tests or prioritizing critical tests")
}

func TestNormalize_StrictShapeWithHugeDurationFails(t *testing.T) {
	rec := record(t, `{
		"title": "Long soak", "description": "Run for ages", "category": "performance", "priority": "low",
		"test_steps": [{"action": "Start load", "expected_behavior": "Load runs"}],
		"expected_results": [{"description": "Stable", "success_criteria": "No errors"}],
		"estimated_duration": 1099511627776
	}`)
	_, err := NewNormalizer(nil).Normalize(rec, loginFeature)
	var ce *CoercionError
	require.True(t, errors.As(err, &ce), "expected CoercionError, got %v", err)
	assert.Equal(t, "estimated_duration", ce.Field)
}
