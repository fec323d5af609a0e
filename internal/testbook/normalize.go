package testbook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/dgallion1/testbook/internal/document"
	"github.com/google/uuid"
)

// DecodePath records how a raw record was turned into a procedure.
type DecodePath string

const (
	// PathStrict means the record matched the full schema exactly.
	PathStrict DecodePath = "strict"
	// PathPermissive means fields were coerced one by one with defaults.
	PathPermissive DecodePath = "permissive"
	// PathFallback means the generic procedure was used.
	PathFallback DecodePath = "fallback"
)

const (
	defaultDuration  = 15
	fallbackDuration = 10
	defaultStepCheck = "Verify step completes successfully"
)

// CoercionError reports a record field whose value has the wrong shape.
type CoercionError struct {
	Field  string
	Reason string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}

// Result is a normalized procedure and the decode path that produced it.
type Result struct {
	Procedure Procedure  `json:"procedure"`
	Path      DecodePath `json:"decode_path"`
}

// Dropped describes a record that could not be normalized.
type Dropped struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Batch is the outcome of normalizing every record generated for a feature.
type Batch struct {
	Procedures []Procedure  `json:"procedures"`
	Paths      []DecodePath `json:"decode_paths"` // Aligned with Procedures
	Dropped    []Dropped    `json:"dropped,omitempty"`
}

// Normalizer converts raw generation records into procedures.
type Normalizer struct {
	log *slog.Logger
}

func NewNormalizer(log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{log: log}
}

// recognizedKeys are the record keys the normalizer reads.
var recognizedKeys = []string{
	"title", "description", "category", "priority", "preconditions",
	"test_steps", "steps", "expected_results", "evidence_requirements",
	"estimated_duration", "source_requirements", "tags",
}

// Normalize converts one record generated for feature. A record with none of
// the recognized keys yields the fallback procedure. A record with a value of
// the wrong shape, or a nil record, returns a *CoercionError.
func (n *Normalizer) Normalize(rec RawRecord, feature document.Feature) (Result, error) {
	if rec == nil {
		return Result{}, &CoercionError{Field: "record", Reason: "not an object"}
	}
	if !hasRecognizedKey(rec) {
		return Result{Procedure: Fallback(feature), Path: PathFallback}, nil
	}
	if p, ok := decodeStrict(rec, feature); ok {
		return Result{Procedure: p, Path: PathStrict}, nil
	}
	p, err := decodePermissive(rec, feature)
	if err != nil {
		return Result{}, err
	}
	return Result{Procedure: p, Path: PathPermissive}, nil
}

// NormalizeBatch normalizes records, dropping the ones that fail. When no
// record survives, or there were none, the batch holds the fallback procedure
// so every feature is tested at least once.
func (n *Normalizer) NormalizeBatch(records []RawRecord, feature document.Feature) Batch {
	var b Batch
	for i, rec := range records {
		res, err := n.Normalize(rec, feature)
		if err != nil {
			n.log.Warn("dropping generated procedure",
				"feature_id", feature.ID,
				"index", i,
				"error", err,
			)
			b.Dropped = append(b.Dropped, Dropped{Index: i, Reason: err.Error()})
			continue
		}
		b.Procedures = append(b.Procedures, res.Procedure)
		b.Paths = append(b.Paths, res.Path)
	}

	if len(b.Procedures) == 0 {
		if len(records) > 0 {
			n.log.Info("no usable procedures, using fallback", "feature_id", feature.ID, "records", len(records))
		}
		b.Procedures = append(b.Procedures, Fallback(feature))
		b.Paths = append(b.Paths, PathFallback)
	}
	return b
}

// Fallback returns the generic navigate/execute/verify procedure for feature.
func Fallback(feature document.Feature) Procedure {
	name := feature.Name
	return Procedure{
		ID:            uuid.NewString(),
		Title:         "Basic Test - " + name,
		Description:   "Basic functional test for " + name,
		Category:      CategoryFunctional,
		Priority:      PriorityMedium,
		Preconditions: []string{"System is accessible", "User has appropriate permissions"},
		Steps:         fallbackSteps(name),
		ExpectedResults: []ExpectedResult{{
			ID:                "ER-1",
			Description:       name + " functions as described in requirements",
			SuccessCriteria:   name + " functions as described in requirements",
			FailureIndicators: []string{},
		}},
		EvidenceRequirements: []EvidenceRequirement{{
			ID:          "EV-1",
			Type:        EvidenceScreenshot,
			Description: "Screenshot of successful operation",
			Mandatory:   true,
		}},
		EstimatedDuration:  fallbackDuration,
		SourceRequirements: []string{},
		SourceFeatures:     []string{feature.ID},
		Tags:               defaultTags(feature),
	}
}

func fallbackSteps(name string) []Step {
	return []Step{
		{StepNumber: 1, Action: "Navigate to " + name + " functionality", ExpectedBehavior: "Feature is accessible and loads correctly"},
		{StepNumber: 2, Action: "Execute primary " + name + " operation", ExpectedBehavior: "Operation completes successfully"},
		{StepNumber: 3, Action: "Verify results", ExpectedBehavior: "Results match expected outcome"},
	}
}

func hasRecognizedKey(rec RawRecord) bool {
	for _, k := range recognizedKeys {
		if _, ok := rec[k]; ok {
			return true
		}
	}
	return false
}

func defaultTags(feature document.Feature) []string {
	return []string{strings.ReplaceAll(strings.ToLower(feature.Name), " ", "_")}
}

// matchCategory returns the first category named inside s, or functional.
func matchCategory(s string) Category {
	lower := strings.ToLower(s)
	for _, c := range Categories {
		if strings.Contains(lower, string(c)) {
			return c
		}
	}
	return CategoryFunctional
}

// matchPriority returns the first priority named inside s, or medium.
func matchPriority(s string) Priority {
	lower := strings.ToLower(s)
	for _, p := range Priorities {
		if strings.Contains(lower, string(p)) {
			return p
		}
	}
	return PriorityMedium
}

// matchEvidence returns the evidence type named exactly by s, or screenshot.
func matchEvidence(s string) EvidenceType {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, t := range evidenceTypes {
		if lower == string(t) {
			return t
		}
	}
	return EvidenceScreenshot
}

// Strict shape. Every field must be present with its exact type and no
// other keys may appear.

type strictRecord struct {
	Title                string           `json:"title"`
	Description          string           `json:"description"`
	Category             string           `json:"category"`
	Priority             string           `json:"priority"`
	Preconditions        []string         `json:"preconditions"`
	TestSteps            []strictStep     `json:"test_steps"`
	ExpectedResults      []strictResult   `json:"expected_results"`
	EvidenceRequirements []strictEvidence `json:"evidence_requirements"`
	EstimatedDuration    *int             `json:"estimated_duration"`
	SourceRequirements   []string         `json:"source_requirements"`
	Tags                 []string         `json:"tags"`
}

type strictStep struct {
	StepNumber         int    `json:"step_number"`
	Action             string `json:"action"`
	InputData          string `json:"input_data"`
	ExpectedBehavior   string `json:"expected_behavior"`
	ScreenshotRequired bool   `json:"screenshot_required"`
	Notes              string `json:"notes"`
}

type strictResult struct {
	ID                string   `json:"id"`
	Description       string   `json:"description"`
	SuccessCriteria   string   `json:"success_criteria"`
	FailureIndicators []string `json:"failure_indicators"`
}

type strictEvidence struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Mandatory   *bool  `json:"mandatory"`
}

func (r strictRecord) complete() bool {
	if r.Title == "" || r.Description == "" || r.Category == "" || r.Priority == "" {
		return false
	}
	if r.EstimatedDuration == nil || *r.EstimatedDuration < 0 || *r.EstimatedDuration > math.MaxInt32 {
		return false
	}
	if len(r.TestSteps) == 0 || len(r.ExpectedResults) == 0 {
		return false
	}
	for _, s := range r.TestSteps {
		if s.Action == "" || s.ExpectedBehavior == "" {
			return false
		}
	}
	return true
}

func decodeStrict(rec RawRecord, feature document.Feature) (Procedure, bool) {
	data, err := json.Marshal(rec)
	if err != nil {
		return Procedure{}, false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var r strictRecord
	if err := dec.Decode(&r); err != nil || !r.complete() {
		return Procedure{}, false
	}

	p := Procedure{
		ID:                 uuid.NewString(),
		Title:              r.Title,
		Description:        r.Description,
		Category:           matchCategory(r.Category),
		Priority:           matchPriority(r.Priority),
		Preconditions:      nonNil(r.Preconditions),
		EstimatedDuration:  *r.EstimatedDuration,
		SourceRequirements: nonNil(r.SourceRequirements),
		SourceFeatures:     []string{feature.ID},
		Tags:               r.Tags,
	}
	if len(p.Tags) == 0 {
		p.Tags = defaultTags(feature)
	}
	for i, s := range r.TestSteps {
		p.Steps = append(p.Steps, Step{
			StepNumber:         i + 1,
			Action:             s.Action,
			InputData:          s.InputData,
			ExpectedBehavior:   s.ExpectedBehavior,
			ScreenshotRequired: s.ScreenshotRequired,
			Notes:              s.Notes,
		})
	}
	for i, er := range r.ExpectedResults {
		id := er.ID
		if id == "" {
			id = fmt.Sprintf("ER-%d", i+1)
		}
		p.ExpectedResults = append(p.ExpectedResults, ExpectedResult{
			ID:                id,
			Description:       er.Description,
			SuccessCriteria:   er.SuccessCriteria,
			FailureIndicators: nonNil(er.FailureIndicators),
		})
	}
	p.EvidenceRequirements = []EvidenceRequirement{}
	for i, ev := range r.EvidenceRequirements {
		id := ev.ID
		if id == "" {
			id = fmt.Sprintf("EV-%d", i+1)
		}
		mandatory := true
		if ev.Mandatory != nil {
			mandatory = *ev.Mandatory
		}
		p.EvidenceRequirements = append(p.EvidenceRequirements, EvidenceRequirement{
			ID:          id,
			Type:        matchEvidence(ev.Type),
			Description: ev.Description,
			Mandatory:   mandatory,
		})
	}
	return p, true
}

// Permissive decode. Each field is read on its own; absent or null values
// take the default below, values of the wrong shape fail the record.
//
//	title                  "Test <feature name>"
//	description            "Test procedure for <feature name>"
//	category               functional (substring match otherwise)
//	priority               medium (substring match otherwise)
//	preconditions          [] (a bare string becomes one entry)
//	test_steps | steps     generic navigate/execute/verify steps
//	expected_results       []
//	evidence_requirements  []
//	estimated_duration     15
//	source_requirements    []
//	tags                   [feature name, lowercased, spaces as underscores]

func decodePermissive(rec RawRecord, feature document.Feature) (Procedure, error) {
	r := &fieldReader{}
	p := Procedure{
		ID:             uuid.NewString(),
		Title:          r.str(rec, "", "title", "Test "+feature.Name),
		Description:    r.str(rec, "", "description", "Test procedure for "+feature.Name),
		Category:       matchCategory(r.str(rec, "", "category", "")),
		Priority:       matchPriority(r.str(rec, "", "priority", "")),
		Preconditions:  r.strList(rec, "", "preconditions"),
		SourceFeatures: []string{feature.ID},
	}

	stepsKey := "test_steps"
	if v, ok := rec[stepsKey]; !ok || v == nil {
		stepsKey = "steps"
	}
	for i, raw := range r.list(rec, "", stepsKey) {
		p.Steps = append(p.Steps, r.step(raw, fmt.Sprintf("%s[%d]", stepsKey, i), i+1))
	}
	if len(p.Steps) == 0 {
		p.Steps = fallbackSteps(feature.Name)
	}

	p.ExpectedResults = []ExpectedResult{}
	for i, raw := range r.list(rec, "", "expected_results") {
		p.ExpectedResults = append(p.ExpectedResults, r.result(raw, fmt.Sprintf("expected_results[%d]", i), i+1))
	}
	p.EvidenceRequirements = []EvidenceRequirement{}
	for i, raw := range r.list(rec, "", "evidence_requirements") {
		p.EvidenceRequirements = append(p.EvidenceRequirements, r.evidence(raw, fmt.Sprintf("evidence_requirements[%d]", i), i+1))
	}

	p.EstimatedDuration = r.duration(rec, "estimated_duration")
	p.SourceRequirements = r.strList(rec, "", "source_requirements")
	p.Tags = r.strList(rec, "", "tags")
	if len(p.Tags) == 0 {
		p.Tags = defaultTags(feature)
	}

	if r.err != nil {
		return Procedure{}, r.err
	}
	return p, nil
}

// fieldReader coerces record fields, keeping the first failure.
type fieldReader struct {
	err error
}

func (r *fieldReader) fail(name, format string, args ...any) {
	if r.err == nil {
		r.err = &CoercionError{Field: name, Reason: fmt.Sprintf(format, args...)}
	}
}

func field(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func (r *fieldReader) str(m map[string]any, path, key, def string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok {
		r.fail(field(path, key), "expected string, got %T", v)
		return def
	}
	return s
}

func (r *fieldReader) boolean(m map[string]any, path, key string, def bool) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		r.fail(field(path, key), "expected boolean, got %T", v)
		return def
	}
	return b
}

func (r *fieldReader) list(m map[string]any, path, key string) []any {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out
	case []map[string]any:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out
	}
	r.fail(field(path, key), "expected list, got %T", v)
	return nil
}

// strList reads a list of strings. A bare string is wrapped.
func (r *fieldReader) strList(m map[string]any, path, key string) []string {
	out := []string{}
	if s, ok := m[key].(string); ok {
		return append(out, s)
	}
	for i, v := range r.list(m, path, key) {
		s, ok := v.(string)
		if !ok {
			r.fail(fmt.Sprintf("%s[%d]", field(path, key), i), "expected string, got %T", v)
			continue
		}
		out = append(out, s)
	}
	return out
}

func (r *fieldReader) object(v any, path string) map[string]any {
	switch o := v.(type) {
	case map[string]any:
		return o
	case RawRecord:
		return o
	}
	r.fail(path, "expected string or object, got %T", v)
	return nil
}

func (r *fieldReader) step(v any, path string, n int) Step {
	if s, ok := v.(string); ok {
		return Step{StepNumber: n, Action: s, ExpectedBehavior: defaultStepCheck}
	}
	o := r.object(v, path)
	if o == nil {
		return Step{StepNumber: n}
	}
	return Step{
		StepNumber:         n,
		Action:             r.str(o, path, "action", ""),
		InputData:          r.inputData(o, path),
		ExpectedBehavior:   r.str(o, path, "expected_behavior", ""),
		ScreenshotRequired: r.boolean(o, path, "screenshot_required", false),
		Notes:              r.str(o, path, "notes", ""),
	}
}

// inputData accepts any JSON value; non-strings are kept as compact JSON.
func (r *fieldReader) inputData(o map[string]any, path string) string {
	v, ok := o["input_data"]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.fail(path+".input_data", "%v", err)
		return ""
	}
	return string(data)
}

func (r *fieldReader) result(v any, path string, n int) ExpectedResult {
	if s, ok := v.(string); ok {
		return ExpectedResult{
			ID:                fmt.Sprintf("ER-%d", n),
			Description:       s,
			SuccessCriteria:   s,
			FailureIndicators: []string{},
		}
	}
	o := r.object(v, path)
	if o == nil {
		return ExpectedResult{}
	}
	return ExpectedResult{
		ID:                r.str(o, path, "id", fmt.Sprintf("ER-%d", n)),
		Description:       r.str(o, path, "description", ""),
		SuccessCriteria:   r.str(o, path, "success_criteria", ""),
		FailureIndicators: r.strList(o, path, "failure_indicators"),
	}
}

func (r *fieldReader) evidence(v any, path string, n int) EvidenceRequirement {
	if s, ok := v.(string); ok {
		return EvidenceRequirement{
			ID:          fmt.Sprintf("EV-%d", n),
			Type:        EvidenceScreenshot,
			Description: s,
			Mandatory:   true,
		}
	}
	o := r.object(v, path)
	if o == nil {
		return EvidenceRequirement{}
	}
	return EvidenceRequirement{
		ID:          r.str(o, path, "id", fmt.Sprintf("EV-%d", n)),
		Type:        matchEvidence(r.str(o, path, "type", "")),
		Description: r.str(o, path, "description", ""),
		Mandatory:   r.boolean(o, path, "mandatory", true),
	}
}

// duration reads whole minutes from a number or a numeric string.
func (r *fieldReader) duration(m map[string]any, key string) int {
	v, ok := m[key]
	if !ok || v == nil {
		return defaultDuration
	}
	var f float64
	switch d := v.(type) {
	case float64:
		f = d
	case int:
		f = float64(d)
	case int64:
		f = float64(d)
	case json.Number:
		parsed, err := d.Float64()
		if err != nil {
			r.fail(key, "not a number: %q", d)
			return defaultDuration
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(d), 64)
		if err != nil {
			r.fail(key, "not a number: %q", d)
			return defaultDuration
		}
		f = parsed
	default:
		r.fail(key, "expected number, got %T", v)
		return defaultDuration
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		r.fail(key, "must be a non-negative number of minutes")
		return defaultDuration
	}
	if f > math.MaxInt32 {
		r.fail(key, "%g minutes is out of range", f)
		return defaultDuration
	}
	return int(math.Round(f))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
