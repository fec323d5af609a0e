package extract

import (
	"fmt"
	"os"
	"strings"

	"github.com/dgallion1/testbook/internal/document"
	"gopkg.in/yaml.v3"
)

// Rule assigns Level to any text containing one of Keywords.
type Rule struct {
	Level    string   `yaml:"level"`
	Keywords []string `yaml:"keywords"`
}

// Classifier maps free text to a level by keyword. Rules are tried in order
// and the first rule with a matching keyword wins.
type Classifier struct {
	Rules   []Rule `yaml:"rules"`
	Default string `yaml:"default"`
}

// Classify returns the level for text. Matching is a case-insensitive
// substring test, so "must" also fires inside "mustn't".
func (c Classifier) Classify(text string) string {
	lower := strings.ToLower(text)
	for _, r := range c.Rules {
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return r.Level
			}
		}
	}
	return c.Default
}

// Policy holds the keyword rules used to grade extracted records.
type Policy struct {
	Priority   Classifier `yaml:"priority"`
	Complexity Classifier `yaml:"complexity"`
}

// DefaultPolicy returns the built-in keyword lists.
func DefaultPolicy() Policy {
	return Policy{
		Priority: Classifier{
			Rules: []Rule{
				{Level: document.PriorityHigh, Keywords: []string{"critical", "essential", "mandatory", "must"}},
				{Level: document.PriorityLow, Keywords: []string{"optional", "nice to have", "could", "may"}},
			},
			Default: document.PriorityMedium,
		},
		Complexity: Classifier{
			Rules: []Rule{
				{Level: document.ComplexityComplex, Keywords: []string{"integration", "api", "complex", "advanced", "algorithm"}},
				{Level: document.ComplexitySimple, Keywords: []string{"simple", "basic", "display", "show", "view"}},
			},
			Default: document.ComplexityMedium,
		},
	}
}

// LoadPolicy reads a YAML policy file. Sections missing from the file keep
// their built-in rules.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy document.
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}

	def := DefaultPolicy()
	if len(p.Priority.Rules) == 0 {
		p.Priority.Rules = def.Priority.Rules
	}
	if p.Priority.Default == "" {
		p.Priority.Default = def.Priority.Default
	}
	if len(p.Complexity.Rules) == 0 {
		p.Complexity.Rules = def.Complexity.Rules
	}
	if p.Complexity.Default == "" {
		p.Complexity.Default = def.Complexity.Default
	}

	if err := p.validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

var (
	priorityLevels   = map[string]bool{document.PriorityHigh: true, document.PriorityMedium: true, document.PriorityLow: true}
	complexityLevels = map[string]bool{document.ComplexitySimple: true, document.ComplexityMedium: true, document.ComplexityComplex: true}
)

func (p Policy) validate() error {
	if !priorityLevels[p.Priority.Default] {
		return fmt.Errorf("policy: unknown priority default %q", p.Priority.Default)
	}
	for _, r := range p.Priority.Rules {
		if !priorityLevels[r.Level] {
			return fmt.Errorf("policy: unknown priority level %q", r.Level)
		}
	}
	if !complexityLevels[p.Complexity.Default] {
		return fmt.Errorf("policy: unknown complexity default %q", p.Complexity.Default)
	}
	for _, r := range p.Complexity.Rules {
		if !complexityLevels[r.Level] {
			return fmt.Errorf("policy: unknown complexity level %q", r.Level)
		}
	}
	return nil
}
