// Package generate asks a language model for test procedures covering one
// feature of a structured document.
package generate

import (
	"context"
	"fmt"

	"github.com/dgallion1/testbook/internal/document"
	"github.com/dgallion1/testbook/internal/testbook"
)

// Request is everything the model sees about one feature.
type Request struct {
	Feature      document.Feature
	Requirements []document.Requirement
	Context      []document.Chunk
}

// Generator produces raw procedure records for a feature. The records are
// untrusted and go through testbook.Normalizer before use.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]testbook.RawRecord, error)
}

// Disabled is the generator used when no model is configured. It returns no
// records, so every feature gets the fallback procedure.
type Disabled struct{}

func (Disabled) Generate(context.Context, Request) ([]testbook.RawRecord, error) {
	return nil, nil
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
