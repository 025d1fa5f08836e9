package ai

import (
	"context"
	"encoding/json"
)

// Provider sends a prompt to an LLM backend and returns the normalized answer.
type Provider interface {
	Analyze(ctx context.Context, prompt string) (*NormalizedResult, error)
}

// NormalizedResult is what every provider returns regardless of its wire format.
// Structured is nil when Text held no recoverable JSON object.
type NormalizedResult struct {
	Text       string          `json:"text"`
	Structured map[string]any  `json:"structured"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}
