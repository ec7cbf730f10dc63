// Package gateway defines the generation-call contract between the
// orchestration pipeline and the LLM provider, plus the Gemini-backed
// implementation. The orchestrator only ever sees Request/Response; provider
// mechanics stay behind the Generator interface.
package gateway

import (
	"context"
	"errors"
)

// ErrSchemaNotSupported signals that the provider rejected the requested
// output shape. Callers may retry without a shape constraint.
var ErrSchemaNotSupported = errors.New("provider does not support the requested output schema")

// ModelParameters tunes a single generation call. Zero values mean provider
// defaults.
type ModelParameters struct {
	Model           string  `json:"model,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
}

// Request is one generation invocation. When OutputShape is set the
// response carries a validated structured object instead of text.
type Request struct {
	Prompt      string            `json:"prompt"`
	System      string            `json:"system,omitempty"`
	OutputShape *SchemaDescriptor `json:"output_shape,omitempty"`
	Params      ModelParameters   `json:"params,omitempty"`
}

// Usage accounts the units consumed by one call.
type Usage struct {
	PromptUnits     int `json:"prompt_units"`
	CompletionUnits int `json:"completion_units"`
	TotalUnits      int `json:"total_units"`
}

// Add accumulates another call's usage into this one.
func (u *Usage) Add(other Usage) {
	u.PromptUnits += other.PromptUnits
	u.CompletionUnits += other.CompletionUnits
	u.TotalUnits += other.TotalUnits
}

// Response carries exactly one of Text or Object, depending on whether the
// request supplied an output shape, plus usage accounting.
type Response struct {
	Text   string                 `json:"text,omitempty"`
	Object map[string]interface{} `json:"object,omitempty"`
	Usage  Usage                  `json:"usage"`
}

// Generator is the external generation capability. A failed call is the
// failure of that specific invocation only; callers decide whether it sinks
// the phase that issued it.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
