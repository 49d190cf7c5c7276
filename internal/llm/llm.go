// Package llm defines the streaming completion contract shared by every
// inference backend.
package llm

import (
	"context"
	"iter"
)

const DefaultPromptTemplate = "{prompt}"

// Params are the sampling parameters sent with every request.
type Params struct {
	Temperature    float64
	TopP           float64
	PromptTemplate string
}

// DefaultParams returns the fixed sampling parameters: temperature 0.3,
// top_p 0.9 and a pass-through prompt template.
func DefaultParams() Params {
	return Params{
		Temperature:    0.3,
		TopP:           0.9,
		PromptTemplate: DefaultPromptTemplate,
	}
}

// Request is one streaming generation.
type Request struct {
	Model  string
	Prompt string
	Params Params
}

// StreamClient issues one generation per Stream call and yields text
// fragments in arrival order. The sequence ends on end-of-stream; a failure
// is yielded once, with an empty fragment, as the last element.
type StreamClient interface {
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// Fail returns a sequence that yields err and stops.
func Fail(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}
