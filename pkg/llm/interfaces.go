// Package llm provides the generative-text provider clients used by the
// extraction pipeline.
package llm

import "context"

// GenerateResponseResult holds a completion plus usage stats.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client defines the generative-text operations the extraction pipeline
// consumes. Use this interface for dependency injection to enable mocking
// in tests.
type Client interface {
	// GenerateResponse generates a chat completion response.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}
