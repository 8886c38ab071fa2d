package port

import (
	"context"

	"docchat/internal/domain"
)

// CompletionRequest carries a single-turn prompt and its generation controls.
type CompletionRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// LLM represents the external language model used for answer synthesis.
type LLM interface {
	// Complete sends the prompt and classifies the outcome. Transport
	// failures are reported as domain.UpstreamFailure with StatusCode 0.
	Complete(ctx context.Context, req CompletionRequest) domain.Completion

	// ModelName returns the name of the model.
	ModelName() string
}
