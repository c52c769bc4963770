package interfaces

import (
	"context"
)

// TextRequest is a single-turn text generation request
type TextRequest struct {
	// Prompt is the user-facing prompt text
	Prompt string

	// SystemInstruction sets model behavior for the request (optional)
	SystemInstruction string

	// Model overrides the provider's configured model when non-empty
	Model string

	// MaxTokens caps the response length (0 uses provider defaults)
	MaxTokens int

	// Temperature controls randomness (negative uses provider defaults)
	Temperature float32
}

// TextResponse is a normalized text generation result
type TextResponse struct {
	Text     string
	Provider string
	Model    string
}

// LLMService defines the interface for language model operations.
// Implementations wrap cloud providers (Claude, Gemini) and normalize
// responses to plain text.
type LLMService interface {
	// GenerateText produces a completion for the request
	GenerateText(ctx context.Context, req TextRequest) (*TextResponse, error)

	// HealthCheck verifies the provider is reachable and authenticated
	HealthCheck(ctx context.Context) error

	// ProviderName returns the provider identifier ("claude" or "gemini")
	ProviderName() string

	// Close releases provider resources
	Close() error
}
