// Package providers abstracts the LLM backend behind the two calls the
// pipeline makes: structured decisions and free-form text.
package providers

import "context"

// Model is implemented by LLM backends. Both calls are blocking and honor
// context cancellation.
type Model interface {
	// GenerateDecision renders one decision-prompt completion. The caller
	// parses the structured output and owns retry policy.
	GenerateDecision(ctx context.Context, prompt string) (string, error)

	// GenerateText renders one free-form completion.
	GenerateText(ctx context.Context, prompt string) (string, error)
}
