package driven

import "context"

// AICapability is the black-box language model behind the Mapping
// Engine: text and instructions in, structured output back. The
// capability makes no determinism promise; callers must tolerate
// divergent results across retries.
//
// Implementations may include:
//   - Anthropic (Claude)
//   - OpenAI-compatible endpoints
//   - A canned mock for tests
type AICapability interface {
	// Complete produces a completion for a prompt. The result is
	// expected (but not guaranteed) to be the JSON document the prompt
	// asked for; callers validate before trusting it.
	//
	// Failures map onto the domain taxonomy: timeouts wrap
	// domain.ErrCapabilityTimeout, rate limits wrap
	// domain.ErrRateLimited.
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)

	// MaxInputChars is the capability's input budget in characters.
	// The Mapping Engine chunks text that exceeds it.
	MaxInputChars() int

	// ModelName returns the model identifier for provenance records.
	ModelName() string

	// Close releases resources.
	Close() error
}

// CompleteOptions configures a completion request.
type CompleteOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64

	// System is an optional system instruction.
	System string
}
