// Package ai defines the narrow interfaces through which the application
// talks to hosted embedding and chat models.
package ai

import "context"

// Embedder generates vector embeddings for text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// EmbedTexts returns one embedding per input text, in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedText returns the embedding of a single query text.
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// ChatModel sends a system and a user prompt to a hosted LLM and returns the
// text of its first choice.
// Implementations must be safe for concurrent use.
type ChatModel interface {
	Complete(ctx context.Context, system, user string, opts ...CallOption) (string, error)
}

// Provider bundles the embedding and chat services of one backend.
type Provider interface {
	Embedder() Embedder
	ChatModel() ChatModel
	Close() error
}

// CallOptions are the per-call knobs understood by ChatModel implementations.
type CallOptions struct {
	Temperature float64
	JSONMode    bool
	// MaxTokens caps the completion length. Zero leaves the model default.
	MaxTokens int
}

// CallOption mutates CallOptions.
type CallOption func(*CallOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CallOption {
	return func(o *CallOptions) { o.Temperature = t }
}

// WithJSONMode asks the model to answer with a JSON object.
func WithJSONMode() CallOption {
	return func(o *CallOptions) { o.JSONMode = true }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) { o.MaxTokens = n }
}

// ApplyCallOptions folds opts over the zero-temperature defaults.
func ApplyCallOptions(opts ...CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
