package engine

import "context"

// Engine abstracts a chat model backend: a hosted OpenAI-compatible API or a
// local Ollama server. The conversation layer depends on this interface
// instead of a concrete client.
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's response.
	Chat(ctx context.Context, model string, messages []Message, opts Options) (string, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of the models the backend serves.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available.
	HasModel(ctx context.Context, name string) bool
}

// Puller is implemented by backends that can download missing models.
type Puller interface {
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// Warmer is implemented by backends that benefit from loading a model ahead
// of the first request.
type Warmer interface {
	Warm(ctx context.Context, model string) error
}
