package engine

import (
	"context"
	"time"

	"github.com/kalambet/leadbot/internal/ollama"
)

// ollamaKeepAlive keeps the model loaded between customer messages, which
// arrive minutes apart.
const ollamaKeepAlive = 30 * time.Minute

// OllamaEngine serves chat from a local Ollama server.
type OllamaEngine struct {
	client *ollama.Client
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at
// baseURL, or at OLLAMA_HOST when baseURL is empty.
func NewOllamaEngine(baseURL string) (*OllamaEngine, error) {
	client, err := ollama.New(baseURL, ollama.WithKeepAlive(ollamaKeepAlive))
	if err != nil {
		return nil, err
	}
	return &OllamaEngine{client: client}, nil
}

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, opts Options) (string, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}

	var o *ollama.Options
	if opts.Temperature != nil || opts.MaxTokens > 0 {
		o = &ollama.Options{Temperature: opts.Temperature, NumPredict: opts.MaxTokens}
	}
	return e.client.Chat(ctx, model, msgs, o)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}

func (e *OllamaEngine) Warm(ctx context.Context, model string) error {
	return e.client.Warm(ctx, model)
}
