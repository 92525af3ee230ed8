package engine

import "context"

// Completer binds an Engine to one model and exposes the single-shot
// system-plus-prompt call the conversation layer needs.
type Completer struct {
	eng   Engine
	model string
	opts  Options
}

// NewCompleter returns a Completer that sends every request to model.
func NewCompleter(eng Engine, model string, opts Options) *Completer {
	return &Completer{eng: eng, model: model, opts: opts}
}

// Model returns the configured model name.
func (c *Completer) Model() string { return c.model }

// Complete sends the system instruction and the user prompt and returns the
// raw model output.
func (c *Completer) Complete(ctx context.Context, system, prompt string) (string, error) {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: prompt})
	return c.eng.Chat(ctx, c.model, msgs, c.opts)
}
