// Package ollama adapts the Ollama API client to the calls the bot makes:
// chat completion, model listing, pulling and preloading.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	probeTimeout = 2 * time.Second
	listTimeout  = 10 * time.Second
	warmTimeout  = 60 * time.Second
)

// Message is one chat message.
type Message struct {
	Role    string
	Content string
}

// Options are sampling parameters forwarded with a chat request.
type Options struct {
	Temperature *float32
	NumPredict  int
}

func (o *Options) toMap() map[string]any {
	if o == nil {
		return nil
	}
	m := map[string]any{}
	if o.Temperature != nil {
		m["temperature"] = *o.Temperature
	}
	if o.NumPredict > 0 {
		m["num_predict"] = o.NumPredict
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// PullProgress is one line of the streamed pull response.
type PullProgress struct {
	Status    string
	Total     int64
	Completed int64
}

// Client talks to one Ollama server. Deadlines for chat requests come from
// the caller's context.
type Client struct {
	api        *api.Client
	httpClient *http.Client
	keepAlive  *api.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithKeepAlive sets how long the server keeps a model loaded after a
// request. A negative duration keeps it loaded until the server stops.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Client) { c.keepAlive = &api.Duration{Duration: d} }
}

// New creates a Client for the server at baseURL. An empty baseURL falls
// back to OLLAMA_HOST and the library default.
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{httpClient: http.DefaultClient}
	for _, o := range opts {
		o(c)
	}

	if baseURL == "" {
		ac, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client from environment: %w", err)
		}
		c.api = ac
		return c, nil
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing ollama base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ollama base url %q must include scheme and host", baseURL)
	}
	c.api = api.NewClient(u, c.httpClient)
	return c, nil
}

// IsRunning reports whether the server answers a heartbeat.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return c.api.Heartbeat(ctx) == nil
}

// ListModels returns the names of the locally available models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HasModel reports whether name is available. A bare name matches any of
// its tags, so "llama3.1" matches "llama3.1:latest".
func (c *Client) HasModel(ctx context.Context, name string) bool {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, m := range models {
		if m == name || strings.HasPrefix(m, name+":") {
			return true
		}
	}
	return false
}

// PullModel downloads a model and reports each progress line to onProgress,
// which may be nil. A progress line carrying an error fails the pull.
func (c *Client) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	stream := true
	err := c.api.Pull(ctx, &api.PullRequest{Model: name, Stream: &stream}, func(p api.ProgressResponse) error {
		if onProgress != nil {
			onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("pulling %s: %w", name, err)
	}
	return nil
}

// Chat sends messages to model and returns the assistant's reply. opts may be
// nil to use the model defaults.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, opts *Options) (string, error) {
	msgs := make([]api.Message, len(messages))
	for i, m := range messages {
		msgs[i] = api.Message{Role: m.Role, Content: m.Content}
	}

	stream := false
	req := &api.ChatRequest{
		Model:     model,
		Messages:  msgs,
		Stream:    &stream,
		KeepAlive: c.keepAlive,
		Options:   opts.toMap(),
	}

	var reply strings.Builder
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat with %s: %w", model, err)
	}
	return reply.String(), nil
}

// Warm loads model into memory. A generate request without a prompt makes
// the server load the model and return without generating anything.
func (c *Client) Warm(ctx context.Context, model string) error {
	ctx, cancel := context.WithTimeout(ctx, warmTimeout)
	defer cancel()

	stream := false
	req := &api.GenerateRequest{Model: model, Stream: &stream, KeepAlive: c.keepAlive}
	if err := c.api.Generate(ctx, req, func(api.GenerateResponse) error { return nil }); err != nil {
		return fmt.Errorf("warming %s: %w", model, err)
	}
	return nil
}
