package engine

import "fmt"

// Supported backend names.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Provider      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaBaseURL string
}

// Detect returns the Engine for the configured provider. An empty provider
// means OpenAI.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	case ProviderOllama:
		e, err := NewOllamaEngine(cfg.OllamaBaseURL)
		if err != nil {
			return nil, fmt.Errorf("ollama provider: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q (want %s or %s)", cfg.Provider, ProviderOpenAI, ProviderOllama)
	}
}
