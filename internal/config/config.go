package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	LLM       LLMConfig
	Ollama    OllamaConfig
	WhatsApp  WhatsAppConfig
	Prompt    PromptConfig
	Notify    NotifyConfig
	Broadcast BroadcastConfig
	API       APIConfig
}

type ServerConfig struct {
	Port int
	Bind string
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	DataDir string
}

type LLMConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

type OllamaConfig struct {
	BaseURL string
}

type WhatsAppConfig struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	VerifyToken   string
	AppSecret     string
	Timeout       time.Duration
}

type PromptConfig struct {
	InstructionFile string
}

type NotifyConfig struct {
	Timeout               time.Duration
	DiscordRoutineWebhook string
	DiscordAlertWebhook   string
	DiscordAlertMention   string
	TelegramBotToken      string
	TelegramChatID        int
}

type BroadcastConfig struct {
	Concurrency int
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
			Bind: "0.0.0.0",
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4-1106-preview",
			Timeout:     60 * time.Second,
			Temperature: 0.7,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		WhatsApp: WhatsAppConfig{
			BaseURL:    "https://graph.facebook.com",
			APIVersion: "v21.0",
			Timeout:    10 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout:             10 * time.Second,
			DiscordAlertMention: "@everyone",
		},
		Broadcast: BroadcastConfig{
			Concurrency: 4,
		},
	}
}

// Load reads configuration in increasing precedence: defaults, the JSON file
// at $XDG_CONFIG_HOME/leadbot/config.json, the secrets file, and environment
// variables. A .env file in the working directory populates the environment
// first without overriding variables that are already set.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newFileBackend(configFilePath()), newSecretsFile(secretsFilePath()))
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// secretReader abstracts the secrets file for testing.
type secretReader interface {
	Get(key string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretReader) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applySecrets(&cfg, secrets)
	applyEnvOverrides(&cfg)

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	return cfg, nil
}

// ValidateServe reports settings the server cannot run without.
func (c Config) ValidateServe() error {
	var missing []string
	if c.WhatsApp.AccessToken == "" {
		missing = append(missing, "WhatsApp access token (LEADBOT_WHATSAPP_ACCESS_TOKEN or ACCESS_TOKEN)")
	}
	if c.WhatsApp.PhoneNumberID == "" {
		missing = append(missing, "WhatsApp phone number id (LEADBOT_WHATSAPP_PHONE_NUMBER_ID or PHONE_NUMBER_ID)")
	}
	if c.WhatsApp.VerifyToken == "" {
		missing = append(missing, "webhook verify token (LEADBOT_WHATSAPP_VERIFY_TOKEN or VERIFY_TOKEN)")
	}
	switch c.LLM.Provider {
	case "", "openai":
		if c.LLM.APIKey == "" {
			missing = append(missing, "OpenAI API key (LEADBOT_LLM_API_KEY or OPENAI_API_KEY)")
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown llm.provider %q (want openai or ollama)", c.LLM.Provider)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, "; "))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}
