package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key string
	typ keyType
	env string
	// alias is an unprefixed variable also honored, for deployments that
	// predate the LEADBOT_ prefix.
	alias   string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "LEADBOT_SERVER_PORT", alias: "PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.bind", typ: kString, env: "LEADBOT_SERVER_BIND",
		apply:   func(cfg *Config, v any) { cfg.Server.Bind = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Bind },
	},
	{
		key: "log.level", typ: kString, env: "LEADBOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LEADBOT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "llm.provider", typ: kString, env: "LEADBOT_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.model", typ: kString, env: "LEADBOT_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.base_url", typ: kString, env: "LEADBOT_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.api_key", typ: kString, env: "LEADBOT_LLM_API_KEY", alias: "OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.timeout", typ: kDuration, env: "LEADBOT_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "llm.temperature", typ: kFloat, env: "LEADBOT_LLM_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.LLM.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.Temperature },
	},
	{
		key: "llm.max_tokens", typ: kInt, env: "LEADBOT_LLM_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxTokens },
	},
	{
		key: "ollama.base_url", typ: kString, env: "LEADBOT_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "whatsapp.base_url", typ: kString, env: "LEADBOT_WHATSAPP_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.WhatsApp.BaseURL },
	},
	{
		key: "whatsapp.api_version", typ: kString, env: "LEADBOT_WHATSAPP_API_VERSION", alias: "VERSION",
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.APIVersion = v.(string) },
		extract: func(cfg Config) any { return cfg.WhatsApp.APIVersion },
	},
	{
		key: "whatsapp.phone_number_id", typ: kString, env: "LEADBOT_WHATSAPP_PHONE_NUMBER_ID", alias: "PHONE_NUMBER_ID",
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.PhoneNumberID = v.(string) },
		extract: func(cfg Config) any { return cfg.WhatsApp.PhoneNumberID },
	},
	{
		key: "whatsapp.timeout", typ: kDuration, env: "LEADBOT_WHATSAPP_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.WhatsApp.Timeout },
	},
	{
		key: "whatsapp.access_token", typ: kString, env: "LEADBOT_WHATSAPP_ACCESS_TOKEN", alias: "ACCESS_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.AccessToken = v.(string) },
		extract: func(cfg Config) any { return cfg.WhatsApp.AccessToken },
	},
	{
		key: "whatsapp.verify_token", typ: kString, env: "LEADBOT_WHATSAPP_VERIFY_TOKEN", alias: "VERIFY_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.VerifyToken = v.(string) },
		extract: func(cfg Config) any { return cfg.WhatsApp.VerifyToken },
	},
	{
		key: "whatsapp.app_secret", typ: kString, env: "LEADBOT_WHATSAPP_APP_SECRET", alias: "APP_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.AppSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.WhatsApp.AppSecret },
	},
	{
		key: "prompt.instruction_file", typ: kString, env: "LEADBOT_PROMPT_INSTRUCTION_FILE",
		apply:   func(cfg *Config, v any) { cfg.Prompt.InstructionFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompt.InstructionFile },
	},
	{
		key: "notify.timeout", typ: kDuration, env: "LEADBOT_NOTIFY_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Notify.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Notify.Timeout },
	},
	{
		key: "notify.discord.routine_webhook", typ: kString, env: "LEADBOT_DISCORD_ROUTINE_WEBHOOK",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Notify.DiscordRoutineWebhook = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.DiscordRoutineWebhook },
	},
	{
		key: "notify.discord.alert_webhook", typ: kString, env: "LEADBOT_DISCORD_ALERT_WEBHOOK",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Notify.DiscordAlertWebhook = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.DiscordAlertWebhook },
	},
	{
		key: "notify.discord.alert_mention", typ: kString, env: "LEADBOT_DISCORD_ALERT_MENTION",
		apply:   func(cfg *Config, v any) { cfg.Notify.DiscordAlertMention = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.DiscordAlertMention },
	},
	{
		key: "notify.telegram.bot_token", typ: kString, env: "LEADBOT_TELEGRAM_BOT_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Notify.TelegramBotToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.TelegramBotToken },
	},
	{
		key: "notify.telegram.chat_id", typ: kInt, env: "LEADBOT_TELEGRAM_CHAT_ID",
		apply:   func(cfg *Config, v any) { cfg.Notify.TelegramChatID = v.(int) },
		extract: func(cfg Config) any { return cfg.Notify.TelegramChatID },
	},
	{
		key: "broadcast.concurrency", typ: kInt, env: "LEADBOT_BROADCAST_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Broadcast.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Broadcast.Concurrency },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw into the Go type for typ.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applySecrets(cfg *Config, secrets secretReader) {
	for _, s := range specs {
		if !s.secret {
			continue
		}
		v, err := secrets.Get(s.key)
		if err != nil {
			if !errors.Is(err, ErrSecretNotFound) {
				fmt.Fprintf(os.Stderr, "[WARN] could not read secret %s: %v\n", s.key, err)
			}
			continue
		}
		s.apply(cfg, v)
	}
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := s.env, os.Getenv(s.env)
		if raw == "" && s.alias != "" {
			name, raw = s.alias, os.Getenv(s.alias)
		}
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", name, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
