package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Discord caps message content at 2000 characters.
const discordMaxRunes = 1900

// DiscordWebhook posts messages to a Discord channel webhook.
type DiscordWebhook struct {
	URL string
	// Mention is prepended to every message, e.g. "@everyone" for alerts.
	Mention string
	Client  *http.Client
}

// NewDiscordWebhook creates a sender for url.
func NewDiscordWebhook(url, mention string) *DiscordWebhook {
	return &DiscordWebhook{URL: url, Mention: mention, Client: &http.Client{Timeout: 15 * time.Second}}
}

func (d *DiscordWebhook) Name() string { return "discord" }

type discordPayload struct {
	Content         string                 `json:"content"`
	AllowedMentions map[string]interface{} `json:"allowed_mentions,omitempty"`
}

func (d *DiscordWebhook) Send(ctx context.Context, text string) error {
	if d.Mention != "" {
		text = d.Mention + " " + text
	}
	for _, chunk := range splitMessage(text, discordMaxRunes) {
		if err := d.post(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (d *DiscordWebhook) post(ctx context.Context, content string) error {
	payload := discordPayload{Content: content}
	if d.Mention == "@everyone" || d.Mention == "@here" {
		payload.AllowedMentions = map[string]interface{}{"parse": []string{"everyone"}}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to discord: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("discord webhook http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
