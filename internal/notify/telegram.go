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

const (
	defaultTelegramBaseURL = "https://api.telegram.org"
	telegramMaxRunes       = 3500
)

// Telegram sends messages to one chat through the Bot API.
type Telegram struct {
	BaseURL string
	Token   string
	ChatID  int64
	Client  *http.Client
}

// NewTelegram creates a sender for chatID using the bot token.
func NewTelegram(token string, chatID int64) *Telegram {
	return &Telegram{
		BaseURL: defaultTelegramBaseURL,
		Token:   token,
		ChatID:  chatID,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *Telegram) Name() string { return "telegram" }

type telegramSendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramSendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	for _, chunk := range splitMessage(text, telegramMaxRunes) {
		if err := t.sendMessage(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	base := strings.TrimRight(t.BaseURL, "/")
	if base == "" {
		base = defaultTelegramBaseURL
	}
	payload, err := json.Marshal(telegramSendMessageRequest{ChatID: t.ChatID, Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/bot%s/sendMessage", base, t.Token), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("telegram sendMessage http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var res telegramSendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("telegram sendMessage failed: %s", res.Description)
	}
	return nil
}
