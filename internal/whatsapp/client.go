// Package whatsapp talks to the WhatsApp Cloud API: it sends text and
// template messages through the Graph API and decodes inbound webhooks.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v21.0"
	defaultTimeout    = 10 * time.Second
	maxRetries        = 3
	initialBackoff    = 500 * time.Millisecond
)

// ErrRateLimited is wrapped by errors returned after repeated HTTP 429s.
var ErrRateLimited = errors.New("rate limited")

// APIError is a non-2xx response from the Graph API.
type APIError struct {
	Status  int
	Message string
	Code    int
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("graph api http %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("graph api http %d: %s", e.Status, e.Message)
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	// Timeout bounds each HTTP attempt.
	Timeout time.Duration
}

// Client sends messages from one WhatsApp Business phone number.
type Client struct {
	endpoint   string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint:   fmt.Sprintf("%s/%s/%s/messages", base, version, cfg.PhoneNumberID),
		token:      cfg.AccessToken,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateBody struct {
	Name     string           `json:"name"`
	Language templateLanguage `json:"language"`
}

type outboundMessage struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type,omitempty"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText sends a plain text message and returns its WhatsApp message id.
func (c *Client) SendText(ctx context.Context, to, text string) (string, error) {
	return c.send(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: text},
	})
}

// SendTemplate sends a pre-approved template message.
func (c *Client) SendTemplate(ctx context.Context, to, name, language string) (string, error) {
	if language == "" {
		language = "en_US"
	}
	return c.send(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         &templateBody{Name: name, Language: templateLanguage{Code: language}},
	})
}

func (c *Client) send(ctx context.Context, msg outboundMessage) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshaling message: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		id, err := c.post(ctx, body)
		if err == nil {
			return id, nil
		}
		if !isRateLimit(err) {
			return "", err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %v", ErrRateLimited, maxRetries, lastErr)
}

func isRateLimit(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var er errorResponse
		if json.Unmarshal(respBody, &er) == nil && er.Error.Message != "" {
			apiErr.Message = er.Error.Message
			apiErr.Code = er.Error.Code
		}
		return "", apiErr
	}

	var sr sendResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(sr.Messages) == 0 {
		return "", nil
	}
	return sr.Messages[0].ID, nil
}
