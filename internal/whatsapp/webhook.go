package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotEvent is returned for bodies that decode but are not WhatsApp
// notifications.
var ErrNotEvent = errors.New("not a whatsapp event")

// Inbound is one text message a contact sent.
type Inbound struct {
	ContactID   string
	DisplayName string
	MessageID   string
	Text        string
	Timestamp   string
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      *struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
				Statuses []json.RawMessage `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseWebhook decodes a webhook body into the text messages it carries.
// Delivery receipts and non-text messages yield no entries; a body that is
// not a WhatsApp notification at all is an error.
func ParseWebhook(body []byte) ([]Inbound, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decoding webhook: %w", err)
	}
	if p.Object == "" || len(p.Entry) == 0 {
		return nil, ErrNotEvent
	}

	var out []Inbound
	for _, e := range p.Entry {
		for _, ch := range e.Changes {
			names := make(map[string]string, len(ch.Value.Contacts))
			for _, c := range ch.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range ch.Value.Messages {
				if m.Type != "text" || m.Text == nil {
					continue
				}
				name := names[m.From]
				if name == "" {
					name = m.From
				}
				out = append(out, Inbound{
					ContactID:   m.From,
					DisplayName: name,
					MessageID:   m.ID,
					Text:        m.Text.Body,
					Timestamp:   m.Timestamp,
				})
			}
		}
	}
	return out, nil
}
