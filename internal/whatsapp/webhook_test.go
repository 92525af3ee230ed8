package whatsapp

import (
	"errors"
	"testing"
)

const textEvent = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "contacts": [{"profile": {"name": "Alice"}, "wa_id": "971500000001"}],
        "messages": [{
          "from": "971500000001",
          "id": "wamid.A",
          "timestamp": "1717236000",
          "type": "text",
          "text": {"body": "Is the villa still available?"}
        }]
      }
    }]
  }]
}`

func TestParseWebhook_Text(t *testing.T) {
	msgs, err := ParseWebhook([]byte(textEvent))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.ContactID != "971500000001" || m.DisplayName != "Alice" || m.MessageID != "wamid.A" {
		t.Errorf("unexpected message: %+v", m)
	}
	if m.Text != "Is the villa still available?" {
		t.Errorf("Text = %q", m.Text)
	}
}

func TestParseWebhook_StatusOnly(t *testing.T) {
	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.A","status":"delivered"}]}}]}]}`
	msgs, err := ParseWebhook([]byte(body))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0", len(msgs))
	}
}

func TestParseWebhook_NonTextIgnored(t *testing.T) {
	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{
		"contacts":[{"profile":{"name":"Bob"},"wa_id":"2"}],
		"messages":[{"from":"2","id":"x","type":"image","image":{"id":"media"}}]}}]}]}`
	msgs, err := ParseWebhook([]byte(body))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0", len(msgs))
	}
}

func TestParseWebhook_MissingProfileFallsBackToNumber(t *testing.T) {
	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{
		"messages":[{"from":"3","id":"x","type":"text","text":{"body":"hi"}}]}}]}]}`
	msgs, err := ParseWebhook([]byte(body))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if len(msgs) != 1 || msgs[0].DisplayName != "3" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}

func TestParseWebhook_Invalid(t *testing.T) {
	if _, err := ParseWebhook([]byte(`not json`)); err == nil || errors.Is(err, ErrNotEvent) {
		t.Errorf("invalid JSON: got %v", err)
	}
	for _, body := range []string{`{}`, `{"object":"page"}`} {
		if _, err := ParseWebhook([]byte(body)); !errors.Is(err, ErrNotEvent) {
			t.Errorf("ParseWebhook(%q): expected error", body)
		}
	}
}
