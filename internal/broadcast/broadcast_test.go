package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kalambet/leadbot/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnqueue_TextUsesContactsList(t *testing.T) {
	store := openTestStore(t)
	store.AddToList(storage.ListContacts, "971500000001")
	store.AddToList(storage.ListContacts, "971500000002")

	id, err := NewService(store).Enqueue(context.Background(), Request{Operator: "Sara", Text: "Open house Saturday"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, err := store.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Type != JobText || job.Status != "pending" {
		t.Errorf("job = %+v", job)
	}
	var p payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if len(p.Targets) != 2 || p.Targets[0] != "971500000001" || p.Operator != "Sara" {
		t.Errorf("payload = %+v", p)
	}
}

func TestEnqueue_TemplateUsesBroadcastList(t *testing.T) {
	store := openTestStore(t)
	store.AddToList(storage.ListBroadcast, "+971501234567")

	id, err := NewService(store).Enqueue(context.Background(), Request{Template: "hello_world"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, _ := store.GetJob(id)
	if job.Type != JobTemplate {
		t.Errorf("Type = %q, want %q", job.Type, JobTemplate)
	}
}

func TestEnqueue_TemplateRejectsInvalidNumber(t *testing.T) {
	store := openTestStore(t)
	_, err := NewService(store).Enqueue(context.Background(), Request{Template: "hello_world", Targets: []string{"+441234567890"}})
	if !errors.Is(err, ErrInvalidNumber) {
		t.Fatalf("expected ErrInvalidNumber, got %v", err)
	}
}

func TestEnqueue_Errors(t *testing.T) {
	store := openTestStore(t)
	svc := NewService(store)
	if _, err := svc.Enqueue(context.Background(), Request{}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := svc.Enqueue(context.Background(), Request{Text: "hi"}); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("expected ErrNoRecipients, got %v", err)
	}
}
