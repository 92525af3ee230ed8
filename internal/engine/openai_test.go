package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newFakeOpenAI(t *testing.T, status int, reply string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/chat/completions":
			json.NewDecoder(r.Body).Decode(&captured)
			if status != http.StatusOK {
				w.WriteHeader(status)
				w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": reply}, "finish_reason": "stop"}},
			})
		case "/v1/models":
			w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4-1106-preview","object":"model"},{"id":"gpt-4o","object":"model"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestOpenAIEngine_Chat(t *testing.T) {
	srv, captured := newFakeOpenAI(t, http.StatusOK, "[status: Qualified]\nGreat!")

	e := NewOpenAIEngine("sk-test", srv.URL+"/v1/")
	temp := float32(0.3)
	got, err := e.Chat(context.Background(), "gpt-4-1106-preview", []Message{
		{Role: RoleSystem, Content: "qualify leads"},
		{Role: RoleUser, Content: "Ahmed: hi"},
	}, Options{Temperature: &temp})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "[status: Qualified]\nGreat!" {
		t.Errorf("reply = %q", got)
	}
	if (*captured)["model"] != "gpt-4-1106-preview" {
		t.Errorf("model = %v", (*captured)["model"])
	}
	msgs, _ := (*captured)["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("sent %d messages, want 2", len(msgs))
	}
}

func TestOpenAIEngine_ChatErrorCarriesStatus(t *testing.T) {
	srv, _ := newFakeOpenAI(t, http.StatusTooManyRequests, "")

	e := NewOpenAIEngine("sk-test", srv.URL+"/v1")
	_, err := e.Chat(context.Background(), "gpt-4o", []Message{{Role: RoleUser, Content: "x"}}, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error = %q, want HTTP status", err)
	}
}

func TestOpenAIEngine_Models(t *testing.T) {
	srv, _ := newFakeOpenAI(t, http.StatusOK, "")

	e := NewOpenAIEngine("sk-test", srv.URL+"/v1")
	if !e.IsRunning(context.Background()) {
		t.Error("IsRunning = false, want true")
	}
	models, err := e.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Errorf("models = %v", models)
	}
	if !e.HasModel(context.Background(), "gpt-4-1106-preview") {
		t.Error("HasModel = false, want true")
	}
	if e.HasModel(context.Background(), "gpt-3") {
		t.Error("HasModel(gpt-3) = true, want false")
	}
}
