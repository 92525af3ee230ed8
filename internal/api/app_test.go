package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/leadbot/internal/blocklist"
	"github.com/kalambet/leadbot/internal/broadcast"
	"github.com/kalambet/leadbot/internal/lead"
	"github.com/kalambet/leadbot/internal/leadstore"
	"github.com/kalambet/leadbot/internal/relay"
	"github.com/kalambet/leadbot/internal/storage"
)

const testToken = "test-token-12345"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type mockSender struct {
	mu   sync.Mutex
	sent []SendRequest
	err  error
}

func (m *mockSender) SendText(_ context.Context, operator, number, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, SendRequest{Operator: operator, To: number, Text: text})
	return "wamid.1", nil
}

type testApp struct {
	handler http.Handler
	store   *storage.Store
	leads   *leadstore.Store
	blocks  *blocklist.List
	sender  *mockSender
}

func setupApp(t *testing.T) *testApp {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	a := &testApp{
		store:  store,
		leads:  leadstore.NewWithClock(store, t.TempDir(), fixedClock{testNow}),
		blocks: blocklist.NewWithClock(store, fixedClock{testNow}),
		sender: &mockSender{},
	}
	a.handler = NewAppHandler(AppDeps{
		Store:      store,
		Leads:      a.leads,
		Blocks:     a.blocks,
		Sender:     a.sender,
		Broadcasts: broadcast.NewService(store),
		Token:      testToken,
		Clock:      func() time.Time { return testNow.Add(90 * time.Minute) },
	})
	return a
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (a *testApp) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, authReq(method, url, body, testToken))
	return rr
}

func (a *testApp) seedLead(t *testing.T, id string, st lead.Status) {
	t.Helper()
	rec := lead.Record{Status: st, Tags: []string{"rent"}, Notes: "budget 8k"}
	if _, err := a.leads.Put(context.Background(), id, rec, "prev"); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestAuth_Required(t *testing.T) {
	a := setupApp(t)
	for _, tok := range []string{"", "wrong"} {
		rr := httptest.NewRecorder()
		a.handler.ServeHTTP(rr, authReq(http.MethodGet, "/leads", "", tok))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", tok, rr.Code)
		}
	}
}

func TestAuth_EmptyTokenRejectsAll(t *testing.T) {
	h := BearerAuth("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestListLeads(t *testing.T) {
	a := setupApp(t)
	a.seedLead(t, "971500000001", lead.StatusQualified)
	a.seedLead(t, "971500000002", lead.StatusCold)

	rr := a.do(t, http.MethodGet, "/leads", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var entries []lead.Entry
	if err := json.NewDecoder(rr.Body).Decode(&entries); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d leads, want 2", len(entries))
	}
}

func TestListLeads_Empty(t *testing.T) {
	a := setupApp(t)
	rr := a.do(t, http.MethodGet, "/leads", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rr.Body.String())
	}
}

func TestListLeads_Grouped(t *testing.T) {
	a := setupApp(t)
	a.seedLead(t, "971500000001", lead.StatusQualified)

	rr := a.do(t, http.MethodGet, "/leads?grouped=true", "")
	var ov lead.Overview
	if err := json.NewDecoder(rr.Body).Decode(&ov); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(ov.Recent[lead.StatusQualified]) != 1 {
		t.Errorf("overview = %+v", ov)
	}
}

func TestGetLead(t *testing.T) {
	a := setupApp(t)
	a.seedLead(t, "971500000001", lead.StatusQualified)
	a.store.AddToList(storage.ListFlagged, "971500000001")

	rr := a.do(t, http.MethodGet, "/leads/971500000001", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var v LeadView
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if v.ContactID != "971500000001" || v.Status != lead.StatusQualified || !v.Flagged || v.Blocked {
		t.Errorf("view = %+v", v)
	}
	if v.LastContactedDisplay != "010625 16:00:00 (1 hour ago)" {
		t.Errorf("LastContactedDisplay = %q", v.LastContactedDisplay)
	}

	if rr := a.do(t, http.MethodGet, "/leads/unknown", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown lead status = %d, want 404", rr.Code)
	}
}

func TestHistory(t *testing.T) {
	a := setupApp(t)
	ctx := context.Background()
	if err := a.leads.AppendHistory(ctx, "971500000001", leadstore.Inbound("Ahmed", "hi", testNow)); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	rr := a.do(t, http.MethodGet, "/history/971500000001", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Ahmed (971500000001)") {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	if rr := a.do(t, http.MethodDelete, "/history/971500000001", ""); rr.Code != http.StatusOK {
		t.Errorf("delete status = %d", rr.Code)
	}
	if rr := a.do(t, http.MethodGet, "/history/971500000001", ""); rr.Code != http.StatusNotFound {
		t.Errorf("after delete status = %d, want 404", rr.Code)
	}
	if rr := a.do(t, http.MethodDelete, "/history/971500000001", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestBlocks(t *testing.T) {
	a := setupApp(t)

	rr := a.do(t, http.MethodPut, "/blocks/971500000001", `{"seconds": 60}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("short block status = %d, want 400", rr.Code)
	}

	rr = a.do(t, http.MethodPut, "/blocks/971500000001", `{"seconds": 120}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("temp block status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var st blocklist.Status
	json.NewDecoder(rr.Body).Decode(&st)
	if st.Permanent || st.Remaining != 2*time.Minute {
		t.Errorf("status = %+v", st)
	}

	rr = a.do(t, http.MethodPut, "/blocks/971500000002", `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("permanent block status = %d", rr.Code)
	}
	if rr := a.do(t, http.MethodPut, "/blocks/971500000002", `{"seconds": 120}`); rr.Code != http.StatusConflict {
		t.Errorf("temp over permanent status = %d, want 409", rr.Code)
	}

	rr = a.do(t, http.MethodGet, "/blocks", "")
	var all []blocklist.Status
	json.NewDecoder(rr.Body).Decode(&all)
	if len(all) != 2 {
		t.Errorf("got %d blocks, want 2", len(all))
	}

	if rr := a.do(t, http.MethodDelete, "/blocks/971500000001", ""); rr.Code != http.StatusOK {
		t.Errorf("unblock status = %d", rr.Code)
	}
	if rr := a.do(t, http.MethodGet, "/blocks/971500000001", ""); rr.Code != http.StatusNotFound {
		t.Errorf("get after unblock status = %d, want 404", rr.Code)
	}
}

func TestLists(t *testing.T) {
	a := setupApp(t)

	if rr := a.do(t, http.MethodGet, "/lists/unknown", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown list status = %d, want 404", rr.Code)
	}
	if rr := a.do(t, http.MethodPut, "/lists/broadcast/971501234567", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("number without + status = %d, want 400", rr.Code)
	}
	if rr := a.do(t, http.MethodPut, "/lists/broadcast/+971501234567", ""); rr.Code != http.StatusOK {
		t.Errorf("add status = %d", rr.Code)
	}

	rr := a.do(t, http.MethodPut, "/lists/flagged", `{"members":["971500000001","971500000002"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("replace status = %d; body = %s", rr.Code, rr.Body.String())
	}
	rr = a.do(t, http.MethodGet, "/lists/flagged", "")
	var members []string
	json.NewDecoder(rr.Body).Decode(&members)
	if len(members) != 2 || members[0] != "971500000001" {
		t.Errorf("members = %v", members)
	}

	if rr := a.do(t, http.MethodDelete, "/lists/flagged/971500000001", ""); rr.Code != http.StatusOK {
		t.Errorf("remove status = %d", rr.Code)
	}
	if rr := a.do(t, http.MethodDelete, "/lists/flagged/971500000001", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", rr.Code)
	}
}

func TestSend(t *testing.T) {
	a := setupApp(t)

	rr := a.do(t, http.MethodPost, "/send", `{"operator":"Sara","to":"+971500000001","text":"hello"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if len(a.sender.sent) != 1 || a.sender.sent[0].Operator != "Sara" {
		t.Errorf("sent = %+v", a.sender.sent)
	}

	if rr := a.do(t, http.MethodPost, "/send", `{"to":"1"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("missing text status = %d, want 400", rr.Code)
	}

	a.sender.err = relay.ErrBlocked
	if rr := a.do(t, http.MethodPost, "/send", `{"to":"1","text":"x"}`); rr.Code != http.StatusConflict {
		t.Errorf("blocked status = %d, want 409", rr.Code)
	}
}

func TestBroadcastAndJobs(t *testing.T) {
	a := setupApp(t)

	if rr := a.do(t, http.MethodPost, "/broadcast", `{"text":"Open house"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("no recipients status = %d, want 400", rr.Code)
	}

	a.store.AddToList(storage.ListContacts, "971500000001")
	rr := a.do(t, http.MethodPost, "/broadcast", `{"operator":"Sara","text":"Open house"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "queued" || resp["id"] == "" {
		t.Fatalf("response = %v", resp)
	}

	rr = a.do(t, http.MethodGet, "/jobs/"+resp["id"], "")
	if rr.Code != http.StatusOK {
		t.Fatalf("job status = %d", rr.Code)
	}
	var job storage.Job
	json.NewDecoder(rr.Body).Decode(&job)
	if job.Type != broadcast.JobText || job.Status != "pending" {
		t.Errorf("job = %+v", job)
	}

	rr = a.do(t, http.MethodGet, "/jobs", "")
	var jobs []storage.Job
	json.NewDecoder(rr.Body).Decode(&jobs)
	if len(jobs) != 1 {
		t.Errorf("got %d jobs, want 1", len(jobs))
	}

	if rr := a.do(t, http.MethodGet, "/jobs/missing", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rr.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	a := setupApp(t)
	h := NewRouter(http.NotFoundHandler(), a.handler)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("health status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/api/leads", "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("/api/leads status = %d", rr.Code)
	}
}
