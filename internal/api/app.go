package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/leadbot/internal/blocklist"
	"github.com/kalambet/leadbot/internal/broadcast"
	"github.com/kalambet/leadbot/internal/lead"
	"github.com/kalambet/leadbot/internal/leadstore"
	"github.com/kalambet/leadbot/internal/relay"
	"github.com/kalambet/leadbot/internal/storage"
	"github.com/kalambet/leadbot/internal/whatsapp"
)

// RecentWindow separates new leads from old ones in the overview.
const RecentWindow = 72 * time.Hour

// DirectSender sends operator-authored messages.
type DirectSender interface {
	SendText(ctx context.Context, operator, number, text string) (string, error)
}

type AppDeps struct {
	Store      *storage.Store
	Leads      *leadstore.Store
	Blocks     *blocklist.List
	Sender     DirectSender
	Broadcasts *broadcast.Service
	Token      string
	Clock      func() time.Time
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Get("/leads", handleListLeads(deps))
	r.Get("/leads/{id}", handleGetLead(deps))
	r.Get("/history/{id}", handleGetHistory(deps))
	r.Delete("/history/{id}", handleDeleteHistory(deps))

	r.Get("/blocks", handleListBlocks(deps))
	r.Get("/blocks/{id}", handleGetBlock(deps))
	r.Put("/blocks/{id}", handlePutBlock(deps))
	r.Delete("/blocks/{id}", handleDeleteBlock(deps))

	r.Get("/lists/{list}", handleListMembers(deps))
	r.Put("/lists/{list}", handleReplaceList(deps))
	r.Put("/lists/{list}/{id}", handleAddMember(deps))
	r.Delete("/lists/{list}/{id}", handleRemoveMember(deps))

	r.Post("/send", handleSend(deps))
	r.Post("/broadcast", handleBroadcast(deps))
	r.Get("/jobs", handleListJobs(deps))
	r.Get("/jobs/{id}", handleGetJob(deps))

	return r
}

// LeadView is a lead as operators see it.
type LeadView struct {
	lead.Entry
	LastContactedDisplay string `json:"last_contacted_display"`
	Blocked              bool   `json:"blocked"`
	Flagged              bool   `json:"flagged"`
}

func handleListLeads(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.Leads.List(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list leads: %v", err)
			return
		}
		if r.URL.Query().Get("grouped") == "true" {
			writeJSON(w, http.StatusOK, lead.Group(entries, deps.Clock(), RecentWindow))
			return
		}
		if entries == nil {
			entries = []lead.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleGetLead(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, ok, err := deps.Leads.Lookup(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get lead: %v", err)
			return
		}
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "lead not found")
			return
		}
		blocked, _ := deps.Blocks.IsBlocked(id)
		flagged, _ := deps.Store.InList(storage.ListFlagged, id)
		writeJSON(w, http.StatusOK, LeadView{
			Entry:                lead.Entry{ContactID: id, Record: rec},
			LastContactedDisplay: lead.FormatSince(rec.LastContacted, deps.Clock()),
			Blocked:              blocked,
			Flagged:              flagged,
		})
	}
}

func handleGetHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, err := deps.Leads.History(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, leadstore.ErrInvalidContactID) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read history: %v", err)
			return
		}
		if text == "" {
			httpError(w, http.StatusNotFound, "not_found", "no history for contact")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(text))
	}
}

func handleDeleteHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		existed, err := deps.Leads.DeleteHistory(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, leadstore.ErrInvalidContactID) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete history: %v", err)
			return
		}
		if !existed {
			httpError(w, http.StatusNotFound, "not_found", "no history for contact")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleListBlocks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blocks, err := deps.Blocks.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list blocks: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, blocks)
	}
}

func handleGetBlock(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Blocks.Status(chi.URLParam(r, "id"))
		if errors.Is(err, blocklist.ErrNotBlocked) {
			httpError(w, http.StatusNotFound, "not_found", "contact is not blocked")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get block: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// BlockRequest blocks permanently when Seconds is zero, otherwise for
// Seconds (extending an active temporary block).
type BlockRequest struct {
	Seconds int `json:"seconds"`
}

func handlePutBlock(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := leadstore.ValidateContactID(id); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		var req BlockRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if req.Seconds == 0 {
			if err := deps.Blocks.Block(id); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to block: %v", err)
				return
			}
			writeJSON(w, http.StatusOK, blocklist.Status{ContactID: id, Permanent: true})
			return
		}

		st, err := deps.Blocks.TempBlock(id, time.Duration(req.Seconds)*time.Second)
		switch {
		case errors.Is(err, blocklist.ErrTooShort):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		case errors.Is(err, blocklist.ErrPermanent):
			httpError(w, http.StatusConflict, "conflict", "%v", err)
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to block: %v", err)
		default:
			writeJSON(w, http.StatusOK, st)
		}
	}
}

func handleDeleteBlock(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Blocks.Unblock(chi.URLParam(r, "id"))
		if errors.Is(err, blocklist.ErrNotBlocked) {
			httpError(w, http.StatusNotFound, "not_found", "contact is not blocked")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to unblock: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "unblocked"})
	}
}

func knownList(w http.ResponseWriter, list string) bool {
	switch list {
	case storage.ListContacts, storage.ListBroadcast, storage.ListFlagged:
		return true
	}
	httpError(w, http.StatusNotFound, "not_found", "unknown list %q", list)
	return false
}

// validMember checks an entry against the list's format. Broadcast entries
// are +9715 mobile numbers; the other lists hold contact ids.
func validMember(w http.ResponseWriter, list, member string) bool {
	if list == storage.ListBroadcast {
		if !whatsapp.ValidUAEMobile(member) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid UAE mobile number %q (want +9715XXXXXXXX)", member)
			return false
		}
		return true
	}
	if err := leadstore.ValidateContactID(member); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return false
	}
	return true
}

func handleListMembers(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := chi.URLParam(r, "list")
		if !knownList(w, list) {
			return
		}
		members, err := deps.Store.ListMembers(list)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list %s: %v", list, err)
			return
		}
		writeJSON(w, http.StatusOK, members)
	}
}

type ListRequest struct {
	Members []string `json:"members"`
}

func handleReplaceList(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := chi.URLParam(r, "list")
		if !knownList(w, list) {
			return
		}
		var req ListRequest
		if !decodeBody(w, r, &req) {
			return
		}
		for _, m := range req.Members {
			if !validMember(w, list, m) {
				return
			}
		}
		if err := deps.Store.ReplaceList(list, req.Members); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to replace %s: %v", list, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "replaced", "count": len(req.Members)})
	}
}

func handleAddMember(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, id := chi.URLParam(r, "list"), chi.URLParam(r, "id")
		if !knownList(w, list) || !validMember(w, list, id) {
			return
		}
		added, err := deps.Store.AddToList(list, id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add to %s: %v", list, err)
			return
		}
		status := "added"
		if !added {
			status = "exists"
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}

func handleRemoveMember(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, id := chi.URLParam(r, "list"), chi.URLParam(r, "id")
		if !knownList(w, list) {
			return
		}
		err := deps.Store.RemoveFromList(list, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "%s is not in %s", id, list)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to remove from %s: %v", list, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	}
}

type SendRequest struct {
	Operator string `json:"operator"`
	To       string `json:"to"`
	Text     string `json:"text"`
}

func handleSend(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.To == "" || req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "to and text are required")
			return
		}
		id, err := deps.Sender.SendText(r.Context(), req.Operator, req.To, req.Text)
		switch {
		case errors.Is(err, leadstore.ErrInvalidContactID):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		case errors.Is(err, relay.ErrBlocked):
			httpError(w, http.StatusConflict, "conflict", "%v", err)
		case err != nil:
			httpError(w, http.StatusBadGateway, "api_error", "send failed: %v", err)
		default:
			writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "message_id": id})
		}
	}
}

type BroadcastRequest struct {
	Operator string   `json:"operator"`
	Text     string   `json:"text"`
	Template string   `json:"template"`
	Language string   `json:"language"`
	Targets  []string `json:"targets"`
}

func handleBroadcast(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BroadcastRequest
		if !decodeBody(w, r, &req) {
			return
		}
		id, err := deps.Broadcasts.Enqueue(r.Context(), broadcast.Request{
			Operator: req.Operator,
			Text:     req.Text,
			Template: req.Template,
			Language: req.Language,
			Targets:  req.Targets,
		})
		switch {
		case errors.Is(err, broadcast.ErrEmptyMessage), errors.Is(err, broadcast.ErrNoRecipients), errors.Is(err, broadcast.ErrInvalidNumber):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to queue broadcast: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "queued"})
	}
}

func handleListJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := deps.Store.ListJobs(parseIntParam(r, "limit", 20, 100))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list jobs: %v", err)
			return
		}
		if jobs == nil {
			jobs = []storage.Job{}
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Store.GetJob(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
