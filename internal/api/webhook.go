package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/leadbot/internal/relay"
	"github.com/kalambet/leadbot/internal/whatsapp"
)

// InboundHandler answers one inbound WhatsApp message.
type InboundHandler interface {
	HandleInbound(ctx context.Context, in whatsapp.Inbound) (relay.Outcome, error)
}

type WebhookDeps struct {
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 checking when set.
	AppSecret string
	Inbound   InboundHandler
	Logger    *slog.Logger
}

// NewWebhookHandler serves the WhatsApp Cloud API callback: GET for the
// subscription handshake, POST for notifications.
func NewWebhookHandler(deps WebhookDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Get("/", handleVerify(deps))
	r.Post("/", handleNotification(deps))
	return r
}

func handleVerify(deps WebhookDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mode, token, challenge := q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge")
		if mode == "" || token == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing parameters")
			return
		}
		if mode != "subscribe" || deps.VerifyToken == "" || token != deps.VerifyToken {
			deps.Logger.Warn("webhook verification failed", "mode", mode)
			httpError(w, http.StatusForbidden, "authentication_error", "verification failed")
			return
		}
		deps.Logger.Info("webhook verified")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, challenge)
	}
}

func handleNotification(deps WebhookDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
			return
		}

		if deps.AppSecret != "" && !whatsapp.VerifySignature(deps.AppSecret, body, r.Header.Get(whatsapp.SignatureHeader)) {
			deps.Logger.Warn("webhook signature rejected")
			httpError(w, http.StatusForbidden, "authentication_error", "invalid signature")
			return
		}

		msgs, err := whatsapp.ParseWebhook(body)
		if errors.Is(err, whatsapp.ErrNotEvent) {
			httpError(w, http.StatusNotFound, "not_found", "not a WhatsApp API event")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON provided")
			return
		}

		// A dropped callback connection must not abandon a turn halfway.
		ctx := context.WithoutCancel(r.Context())
		for _, m := range msgs {
			out, err := deps.Inbound.HandleInbound(ctx, m)
			if err != nil {
				deps.Logger.Error("handling inbound message", "contact_id", m.ContactID, "message_id", m.MessageID, "error", err)
				continue
			}
			deps.Logger.Debug("inbound handled", "contact_id", m.ContactID, "blocked", out.Blocked, "sent", out.Sent)
		}

		// WhatsApp retries anything but 200, which would replay the turn.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
