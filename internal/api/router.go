package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter mounts the public webhook and the authenticated management API
// under one handler. /health is open so probes need no token.
func NewRouter(webhook, app http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)
	r.Mount("/webhook", webhook)
	r.Mount("/api", app)
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
