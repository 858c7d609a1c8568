// Package idp implements a stub identity provider used during
// development and testing: it accepts token-revocation calls and records
// which tokens have been revoked.
package idp

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/avolkhov/sessionkit/internal/middleware"
)

// RevokeHandler records revoked refresh tokens in memory.
type RevokeHandler struct {
	mu      sync.Mutex
	revoked map[string]bool
}

// NewRevokeHandler returns a handler with an empty revocation set.
func NewRevokeHandler() *RevokeHandler {
	return &RevokeHandler{revoked: make(map[string]bool)}
}

// Revoke handles POST /services/oauth2/revoke. A missing token parameter
// is a bad request; an already-revoked token is rejected the way a real
// provider rejects an invalid one.
func (h *RevokeHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	token := r.PostFormValue("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	already := h.revoked[token]
	h.revoked[token] = true
	h.mu.Unlock()

	if already {
		http.Error(w, "token already revoked", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Revoked reports whether the token has been revoked.
func (h *RevokeHandler) Revoked(token string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.revoked[token]
}

// NewRouter builds the stub provider's HTTP handler with request logging.
func NewRouter(h *RevokeHandler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.WithRequestLogging(logger))
	r.Route("/services/oauth2", func(r chi.Router) {
		r.Post("/revoke", h.Revoke)
	})
	return r
}
