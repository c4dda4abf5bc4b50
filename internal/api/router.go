package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// syncLimiter, if non-nil, throttles manual sync requests.
func NewRouter(svc Service, authEnabled bool, token string, sseHandler http.Handler, syncLimiter *rate.Limiter) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/safeguard", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/transactions", h.Transactions)
		r.Get("/snapshots", h.Snapshots)
		r.With(RateLimit(syncLimiter)).Post("/sync", h.Sync)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
