package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"stead/pkg/metrics"
	"stead/pkg/middleware"
)

// Handler builds the HTTP handler with routes and middleware.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(a.log))
	r.Use(middleware.Tracing("stead-registry"))
	r.Use(middleware.Observe(a.metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Handle("/metrics", metrics.Handler())

	// Availability is consulted during signup before the caller has a
	// token, so the check stays public.
	r.Get("/check/{subdomain}", a.checkSubdomain)

	// The webhook authenticates with its signature header, not a bearer.
	r.Post("/webhook", a.handleWebhook)

	r.Group(func(pr chi.Router) {
		pr.Use(middleware.BearerAuth(a.cfg, a.metrics, a.log))
		pr.Use(middleware.RateLimit(a.rdb, a.cfg.ClaimRateMax, a.cfg.ClaimRateWindow, a.log))
		pr.Post("/claim", a.createClaim)
		pr.Delete("/claim/{subdomain}", a.releaseClaim)
		pr.Get("/claims", a.listClaims)
	})

	return r
}
