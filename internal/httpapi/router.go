// Package httpapi exposes the inbound webhook and the read-only query
// endpoints on a single chi.Mux, per spec §6. Handlers here are thin:
// they decode, delegate to ingestion/repository/poller, and encode.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"invsync/internal/logger"
)

// Config wires the handlers New needs. Any nil dependency simply leaves
// its routes unregistered rather than panicking.
type Config struct {
	Webhook     http.Handler
	Handlers    *Handlers
	MetricsPath http.Handler
}

// New builds the router: global middleware, then one route group per
// concern, mirroring the chi+cors layering the rest of the pack uses.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(carryRequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "x-marketplace-signature"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.Handlers != nil {
		r.Get("/health", cfg.Handlers.Health)
		r.Post("/trigger-poll", cfg.Handlers.TriggerPoll)
		r.Get("/queue/stats", cfg.Handlers.QueueStats)
		r.Get("/queue/dlq", cfg.Handlers.QueueDLQ)
		r.Route("/inventory/{productId}", func(r chi.Router) {
			r.Get("/", cfg.Handlers.GetInventory)
			r.Get("/audit", cfg.Handlers.GetAudit)
		})
	}

	if cfg.Webhook != nil {
		r.Post("/webhooks/marketplace-a", cfg.Webhook.ServeHTTP)
	}

	if cfg.MetricsPath != nil {
		r.Handle("/metrics", cfg.MetricsPath)
	}

	return r
}

// carryRequestID copies chi's request ID into the context key our logger
// package reads, so handler log lines carry it without depending on chi.
func carryRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := chimw.GetReqID(r.Context()); reqID != "" {
			r = r.WithContext(logger.WithRequestID(r.Context(), reqID))
		}
		next.ServeHTTP(w, r)
	})
}
