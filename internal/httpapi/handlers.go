package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"invsync/internal/logger"
	"invsync/internal/queue"
	"invsync/internal/repository"
)

// InventoryReader is the read-only repository surface the query
// endpoints need.
type InventoryReader interface {
	GetByProduct(ctx context.Context, productID string) ([]repository.InventoryRow, error)
	GetAudit(ctx context.Context, productID string, limit int) ([]repository.AuditRow, error)
}

// Pinger reports storage reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PollTrigger kicks off one out-of-band poll cycle.
type PollTrigger interface {
	RunOnce(ctx context.Context)
}

// QueueReader exposes read-only queue introspection for the operator CLI.
type QueueReader interface {
	Stats(ctx context.Context) (queue.Stats, error)
	ListDLQ(ctx context.Context) ([]queue.Job, error)
}

// Handlers holds the query/health/trigger-poll endpoints' dependencies.
type Handlers struct {
	repo   InventoryReader
	pinger Pinger
	poller PollTrigger
	queue  QueueReader
	log    *slog.Logger
}

func NewHandlers(repo InventoryReader, pinger Pinger, poller PollTrigger, q QueueReader, log *slog.Logger) *Handlers {
	return &Handlers{repo: repo, pinger: pinger, poller: poller, queue: q, log: log}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func httpError(w http.ResponseWriter, message string, code int) {
	respondJSON(w, code, map[string]string{"error": message})
}

// envelope is the {success, data} response shape used across the query
// endpoints, matching the webhook handler's response envelope.
type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// Health is a liveness + storage-reachability probe that also reports
// queue depth, so an operator can see both halves of the pipeline at a
// glance.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), h.log)
	if err := h.pinger.Ping(r.Context()); err != nil {
		log.Warn("health: storage unreachable", "error", err)
		httpError(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		log.Warn("health: queue unreachable", "error", err)
		httpError(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "queue": stats})
}

// GetInventory returns every source's row for a product.
func (h *Handlers) GetInventory(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	rows, err := h.repo.GetByProduct(r.Context(), productID)
	if err != nil {
		logger.FromContext(r.Context(), h.log).Error("get inventory failed", "product_id", productID, "error", err)
		httpError(w, "failed to load inventory", http.StatusInternalServerError)
		return
	}
	if len(rows) == 0 {
		httpError(w, "product not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: rows})
}

// GetAudit returns the change history for a product, most recent first.
func (h *Handlers) GetAudit(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	rows, err := h.repo.GetAudit(r.Context(), productID, limit)
	if err != nil {
		logger.FromContext(r.Context(), h.log).Error("get audit failed", "product_id", productID, "error", err)
		httpError(w, "failed to load audit trail", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: rows})
}

// TriggerPoll kicks off one Marketplace B poll cycle out of band and
// returns immediately; the cycle runs under the poller's own
// single-flight guard and circuit breaker.
func (h *Handlers) TriggerPoll(w http.ResponseWriter, r *http.Request) {
	go h.poller.RunOnce(context.Background())
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// QueueStats reports queue depth across every state set.
func (h *Handlers) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		httpError(w, "failed to load queue stats", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// QueueDLQ lists jobs that exhausted their retry budget.
func (h *Handlers) QueueDLQ(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.ListDLQ(r.Context())
	if err != nil {
		httpError(w, "failed to load dead-letter queue", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}
