// Package webhook implements the Marketplace A inbound webhook: raw-body
// HMAC verification, adapter transform, and queue enqueue, per spec §4.E.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"invsync/internal/adapter"
	"invsync/internal/queue"
)

const signatureHeader = "x-marketplace-signature"

// QueueEnqueuer is the narrow queue dependency this handler needs.
type QueueEnqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

// Handler serves POST /webhooks/marketplace-a.
type Handler struct {
	secret  string
	adapter adapter.Adapter
	queue   QueueEnqueuer
	log     *slog.Logger
}

func New(secret string, a adapter.Adapter, q QueueEnqueuer, log *slog.Logger) *Handler {
	return &Handler{secret: secret, adapter: a, queue: q, log: log}
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type jobResult struct {
	JobID     string `json:"jobId"`
	ProductID string `json:"productId"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "unreadable body"})
		return
	}
	defer r.Body.Close()

	sig := r.Header.Get(signatureHeader)
	if sig == "" || !validSignature(h.secret, body, sig) {
		writeJSON(w, http.StatusUnauthorized, response{Message: "invalid signature"})
		return
	}

	record, err := h.adapter.Transform(body)
	if err != nil {
		h.log.Warn("webhook: bad payload", "error", err)
		writeJSON(w, http.StatusBadRequest, response{Message: "invalid payload"})
		return
	}

	payload, err := json.Marshal(record)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, response{Message: "internal error"})
		return
	}

	job := queue.NewJob(payload, queue.PriorityNormal)
	if err := h.queue.Enqueue(ctx, job); err != nil {
		h.log.Error("webhook: enqueue failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Message: "internal error"})
		return
	}

	writeJSON(w, http.StatusAccepted, response{
		Success: true,
		Message: "accepted",
		Data:    jobResult{JobID: job.ID, ProductID: record.ProductID},
	})
}

// validSignature recomputes HMAC-SHA256 over the raw body and compares it
// to the header value in constant time, regardless of where the two hex
// strings first diverge.
func validSignature(secret string, body []byte, headerValue string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(headerValue)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
