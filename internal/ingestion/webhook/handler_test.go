package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"invsync/internal/adapter"
	"invsync/internal/queue"
)

type fakeQueue struct {
	jobs []queue.Job
	err  error
}

func (f *fakeQueue) Enqueue(ctx context.Context, job queue.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServeHTTPValidWebhook(t *testing.T) {
	secret := "secret"
	body := []byte(`{"product_code":"PROD-ABC-123","available_stock":50,"timestamp":"2026-01-01T10:00:00Z","warehouse":"WH-NY-01"}`)
	q := &fakeQueue{}
	h := New(secret, &adapter.MarketplaceA{}, q, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/marketplace-a", strings.NewReader(string(body)))
	req.Header.Set(signatureHeader, sign(secret, body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}
	if len(q.jobs) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(q.jobs))
	}

	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Errorf("expected success=true")
	}
}

func TestServeHTTPBadSignature(t *testing.T) {
	body := []byte(`{"product_code":"PROD-ABC-123","available_stock":50,"timestamp":"2026-01-01T10:00:00Z"}`)
	q := &fakeQueue{}
	h := New("secret", &adapter.MarketplaceA{}, q, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/marketplace-a", strings.NewReader(string(body)))
	req.Header.Set(signatureHeader, "deadbeef")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(q.jobs) != 0 {
		t.Fatalf("expected no enqueue on bad signature, got %d", len(q.jobs))
	}
}

func TestServeHTTPMissingSignature(t *testing.T) {
	body := []byte(`{"product_code":"PROD-ABC-123","available_stock":50,"timestamp":"2026-01-01T10:00:00Z"}`)
	q := &fakeQueue{}
	h := New("secret", &adapter.MarketplaceA{}, q, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/marketplace-a", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestServeHTTPBadPayload(t *testing.T) {
	secret := "secret"
	body := []byte(`{"product_code":"","available_stock":-1}`)
	q := &fakeQueue{}
	h := New(secret, &adapter.MarketplaceA{}, q, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/marketplace-a", strings.NewReader(string(body)))
	req.Header.Set(signatureHeader, sign(secret, body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
	if len(q.jobs) != 0 {
		t.Fatalf("expected no enqueue on bad payload, got %d", len(q.jobs))
	}
}
