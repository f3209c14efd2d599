package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"invsync/internal/queue"
	"invsync/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRepo struct {
	rows    []repository.InventoryRow
	audit   []repository.AuditRow
	repoErr error
}

func (f *fakeRepo) GetByProduct(ctx context.Context, productID string) ([]repository.InventoryRow, error) {
	if f.repoErr != nil {
		return nil, f.repoErr
	}
	return f.rows, nil
}

func (f *fakeRepo) GetAudit(ctx context.Context, productID string, limit int) ([]repository.AuditRow, error) {
	if f.repoErr != nil {
		return nil, f.repoErr
	}
	return f.audit, nil
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

type fakePollTrigger struct {
	calls chan struct{}
}

func (f *fakePollTrigger) RunOnce(ctx context.Context) {
	if f.calls != nil {
		f.calls <- struct{}{}
	}
}

type fakeQueueReader struct {
	stats  queue.Stats
	dlq    []queue.Job
	queErr error
}

func (f *fakeQueueReader) Stats(ctx context.Context) (queue.Stats, error) {
	return f.stats, f.queErr
}

func (f *fakeQueueReader) ListDLQ(ctx context.Context) ([]queue.Job, error) {
	return f.dlq, f.queErr
}

func TestHealthOK(t *testing.T) {
	qr := &fakeQueueReader{stats: queue.Stats{Waiting: 2, Total: 2}}
	r := New(Config{Handlers: NewHandlers(&fakeRepo{}, &fakePinger{}, &fakePollTrigger{}, qr, testLogger())})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var out struct {
		Status string      `json:"status"`
		Queue  queue.Stats `json:"queue"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "ok" {
		t.Fatalf("status = %q, want ok", out.Status)
	}
	if out.Queue.Waiting != 2 || out.Queue.Total != 2 {
		t.Fatalf("queue stats = %+v, want waiting=2 total=2", out.Queue)
	}
}

func TestHealthStorageDown(t *testing.T) {
	r := New(Config{Handlers: NewHandlers(&fakeRepo{}, &fakePinger{err: context.DeadlineExceeded}, &fakePollTrigger{}, &fakeQueueReader{}, testLogger())})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestGetInventoryReturnsRows(t *testing.T) {
	repo := &fakeRepo{rows: []repository.InventoryRow{{ProductID: "PROD-1", Quantity: 5}}}
	r := New(Config{Handlers: NewHandlers(repo, &fakePinger{}, &fakePollTrigger{}, &fakeQueueReader{}, testLogger())})

	req := httptest.NewRequest(http.MethodGet, "/inventory/PROD-1/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var out struct {
		Success bool                      `json:"success"`
		Data    []repository.InventoryRow `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Success {
		t.Fatal("expected success = true")
	}
	if len(out.Data) != 1 || out.Data[0].ProductID != "PROD-1" {
		t.Fatalf("data = %+v, want one row for PROD-1", out.Data)
	}
}

func TestGetInventoryNotFound(t *testing.T) {
	r := New(Config{Handlers: NewHandlers(&fakeRepo{}, &fakePinger{}, &fakePollTrigger{}, &fakeQueueReader{}, testLogger())})

	req := httptest.NewRequest(http.MethodGet, "/inventory/MISSING/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetAuditInvalidLimit(t *testing.T) {
	r := New(Config{Handlers: NewHandlers(&fakeRepo{}, &fakePinger{}, &fakePollTrigger{}, &fakeQueueReader{}, testLogger())})

	req := httptest.NewRequest(http.MethodGet, "/inventory/PROD-1/audit?limit=-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTriggerPollReturns202AndRunsAsync(t *testing.T) {
	trigger := &fakePollTrigger{calls: make(chan struct{}, 1)}
	r := New(Config{Handlers: NewHandlers(&fakeRepo{}, &fakePinger{}, trigger, &fakeQueueReader{}, testLogger())})

	req := httptest.NewRequest(http.MethodPost, "/trigger-poll", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	select {
	case <-trigger.calls:
	case <-time.After(time.Second):
		t.Fatal("expected RunOnce to be invoked")
	}
}

func TestQueueStatsReturnsCounts(t *testing.T) {
	qr := &fakeQueueReader{stats: queue.Stats{Waiting: 3, Active: 1, Total: 4}}
	r := New(Config{Handlers: NewHandlers(&fakeRepo{}, &fakePinger{}, &fakePollTrigger{}, qr, testLogger())})

	req := httptest.NewRequest(http.MethodGet, "/queue/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var stats queue.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Waiting != 3 || stats.Total != 4 {
		t.Fatalf("stats = %+v, want waiting=3 total=4", stats)
	}
}

func TestQueueDLQListsJobs(t *testing.T) {
	qr := &fakeQueueReader{dlq: []queue.Job{{ID: "job-1", LastError: "permanent"}}}
	r := New(Config{Handlers: NewHandlers(&fakeRepo{}, &fakePinger{}, &fakePollTrigger{}, qr, testLogger())})

	req := httptest.NewRequest(http.MethodGet, "/queue/dlq", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var out struct {
		Jobs []queue.Job `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Jobs) != 1 || out.Jobs[0].ID != "job-1" {
		t.Fatalf("jobs = %+v, want one job-1", out.Jobs)
	}
}
