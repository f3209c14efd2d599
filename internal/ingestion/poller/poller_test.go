package poller

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"invsync/internal/adapter"
	"invsync/internal/queue"
)

type fakeCursor struct {
	mu    sync.Mutex
	value int64
}

func (c *fakeCursor) LoadCursor(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, nil
}

func (c *fakeCursor) SaveCursor(ctx context.Context, unixSeconds int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = unixSeconds
	return nil
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (e *fakeEnqueuer) EnqueueBatch(ctx context.Context, jobs []queue.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, jobs...)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceEnqueuesParsedItemsAndAdvancesCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"sku":"SKU1","qty":7,"location_id":"L","last_modified":1735689600}]}`))
	}))
	defer srv.Close()

	cursor := &fakeCursor{}
	enq := &fakeEnqueuer{}
	p := New(srv.URL, "key", &adapter.MarketplaceB{}, cursor, enq, testLogger())

	p.RunOnce(context.Background())

	if len(enq.jobs) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(enq.jobs))
	}
	if cursor.value == 0 {
		t.Error("expected cursor to advance past zero")
	}
	if p.consecutiveFailures != 0 {
		t.Errorf("consecutiveFailures = %d, want 0", p.consecutiveFailures)
	}
}

func TestRunOnceIncrementsFailuresOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cursor := &fakeCursor{}
	enq := &fakeEnqueuer{}
	p := New(srv.URL, "key", &adapter.MarketplaceB{}, cursor, enq, testLogger())

	p.RunOnce(context.Background())

	if p.consecutiveFailures != 1 {
		t.Fatalf("consecutiveFailures = %d, want 1", p.consecutiveFailures)
	}
	if len(enq.jobs) != 0 {
		t.Errorf("expected no jobs enqueued on upstream failure")
	}
}

func TestCircuitOpensAfterThreeFailuresAndSkipsRequest(t *testing.T) {
	var requestCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cursor := &fakeCursor{}
	enq := &fakeEnqueuer{}
	p := New(srv.URL, "key", &adapter.MarketplaceB{}, cursor, enq, testLogger())

	for i := 0; i < 3; i++ {
		p.RunOnce(context.Background())
	}
	if requestCount != 3 {
		t.Fatalf("expected 3 requests before circuit opens, got %d", requestCount)
	}

	p.RunOnce(context.Background())
	if requestCount != 3 {
		t.Fatalf("expected no additional request once circuit is open, got %d total", requestCount)
	}
}

func TestSingleFlightSkipsConcurrentCycle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	cursor := &fakeCursor{}
	enq := &fakeEnqueuer{}
	p := New(srv.URL, "key", &adapter.MarketplaceB{}, cursor, enq, testLogger())

	go p.RunOnce(context.Background())
	<-started

	p.RunOnce(context.Background()) // should skip immediately, guard held
	close(release)

	time.Sleep(50 * time.Millisecond)
}
