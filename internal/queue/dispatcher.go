package queue

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Dispatcher wraps a Queue with a fleet-wide rate limit on dequeue calls,
// adapted from the teacher's per-tenant limiter down to a single
// process-wide limiter since this service has no tenant dimension.
type Dispatcher struct {
	queue   Queue
	limiter *rate.Limiter
}

// NewDispatcher builds a Dispatcher allowing up to ratePerSecond Dequeue
// calls per second, with a burst allowance of burst.
func NewDispatcher(q Queue, ratePerSecond float64, burst int) *Dispatcher {
	return &Dispatcher{
		queue:   q,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Dequeue blocks until the rate limiter admits the call or ctx is
// canceled, then delegates to the underlying queue.
func (d *Dispatcher) Dequeue(ctx context.Context, batch int) ([]Job, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return d.queue.Dequeue(ctx, batch)
}

func (d *Dispatcher) Ack(ctx context.Context, jobID string) error {
	return d.queue.Ack(ctx, jobID)
}

func (d *Dispatcher) Fail(ctx context.Context, jobID string, cause error, retry bool) error {
	return d.queue.Fail(ctx, jobID, cause, retry)
}

func (d *Dispatcher) Enqueue(ctx context.Context, job Job) error {
	return d.queue.Enqueue(ctx, job)
}

func (d *Dispatcher) EnqueueBatch(ctx context.Context, jobs []Job) error {
	return d.queue.EnqueueBatch(ctx, jobs)
}

func (d *Dispatcher) Stats(ctx context.Context) (Stats, error) {
	return d.queue.Stats(ctx)
}

func (d *Dispatcher) ListDLQ(ctx context.Context) ([]Job, error) {
	return d.queue.ListDLQ(ctx)
}

// RunJanitor periodically promotes delayed jobs and recovers stalled ones,
// mirroring the ticker-driven background-loop idiom used for the cache
// buffer's flush/cleanup goroutines.
func (d *Dispatcher) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.queue.PromoteDelayed(ctx)
			d.queue.RecoverStalled(ctx)
		}
	}
}
