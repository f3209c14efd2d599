// Package worker runs the pull-loop that dequeues jobs and commits them
// to the repository under the per-product lock, per spec §4.F. The
// loop's shape (semaphore-bounded concurrency, adaptive backoff, graceful
// drain) is adapted line-for-line from the teacher's job-execution agent;
// only the body of processJob changed domain.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"invsync/internal/canonical"
	"invsync/internal/core"
	"invsync/internal/queue"
	"invsync/internal/repository"
)

// AgentConfig configures the worker pull-loop.
type AgentConfig struct {
	Concurrency  int
	PollInterval time.Duration
	MaxBackoff   time.Duration
	LockTTL      time.Duration
}

func (c AgentConfig) withDefaults() AgentConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Second
	}
	return c
}

// Dequeuer is the queue surface the agent needs.
type Dequeuer interface {
	Dequeue(ctx context.Context, batch int) ([]queue.Job, error)
	Ack(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, cause error, retry bool) error
}

// LockRunner runs fn under the per-product lock.
type LockRunner interface {
	WithLock(ctx context.Context, productID string, fn func(ctx context.Context) error) error
}

// Upserter commits one canonical record, returning the resulting row.
type Upserter interface {
	Upsert(ctx context.Context, rec canonical.Record) (repository.InventoryRow, error)
}

// Agent is the worker pull-loop: dequeue, lock, upsert, ack/fail.
type Agent struct {
	queue  Dequeuer
	locks  LockRunner
	store  Upserter
	config AgentConfig
	log    *slog.Logger
	done   chan struct{}
}

func New(q Dequeuer, locks LockRunner, store Upserter, config AgentConfig, log *slog.Logger) *Agent {
	return &Agent{
		queue:  q,
		locks:  locks,
		store:  store,
		config: config.withDefaults(),
		log:    log,
		done:   make(chan struct{}),
	}
}

// Done returns a channel closed once Run has fully drained in-flight work.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Run starts the pull-loop. It blocks until ctx is canceled, then waits
// for in-flight jobs to finish before returning.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info("worker: starting", "concurrency", a.config.Concurrency)

	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	pollNow := make(chan struct{}, 1)
	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
		}
	}
	triggerPoll()

	currentBackoff := a.config.PollInterval

	for {
		select {
		case <-ctx.Done():
			a.log.Info("worker: context canceled, draining in-flight jobs")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			jobs, err := a.queue.Dequeue(ctx, availableSlots)
			if err != nil {
				a.log.Error("worker: dequeue failed", "error", err)
				continue
			}

			if len(jobs) == 0 {
				currentBackoff *= 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}
			currentBackoff = a.config.PollInterval

			for _, job := range jobs {
				sem <- struct{}{}
				wg.Add(1)
				go func(j queue.Job) {
					defer wg.Done()
					defer func() {
						<-sem
						triggerPoll()
					}()
					a.processJob(ctx, j)
				}(job)
			}

			if len(jobs) < availableSlots {
				triggerPoll()
			}
		}
	}
}

// processJob validates, locks, and upserts one job, per spec §4.F.
func (a *Agent) processJob(ctx context.Context, job queue.Job) {
	var rec canonical.Record
	if err := json.Unmarshal(job.Payload, &rec); err != nil {
		a.fail(ctx, job.ID, core.New(core.KindBadPayload, "worker.processJob", err))
		return
	}
	if err := rec.Validate(); err != nil {
		a.fail(ctx, job.ID, core.New(core.KindBadPayload, "worker.processJob", err))
		return
	}

	err := a.locks.WithLock(ctx, rec.ProductID, func(lockedCtx context.Context) error {
		_, err := a.store.Upsert(lockedCtx, rec)
		return err
	})

	if err == nil {
		if ackErr := a.queue.Ack(ctx, job.ID); ackErr != nil {
			a.log.Error("worker: ack failed", "job_id", job.ID, "error", ackErr)
		}
		a.log.Info("worker: committed", "product_id", rec.ProductID, "quantity", rec.Quantity)
		return
	}

	a.fail(ctx, job.ID, err)
}

func (a *Agent) fail(ctx context.Context, jobID string, cause error) {
	retry := core.Retriable(cause)
	if failErr := a.queue.Fail(ctx, jobID, cause, retry); failErr != nil {
		a.log.Error("worker: fail bookkeeping failed", "job_id", jobID, "error", failErr)
	}
	disposition := "retriable"
	if !retry {
		disposition = "permanent"
	}
	a.log.Warn("worker: job failed", "job_id", jobID, "disposition", disposition, "error", cause)
}
