// Package queue implements the at-least-once durable job queue described
// in spec §4.D: a shared key-value store (Redis) backs priority ordering,
// delayed retry scheduling, an active set for stalled-job recovery, and a
// dead-letter queue for exhausted jobs. The operational shape
// (Enqueue/Dequeue/Ack/Fail/Stats) mirrors the teacher's Postgres
// queue store, adapted from SELECT...FOR UPDATE SKIP LOCKED semantics to
// Redis sorted-set + Lua-script semantics.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Default retry policy, per spec §4.D.
const (
	DefaultMaxAttempts  = 5
	DefaultBaseBackoff  = 2 * time.Second
	DefaultStallTimeout = 5 * time.Minute
)

// Priority orders waiting jobs; higher runs first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

// Job is a single unit of queued work: one canonical record commit.
type Job struct {
	ID           string          `json:"id"`
	Payload      json.RawMessage `json:"payload"`
	Priority     Priority        `json:"priority"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	CreatedAt    time.Time       `json:"created_at"`
	LastError    string          `json:"last_error,omitempty"`
}

// NewJob builds a Job with a fresh ID and the queue's default retry
// policy applied.
func NewJob(payload json.RawMessage, priority Priority) Job {
	return Job{
		ID:          uuid.NewString(),
		Payload:     payload,
		Priority:    priority,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   time.Now(),
	}
}

// Stats summarizes queue depth across every state set, per spec §4.D.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Total     int64 `json:"total"`
}

// Queue is the durable job queue contract. Dequeue claims a batch and
// moves it to the active set; callers must Ack or Fail every claimed job.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	EnqueueBatch(ctx context.Context, jobs []Job) error
	Dequeue(ctx context.Context, batch int) ([]Job, error)
	Ack(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, cause error, retry bool) error
	RecoverStalled(ctx context.Context) (int, error)
	PromoteDelayed(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
	ListDLQ(ctx context.Context) ([]Job, error)
}
