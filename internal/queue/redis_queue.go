package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"invsync/internal/core"
)

const (
	keyWaiting = "queue:waiting"
	keyDelayed = "queue:delayed"
	keyActive  = "queue:active"
	keyDLQ     = "queue:dlq"
	keyJobPrefix = "queue:job:"

	keyStatsCompleted = "queue:stats:completed"
	keyStatsFailed    = "queue:stats:failed"
)

// priorityWeight separates priority bands far enough apart that
// created_at (milliseconds since epoch) never crosses into the next band.
const priorityWeight = 1e13

// redisClient is the narrow subset of github.com/redis/go-redis/v9's
// *redis.Client surface the queue needs. Kept as an interface, in the
// same spirit as the lock package's Redis interface, so tests run
// against a hand-rolled fake rather than a live server.
type redisClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRangeByScore(ctx context.Context, key, min, max string) ([]string, error)
	ZRem(ctx context.Context, key string, members ...string) error
	ZCard(ctx context.Context, key string) (int64, error)
	HSet(ctx context.Context, key string, values map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	SAdd(ctx context.Context, key string, members ...string) error
	SCard(ctx context.Context, key string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) error
	Incr(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (string, error)
}

// dequeueScript atomically claims up to ARGV[1] waiting jobs, moves them
// to the active set scored by stall deadline, and bumps each job's
// attempt counter.
const dequeueScript = `
local ids = redis.call("ZRANGE", KEYS[1], 0, tonumber(ARGV[1]) - 1)
if #ids == 0 then
	return {}
end
for i, id in ipairs(ids) do
	redis.call("ZREM", KEYS[1], id)
	redis.call("ZADD", KEYS[2], tonumber(ARGV[2]) + tonumber(ARGV[3]), id)
	redis.call("HINCRBY", ARGV[4] .. id, "attempts", 1)
end
return ids
`

// ackScript removes a completed job from the active set and its hash,
// and bumps the completed counter.
const ackScript = `
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("DEL", KEYS[2])
redis.call("INCR", KEYS[3])
return 1
`

// failScript routes a failed job to the delayed set for retry, or to the
// dead-letter set once attempts are exhausted or the caller marked the
// cause non-retriable (spec.md §4.F step 3-4: BadPayload/PermanentStorage
// fail on the first attempt, never retried). Dead-lettered job hashes get
// a retention TTL so they fall off after the window in spec.md §3 instead
// of accumulating forever.
const failScript = `
local attempts = tonumber(redis.call("HGET", KEYS[2], "attempts"))
local maxAttempts = tonumber(redis.call("HGET", KEYS[2], "max_attempts"))
local retry = tonumber(ARGV[4])
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("HSET", KEYS[2], "last_error", ARGV[3])
if retry == 0 or attempts >= maxAttempts then
	redis.call("SADD", KEYS[3], ARGV[1])
	redis.call("INCR", KEYS[4])
	redis.call("PEXPIRE", KEYS[2], tonumber(ARGV[5]))
	return "dlq"
end
redis.call("ZADD", KEYS[5], tonumber(ARGV[2]), ARGV[1])
return "retry"
`

// dlqRetention matches spec.md §3's dead-letter retention window.
const dlqRetention = 7 * 24 * time.Hour

// RedisQueue is the Queue implementation backed by Redis sorted sets.
type RedisQueue struct {
	client       redisClient
	stallTimeout time.Duration
	baseBackoff  time.Duration
}

func NewRedisQueue(client redisClient) *RedisQueue {
	return &RedisQueue{
		client:       client,
		stallTimeout: DefaultStallTimeout,
		baseBackoff:  DefaultBaseBackoff,
	}
}

func jobKey(id string) string {
	return keyJobPrefix + id
}

func waitingScore(job Job) float64 {
	return -float64(job.Priority)*priorityWeight + float64(job.CreatedAt.UnixMilli())
}

func (q *RedisQueue) storeJobHash(ctx context.Context, job Job) error {
	return q.client.HSet(ctx, jobKey(job.ID), map[string]string{
		"payload":      string(job.Payload),
		"priority":     strconv.Itoa(int(job.Priority)),
		"attempts":     strconv.Itoa(job.Attempts),
		"max_attempts": strconv.Itoa(job.MaxAttempts),
		"created_at":   strconv.FormatInt(job.CreatedAt.UnixMilli(), 10),
	})
}

// Enqueue adds a single job to the waiting set.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job = NewJob(job.Payload, job.Priority)
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if err := q.storeJobHash(ctx, job); err != nil {
		return core.New(core.KindQueueUnavailable, "queue.Enqueue", err)
	}
	if err := q.client.ZAdd(ctx, keyWaiting, waitingScore(job), job.ID); err != nil {
		return core.New(core.KindQueueUnavailable, "queue.Enqueue", err)
	}
	return nil
}

// EnqueueBatch adds several jobs; partial failure returns the first error
// encountered but leaves already-enqueued jobs in place (at-least-once,
// not all-or-nothing).
func (q *RedisQueue) EnqueueBatch(ctx context.Context, jobs []Job) error {
	for i := range jobs {
		if err := q.Enqueue(ctx, jobs[i]); err != nil {
			return fmt.Errorf("queue: enqueue batch item %d: %w", i, err)
		}
	}
	return nil
}

// Dequeue claims up to batch waiting jobs, moving them to the active set.
func (q *RedisQueue) Dequeue(ctx context.Context, batch int) ([]Job, error) {
	if batch <= 0 {
		batch = 1
	}

	now := time.Now()
	result, err := q.client.Eval(ctx, dequeueScript, []string{keyWaiting, keyActive},
		batch, now.UnixMilli(), q.stallTimeout.Milliseconds(), keyJobPrefix)
	if err != nil {
		return nil, core.New(core.KindQueueUnavailable, "queue.Dequeue", err)
	}

	ids, err := toStringSlice(result)
	if err != nil {
		return nil, core.New(core.KindQueueUnavailable, "queue.Dequeue", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		fields, err := q.client.HGetAll(ctx, jobKey(id))
		if err != nil {
			return nil, core.New(core.KindQueueUnavailable, "queue.Dequeue", err)
		}
		job, err := jobFromFields(id, fields)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Ack marks a job as successfully processed.
func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	_, err := q.client.Eval(ctx, ackScript, []string{keyActive, jobKey(jobID), keyStatsCompleted}, jobID)
	if err != nil {
		return core.New(core.KindQueueUnavailable, "queue.Ack", err)
	}
	return nil
}

// Fail records a processing failure. When retry is true and the job is
// still under its attempt limit, it is rescheduled with exponential
// backoff; otherwise it moves straight to the DLQ, regardless of
// attempts remaining — a non-retriable cause (BadPayload,
// PermanentStorage) is terminal on the first attempt per spec.md §4.F.
func (q *RedisQueue) Fail(ctx context.Context, jobID string, cause error, retry bool) error {
	fields, err := q.client.HGetAll(ctx, jobKey(jobID))
	if err != nil {
		return core.New(core.KindQueueUnavailable, "queue.Fail", err)
	}
	attempts, _ := strconv.Atoi(fields["attempts"])
	if attempts < 1 {
		attempts = 1
	}

	backoff := time.Duration(float64(q.baseBackoff) * float64(int64(1)<<(attempts-1)))
	nextRunAt := time.Now().Add(backoff)

	var msg string
	if cause != nil {
		msg = cause.Error()
	}

	retryArg := 0
	if retry {
		retryArg = 1
	}

	_, err = q.client.Eval(ctx, failScript,
		[]string{keyActive, jobKey(jobID), keyDLQ, keyStatsFailed, keyDelayed},
		jobID, nextRunAt.UnixMilli(), msg, retryArg, dlqRetention.Milliseconds())
	if err != nil {
		return core.New(core.KindQueueUnavailable, "queue.Fail", err)
	}
	return nil
}

// PromoteDelayed moves delayed jobs whose retry time has arrived back
// into the waiting set, preserving their original priority ordering.
func (q *RedisQueue) PromoteDelayed(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.client.ZRangeByScore(ctx, keyDelayed, "-inf", now)
	if err != nil {
		return 0, core.New(core.KindQueueUnavailable, "queue.PromoteDelayed", err)
	}

	promoted := 0
	for _, id := range ids {
		fields, err := q.client.HGetAll(ctx, jobKey(id))
		if err != nil {
			continue
		}
		job, err := jobFromFields(id, fields)
		if err != nil {
			continue
		}
		if err := q.client.ZRem(ctx, keyDelayed, id); err != nil {
			continue
		}
		if err := q.client.ZAdd(ctx, keyWaiting, waitingScore(job), id); err != nil {
			continue
		}
		promoted++
	}
	return promoted, nil
}

// RecoverStalled requeues jobs whose active-set deadline has already
// passed, meaning the worker holding them died or lost its lock before
// acking or failing.
func (q *RedisQueue) RecoverStalled(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.client.ZRangeByScore(ctx, keyActive, "-inf", now)
	if err != nil {
		return 0, core.New(core.KindQueueUnavailable, "queue.RecoverStalled", err)
	}

	recovered := 0
	for _, id := range ids {
		fields, err := q.client.HGetAll(ctx, jobKey(id))
		if err != nil {
			continue
		}
		job, err := jobFromFields(id, fields)
		if err != nil {
			continue
		}
		if err := q.client.ZRem(ctx, keyActive, id); err != nil {
			continue
		}
		if err := q.client.ZAdd(ctx, keyWaiting, waitingScore(job), id); err != nil {
			continue
		}
		recovered++
	}
	return recovered, nil
}

// Stats reports queue depth across every state set.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	waiting, err := q.client.ZCard(ctx, keyWaiting)
	if err != nil {
		return Stats{}, core.New(core.KindQueueUnavailable, "queue.Stats", err)
	}
	active, err := q.client.ZCard(ctx, keyActive)
	if err != nil {
		return Stats{}, core.New(core.KindQueueUnavailable, "queue.Stats", err)
	}
	delayed, err := q.client.ZCard(ctx, keyDelayed)
	if err != nil {
		return Stats{}, core.New(core.KindQueueUnavailable, "queue.Stats", err)
	}
	failed, err := q.client.SCard(ctx, keyDLQ)
	if err != nil {
		return Stats{}, core.New(core.KindQueueUnavailable, "queue.Stats", err)
	}
	completed := readCounter(ctx, q.client, keyStatsCompleted)

	return Stats{
		Waiting:   waiting,
		Active:    active,
		Delayed:   delayed,
		Failed:    failed,
		Completed: completed,
		Total:     waiting + active + delayed,
	}, nil
}

// ListDLQ returns every job currently parked in the dead-letter set. A
// member whose job hash already expired under the retention TTL is
// pruned from the set lazily, since Redis does not cascade expiry
// across keys.
func (q *RedisQueue) ListDLQ(ctx context.Context) ([]Job, error) {
	ids, err := q.client.SMembers(ctx, keyDLQ)
	if err != nil {
		return nil, core.New(core.KindQueueUnavailable, "queue.ListDLQ", err)
	}

	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		fields, err := q.client.HGetAll(ctx, jobKey(id))
		if err != nil {
			continue
		}
		job, err := jobFromFields(id, fields)
		if err != nil {
			q.client.SRem(ctx, keyDLQ, id)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func readCounter(ctx context.Context, client redisClient, key string) int64 {
	val, err := client.Get(ctx, key)
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(val, 10, 64)
	return n
}

func jobFromFields(id string, fields map[string]string) (Job, error) {
	if len(fields) == 0 {
		return Job{}, fmt.Errorf("queue: job %s has no data", id)
	}
	priority, _ := strconv.Atoi(fields["priority"])
	attempts, _ := strconv.Atoi(fields["attempts"])
	maxAttempts, _ := strconv.Atoi(fields["max_attempts"])
	createdAtMillis, _ := strconv.ParseInt(fields["created_at"], 10, 64)

	return Job{
		ID:          id,
		Payload:     json.RawMessage(fields["payload"]),
		Priority:    Priority(priority),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.UnixMilli(createdAtMillis),
		LastError:   fields["last_error"],
	}, nil
}

func toStringSlice(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("queue: unexpected script result type %T", v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("queue: unexpected script result element type %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}
