// Package lock implements the fleet-wide per-product mutual exclusion
// primitive described in spec §4.C, backed by Redis. The acquire/release
// protocol and the compare-and-delete Lua script are grounded on the
// write-behind buffer's deleteIfUnchangedScript idiom used elsewhere in
// the retrieval pack for safe conditional deletes.
package lock

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"

	"invsync/internal/core"
)

// Defaults from spec §4.C.
const (
	DefaultTTL               = 10 * time.Second
	DefaultRetries           = 5
	DefaultRetryDelay        = 200 * time.Millisecond
	DefaultDriftFactor       = 0.01
	DefaultExtensionThreshold = 500 * time.Millisecond
	maxJitter                = 100 * time.Millisecond
)

// Redis is the narrow subset of redis.Cmdable the lock manager needs. It
// exists so tests can substitute an in-memory fake without pulling in a
// live Redis server (no Redis test-double library appears anywhere in the
// retrieval pack).
type Redis interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
}

// Options configures a Manager; zero value uses the spec defaults.
type Options struct {
	TTL                time.Duration
	Retries            int
	RetryDelay         time.Duration
	DriftFactor        float64
	ExtensionThreshold time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.DriftFactor <= 0 {
		o.DriftFactor = DefaultDriftFactor
	}
	if o.ExtensionThreshold <= 0 {
		o.ExtensionThreshold = DefaultExtensionThreshold
	}
	return o
}

// unlockScript deletes KEYS[1] only if its value equals ARGV[1] — the
// same compare-and-delete idiom used for the Redis write-behind buffer's
// conditional cleanup elsewhere in the pack.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// extendScript re-writes the same nonce with a fresh TTL, but only if the
// caller still holds the lock.
const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`

// Manager acquires and releases per-product locks against Redis.
type Manager struct {
	client Redis
	opts   Options
}

func New(client Redis, opts Options) *Manager {
	return &Manager{client: client, opts: opts.withDefaults()}
}

func keyFor(productID string) string {
	return fmt.Sprintf("lock:inventory:%s", productID)
}

func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := cryptorand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func jitter() time.Duration {
	return time.Duration(rand.Int63n(int64(maxJitter)))
}

// acquire attempts to SET key nonce NX PX=ttl, retrying per spec §4.C.
func (m *Manager) acquire(ctx context.Context, productID, nonce string) error {
	key := keyFor(productID)

	var lastErr error
	for attempt := 0; attempt <= m.opts.Retries; attempt++ {
		ok, err := m.client.SetNX(ctx, key, nonce, m.opts.TTL)
		if err == nil && ok {
			return nil
		}
		lastErr = err
		if attempt == m.opts.Retries {
			break
		}

		select {
		case <-ctx.Done():
			return core.New(core.KindLockUnavailable, "lock.Acquire", ctx.Err())
		case <-time.After(m.opts.RetryDelay + jitter()):
		}
	}

	if lastErr != nil {
		return core.New(core.KindLockUnavailable, "lock.Acquire",
			fmt.Errorf("exhausted %d retries for product %s: %w", m.opts.Retries, productID, lastErr))
	}
	return core.New(core.KindLockUnavailable, "lock.Acquire",
		fmt.Errorf("exhausted %d retries for product %s", m.opts.Retries, productID))
}

// release deletes the key iff its value still equals nonce.
func (m *Manager) release(ctx context.Context, productID, nonce string) error {
	key := keyFor(productID)
	_, err := m.client.Eval(ctx, unlockScript, []string{key}, nonce)
	return err
}

// nominalTTL reduces the TTL by drift before any extension-timing
// decision, per spec §4.C.
func (m *Manager) nominalTTL() time.Duration {
	drift := time.Duration(float64(m.opts.TTL)*m.opts.DriftFactor) + 2*time.Millisecond
	return m.opts.TTL - drift
}

// WithLock acquires the per-product lock, invokes fn, and releases the
// lock on every exit path (normal return, error, or panic) per spec §4.C.
// If fn's work runs long, a background goroutine auto-extends the lock
// when within ExtensionThreshold of expiry.
func (m *Manager) WithLock(ctx context.Context, productID string, fn func(ctx context.Context) error) (err error) {
	nonce, nerr := newNonce()
	if nerr != nil {
		return core.New(core.KindLockUnavailable, "lock.WithLock", nerr)
	}

	if err := m.acquire(ctx, productID, nonce); err != nil {
		return err
	}

	extendCtx, stopExtend := context.WithCancel(ctx)
	defer stopExtend()
	go m.autoExtend(extendCtx, productID, nonce)

	defer func() {
		stopExtend()
		// Release runs regardless of how fn exited, including panics.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if relErr := m.release(releaseCtx, productID, nonce); relErr != nil && err == nil {
			err = core.New(core.KindLockUnavailable, "lock.release", relErr)
		}
	}()

	return fn(ctx)
}

// autoExtend wakes ExtensionThreshold before nominal expiry and refreshes
// the TTL, repeating until extendCtx is canceled (fn returned).
func (m *Manager) autoExtend(ctx context.Context, productID, nonce string) {
	key := keyFor(productID)
	nominal := m.nominalTTL()

	for {
		wait := nominal - m.opts.ExtensionThreshold
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if ctx.Err() != nil {
			return
		}
		if _, err := m.client.Eval(ctx, extendScript, []string{key}, nonce, int64(m.opts.TTL/time.Millisecond)); err != nil {
			return
		}
	}
}
