// Package core holds the error taxonomy shared across the pipeline.
//
// Every stage of the pipeline (adapters, repository, lock manager, queue,
// ingestion, worker) returns one of these kinds so that callers upstream
// can decide retry vs. terminal failure without inspecting strings.
package core

import "errors"

// Kind identifies which taxonomy bucket an error belongs to (spec §7).
type Kind string

const (
	KindBadSignature         Kind = "bad_signature"
	KindBadPayload           Kind = "bad_payload"
	KindLockUnavailable      Kind = "lock_unavailable"
	KindTransientStorage     Kind = "transient_storage"
	KindPermanentStorage     Kind = "permanent_storage"
	KindUpstreamUnavailable  Kind = "upstream_unavailable"
	KindCircuitOpen          Kind = "circuit_open"
	KindQueueUnavailable     Kind = "queue_unavailable"
)

// Error wraps an underlying cause with a taxonomy Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error tagged with kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or any error it wraps) carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Retriable reports whether the pipeline should hand the job back to the
// queue for another attempt (spec §7 propagation rules).
func Retriable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindLockUnavailable, KindTransientStorage, KindUpstreamUnavailable:
		return true
	default:
		return false
	}
}
