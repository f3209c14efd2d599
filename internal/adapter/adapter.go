// Package adapter normalizes source-specific marketplace payloads into
// canonical.Record (spec §4.A, §9 "Polymorphism over sources"). Each
// adapter is pure and stateless: no I/O, no shared state, safe to call
// from any goroutine.
package adapter

import (
	"encoding/json"
	"log/slog"

	"invsync/internal/canonical"
)

// Adapter is the capability set every marketplace source implements.
type Adapter interface {
	// Transform converts one raw payload into a canonical record, or
	// fails if required fields are missing, mistyped, or quantity is
	// negative. The error is a plain wrapped error; it carries no
	// core.Kind, so core.Is(err, core.KindBadPayload) is false for it.
	Transform(raw json.RawMessage) (canonical.Record, error)

	// TransformBatch converts many raw payloads. Individual failures are
	// dropped and logged; the batch itself never fails (spec §4.A).
	TransformBatch(raw []json.RawMessage, log *slog.Logger) []canonical.Record
}

// transformBatch is the shared drop-and-log loop used by both adapters.
func transformBatch(a Adapter, raw []json.RawMessage, log *slog.Logger) []canonical.Record {
	out := make([]canonical.Record, 0, len(raw))
	for i, item := range raw {
		rec, err := a.Transform(item)
		if err != nil {
			if log != nil {
				log.Warn("adapter: dropping unparseable item", "index", i, "error", err)
			}
			continue
		}
		out = append(out, rec)
	}
	return out
}
