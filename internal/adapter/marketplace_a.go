package adapter

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"invsync/internal/canonical"
)

// MarketplaceA maps push-webhook payloads shaped like:
//
//	{"product_code":"...","available_stock":50,"warehouse":"...",
//	 "timestamp":"2026-01-01T10:00:00Z","metadata":{...}}
type MarketplaceA struct{}

type marketplaceAPayload struct {
	ProductCode    string         `json:"product_code"`
	AvailableStock *int64         `json:"available_stock"`
	Warehouse      string         `json:"warehouse"`
	Timestamp      string         `json:"timestamp"`
	Metadata       map[string]any `json:"metadata"`
}

func (MarketplaceA) Transform(raw json.RawMessage) (canonical.Record, error) {
	var p marketplaceAPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return canonical.Record{}, fmt.Errorf("marketplace_a: invalid JSON: %w", err)
	}

	if p.ProductCode == "" {
		return canonical.Record{}, fmt.Errorf("marketplace_a: product_code is required")
	}
	if p.AvailableStock == nil {
		return canonical.Record{}, fmt.Errorf("marketplace_a: available_stock is required")
	}
	if p.Timestamp == "" {
		return canonical.Record{}, fmt.Errorf("marketplace_a: timestamp is required")
	}

	rec := canonical.Record{
		ProductID:   p.ProductCode,
		Quantity:    *p.AvailableStock,
		Source:      canonical.SourceMarketplaceA,
		WarehouseID: p.Warehouse,
		UpdatedAt:   p.Timestamp, // passed through as-is, spec I5
		Metadata:    p.Metadata,
	}

	if err := rec.Validate(); err != nil {
		return canonical.Record{}, fmt.Errorf("marketplace_a: %w", err)
	}
	return rec, nil
}

func (a MarketplaceA) TransformBatch(raw []json.RawMessage, log *slog.Logger) []canonical.Record {
	return transformBatch(a, raw, log)
}
