package adapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"invsync/internal/canonical"
)

// MarketplaceB maps polled-API payloads shaped like:
//
//	{"sku":"...","qty":7,"location_id":"...","last_modified":1735689600,
//	 "additional_info":{...}}
//
// last_modified is Unix seconds; it is converted to RFC3339 UTC via
// epoch_millis = last_modified * 1000 (spec §4.A).
type MarketplaceB struct{}

type marketplaceBPayload struct {
	SKU            string         `json:"sku"`
	Qty            *int64         `json:"qty"`
	LocationID     string         `json:"location_id"`
	LastModified   *int64         `json:"last_modified"`
	AdditionalInfo map[string]any `json:"additional_info"`
}

func (MarketplaceB) Transform(raw json.RawMessage) (canonical.Record, error) {
	var p marketplaceBPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return canonical.Record{}, fmt.Errorf("marketplace_b: invalid JSON: %w", err)
	}

	if p.SKU == "" {
		return canonical.Record{}, fmt.Errorf("marketplace_b: sku is required")
	}
	if p.Qty == nil {
		return canonical.Record{}, fmt.Errorf("marketplace_b: qty is required")
	}
	if p.LastModified == nil {
		return canonical.Record{}, fmt.Errorf("marketplace_b: last_modified is required")
	}

	epochMillis := *p.LastModified * 1000
	updatedAt := time.UnixMilli(epochMillis).UTC().Format("2006-01-02T15:04:05.000Z")

	rec := canonical.Record{
		ProductID:   p.SKU,
		Quantity:    *p.Qty,
		Source:      canonical.SourceMarketplaceB,
		WarehouseID: p.LocationID,
		UpdatedAt:   updatedAt,
		Metadata:    p.AdditionalInfo,
	}

	if err := rec.Validate(); err != nil {
		return canonical.Record{}, fmt.Errorf("marketplace_b: %w", err)
	}
	return rec, nil
}

func (b MarketplaceB) TransformBatch(raw []json.RawMessage, log *slog.Logger) []canonical.Record {
	return transformBatch(b, raw, log)
}
