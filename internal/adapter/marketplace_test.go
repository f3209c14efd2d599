package adapter

import (
	"encoding/json"
	"testing"
)

func TestMarketplaceATransform(t *testing.T) {
	raw := json.RawMessage(`{"product_code":"PROD-ABC-123","available_stock":50,"timestamp":"2026-01-01T10:00:00Z","warehouse":"WH-NY-01"}`)

	rec, err := MarketplaceA{}.Transform(raw)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if rec.ProductID != "PROD-ABC-123" {
		t.Errorf("ProductID = %q", rec.ProductID)
	}
	if rec.Quantity != 50 {
		t.Errorf("Quantity = %d", rec.Quantity)
	}
	if rec.WarehouseID != "WH-NY-01" {
		t.Errorf("WarehouseID = %q", rec.WarehouseID)
	}
	if rec.UpdatedAt != "2026-01-01T10:00:00Z" {
		t.Errorf("UpdatedAt = %q, want byte-exact passthrough", rec.UpdatedAt)
	}
	if rec.Source != "marketplace_a" {
		t.Errorf("Source = %q", rec.Source)
	}
}

func TestMarketplaceATransformBadPayload(t *testing.T) {
	tests := []json.RawMessage{
		json.RawMessage(`{"available_stock":50,"timestamp":"2026-01-01T10:00:00Z"}`),    // missing product_code
		json.RawMessage(`{"product_code":"X","timestamp":"2026-01-01T10:00:00Z"}`),      // missing available_stock
		json.RawMessage(`{"product_code":"X","available_stock":-1,"timestamp":"2026-01-01T10:00:00Z"}`), // negative qty
		json.RawMessage(`not json`),
	}
	for _, raw := range tests {
		if _, err := (MarketplaceA{}).Transform(raw); err == nil {
			t.Errorf("expected error for payload %s", raw)
		}
	}
}

func TestMarketplaceATransformBatchDropsFailures(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"product_code":"OK-1","available_stock":1,"timestamp":"2026-01-01T10:00:00Z"}`),
		json.RawMessage(`{"available_stock":1,"timestamp":"2026-01-01T10:00:00Z"}`), // bad
		json.RawMessage(`{"product_code":"OK-2","available_stock":2,"timestamp":"2026-01-01T10:00:00Z"}`),
	}
	out := (MarketplaceA{}).TransformBatch(items, nil)
	if len(out) != 2 {
		t.Fatalf("expected 2 surviving records, got %d", len(out))
	}
}

func TestMarketplaceBTransform(t *testing.T) {
	raw := json.RawMessage(`{"sku":"SKU1","qty":7,"location_id":"L","last_modified":1735689600}`)

	rec, err := MarketplaceB{}.Transform(raw)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if rec.ProductID != "SKU1" {
		t.Errorf("ProductID = %q", rec.ProductID)
	}
	if rec.Quantity != 7 {
		t.Errorf("Quantity = %d", rec.Quantity)
	}
	if rec.WarehouseID != "L" {
		t.Errorf("WarehouseID = %q", rec.WarehouseID)
	}
	if rec.UpdatedAt != "2025-01-01T00:00:00.000Z" {
		t.Errorf("UpdatedAt = %q, want 2025-01-01T00:00:00.000Z", rec.UpdatedAt)
	}
	if rec.Source != "marketplace_b" {
		t.Errorf("Source = %q", rec.Source)
	}
}

func TestMarketplaceBTransformBadPayload(t *testing.T) {
	tests := []json.RawMessage{
		json.RawMessage(`{"qty":7,"last_modified":1735689600}`),        // missing sku
		json.RawMessage(`{"sku":"X","last_modified":1735689600}`),      // missing qty
		json.RawMessage(`{"sku":"X","qty":-1,"last_modified":1735689600}`), // negative qty
	}
	for _, raw := range tests {
		if _, err := (MarketplaceB{}).Transform(raw); err == nil {
			t.Errorf("expected error for payload %s", raw)
		}
	}
}
