package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"invsync/internal/canonical"
	"invsync/internal/core"
)

// InventoryRow mirrors the persisted `inventory` table (spec §3).
type InventoryRow struct {
	ID          int64
	ProductID   string
	Quantity    int64
	Source      canonical.Source
	WarehouseID string
	UpdatedAt   string
	CreatedAt   time.Time
	Metadata    map[string]any
}

// Postgres error codes this repository classifies (spec §4.B step 5).
const (
	pqCodeUniqueViolation = "23505"
	pqCodeCheckViolation  = "23514"
	pqCodeSerialization   = "40001"
	pqCodeDeadlock        = "40P01"
)

// classify turns a driver error into the taxonomy spec.md §7 requires.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqCodeUniqueViolation, pqCodeCheckViolation:
			return core.New(core.KindPermanentStorage, op, err)
		case pqCodeSerialization, pqCodeDeadlock:
			return core.New(core.KindTransientStorage, op, err)
		}
	}
	// Connection failures, context deadlines, etc. are retriable.
	return core.New(core.KindTransientStorage, op, err)
}

// Upsert executes the ordered five-step transaction from spec §4.B:
// reserve the existing row, read old_quantity, upsert the inventory row,
// insert the paired audit row, commit.
func (s *Store) Upsert(ctx context.Context, rec canonical.Record) (InventoryRow, error) {
	if err := rec.Validate(); err != nil {
		return InventoryRow{}, core.New(core.KindBadPayload, "repository.Upsert", err)
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return InventoryRow{}, core.New(core.KindTransientStorage, "repository.Upsert", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	// Step 1 + 2: reserve the existing row (if any) and read old_quantity.
	var oldQuantity sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM inventory
		WHERE product_id = $1 AND source = $2
		FOR UPDATE
	`, rec.ProductID, string(rec.Source)).Scan(&oldQuantity)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return InventoryRow{}, classify("repository.Upsert.reserve", err)
	}

	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return InventoryRow{}, core.New(core.KindBadPayload, "repository.Upsert", err)
	}

	// Step 3: unconditional insert-or-update (no LWW comparison, spec §4.B).
	var row InventoryRow
	err = tx.QueryRowContext(ctx, `
		INSERT INTO inventory (product_id, quantity, source, warehouse_id, updated_at, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
		ON CONFLICT (product_id, source) DO UPDATE SET
			quantity     = EXCLUDED.quantity,
			warehouse_id = EXCLUDED.warehouse_id,
			updated_at   = EXCLUDED.updated_at,
			metadata     = EXCLUDED.metadata
		RETURNING id, product_id, quantity, source, warehouse_id, updated_at, created_at, metadata
	`, rec.ProductID, rec.Quantity, string(rec.Source), rec.WarehouseID, rec.UpdatedAt, metaJSON).Scan(
		&row.ID, &row.ProductID, &row.Quantity, &row.Source, &row.WarehouseID, &row.UpdatedAt, &row.CreatedAt, &metaJSON,
	)
	if err != nil {
		return InventoryRow{}, classify("repository.Upsert.write", err)
	}
	_ = json.Unmarshal(metaJSON, &row.Metadata)

	// Step 4: paired audit row, merging warehouse_id into metadata.
	auditMeta := mergeMetadata(rec.Metadata, rec.WarehouseID)
	auditMetaJSON, err := json.Marshal(auditMeta)
	if err != nil {
		return InventoryRow{}, core.New(core.KindBadPayload, "repository.Upsert", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_audit (product_id, old_quantity, new_quantity, source, changed_at, metadata)
		VALUES ($1, $2, $3, $4, now(), $5)
	`, rec.ProductID, nullableInt(oldQuantity), rec.Quantity, string(rec.Source), auditMetaJSON)
	if err != nil {
		return InventoryRow{}, classify("repository.Upsert.audit", err)
	}

	// Step 5: commit.
	if err := tx.Commit(); err != nil {
		return InventoryRow{}, classify("repository.Upsert.commit", err)
	}

	return row, nil
}

func nullableInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func mergeMetadata(meta map[string]any, warehouseID string) map[string]any {
	merged := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		merged[k] = v
	}
	if warehouseID != "" {
		merged["warehouse_id"] = warehouseID
	}
	return merged
}

// GetByProduct returns every source's row for a product, ordered by source
// (spec §4.B).
func (s *Store) GetByProduct(ctx context.Context, productID string) ([]InventoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, quantity, source, warehouse_id, updated_at, created_at, metadata
		FROM inventory
		WHERE product_id = $1
		ORDER BY source
	`, productID)
	if err != nil {
		return nil, classify("repository.GetByProduct", err)
	}
	defer rows.Close()

	var out []InventoryRow
	for rows.Next() {
		var row InventoryRow
		var metaJSON []byte
		if err := rows.Scan(&row.ID, &row.ProductID, &row.Quantity, &row.Source, &row.WarehouseID, &row.UpdatedAt, &row.CreatedAt, &metaJSON); err != nil {
			return nil, classify("repository.GetByProduct", err)
		}
		_ = json.Unmarshal(metaJSON, &row.Metadata)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("repository.GetByProduct", err)
	}
	return out, nil
}
