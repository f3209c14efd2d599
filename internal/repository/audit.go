package repository

import (
	"context"
	"encoding/json"
	"time"

	"invsync/internal/canonical"
)

// AuditRow mirrors the append-only `inventory_audit` table (spec §3).
type AuditRow struct {
	ID          int64
	ProductID   string
	OldQuantity *int64
	NewQuantity int64
	Source      canonical.Source
	ChangedAt   time.Time
	Metadata    map[string]any
}

const defaultAuditLimit = 50

// GetAudit returns up to limit audit rows for a product, most recent
// first (spec §4.B). limit <= 0 falls back to the spec default of 50.
func (s *Store) GetAudit(ctx context.Context, productID string, limit int) ([]AuditRow, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, old_quantity, new_quantity, source, changed_at, metadata
		FROM inventory_audit
		WHERE product_id = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, classify("repository.GetAudit", err)
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var row AuditRow
		var metaJSON []byte
		if err := rows.Scan(&row.ID, &row.ProductID, &row.OldQuantity, &row.NewQuantity, &row.Source, &row.ChangedAt, &metaJSON); err != nil {
			return nil, classify("repository.GetAudit", err)
		}
		_ = json.Unmarshal(metaJSON, &row.Metadata)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("repository.GetAudit", err)
	}
	return out, nil
}
