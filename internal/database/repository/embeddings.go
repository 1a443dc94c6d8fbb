package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// EmbeddingRepo caches vendor name vectors so retrieval does not
// re-embed unchanged names on every call.
type EmbeddingRepo struct {
	db *sql.DB
}

func NewEmbeddingRepo(db *sql.DB) *EmbeddingRepo { return &EmbeddingRepo{db: db} }

// Upsert stores or refreshes the cached vector for one vendor and model.
func (r *EmbeddingRepo) Upsert(ctx context.Context, e VendorEmbedding) error {
	vec, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("embeddings: marshal vector: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO vendor_embeddings(vendor_id, model, content_hash, vector, updated_at)
	VALUES(?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(vendor_id, model) DO UPDATE SET
	  content_hash = excluded.content_hash,
	  vector = excluded.vector,
	  updated_at = CURRENT_TIMESTAMP
	`, e.VendorID, e.Model, e.ContentHash, string(vec))
	return err
}

// ForTenant returns all cached vectors for a tenant's active vendors,
// keyed by vendor id.
func (r *EmbeddingRepo) ForTenant(ctx context.Context, tenantID, model string) (map[string]VendorEmbedding, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT e.vendor_id, e.model, e.content_hash, e.vector, e.updated_at
	FROM vendor_embeddings e
	JOIN vendors v ON v.id = e.vendor_id
	WHERE v.tenant_id = ? AND v.status = ? AND e.model = ?
	`, tenantID, StatusActive, model)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]VendorEmbedding)
	for rows.Next() {
		var e VendorEmbedding
		var vec string
		if err := rows.Scan(&e.VendorID, &e.Model, &e.ContentHash, &vec, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(vec), &e.Vector); err != nil {
			return nil, fmt.Errorf("embeddings: vector for %s: %w", e.VendorID, err)
		}
		out[e.VendorID] = e
	}
	return out, rows.Err()
}
