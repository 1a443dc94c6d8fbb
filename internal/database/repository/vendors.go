package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/apflow/vendormatch/internal/database"
	"github.com/apflow/vendormatch/internal/normalize"
	"github.com/apflow/vendormatch/internal/resolve"
)

// VendorRepo handles vendor master records. Every query is scoped by
// tenant; a record is never visible outside its owner.
type VendorRepo struct {
	db *sql.DB
}

func NewVendorRepo(db *sql.DB) *VendorRepo { return &VendorRepo{db: db} }

// Insert stores a new vendor record together with its attribute sets.
func (r *VendorRepo) Insert(ctx context.Context, v resolve.VendorRecord) error {
	if v.TenantID == "" {
		return fmt.Errorf("vendors: insert without tenant id")
	}
	custom, err := json.Marshal(v.CustomAttributes)
	if err != nil {
		return fmt.Errorf("vendors: marshal custom attributes: %w", err)
	}
	status := v.Status
	if status == "" {
		status = StatusActive
	}
	source := v.SourceSystem
	if source == "" {
		source = "manual"
	}
	normalized := v.NormalizedName
	if normalized == "" {
		normalized = normalize.Name(v.CanonicalName)
	}
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO vendors(id, tenant_id, canonical_name, normalized_name, source_system, status, custom_attributes, created_at, last_updated)
		VALUES(?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		`, v.ID, v.TenantID, v.CanonicalName, normalized, source, status, string(custom))
		if err != nil {
			return err
		}
		for kind, values := range map[string][]string{
			KindAlias:           v.Aliases,
			KindTaxID:           normalizeAll(v.TaxIDs, normalize.TaxID),
			KindDomain:          normalizeAll(v.Domains, normalize.Domain),
			KindEmail:           v.Emails,
			KindAddress:         v.Addresses,
			KindCountry:         v.Countries,
			KindBankAccountTail: v.BankAccountTails,
		} {
			for _, value := range values {
				if strings.TrimSpace(value) == "" {
					continue
				}
				if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO vendor_attributes(vendor_id, kind, value) VALUES(?, ?, ?)
				`, v.ID, kind, value); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Get loads one vendor with all attribute sets. Returns nil when the id
// does not exist under the tenant.
func (r *VendorRepo) Get(ctx context.Context, tenantID, id string) (*resolve.VendorRecord, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, tenant_id, canonical_name, normalized_name, source_system, status, custom_attributes, created_at, last_updated
	FROM vendors WHERE tenant_id = ? AND id = ?
	`, tenantID, id)
	return r.scanOne(ctx, row)
}

// GetByTaxID is the identifier index: exact lookup of a normalized
// tax/registration id. Empty or sentinel ids always miss.
func (r *VendorRepo) GetByTaxID(ctx context.Context, tenantID, taxID string) (*resolve.VendorRecord, error) {
	norm := normalize.TaxID(taxID)
	if norm == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `
	SELECT v.id, v.tenant_id, v.canonical_name, v.normalized_name, v.source_system, v.status, v.custom_attributes, v.created_at, v.last_updated
	FROM vendors v
	JOIN vendor_attributes a ON a.vendor_id = v.id
	WHERE v.tenant_id = ? AND v.status = ? AND a.kind = ? AND a.value = ?
	LIMIT 1
	`, tenantID, StatusActive, KindTaxID, norm)
	return r.scanOne(ctx, row)
}

// FuzzySearch is the deterministic retrieval fallback: substring match on
// suffix-stripped normalized names and aliases, ranked by levenshtein
// ratio. Punctuation variants of the same name produce the same set.
func (r *VendorRepo) FuzzySearch(ctx context.Context, tenantID, name string, limit int) ([]resolve.VendorRecord, error) {
	norm := normalize.Name(name)
	if norm == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	// The reverse-containment arm requires a minimum name length so that
	// a vendor with a tiny normalized name cannot qualify against every
	// query that happens to contain it.
	rows, err := r.db.QueryContext(ctx, `
	SELECT DISTINCT v.id
	FROM vendors v
	LEFT JOIN vendor_attributes a ON a.vendor_id = v.id AND a.kind = ?
	WHERE v.tenant_id = ? AND v.status = ?
	  AND (v.normalized_name LIKE '%' || ? || '%'
	       OR (length(v.normalized_name) >= 4 AND ? LIKE '%' || v.normalized_name || '%')
	       OR lower(a.value) LIKE '%' || ? || '%')
	`, KindAlias, tenantID, StatusActive, norm, norm, norm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]resolve.VendorRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return bestSimilarity(name, records[i]) > bestSimilarity(name, records[j])
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// List returns all active vendors for a tenant, attribute sets included.
func (r *VendorRepo) List(ctx context.Context, tenantID string) ([]resolve.VendorRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id FROM vendors WHERE tenant_id = ? AND status = ? ORDER BY canonical_name
	`, tenantID, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]resolve.VendorRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// FindByNormalizedName returns the vendor whose normalized name equals
// the normalized form of name, if any. Used by the importer for dedupe.
func (r *VendorRepo) FindByNormalizedName(ctx context.Context, tenantID, name string) (*resolve.VendorRecord, error) {
	norm := normalize.Name(name)
	if norm == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `
	SELECT id, tenant_id, canonical_name, normalized_name, source_system, status, custom_attributes, created_at, last_updated
	FROM vendors WHERE tenant_id = ? AND normalized_name = ? LIMIT 1
	`, tenantID, norm)
	return r.scanOne(ctx, row)
}

// AppendAttribute adds one value to a vendor's attribute set and bumps
// last_updated in the same transaction. Re-appending an existing value is
// a no-op for the set but still counts as an observation, so the
// timestamp only moves when the set actually grew.
func (r *VendorRepo) AppendAttribute(ctx context.Context, tenantID, vendorID, kind, value string) error {
	switch kind {
	case KindTaxID:
		value = normalize.TaxID(value)
	case KindDomain:
		value = normalize.Domain(value)
	default:
		value = strings.TrimSpace(value)
	}
	if value == "" {
		return nil
	}
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT id FROM vendors WHERE tenant_id = ? AND id = ?`, tenantID, vendorID).Scan(&owner)
		if err == sql.ErrNoRows {
			return fmt.Errorf("vendors: %s not found for tenant", vendorID)
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO vendor_attributes(vendor_id, kind, value) VALUES(?, ?, ?)
		`, vendorID, kind, value)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			_, err = tx.ExecContext(ctx, `UPDATE vendors SET last_updated = CURRENT_TIMESTAMP WHERE id = ?`, vendorID)
		}
		return err
	})
}

// SetStatus flags a record; records are never deleted.
func (r *VendorRepo) SetStatus(ctx context.Context, tenantID, vendorID, status string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE vendors SET status = ?, last_updated = CURRENT_TIMESTAMP WHERE tenant_id = ? AND id = ?
	`, status, tenantID, vendorID)
	return err
}

func (r *VendorRepo) scanOne(ctx context.Context, row *sql.Row) (*resolve.VendorRecord, error) {
	var v resolve.VendorRecord
	var custom string
	err := row.Scan(&v.ID, &v.TenantID, &v.CanonicalName, &v.NormalizedName, &v.SourceSystem, &v.Status, &custom, &v.CreatedAt, &v.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if custom != "" {
		if err := json.Unmarshal([]byte(custom), &v.CustomAttributes); err != nil {
			return nil, fmt.Errorf("vendors: custom attributes for %s: %w", v.ID, err)
		}
	}
	if err := r.loadAttributes(ctx, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VendorRepo) loadAttributes(ctx context.Context, v *resolve.VendorRecord) error {
	rows, err := r.db.QueryContext(ctx, `
	SELECT kind, value FROM vendor_attributes WHERE vendor_id = ? ORDER BY kind, value
	`, v.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return err
		}
		switch kind {
		case KindAlias:
			v.Aliases = append(v.Aliases, value)
		case KindTaxID:
			v.TaxIDs = append(v.TaxIDs, value)
		case KindDomain:
			v.Domains = append(v.Domains, value)
		case KindEmail:
			v.Emails = append(v.Emails, value)
		case KindAddress:
			v.Addresses = append(v.Addresses, value)
		case KindCountry:
			v.Countries = append(v.Countries, value)
		case KindBankAccountTail:
			v.BankAccountTails = append(v.BankAccountTails, value)
		}
	}
	return rows.Err()
}

func bestSimilarity(name string, rec resolve.VendorRecord) float64 {
	best := normalize.Similarity(name, rec.CanonicalName)
	for _, alias := range rec.Aliases {
		if s := normalize.Similarity(name, alias); s > best {
			best = s
		}
	}
	return best
}

func normalizeAll(values []string, fn func(string) string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, fn(v))
	}
	return out
}
