package repository

import "time"

// Attribute kinds stored in vendor_attributes. Values are normalized on
// write where a canonical form exists (tax ids, domains).
const (
	KindAlias           = "alias"
	KindTaxID           = "tax_id"
	KindDomain          = "domain"
	KindEmail           = "email"
	KindAddress         = "address"
	KindCountry         = "country"
	KindBankAccountTail = "bank_account_tail"
)

// Vendor statuses. Records are never hard-deleted, only flagged.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// VendorEmbedding is one cached name vector for a vendor, keyed by
// embedding model and invalidated by content hash.
type VendorEmbedding struct {
	VendorID    string
	Model       string
	ContentHash string
	Vector      []float32
	UpdatedAt   time.Time
}
