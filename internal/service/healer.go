package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/apflow/vendormatch/internal/database/repository"
	"github.com/apflow/vendormatch/internal/resolve"
)

// Healer applies additive-only enrichments to a matched vendor record.
// Enrichment is best-effort: a failure is logged but never rolls back the
// already-successful match.
type Healer struct {
	Vendors *repository.VendorRepo
	Log     zerolog.Logger
}

// Apply appends each proposed value to the vendor's attribute sets.
// Re-applying an identical mutation is a no-op; the UNIQUE constraint on
// the attribute table guarantees it. last_updated moves in the same
// transaction as each append.
func (h *Healer) Apply(ctx context.Context, tenantID, vendorID string, m resolve.Mutations) error {
	var firstErr error
	apply := func(kind, value string) {
		if value == "" {
			return
		}
		if err := h.Vendors.AppendAttribute(ctx, tenantID, vendorID, kind, value); err != nil {
			h.Log.Warn().Err(err).
				Str("tenant_id", tenantID).
				Str("vendor_id", vendorID).
				Str("kind", kind).
				Msg("self-healing mutation failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	apply(repository.KindAlias, m.Alias)
	apply(repository.KindAddress, m.Address)
	apply(repository.KindDomain, m.Domain)
	return firstErr
}
