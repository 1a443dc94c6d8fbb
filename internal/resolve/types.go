// Package resolve defines the domain types shared by the vendor
// resolution engine: mentions extracted from invoices, vendor master
// records, retrieval candidates and the verdict produced per mention.
package resolve

import "time"

// Verdict is the outcome of resolving one mention.
type Verdict string

const (
	VerdictMatch         Verdict = "MATCH"
	VerdictNewVendor     Verdict = "NEW_VENDOR"
	VerdictAmbiguous     Verdict = "AMBIGUOUS"
	VerdictInvalidVendor Verdict = "INVALID_VENDOR"
)

// Valid reports whether v is one of the known verdict values.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictMatch, VerdictNewVendor, VerdictAmbiguous, VerdictInvalidVendor:
		return true
	}
	return false
}

// Risk grades how much a verdict deserves operator attention.
type Risk string

const (
	RiskNone   Risk = "NONE"
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

// Valid reports whether r is one of the known risk values.
func (r Risk) Valid() bool {
	switch r {
	case RiskNone, RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Method tags how a verdict was reached, for audit.
type Method string

const (
	MethodTaxIDHardMatch Method = "TAX_ID_HARD_MATCH"
	MethodSemanticMatch  Method = "SEMANTIC_MATCH"
	MethodNewVendor      Method = "NEW_VENDOR"
	MethodGateRejected   Method = "GATE_REJECTED"
)

// EntityType classifies what kind of entity a mention names.
type EntityType string

const (
	EntityBusiness         EntityType = "BUSINESS"
	EntityBank             EntityType = "BANK"
	EntityPaymentProcessor EntityType = "PAYMENT_PROCESSOR"
	EntityGovernment       EntityType = "GOVERNMENT_ENTITY"
	EntityIndividual       EntityType = "INDIVIDUAL_PERSON"
	EntityUnknown          EntityType = "UNKNOWN"
)

// NonVendor reports whether the entity type must never enter the vendor
// master, regardless of how well its name matches an existing record.
func (e EntityType) NonVendor() bool {
	switch e {
	case EntityBank, EntityPaymentProcessor, EntityGovernment, EntityIndividual:
		return true
	}
	return false
}

// ConfidenceBand is the coarse certainty reported by the entity classifier.
type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "HIGH"
	BandMedium ConfidenceBand = "MEDIUM"
	BandLow    ConfidenceBand = "LOW"
)

// Confidence maps a band to the numeric confidence carried on gate verdicts.
func (b ConfidenceBand) Confidence() float64 {
	switch b {
	case BandHigh:
		return 0.95
	case BandMedium:
		return 0.75
	default:
		return 0.5
	}
}

// Classification is the optional upstream entity classification of a mention.
type Classification struct {
	EntityType EntityType
	Band       ConfidenceBand
	Reasoning  string
}

// VendorMention is the ephemeral vendor identification data extracted
// from a single invoice.
type VendorMention struct {
	RawName         string
	TaxID           string
	Address         string
	EmailDomain     string
	Phone           string
	BankAccountTail string
	Country         string
	TenantID        string
}

// Empty reports whether the mention carries neither a name nor an identifier.
func (m VendorMention) Empty() bool {
	return m.RawName == "" && m.TaxID == ""
}

// VendorRecord is a canonical vendor master record. Records are created
// outside the engine and never hard-deleted; the engine reads them and
// applies additive mutations only.
type VendorRecord struct {
	ID               string
	TenantID         string
	CanonicalName    string
	NormalizedName   string
	Aliases          []string
	TaxIDs           []string
	Emails           []string
	Domains          []string
	Addresses        []string
	Countries        []string
	BankAccountTails []string
	CustomAttributes map[string]string
	SourceSystem     string
	Status           string
	CreatedAt        time.Time
	LastUpdated      time.Time
}

// Candidate is a vendor record surfaced by retrieval, with the
// retriever's similarity score. Ordering is by decreasing score; the
// score scale is opaque to arbitration.
type Candidate struct {
	Record VendorRecord
	Score  float64
}

// Mutations are additive enrichments proposed for a matched vendor.
type Mutations struct {
	Alias   string `json:"alias,omitempty"`
	Address string `json:"address,omitempty"`
	Domain  string `json:"domain,omitempty"`
}

// Empty reports whether no enrichment was proposed.
func (m Mutations) Empty() bool {
	return m.Alias == "" && m.Address == "" && m.Domain == ""
}

// ResolutionVerdict is the auditable outcome of one resolution. All
// fields are always populated; VendorID is empty unless Verdict is MATCH.
type ResolutionVerdict struct {
	Verdict      Verdict   `json:"verdict"`
	VendorID     string    `json:"vendor_id,omitempty"`
	Confidence   float64   `json:"confidence"`
	Reasoning    string    `json:"reasoning"`
	Risk         Risk      `json:"risk"`
	Mutations    Mutations `json:"mutations"`
	IsSubsidiary bool      `json:"is_subsidiary"`
	Method       Method    `json:"method"`
}
