// Package llm abstracts the externally-hosted language-model calls the
// engine depends on behind narrow capability interfaces, so the policy
// logic stays unit-testable independent of any provider.
package llm

import "context"

// EntityClassifier decides what kind of entity a mention names before
// any matching happens.
type EntityClassifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifyResponse, error)
}

// ArbitrationOracle adjudicates ambiguous matches. Its output is
// untrusted input: the caller validates and repairs every field.
type ArbitrationOracle interface {
	Arbitrate(ctx context.Context, req ArbitrationRequest) (ArbitrationResponse, error)
}

// Embedder turns vendor names into vectors for semantic retrieval.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// MentionInput is the mention as presented to the model.
type MentionInput struct {
	RawName         string `json:"raw_name"`
	TaxID           string `json:"tax_id,omitempty"`
	Address         string `json:"address,omitempty"`
	EmailDomain     string `json:"email_domain,omitempty"`
	Phone           string `json:"phone,omitempty"`
	BankAccountTail string `json:"bank_account_tail,omitempty"`
	Country         string `json:"country,omitempty"`
}

// CandidateInput is the projection of a vendor record shown to the model.
type CandidateInput struct {
	VendorID  string   `json:"vendor_id"`
	Name      string   `json:"name"`
	Aliases   []string `json:"aliases,omitempty"`
	Domains   []string `json:"domains,omitempty"`
	TaxIDs    []string `json:"tax_ids,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
	Countries []string `json:"countries,omitempty"`
	Score     float64  `json:"similarity"`
}

type ClassifyRequest struct {
	Mention MentionInput `json:"mention"`
}

type ClassifyResponse struct {
	EntityType     string `json:"entity_type"`
	ConfidenceBand string `json:"confidence_band"`
	Reasoning      string `json:"reasoning"`
}

type ArbitrationRequest struct {
	Mention        MentionInput      `json:"mention"`
	Candidates     []CandidateInput  `json:"candidates"`
	Classification *ClassifyResponse `json:"classification,omitempty"`
}

type MutationsOutput struct {
	Alias   string `json:"alias,omitempty"`
	Address string `json:"address,omitempty"`
	Domain  string `json:"domain,omitempty"`
}

// ArbitrationResponse mirrors the oracle's JSON schema. Field values are
// plain strings on purpose: enum validation happens at the policy
// boundary, never here.
type ArbitrationResponse struct {
	Verdict      string          `json:"verdict"`
	VendorID     string          `json:"vendor_id"`
	Confidence   float64         `json:"confidence"`
	Reasoning    string          `json:"reasoning"`
	Risk         string          `json:"risk"`
	Mutations    MutationsOutput `json:"mutations"`
	IsSubsidiary bool            `json:"is_subsidiary"`
}
