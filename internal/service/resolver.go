// Package service implements the vendor resolution engine: the
// orchestrating state machine, the arbitration policy, self-healing
// enrichment and the vendor master importer.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/apflow/vendormatch/internal/llm"
	"github.com/apflow/vendormatch/internal/normalize"
	"github.com/apflow/vendormatch/internal/resolve"
)

// IdentifierIndex is the exact-identifier lookup against the vendor store.
type IdentifierIndex interface {
	GetByTaxID(ctx context.Context, tenantID, taxID string) (*resolve.VendorRecord, error)
}

// CandidateRetriever finds candidate records for a mention name.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, tenantID, name, country string, topK int) ([]resolve.Candidate, error)
}

// Updater applies additive mutations to a matched record.
type Updater interface {
	Apply(ctx context.Context, tenantID, vendorID string, m resolve.Mutations) error
}

// Resolver sequences the resolution stages as a short-circuiting state
// machine: gate check, hard match, retrieval, arbitration, self-healing.
// One call resolves one mention; calls are independent and safe to run
// concurrently.
type Resolver struct {
	Index      IdentifierIndex
	Retriever  CandidateRetriever
	Classifier llm.EntityClassifier // optional
	Arbiter    *Arbiter
	Healer     Updater

	TopK            int
	StoreTimeout    time.Duration
	RetrieveTimeout time.Duration
	ClassifyTimeout time.Duration
	Log             zerolog.Logger
}

const (
	defaultTopK         = 5
	defaultStageTimeout = 15 * time.Second
)

// Resolve produces one fully-populated verdict per mention. Expected
// degraded conditions (store down, oracle down) never surface as errors;
// an error is returned only for caller mistakes such as a missing tenant.
func (r *Resolver) Resolve(ctx context.Context, m resolve.VendorMention) (resolve.ResolutionVerdict, error) {
	if m.TenantID == "" {
		return resolve.ResolutionVerdict{}, fmt.Errorf("resolve: mention without tenant id")
	}

	// A mention with neither name nor identifier can never match anything.
	if m.Empty() {
		return r.done(m, resolve.ResolutionVerdict{
			Verdict:    resolve.VerdictNewVendor,
			Confidence: 0.0,
			Reasoning:  "mention carries neither a name nor an identifier",
			Risk:       resolve.RiskLow,
			Method:     resolve.MethodNewVendor,
		}), nil
	}

	cls := r.gateCheck(ctx, m)
	if cls != nil && cls.EntityType.NonVendor() {
		return r.done(m, resolve.ResolutionVerdict{
			Verdict:    resolve.VerdictInvalidVendor,
			Confidence: cls.Band.Confidence(),
			Reasoning:  fmt.Sprintf("classified as %s: %s", cls.EntityType, cls.Reasoning),
			Risk:       gateRisk(cls.Band),
			Method:     resolve.MethodGateRejected,
		}), nil
	}

	if v, ok := r.hardMatch(ctx, m); ok {
		return r.done(m, v), nil
	}

	cands := r.retrieve(ctx, m)
	if len(cands) == 0 {
		return r.done(m, resolve.ResolutionVerdict{
			Verdict:    resolve.VerdictNewVendor,
			Confidence: 0.0,
			Reasoning:  "no candidate vendor resembles the mention",
			Risk:       resolve.RiskNone,
			Method:     resolve.MethodNewVendor,
		}), nil
	}

	verdict := r.Arbiter.Arbitrate(ctx, m, cands, cls)

	if verdict.Verdict == resolve.VerdictMatch && !verdict.Mutations.Empty() {
		if err := r.Healer.Apply(ctx, m.TenantID, verdict.VendorID, verdict.Mutations); err != nil {
			r.Log.Warn().Err(err).Str("tenant_id", m.TenantID).Str("vendor_id", verdict.VendorID).
				Msg("self-healing failed, match verdict unaffected")
		}
	}
	return r.done(m, verdict), nil
}

// gateCheck classifies the mention when a classifier is wired. Classifier
// failure is logged and ignored: the gate is an optimization against
// polluting the vendor master, not a required stage.
func (r *Resolver) gateCheck(ctx context.Context, m resolve.VendorMention) *resolve.Classification {
	if r.Classifier == nil || m.RawName == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.stageTimeout(r.ClassifyTimeout))
	defer cancel()

	resp, err := r.Classifier.Classify(ctx, llm.ClassifyRequest{Mention: mentionInput(m)})
	if err != nil {
		r.Log.Warn().Err(err).Str("tenant_id", m.TenantID).Msg("entity classifier unavailable, gate skipped")
		return nil
	}
	cls := resolve.Classification{
		EntityType: resolve.EntityType(resp.EntityType),
		Band:       resolve.ConfidenceBand(resp.ConfidenceBand),
		Reasoning:  resp.Reasoning,
	}
	switch cls.Band {
	case resolve.BandHigh, resolve.BandMedium, resolve.BandLow:
	default:
		cls.Band = resolve.BandLow
	}
	return &cls
}

// hardMatch is the identifier index stage. Exact identifier evidence is
// unconditionally authoritative over name spelling; a store failure is a
// miss, not an error.
func (r *Resolver) hardMatch(ctx context.Context, m resolve.VendorMention) (resolve.ResolutionVerdict, bool) {
	if normalize.TaxID(m.TaxID) == "" {
		return resolve.ResolutionVerdict{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, r.stageTimeout(r.StoreTimeout))
	defer cancel()

	rec, err := r.Index.GetByTaxID(ctx, m.TenantID, m.TaxID)
	if err != nil {
		r.Log.Warn().Err(err).Str("tenant_id", m.TenantID).Msg("identifier index unavailable, falling through")
		return resolve.ResolutionVerdict{}, false
	}
	if rec == nil {
		return resolve.ResolutionVerdict{}, false
	}
	return resolve.ResolutionVerdict{
		Verdict:    resolve.VerdictMatch,
		VendorID:   rec.ID,
		Confidence: 1.0,
		Reasoning:  "registration identifier matches " + rec.CanonicalName,
		Risk:       resolve.RiskNone,
		Method:     resolve.MethodTaxIDHardMatch,
	}, true
}

func (r *Resolver) retrieve(ctx context.Context, m resolve.VendorMention) []resolve.Candidate {
	if m.RawName == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.stageTimeout(r.RetrieveTimeout))
	defer cancel()

	topK := r.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	cands, err := r.Retriever.Retrieve(ctx, m.TenantID, m.RawName, m.Country, topK)
	if err != nil {
		r.Log.Warn().Err(err).Str("tenant_id", m.TenantID).Msg("candidate retrieval unavailable, treating as empty")
		return nil
	}
	return cands
}

func (r *Resolver) done(m resolve.VendorMention, v resolve.ResolutionVerdict) resolve.ResolutionVerdict {
	r.Log.Info().
		Str("tenant_id", m.TenantID).
		Str("verdict", string(v.Verdict)).
		Str("method", string(v.Method)).
		Str("vendor_id", v.VendorID).
		Float64("confidence", v.Confidence).
		Str("risk", string(v.Risk)).
		Msg("mention resolved")
	return v
}

func (r *Resolver) stageTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultStageTimeout
	}
	return d
}

func gateRisk(b resolve.ConfidenceBand) resolve.Risk {
	switch b {
	case resolve.BandHigh:
		return resolve.RiskLow
	case resolve.BandMedium:
		return resolve.RiskMedium
	default:
		return resolve.RiskHigh
	}
}
