package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/apflow/vendormatch/internal/llm"
	"github.com/apflow/vendormatch/internal/normalize"
	"github.com/apflow/vendormatch/internal/resolve"
)

// Arbiter encodes the decision laws of the resolution policy. The strong,
// deterministic laws (identifier equality, corporate domain equality) are
// evaluated locally; only genuinely fuzzy cases are delegated to the
// oracle, whose output is treated as untrusted input and repaired against
// the verdict schema before anything downstream sees it.
type Arbiter struct {
	Oracle         llm.ArbitrationOracle
	MatchThreshold float64       // fuzzy MATCH below this degrades to AMBIGUOUS
	AmbiguousFloor float64       // anything below this degrades to NEW_VENDOR
	OracleTimeout  time.Duration // deadline for one oracle consultation
	Log            zerolog.Logger
}

const (
	defaultMatchThreshold = 0.70
	defaultAmbiguousFloor = 0.50

	// minimum name similarity for the corporate-domain law to fire
	domainLawNameFloor = 0.5
	domainLawConf      = 0.90

	// highest confidence an oracle MATCH may carry; 1.0 belongs to
	// identifier equality alone
	oracleConfidenceCap = 0.99
)

// Arbitrate produces exactly one verdict for a mention against its
// candidates. It never returns an error: oracle failure degrades to the
// non-destructive NEW_VENDOR branch.
func (a *Arbiter) Arbitrate(ctx context.Context, m resolve.VendorMention, cands []resolve.Candidate, cls *resolve.Classification) resolve.ResolutionVerdict {
	// Law 1: identifier equality beats everything, including name
	// spelling, and must never burn an oracle round-trip.
	if v, ok := a.identifierLaw(m, cands); ok {
		return v
	}
	// Law 2: corporate email domain plus name similarity. Generic
	// consumer domains are not evidence.
	if v, ok := a.domainLaw(m, cands); ok {
		return v
	}
	return a.consultOracle(ctx, m, cands, cls)
}

func (a *Arbiter) identifierLaw(m resolve.VendorMention, cands []resolve.Candidate) (resolve.ResolutionVerdict, bool) {
	taxID := normalize.TaxID(m.TaxID)
	for _, c := range cands {
		if taxID != "" {
			for _, id := range c.Record.TaxIDs {
				if normalize.TaxID(id) == taxID {
					return resolve.ResolutionVerdict{
						Verdict:    resolve.VerdictMatch,
						VendorID:   c.Record.ID,
						Confidence: 1.0,
						Reasoning:  "registration identifier equality with candidate " + c.Record.CanonicalName,
						Risk:       resolve.RiskNone,
						Mutations:  a.proposeAlias(m, c.Record),
						Method:     resolve.MethodTaxIDHardMatch,
					}, true
				}
			}
		}
		if m.BankAccountTail != "" {
			for _, tail := range c.Record.BankAccountTails {
				if tail == m.BankAccountTail {
					return resolve.ResolutionVerdict{
						Verdict:    resolve.VerdictMatch,
						VendorID:   c.Record.ID,
						Confidence: 1.0,
						Reasoning:  "bank account tail equality with candidate " + c.Record.CanonicalName,
						Risk:       resolve.RiskNone,
						Mutations:  a.proposeAlias(m, c.Record),
						Method:     resolve.MethodSemanticMatch,
					}, true
				}
			}
		}
	}
	return resolve.ResolutionVerdict{}, false
}

func (a *Arbiter) domainLaw(m resolve.VendorMention, cands []resolve.Candidate) (resolve.ResolutionVerdict, bool) {
	domain := normalize.Domain(m.EmailDomain)
	if domain == "" || normalize.GenericDomain(domain) {
		return resolve.ResolutionVerdict{}, false
	}
	for _, c := range cands {
		for _, d := range c.Record.Domains {
			if normalize.Domain(d) != domain {
				continue
			}
			if recordSimilarity(m.RawName, c.Record) < domainLawNameFloor {
				continue
			}
			return resolve.ResolutionVerdict{
				Verdict:    resolve.VerdictMatch,
				VendorID:   c.Record.ID,
				Confidence: domainLawConf,
				Reasoning:  fmt.Sprintf("corporate domain %s matches candidate %s with similar name", domain, c.Record.CanonicalName),
				Risk:       resolve.RiskLow,
				Mutations:  a.proposeAlias(m, c.Record),
				Method:     resolve.MethodSemanticMatch,
			}, true
		}
	}
	return resolve.ResolutionVerdict{}, false
}

func (a *Arbiter) consultOracle(ctx context.Context, m resolve.VendorMention, cands []resolve.Candidate, cls *resolve.Classification) resolve.ResolutionVerdict {
	if a.OracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.OracleTimeout)
		defer cancel()
	}
	req := llm.ArbitrationRequest{
		Mention:    mentionInput(m),
		Candidates: make([]llm.CandidateInput, 0, len(cands)),
	}
	for _, c := range cands {
		req.Candidates = append(req.Candidates, llm.CandidateInput{
			VendorID:  c.Record.ID,
			Name:      c.Record.CanonicalName,
			Aliases:   c.Record.Aliases,
			Domains:   c.Record.Domains,
			TaxIDs:    c.Record.TaxIDs,
			Addresses: c.Record.Addresses,
			Countries: c.Record.Countries,
			Score:     c.Score,
		})
	}
	if cls != nil {
		req.Classification = &llm.ClassifyResponse{
			EntityType:     string(cls.EntityType),
			ConfidenceBand: string(cls.Band),
			Reasoning:      cls.Reasoning,
		}
	}

	resp, err := a.Oracle.Arbitrate(ctx, req)
	if err != nil {
		a.Log.Warn().Err(err).Str("tenant_id", m.TenantID).Msg("arbitration oracle unavailable, degrading to NEW_VENDOR")
		return resolve.ResolutionVerdict{
			Verdict:    resolve.VerdictNewVendor,
			Confidence: 0.0,
			Reasoning:  "arbitration oracle unavailable: " + err.Error(),
			Risk:       resolve.RiskLow,
			Method:     resolve.MethodNewVendor,
		}
	}
	return a.repair(m, resp, cands)
}

// repair validates the oracle's structured response against the verdict
// schema, clamping anything out of contract to the non-destructive
// branch. The oracle boundary is untrusted input.
func (a *Arbiter) repair(m resolve.VendorMention, resp llm.ArbitrationResponse, cands []resolve.Candidate) resolve.ResolutionVerdict {
	threshold := a.MatchThreshold
	if threshold <= 0 {
		threshold = defaultMatchThreshold
	}
	floor := a.AmbiguousFloor
	if floor <= 0 {
		floor = defaultAmbiguousFloor
	}

	v := resolve.ResolutionVerdict{
		Verdict:      resolve.Verdict(strings.ToUpper(strings.TrimSpace(resp.Verdict))),
		VendorID:     strings.TrimSpace(resp.VendorID),
		Confidence:   clampUnit(resp.Confidence),
		Reasoning:    resp.Reasoning,
		Risk:         resolve.Risk(strings.ToUpper(strings.TrimSpace(resp.Risk))),
		IsSubsidiary: resp.IsSubsidiary,
		Method:       resolve.MethodSemanticMatch,
		Mutations: resolve.Mutations{
			Alias:   strings.TrimSpace(resp.Mutations.Alias),
			Address: strings.TrimSpace(resp.Mutations.Address),
			Domain:  normalize.Domain(resp.Mutations.Domain),
		},
	}

	if !v.Verdict.Valid() {
		a.anomaly(m, "verdict outside enum: "+resp.Verdict)
		v.Verdict = resolve.VerdictNewVendor
		v.Confidence = 0.0
		v.Reasoning = fmt.Sprintf("oracle verdict %q coerced to NEW_VENDOR; original reasoning: %s", resp.Verdict, resp.Reasoning)
	}
	if !v.Risk.Valid() {
		a.anomaly(m, "risk outside enum: "+resp.Risk)
		v.Risk = resolve.RiskMedium
	}

	if v.Verdict == resolve.VerdictMatch && !candidateExists(cands, v.VendorID) {
		a.anomaly(m, "MATCH names unknown vendor id: "+v.VendorID)
		v.Verdict = resolve.VerdictNewVendor
		v.VendorID = ""
		v.Confidence = 0.0
		v.Reasoning = "oracle matched a vendor outside the candidate set; " + v.Reasoning
	}

	// Confidence 1.0 is reserved for identifier equality, which is
	// decided locally and never delegated. An oracle claiming it is
	// presenting fuzzy evidence as a hard match.
	if v.Verdict == resolve.VerdictMatch && v.Confidence >= 1.0 {
		a.anomaly(m, "oracle claimed reserved confidence 1.0")
		v.Confidence = oracleConfidenceCap
	}

	// Confidence semantics: fuzzy MATCH needs the threshold; below the
	// floor nothing is worth a human review queue entry.
	if v.Verdict == resolve.VerdictMatch && v.Confidence < threshold {
		a.Log.Info().Str("tenant_id", m.TenantID).Float64("confidence", v.Confidence).
			Msg("fuzzy match below threshold degraded to AMBIGUOUS")
		v.Verdict = resolve.VerdictAmbiguous
	}
	if (v.Verdict == resolve.VerdictMatch || v.Verdict == resolve.VerdictAmbiguous) && v.Confidence < floor {
		v.Verdict = resolve.VerdictNewVendor
	}

	if v.Verdict != resolve.VerdictMatch {
		v.VendorID = ""
		v.Mutations = resolve.Mutations{}
	}
	if v.Verdict == resolve.VerdictNewVendor {
		v.Method = resolve.MethodNewVendor
	}
	if v.Reasoning == "" {
		v.Reasoning = "oracle returned no reasoning"
	}
	return v
}

func (a *Arbiter) proposeAlias(m resolve.VendorMention, rec resolve.VendorRecord) resolve.Mutations {
	raw := strings.TrimSpace(m.RawName)
	if raw == "" || normalize.Fold(raw) == normalize.Fold(rec.CanonicalName) {
		return resolve.Mutations{}
	}
	for _, alias := range rec.Aliases {
		if normalize.Fold(raw) == normalize.Fold(alias) {
			return resolve.Mutations{}
		}
	}
	return resolve.Mutations{Alias: raw}
}

func (a *Arbiter) anomaly(m resolve.VendorMention, detail string) {
	a.Log.Warn().Str("tenant_id", m.TenantID).Str("anomaly", detail).Msg("oracle schema violation repaired")
}

func mentionInput(m resolve.VendorMention) llm.MentionInput {
	return llm.MentionInput{
		RawName:         m.RawName,
		TaxID:           m.TaxID,
		Address:         m.Address,
		EmailDomain:     m.EmailDomain,
		Phone:           m.Phone,
		BankAccountTail: m.BankAccountTail,
		Country:         m.Country,
	}
}

func recordSimilarity(name string, rec resolve.VendorRecord) float64 {
	best := normalize.Similarity(name, rec.CanonicalName)
	for _, alias := range rec.Aliases {
		if s := normalize.Similarity(name, alias); s > best {
			best = s
		}
	}
	return best
}

func candidateExists(cands []resolve.Candidate, id string) bool {
	for _, c := range cands {
		if c.Record.ID == id {
			return true
		}
	}
	return false
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
