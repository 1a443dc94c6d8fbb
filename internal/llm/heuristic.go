package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/apflow/vendormatch/internal/normalize"
)

// HeuristicProvider is a lightweight, offline implementation of all three
// capabilities. It mimics the interface and failure behavior so the
// engine can run air-gapped and tests stay deterministic while real API
// wiring is configured separately.
type HeuristicProvider struct{}

func NewHeuristicProvider() *HeuristicProvider { return &HeuristicProvider{} }

var bankWords = []string{"bank", "banco", "banque", "credit union", "sparkasse", "bancorp"}
var processorWords = []string{"paypal", "stripe", "square", "adyen", "wise", "payoneer", "worldpay"}
var governmentWords = []string{"irs", "internal revenue", "treasury", "ministry of", "tax office", "hmrc", "finanzamt", "city of", "county of"}

// Classify applies keyword heuristics over the mention name. Anything it
// cannot place is a BUSINESS at LOW confidence, which the gate ignores.
func (h *HeuristicProvider) Classify(_ context.Context, req ClassifyRequest) (ClassifyResponse, error) {
	name := strings.ToLower(req.Mention.RawName)
	match := func(words []string) bool {
		for _, w := range words {
			if strings.Contains(name, w) {
				return true
			}
		}
		return false
	}
	switch {
	case match(processorWords):
		return ClassifyResponse{EntityType: "PAYMENT_PROCESSOR", ConfidenceBand: "HIGH", Reasoning: "name contains a known payment processor"}, nil
	case match(bankWords):
		return ClassifyResponse{EntityType: "BANK", ConfidenceBand: "MEDIUM", Reasoning: "name contains a banking term"}, nil
	case match(governmentWords):
		return ClassifyResponse{EntityType: "GOVERNMENT_ENTITY", ConfidenceBand: "MEDIUM", Reasoning: "name contains a government term"}, nil
	}
	return ClassifyResponse{EntityType: "BUSINESS", ConfidenceBand: "LOW", Reasoning: "no non-vendor signal in the name"}, nil
}

// Arbitrate scores candidates by name similarity. It intentionally errs
// toward AMBIGUOUS/NEW_VENDOR; the deterministic laws in the policy layer
// have already consumed the strong evidence by the time it runs.
func (h *HeuristicProvider) Arbitrate(_ context.Context, req ArbitrationRequest) (ArbitrationResponse, error) {
	if len(req.Candidates) == 0 {
		return ArbitrationResponse{Verdict: "NEW_VENDOR", Confidence: 0.8, Risk: "NONE", Reasoning: "no candidates supplied"}, nil
	}

	type scored struct {
		cand CandidateInput
		sim  float64
	}
	best := scored{}
	second := scored{}
	for _, c := range req.Candidates {
		sim := normalize.Similarity(req.Mention.RawName, c.Name)
		for _, alias := range c.Aliases {
			if s := normalize.Similarity(req.Mention.RawName, alias); s > sim {
				sim = s
			}
		}
		switch {
		case sim > best.sim:
			second = best
			best = scored{cand: c, sim: sim}
		case sim > second.sim:
			second = scored{cand: c, sim: sim}
		}
	}

	switch {
	case best.sim >= 0.85 && best.sim-second.sim < 0.05:
		return ArbitrationResponse{
			Verdict: "AMBIGUOUS", Confidence: 0.6, Risk: "MEDIUM",
			Reasoning: "two candidates are equally similar and nothing discriminates them",
		}, nil
	case best.sim >= 0.85:
		return ArbitrationResponse{
			Verdict: "MATCH", VendorID: best.cand.VendorID, Confidence: best.sim, Risk: "LOW",
			Reasoning: "name equivalence after normalization",
			Mutations: proposeAlias(req.Mention.RawName, best.cand),
		}, nil
	case best.sim >= 0.6:
		return ArbitrationResponse{
			Verdict: "AMBIGUOUS", Confidence: best.sim, Risk: "MEDIUM",
			Reasoning: "partial name similarity without corroborating evidence",
		}, nil
	}
	return ArbitrationResponse{Verdict: "NEW_VENDOR", Confidence: 1 - best.sim, Risk: "NONE", Reasoning: "no candidate is plausibly the same vendor"}, nil
}

func proposeAlias(rawName string, c CandidateInput) MutationsOutput {
	if normalize.Fold(rawName) == normalize.Fold(c.Name) {
		return MutationsOutput{}
	}
	for _, a := range c.Aliases {
		if normalize.Fold(rawName) == normalize.Fold(a) {
			return MutationsOutput{}
		}
	}
	return MutationsOutput{Alias: rawName}
}

const heuristicDims = 128

// Embed hashes character trigrams of the canonicalized text into a fixed
// dimension and L2-normalizes, so cosine over these vectors approximates
// lexical similarity.
func (h *HeuristicProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, heuristicDims)
		name := " " + normalize.Name(t) + " "
		for j := 0; j+3 <= len(name); j++ {
			f := fnv.New32a()
			_, _ = f.Write([]byte(name[j : j+3]))
			vec[f.Sum32()%heuristicDims]++
		}
		var sum float64
		for _, v := range vec {
			sum += float64(v) * float64(v)
		}
		if norm := math.Sqrt(sum); norm > 0 {
			for k := range vec {
				vec[k] = float32(float64(vec[k]) / norm)
			}
		}
		out[i] = vec
	}
	return out, nil
}
