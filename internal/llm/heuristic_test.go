package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristicClassify(t *testing.T) {
	t.Parallel()

	h := NewHeuristicProvider()
	ctx := context.Background()

	resp, err := h.Classify(ctx, ClassifyRequest{Mention: MentionInput{RawName: "PayPal Europe"}})
	require.NoError(t, err)
	require.Equal(t, "PAYMENT_PROCESSOR", resp.EntityType)
	require.Equal(t, "HIGH", resp.ConfidenceBand)

	resp, err = h.Classify(ctx, ClassifyRequest{Mention: MentionInput{RawName: "First National Bank"}})
	require.NoError(t, err)
	require.Equal(t, "BANK", resp.EntityType)

	resp, err = h.Classify(ctx, ClassifyRequest{Mention: MentionInput{RawName: "Acme Software LLC"}})
	require.NoError(t, err)
	require.Equal(t, "BUSINESS", resp.EntityType)
	require.Equal(t, "LOW", resp.ConfidenceBand)
}

func TestHeuristicArbitrateMatch(t *testing.T) {
	t.Parallel()

	h := NewHeuristicProvider()
	resp, err := h.Arbitrate(context.Background(), ArbitrationRequest{
		Mention: MentionInput{RawName: "Acme Software, LLC"},
		Candidates: []CandidateInput{
			{VendorID: "V001", Name: "Acme Software Inc"},
			{VendorID: "V002", Name: "Globex Industrial"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "MATCH", resp.Verdict)
	require.Equal(t, "V001", resp.VendorID)
	require.GreaterOrEqual(t, resp.Confidence, 0.85)
	require.Equal(t, "Acme Software, LLC", resp.Mutations.Alias)
}

func TestHeuristicArbitrateAmbiguousOnTie(t *testing.T) {
	t.Parallel()

	h := NewHeuristicProvider()
	resp, err := h.Arbitrate(context.Background(), ArbitrationRequest{
		Mention: MentionInput{RawName: "Acme Software"},
		Candidates: []CandidateInput{
			{VendorID: "V001", Name: "Acme Software LLC"},
			{VendorID: "V002", Name: "ACME Software Inc"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "AMBIGUOUS", resp.Verdict)
	require.Empty(t, resp.VendorID)
}

func TestHeuristicEmbedStable(t *testing.T) {
	t.Parallel()

	h := NewHeuristicProvider()
	vecs, err := h.Embed(context.Background(), []string{"Acme Software, LLC", "Acme Software LLC", "Globex"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	// punctuation variants canonicalize to identical vectors
	require.Equal(t, vecs[0], vecs[1])
}

func TestDecodeJSONStripsFences(t *testing.T) {
	t.Parallel()

	var out map[string]any
	require.NoError(t, decodeJSON("```json\n{\"a\": 1}\n```", &out))
	require.Equal(t, float64(1), out["a"])
	require.Error(t, decodeJSON("", &out))
}
