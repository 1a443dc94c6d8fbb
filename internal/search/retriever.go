// Package search implements candidate retrieval for the resolution
// engine: semantic nearest-neighbor over cached name embeddings, with a
// deterministic fuzzy fallback against the structured store.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/apflow/vendormatch/internal/database/repository"
	"github.com/apflow/vendormatch/internal/llm"
	"github.com/apflow/vendormatch/internal/normalize"
	"github.com/apflow/vendormatch/internal/resolve"
)

// Retriever finds candidate vendor records for a mention name. The
// semantic backend can fail open (empty result, no error), so every
// retrieval falls back to the structured store before giving up.
type Retriever struct {
	Vendors    *repository.VendorRepo
	Embeddings *repository.EmbeddingRepo
	Embedder   llm.Embedder
	Model      string
	Floor      float64 // minimum cosine score to qualify
	Log        zerolog.Logger
}

const defaultFloor = 0.55

// Retrieve returns up to topK candidates ordered by decreasing
// similarity. An empty result means the caller should treat the mention
// as a new vendor without arbitration.
func (r *Retriever) Retrieve(ctx context.Context, tenantID, name, country string, topK int) ([]resolve.Candidate, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	records, err := r.Vendors.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("search: list vendors: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	cands := r.semantic(ctx, tenantID, name, records, topK)
	if len(cands) == 0 {
		cands, err = r.fallback(ctx, tenantID, name, topK)
		if err != nil {
			return nil, err
		}
	}
	if country != "" {
		preferCountry(cands, country)
	}
	return cands, nil
}

// Reindex backfills or refreshes the embedding cache for a tenant and
// returns the number of vectors written.
func (r *Retriever) Reindex(ctx context.Context, tenantID string) (int, error) {
	records, err := r.Vendors.List(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return r.ensureEmbeddings(ctx, tenantID, records)
}

// semantic runs the embedding path. Any failure is logged and reported
// as an empty result so the deterministic fallback takes over.
func (r *Retriever) semantic(ctx context.Context, tenantID, name string, records []resolve.VendorRecord, topK int) []resolve.Candidate {
	if r.Embedder == nil || r.Embeddings == nil {
		return nil
	}
	if _, err := r.ensureEmbeddings(ctx, tenantID, records); err != nil {
		r.Log.Warn().Err(err).Str("tenant_id", tenantID).Msg("embedding backfill failed, falling back")
		return nil
	}
	cached, err := r.Embeddings.ForTenant(ctx, tenantID, r.Model)
	if err != nil {
		r.Log.Warn().Err(err).Str("tenant_id", tenantID).Msg("embedding cache read failed, falling back")
		return nil
	}

	queryVecs, err := r.Embedder.Embed(ctx, []string{normalize.Name(name)})
	if err != nil || len(queryVecs) != 1 {
		r.Log.Warn().Err(err).Str("tenant_id", tenantID).Msg("query embedding failed, falling back")
		return nil
	}

	floor := r.Floor
	if floor <= 0 {
		floor = defaultFloor
	}
	var cands []resolve.Candidate
	for _, rec := range records {
		e, ok := cached[rec.ID]
		if !ok {
			continue
		}
		score := cosine(queryVecs[0], e.Vector)
		if score >= floor {
			cands = append(cands, resolve.Candidate{Record: rec, Score: score})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
	if len(cands) > topK {
		cands = cands[:topK]
	}
	return cands
}

func (r *Retriever) fallback(ctx context.Context, tenantID, name string, topK int) ([]resolve.Candidate, error) {
	records, err := r.Vendors.FuzzySearch(ctx, tenantID, name, topK)
	if err != nil {
		return nil, fmt.Errorf("search: fuzzy fallback: %w", err)
	}
	cands := make([]resolve.Candidate, 0, len(records))
	for _, rec := range records {
		cands = append(cands, resolve.Candidate{Record: rec, Score: similarityToRecord(name, rec)})
	}
	return cands, nil
}

func (r *Retriever) ensureEmbeddings(ctx context.Context, tenantID string, records []resolve.VendorRecord) (int, error) {
	cached, err := r.Embeddings.ForTenant(ctx, tenantID, r.Model)
	if err != nil {
		return 0, err
	}

	var stale []resolve.VendorRecord
	var texts []string
	for _, rec := range records {
		hash := contentHash(rec)
		if e, ok := cached[rec.ID]; ok && e.ContentHash == hash {
			continue
		}
		stale = append(stale, rec)
		texts = append(texts, embeddingText(rec))
	}
	if len(stale) == 0 {
		return 0, nil
	}

	vecs, err := r.Embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vecs) != len(stale) {
		return 0, fmt.Errorf("search: embedder returned %d vectors for %d records", len(vecs), len(stale))
	}
	for i, rec := range stale {
		if err := r.Embeddings.Upsert(ctx, repository.VendorEmbedding{
			VendorID:    rec.ID,
			Model:       r.Model,
			ContentHash: contentHash(rec),
			Vector:      vecs[i],
		}); err != nil {
			return i, err
		}
	}
	return len(stale), nil
}

// embeddingText is what gets embedded per vendor: canonical name plus
// known aliases, all canonicalized.
func embeddingText(rec resolve.VendorRecord) string {
	parts := []string{normalize.Name(rec.CanonicalName)}
	for _, a := range rec.Aliases {
		parts = append(parts, normalize.Name(a))
	}
	return strings.Join(parts, "; ")
}

func contentHash(rec resolve.VendorRecord) string {
	sum := sha256.Sum256([]byte(embeddingText(rec)))
	return hex.EncodeToString(sum[:])
}

func similarityToRecord(name string, rec resolve.VendorRecord) float64 {
	best := normalize.Similarity(name, rec.CanonicalName)
	for _, a := range rec.Aliases {
		if s := normalize.Similarity(name, a); s > best {
			best = s
		}
	}
	return best
}

// preferCountry stably bubbles candidates sharing the mention's country
// ahead of candidates registered elsewhere. Candidates with no recorded
// country are left in place.
func preferCountry(cands []resolve.Candidate, country string) {
	sort.SliceStable(cands, func(i, j int) bool {
		return countryRank(cands[i].Record, country) < countryRank(cands[j].Record, country)
	})
}

func countryRank(rec resolve.VendorRecord, country string) int {
	if len(rec.Countries) == 0 {
		return 1
	}
	for _, c := range rec.Countries {
		if strings.EqualFold(c, country) {
			return 0
		}
	}
	return 2
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
