package search

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apflow/vendormatch/internal/database"
	"github.com/apflow/vendormatch/internal/database/repository"
	"github.com/apflow/vendormatch/internal/logging"
	"github.com/apflow/vendormatch/internal/resolve"
)

// stubEmbedder returns fixed vectors per canonical text and counts calls.
type stubEmbedder struct {
	vectors map[string][]float32
	fail    bool
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.fail {
		return nil, fmt.Errorf("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := s.vectors[t]
		if !ok {
			vec = []float32{0, 0, 1}
		}
		out[i] = vec
	}
	return out, nil
}

func newTestRetriever(t *testing.T, emb *stubEmbedder) (*Retriever, *repository.VendorRepo) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	vendors := repository.NewVendorRepo(db)
	r := &Retriever{
		Vendors:    vendors,
		Embeddings: repository.NewEmbeddingRepo(db),
		Embedder:   emb,
		Model:      "stub-embed",
		Log:        logging.Nop(),
	}
	return r, vendors
}

func seedVendors(t *testing.T, vendors *repository.VendorRepo) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, vendors.Insert(ctx, resolve.VendorRecord{
		ID: "V001", TenantID: "t1", CanonicalName: "Acme Software, LLC",
	}))
	require.NoError(t, vendors.Insert(ctx, resolve.VendorRecord{
		ID: "V002", TenantID: "t1", CanonicalName: "Globex Industrial Ltd",
	}))
}

func TestRetrieveSemanticOrdering(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{vectors: map[string][]float32{
		"acme software":     {1, 0, 0},
		"globex industrial": {0, 1, 0},
		// query leans toward acme
		"acme sofware": {0.9, 0.1, 0},
	}}
	r, vendors := newTestRetriever(t, emb)
	seedVendors(t, vendors)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cands, err := r.Retrieve(ctx, "t1", "Acme Sofware", "", 5)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	require.Equal(t, "V001", cands[0].Record.ID)
	require.Greater(t, cands[0].Score, 0.9)
}

func TestRetrieveFallbackWhenSemanticFails(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{fail: true}
	r, vendors := newTestRetriever(t, emb)
	seedVendors(t, vendors)

	ctx := context.Background()
	cands, err := r.Retrieve(ctx, "t1", "Acme Software LLC", "", 5)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, "V001", cands[0].Record.ID)
}

func TestRetrieveFallbackPunctuationProperty(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{fail: true}
	r, vendors := newTestRetriever(t, emb)
	seedVendors(t, vendors)

	ctx := context.Background()
	a, err := r.Retrieve(ctx, "t1", "Acme Software, LLC", "", 5)
	require.NoError(t, err)
	b, err := r.Retrieve(ctx, "t1", "Acme Software LLC", "", 5)
	require.NoError(t, err)

	require.Equal(t, idsOf(a), idsOf(b))
}

func TestRetrieveEmptyStore(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{}
	r, _ := newTestRetriever(t, emb)

	cands, err := r.Retrieve(context.Background(), "t1", "Anything", "", 5)
	require.NoError(t, err)
	require.Empty(t, cands)
	require.Zero(t, emb.calls)
}

func TestReindexCachesAndSkipsFresh(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{vectors: map[string][]float32{}}
	r, vendors := newTestRetriever(t, emb)
	seedVendors(t, vendors)

	ctx := context.Background()
	n, err := r.Reindex(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// second pass: content hashes unchanged, nothing re-embedded
	emb.calls = 0
	n, err = r.Reindex(ctx, "t1")
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, emb.calls)
}

func idsOf(cands []resolve.Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Record.ID)
	}
	return out
}
