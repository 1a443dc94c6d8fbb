package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apflow/vendormatch/internal/database"
	"github.com/apflow/vendormatch/internal/resolve"
)

func openTestDB(t *testing.T) *VendorRepo {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewVendorRepo(db)
}

func TestGetByTaxIDNormalizes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo := openTestDB(t)

	require.NoError(t, repo.Insert(ctx, resolve.VendorRecord{
		ID:            "V001",
		TenantID:      "t1",
		CanonicalName: "Acme Software LLC",
		TaxIDs:        []string{"de 123-456.789"},
	}))

	got, err := repo.GetByTaxID(ctx, "t1", "DE123456789")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "V001", got.ID)

	// dashes and spaces in the query side normalize away too
	got, err = repo.GetByTaxID(ctx, "t1", " de-123 456 789 ")
	require.NoError(t, err)
	require.NotNil(t, got)

	// sentinel never hits
	got, err = repo.GetByTaxID(ctx, "t1", "Unknown")
	require.NoError(t, err)
	require.Nil(t, got)

	// tenant scoping is mandatory
	got, err = repo.GetByTaxID(ctx, "t2", "DE123456789")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestAppendAttributeIdempotent(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo := openTestDB(t)

	require.NoError(t, repo.Insert(ctx, resolve.VendorRecord{
		ID:            "V001",
		TenantID:      "t1",
		CanonicalName: "Amazon Web Services",
	}))

	require.NoError(t, repo.AppendAttribute(ctx, "t1", "V001", KindAlias, "Amazon Web Srvcs"))
	require.NoError(t, repo.AppendAttribute(ctx, "t1", "V001", KindAlias, "Amazon Web Srvcs"))

	got, err := repo.Get(ctx, "t1", "V001")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, []string{"Amazon Web Srvcs"}, got.Aliases)
}

func TestAppendAttributeRejectsForeignTenant(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo := openTestDB(t)

	require.NoError(t, repo.Insert(ctx, resolve.VendorRecord{
		ID:            "V001",
		TenantID:      "t1",
		CanonicalName: "Acme",
	}))

	err := repo.AppendAttribute(ctx, "t2", "V001", KindAlias, "ACME Co")
	require.Error(t, err)
}

func TestFuzzySearchPunctuationInsensitive(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo := openTestDB(t)

	require.NoError(t, repo.Insert(ctx, resolve.VendorRecord{
		ID:            "V001",
		TenantID:      "t1",
		CanonicalName: "Acme Software, LLC",
	}))
	require.NoError(t, repo.Insert(ctx, resolve.VendorRecord{
		ID:            "V002",
		TenantID:      "t1",
		CanonicalName: "Globex Industrial Ltd",
	}))

	a, err := repo.FuzzySearch(ctx, "t1", "Acme Software, LLC", 5)
	require.NoError(t, err)
	b, err := repo.FuzzySearch(ctx, "t1", "Acme Software LLC", 5)
	require.NoError(t, err)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	require.Equal(t, a[0].ID, b[0].ID)
	require.Equal(t, "V001", a[0].ID)
}

func TestFuzzySearchMatchesAliases(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo := openTestDB(t)

	require.NoError(t, repo.Insert(ctx, resolve.VendorRecord{
		ID:            "V001",
		TenantID:      "t1",
		CanonicalName: "International Business Machines",
		Aliases:       []string{"ibm corporation"},
	}))

	got, err := repo.FuzzySearch(ctx, "t1", "IBM", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "V001", got[0].ID)
}

func TestFuzzySearchIgnoresTinyNameContainment(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo := openTestDB(t)

	// a two-letter vendor name is contained in countless unrelated
	// queries and must not ride the reverse-containment arm
	require.NoError(t, repo.Insert(ctx, resolve.VendorRecord{
		ID:            "V001",
		TenantID:      "t1",
		CanonicalName: "AB",
	}))

	got, err := repo.FuzzySearch(ctx, "t1", "Fabrikam Industries", 5)
	require.NoError(t, err)
	require.Empty(t, got)

	// querying the short name itself still finds it via forward containment
	got, err = repo.FuzzySearch(ctx, "t1", "AB", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSetStatusFlagsInsteadOfDelete(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo := openTestDB(t)

	require.NoError(t, repo.Insert(ctx, resolve.VendorRecord{
		ID:            "V001",
		TenantID:      "t1",
		CanonicalName: "Acme Software",
		TaxIDs:        []string{"US999"},
	}))
	require.NoError(t, repo.SetStatus(ctx, "t1", "V001", StatusInactive))

	// inactive records stop matching but still exist
	hit, err := repo.GetByTaxID(ctx, "t1", "US999")
	require.NoError(t, err)
	require.Nil(t, hit)

	rec, err := repo.Get(ctx, "t1", "V001")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, StatusInactive, rec.Status)
}
