package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apflow/vendormatch/internal/database"
	"github.com/apflow/vendormatch/internal/database/repository"
	"github.com/apflow/vendormatch/internal/logging"
	"github.com/apflow/vendormatch/internal/resolve"
)

func openTestRepo(t *testing.T) *repository.VendorRepo {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return repository.NewVendorRepo(db)
}

const sampleCSV = `name,tax_id,country,domains,aliases,emails,address
Acme Software LLC,DE123456789,DE,acme.example,ACME;Acme Soft,billing@acme.example,1 Acme Way
Globex Industrial Ltd,,US,globex.example,,,
`

func TestImportCSVCreatesRecords(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	repo := openTestRepo(t)
	imp := &Importer{Vendors: repo, Log: logging.Nop()}

	res, err := imp.ImportCSV(ctx, strings.NewReader(sampleCSV), "t1", "erp_export")
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Equal(t, 2, res.Created)
	require.Equal(t, 0, res.Enriched)

	got, err := repo.FindByNormalizedName(ctx, "t1", "Acme Software LLC")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Acme Software LLC", got.CanonicalName)
	require.Equal(t, []string{"ACME", "Acme Soft"}, got.Aliases)
	require.Equal(t, "erp_export", got.SourceSystem)

	// identifier lookup works immediately after import
	hit, err := repo.GetByTaxID(ctx, "t1", "de 123 456 789")
	require.NoError(t, err)
	require.NotNil(t, hit)
	require.Equal(t, got.ID, hit.ID)
}

func TestImportCSVReimportEnriches(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	repo := openTestRepo(t)
	imp := &Importer{Vendors: repo, Log: logging.Nop()}

	_, err := imp.ImportCSV(ctx, strings.NewReader(sampleCSV), "t1", "erp_export")
	require.NoError(t, err)

	// second pass adds a new alias to an existing row, duplicates fold away
	again := `Acme Software LLC,DE123456789,DE,acme.example,Acme GmbH,,`
	res, err := imp.ImportCSV(ctx, strings.NewReader(again), "t1", "erp_export")
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Equal(t, 0, res.Created)
	require.Equal(t, 1, res.Enriched)

	got, err := repo.FindByNormalizedName(ctx, "t1", "Acme Software LLC")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.ElementsMatch(t, []string{"ACME", "Acme Soft", "Acme GmbH"}, got.Aliases)
	require.Equal(t, []string{"acme.example"}, got.Domains)
}

func TestImportCSVMissingTenant(t *testing.T) {
	t.Parallel()

	imp := &Importer{Vendors: openTestRepo(t), Log: logging.Nop()}
	_, err := imp.ImportCSV(context.Background(), strings.NewReader(sampleCSV), "", "erp_export")
	require.Error(t, err)
}

func TestHealerApplyIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	repo := openTestRepo(t)
	healer := &Healer{Vendors: repo, Log: logging.Nop()}

	require.NoError(t, repo.Insert(ctx, resolve.VendorRecord{
		ID: "V001", TenantID: "t1", CanonicalName: "Amazon Web Services",
	}))

	m := resolve.Mutations{Alias: "Amazon Web Srvcs", Domain: "aws.com"}
	require.NoError(t, healer.Apply(ctx, "t1", "V001", m))
	require.NoError(t, healer.Apply(ctx, "t1", "V001", m))

	got, err := repo.Get(ctx, "t1", "V001")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, []string{"Amazon Web Srvcs"}, got.Aliases)
	require.Equal(t, []string{"aws.com"}, got.Domains)
}

func TestHealerRejectsForeignTenant(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	repo := openTestRepo(t)
	healer := &Healer{Vendors: repo, Log: logging.Nop()}

	require.NoError(t, repo.Insert(ctx, resolve.VendorRecord{
		ID: "V001", TenantID: "t1", CanonicalName: "Acme",
	}))

	err := healer.Apply(ctx, "t2", "V001", resolve.Mutations{Alias: "ACME Co"})
	require.Error(t, err)
}
