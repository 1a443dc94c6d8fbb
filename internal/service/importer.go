package service

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/apflow/vendormatch/internal/database/repository"
	"github.com/apflow/vendormatch/internal/resolve"
)

// Importer seeds and extends the vendor master from CSV exports of
// upstream systems. Import is additive: a row whose normalized name
// already exists enriches that record's attribute sets instead of
// creating a duplicate.
type Importer struct {
	Vendors *repository.VendorRepo
	Log     zerolog.Logger
}

type ImportResult struct {
	Created  int
	Enriched int
	Skipped  int
	Errors   []error
}

// CSV columns: name, tax_id, country, domains, aliases, emails, address.
// Multi-valued columns are ';'-separated. A header row starting with
// "name" is skipped.
func (s *Importer) ImportCSV(ctx context.Context, r io.Reader, tenantID, sourceSystem string) (ImportResult, error) {
	res := ImportResult{}
	if tenantID == "" {
		return res, fmt.Errorf("import: tenant id required")
	}
	if sourceSystem == "" {
		sourceSystem = "csv_import"
	}

	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1
	line := 0
	for {
		line++
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if len(rec) < 1 || strings.TrimSpace(rec[0]) == "" {
			res.Skipped++
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "name") {
			continue
		}
		row := importRow{
			name:    strings.TrimSpace(rec[0]),
			taxID:   field(rec, 1),
			country: field(rec, 2),
			domains: splitMulti(field(rec, 3)),
			aliases: splitMulti(field(rec, 4)),
			emails:  splitMulti(field(rec, 5)),
			address: field(rec, 6),
		}
		created, err := s.upsertRow(ctx, tenantID, sourceSystem, row)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if created {
			res.Created++
		} else {
			res.Enriched++
		}
	}

	s.Log.Info().Str("tenant_id", tenantID).
		Int("created", res.Created).Int("enriched", res.Enriched).
		Int("skipped", res.Skipped).Int("errors", len(res.Errors)).
		Msg("vendor import finished")
	return res, nil
}

type importRow struct {
	name    string
	taxID   string
	country string
	domains []string
	aliases []string
	emails  []string
	address string
}

func (s *Importer) upsertRow(ctx context.Context, tenantID, sourceSystem string, row importRow) (created bool, err error) {
	existing, err := s.Vendors.FindByNormalizedName(ctx, tenantID, row.name)
	if err != nil {
		return false, err
	}
	if existing == nil {
		rec := resolve.VendorRecord{
			ID:            uuid.NewString(),
			TenantID:      tenantID,
			CanonicalName: row.name,
			TaxIDs:        nonEmpty(row.taxID),
			Countries:     nonEmpty(row.country),
			Domains:       row.domains,
			Aliases:       row.aliases,
			Emails:        row.emails,
			Addresses:     nonEmpty(row.address),
			SourceSystem:  sourceSystem,
		}
		return true, s.Vendors.Insert(ctx, rec)
	}

	// existing record: enrich attribute sets, never overwrite
	add := func(kind string, values ...string) {
		for _, v := range values {
			if err != nil {
				return
			}
			err = s.Vendors.AppendAttribute(ctx, tenantID, existing.ID, kind, v)
		}
	}
	add(repository.KindTaxID, row.taxID)
	add(repository.KindCountry, row.country)
	add(repository.KindDomain, row.domains...)
	add(repository.KindAlias, row.aliases...)
	add(repository.KindEmail, row.emails...)
	add(repository.KindAddress, row.address)
	return false, err
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func splitMulti(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}
