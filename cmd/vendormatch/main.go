package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/apflow/vendormatch/internal/config"
	"github.com/apflow/vendormatch/internal/database"
	"github.com/apflow/vendormatch/internal/database/repository"
	"github.com/apflow/vendormatch/internal/llm"
	"github.com/apflow/vendormatch/internal/logging"
	"github.com/apflow/vendormatch/internal/resolve"
	"github.com/apflow/vendormatch/internal/search"
	"github.com/apflow/vendormatch/internal/service"
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vendormatch",
		Short:         "Resolve invoice vendor mentions against the vendor master",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(resolveCmd(), importCmd(), reindexCmd(), migrateCmd())
	return root
}

// engine bundles everything a command needs after wiring.
type engine struct {
	db        *sql.DB
	vendors   *repository.VendorRepo
	retriever *search.Retriever
	resolver  *service.Resolver
	importer  *service.Importer
	log       zerolog.Logger
}

func (e *engine) Close() { _ = e.db.Close() }

func buildEngine(cfg config.Config) (*engine, error) {
	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path, cfg.Database.MigrationsPath); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	vendors := repository.NewVendorRepo(db)
	embeddings := repository.NewEmbeddingRepo(db)

	classifier, oracle, embedder := providers(cfg.LLM)

	retriever := &search.Retriever{
		Vendors:    vendors,
		Embeddings: embeddings,
		Embedder:   embedder,
		Model:      cfg.LLM.EmbeddingModel,
		Floor:      cfg.Resolver.SemanticFloor,
		Log:        log,
	}
	arbiter := &service.Arbiter{
		Oracle:         oracle,
		MatchThreshold: cfg.Resolver.MatchThreshold,
		AmbiguousFloor: cfg.Resolver.AmbiguousFloor,
		OracleTimeout:  cfg.Resolver.OracleTimeout,
		Log:            log,
	}
	resolver := &service.Resolver{
		Index:           vendors,
		Retriever:       retriever,
		Classifier:      classifier,
		Arbiter:         arbiter,
		Healer:          &service.Healer{Vendors: vendors, Log: log},
		TopK:            cfg.Resolver.TopK,
		StoreTimeout:    cfg.Resolver.StoreTimeout,
		RetrieveTimeout: cfg.Resolver.RetrieveTimeout,
		ClassifyTimeout: cfg.Resolver.ClassifyTimeout,
		Log:             log,
	}

	return &engine{
		db:        db,
		vendors:   vendors,
		retriever: retriever,
		resolver:  resolver,
		importer:  &service.Importer{Vendors: vendors, Log: log},
		log:       log,
	}, nil
}

func providers(cfg config.LLMConfig) (llm.EntityClassifier, llm.ArbitrationOracle, llm.Embedder) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "heuristic", "offline":
		p := llm.NewHeuristicProvider()
		return p, p, p
	default:
		p := llm.NewGeminiProvider(cfg.ResolveAPIKey(), cfg.Model, cfg.EmbeddingModel)
		return p, p, p
	}
}

func resolveCmd() *cobra.Command {
	var (
		tenant, name, taxID, domain, address string
		country, bankTail                    string
		asJSON                               bool
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a single vendor mention",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			verdict, err := eng.resolver.Resolve(cmd.Context(), resolve.VendorMention{
				TenantID:        tenant,
				RawName:         name,
				TaxID:           taxID,
				EmailDomain:     domain,
				Address:         address,
				Country:         country,
				BankAccountTail: bankTail,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(verdict)
			}
			fmt.Println(renderVerdict(verdict))
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&name, "name", "", "vendor name as written on the invoice")
	cmd.Flags().StringVar(&taxID, "tax-id", "", "tax or registration identifier")
	cmd.Flags().StringVar(&domain, "domain", "", "email domain from the invoice")
	cmd.Flags().StringVar(&address, "address", "", "postal address")
	cmd.Flags().StringVar(&country, "country", "", "country code")
	cmd.Flags().StringVar(&bankTail, "bank-tail", "", "last digits of the bank account")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the verdict as JSON")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func importCmd() *cobra.Command {
	var tenant, file, source string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import vendor master records from a CSV export",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := eng.importer.ImportCSV(cmd.Context(), f, tenant, source)
			if err != nil {
				return err
			}
			fmt.Printf("created %d, enriched %d, skipped %d, errors %d\n",
				res.Created, res.Enriched, res.Skipped, len(res.Errors))
			for _, e := range res.Errors {
				fmt.Fprintln(os.Stderr, " ", e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&file, "file", "", "CSV file to import (required)")
	cmd.Flags().StringVar(&source, "source", "csv_import", "source system tag")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func reindexCmd() *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Recompute stale name embeddings for a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			n, err := eng.retriever.Reindex(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			fmt.Printf("reindexed %d vendors\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
				return err
			}
			return database.RunMigrations(cfg.Database.Path, cfg.Database.MigrationsPath)
		},
	}
}
