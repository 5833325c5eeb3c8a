// Package main provides the litsift CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/litsift/litsift/internal/cache"
	"github.com/litsift/litsift/internal/config"
	"github.com/litsift/litsift/internal/extract"
	"github.com/litsift/litsift/internal/logging"
	"github.com/litsift/litsift/internal/pipeline"
	"github.com/litsift/litsift/internal/provider"
	"github.com/litsift/litsift/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

func main() {
	// A missing .env is fine; environment variables still apply.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "litsift",
	Short: "Literature-review ingestion CLI",
	Long: `litsift ingests literature for systematic reviews.

Core features:
  - Provider search (PubMed E-utilities) with caching and retry
  - RIS and BibTeX imports
  - Reference extraction from PDF and plain-text documents
  - Normalization and two-phase deduplication
  - Durable job tracking in SQLite

All commands output JSON by default for scripting.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}

// mustLoadConfig loads configuration, exits on error.
func mustLoadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// mustOpenStorage opens the SQLite database, exits on error.
// The caller is responsible for calling Close() on the returned storage.
func mustOpenStorage(cfg config.Config) *storage.Storage {
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return store
}

// buildCache returns the Redis cache when an address is configured,
// otherwise an in-process cache.
func buildCache(ctx context.Context, cfg config.Config, log zerolog.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory()
	}
	c, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-process cache")
		return cache.NewMemory()
	}
	return c
}

// mustBuildExtractor builds the reference extractor, applying a custom
// header list when one is configured.
func mustBuildExtractor(cfg config.Config) *extract.Extractor {
	if cfg.HeadersFile == "" {
		return extract.New()
	}
	headers, err := extract.LoadHeaders(cfg.HeadersFile)
	if err != nil {
		exitWithError(ExitConfigError, "loading headers file: %v", err)
	}
	return extract.New(extract.WithHeaders(headers))
}

// mustBuildService wires the full pipeline for commands that run jobs.
func mustBuildService(ctx context.Context, cfg config.Config, store *storage.Storage) *pipeline.Service {
	log := logging.New(cfg.Environment, cfg.LogLevel)

	opts := []provider.EntrezOption{
		provider.WithRateLimit(cfg.ProviderRateLimit),
		provider.WithBatchSize(cfg.DetailBatchSize),
	}
	if cfg.EntrezAPIKey != "" {
		opts = append(opts, provider.WithAPIKey(cfg.EntrezAPIKey))
	}
	if cfg.EntrezBaseURL != "" {
		opts = append(opts, provider.WithBaseURL(cfg.EntrezBaseURL))
	}

	registry := provider.NewRegistry(provider.NewEntrez(opts...))
	return pipeline.NewService(cfg, log, store, buildCache(ctx, cfg, log), registry, mustBuildExtractor(cfg))
}
