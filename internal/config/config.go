// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable the process reads at startup. Values come
// from LITSIFT_-prefixed environment variables; defaults suit local use.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Pipeline sizing.
	Workers   int `envconfig:"WORKERS" default:"4"`
	QueueSize int `envconfig:"QUEUE_SIZE" default:"256"`

	// Provider behaviour.
	ProviderRateLimit float64       `envconfig:"PROVIDER_RATE_LIMIT" default:"3"`
	DetailBatchSize   int           `envconfig:"DETAIL_BATCH_SIZE" default:"200"`
	RetryAttempts     int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryBackoff      time.Duration `envconfig:"RETRY_BACKOFF" default:"500ms"`

	// Upload and parse limits.
	MaxRISBytes       int64         `envconfig:"MAX_RIS_BYTES" default:"10485760"`
	MaxBibTeXBytes    int64         `envconfig:"MAX_BIBTEX_BYTES" default:"10485760"`
	MaxPDFBytes       int64         `envconfig:"MAX_PDF_BYTES" default:"52428800"`
	MaxTextBytes      int64         `envconfig:"MAX_TEXT_BYTES" default:"10485760"`
	MaxPDFPages       int           `envconfig:"MAX_PDF_PAGES" default:"500"`
	MaxExtractedChars int           `envconfig:"MAX_EXTRACTED_CHARS" default:"2000000"`
	ParseBudget       time.Duration `envconfig:"PARSE_BUDGET" default:"30s"`

	// Cache.
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"24h"`

	// Backends.
	DBPath        string `envconfig:"DB_PATH" default:"litsift.db"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`

	// PubMed provider.
	EntrezBaseURL string `envconfig:"ENTREZ_BASE_URL" default:""`
	EntrezAPIKey  string `envconfig:"ENTREZ_API_KEY" default:""`

	// Optional YAML file overriding the built-in reference-section headers.
	HeadersFile string `envconfig:"HEADERS_FILE" default:""`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("litsift", &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Workers < 1 {
		return Config{}, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.QueueSize < 1 {
		return Config{}, fmt.Errorf("queue size must be at least 1, got %d", cfg.QueueSize)
	}
	return cfg, nil
}

// MaxUploadBytes returns the size cap for an upload format, zero when
// the format has no cap.
func (c Config) MaxUploadBytes(format string) int64 {
	switch format {
	case "ris":
		return c.MaxRISBytes
	case "bib", "bibtex":
		return c.MaxBibTeXBytes
	case "pdf":
		return c.MaxPDFBytes
	case "txt", "docx":
		return c.MaxTextBytes
	}
	return 0
}
