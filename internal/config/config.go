// Package config loads process configuration from the environment.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config is shared by every command. Commands may override fields from flags after Load.
type Config struct {
	Port      string `env:"PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=console"`

	StorageBackend string `env:"STORAGE_BACKEND,default=memory"`
	DatabaseURL    string `env:"DATABASE_URL"`

	InterestEnabled      bool          `env:"INTEREST_ENABLED,default=true"`
	InterestPeriod       time.Duration `env:"INTEREST_PERIOD,default=24h"`
	InterestRunRetention int           `env:"INTEREST_RUN_RETENTION,default=100"`

	BigQueryProject string `env:"BIGQUERY_PROJECT"`
	BigQueryDataset string `env:"BIGQUERY_DATASET,default=ledger"`
	BigQueryTable   string `env:"BIGQUERY_TABLE,default=transactions"`

	ArchiveBucket string `env:"ARCHIVE_BUCKET"`
	ArchiveDir    string `env:"ARCHIVE_DIR"`

	OTelEnabled    bool     `env:"OTEL_ENABLED,default=false"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=*"`
}

// Load reads the environment and validates the result.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration from a map instead of the process environment.
func LoadFrom(ctx context.Context, env map[string]string) (*Config, error) {
	return load(ctx, envconfig.MapLookuper(env))
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &cfg, l); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown LOG_FORMAT %q", c.LogFormat)
	}

	if c.InterestPeriod <= 0 {
		return fmt.Errorf("config: INTEREST_PERIOD must be positive, got %s", c.InterestPeriod)
	}
	if c.ArchiveBucket != "" && c.ArchiveDir != "" {
		return fmt.Errorf("config: set only one of ARCHIVE_BUCKET and ARCHIVE_DIR")
	}
	return nil
}

// ExportEnabled reports whether a BigQuery destination is configured.
func (c *Config) ExportEnabled() bool {
	return c.BigQueryProject != ""
}

// ArchiveEnabled reports whether a snapshot destination is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveBucket != "" || c.ArchiveDir != ""
}
