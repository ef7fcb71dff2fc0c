package config

import (
	"strings"
	"time"

	"github.com/genbu-cloud/genbu/internal/logger"
	"github.com/genbu-cloud/genbu/pkg/store"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyDatabaseDefaults(&cfg.Database)
	applyAuthDefaults(cfg)
	applyUploadDefaults(&cfg.Upload)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ObjectStore.Region == "" {
		cfg.ObjectStore.Region = "us-east-1"
	}
}

func applyLoggingDefaults(cfg *logger.Config) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyDatabaseDefaults(cfg *store.Config) {
	if cfg.Type == "" {
		cfg.Type = store.DatabaseTypeSQLite
	}
	if cfg.Type == store.DatabaseTypeSQLite && cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "genbu.db"
	}
	cfg.ApplyDefaults()
}

func applyAuthDefaults(cfg *Config) {
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "genbu"
	}
	if cfg.Auth.SessionDuration == 0 {
		cfg.Auth.SessionDuration = 24 * time.Hour
	}
}

func applyUploadDefaults(cfg *UploadConfig) {
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = 10 * time.Minute
	}
}

// GetDefaultConfig returns a configuration with all defaults applied and a
// local development object store endpoint. The auth secret is intentionally
// left empty; it must be provided via config file or GENBU_AUTH_SECRET.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.ObjectStore.Endpoint = "http://127.0.0.1:9000"
	cfg.ObjectStore.ForcePathStyle = true
	return cfg
}
