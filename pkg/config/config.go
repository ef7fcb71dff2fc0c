// Package config loads the genbu server configuration from file,
// environment and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/genbu-cloud/genbu/internal/logger"
	"github.com/genbu-cloud/genbu/pkg/api"
	"github.com/genbu-cloud/genbu/pkg/api/auth"
	"github.com/genbu-cloud/genbu/pkg/objstore/s3"
	"github.com/genbu-cloud/genbu/pkg/store"
)

// Config represents the genbu server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (GENBU_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging logger.Config `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures the metadata store (SQLite or PostgreSQL).
	// Files, upload leases, locks and access tokens live here.
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Server contains HTTP server configuration
	Server api.Config `mapstructure:"server" yaml:"server"`

	// Auth contains session token configuration.
	// Environment variable override: GENBU_AUTH_SECRET
	Auth auth.JWTConfig `mapstructure:"auth" yaml:"auth"`

	// ObjectStore configures the S3-compatible backend holding file
	// contents. Point it at MinIO for local development.
	ObjectStore s3.Config `mapstructure:"object_store" yaml:"object_store"`

	// Upload contains upload lease housekeeping configuration
	Upload UploadConfig `mapstructure:"upload" yaml:"upload"`
}

// UploadConfig controls upload lease housekeeping.
type UploadConfig struct {
	// PruneInterval is how often expired leases are swept and their
	// multipart sessions aborted. Default: 10m.
	PruneInterval time.Duration `mapstructure:"prune_interval" yaml:"prune_interval"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
// Written with 0600 permissions since the file carries credentials.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the GENBU_ prefix with underscores.
	// Example: GENBU_LOGGING_LEVEL=DEBUG, GENBU_AUTH_SECRET=...
	v.SetEnvPrefix("GENBU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv alone does not surface env vars through Unmarshal;
	// each key must be bound explicitly first.
	for _, key := range configKeys() {
		v.MustBindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// configKeys enumerates every leaf configuration key so env-only deployments
// work without a config file.
func configKeys() []string {
	return []string{
		"logging.level", "logging.format", "logging.output",
		"shutdown_timeout",
		"database.type",
		"database.sqlite.path",
		"database.postgres.host", "database.postgres.port",
		"database.postgres.database", "database.postgres.user",
		"database.postgres.password", "database.postgres.ssl_mode",
		"database.postgres.max_open_conns", "database.postgres.max_idle_conns",
		"server.host", "server.port", "server.public_url",
		"server.read_timeout", "server.write_timeout", "server.idle_timeout",
		"server.debug",
		"auth.secret", "auth.issuer", "auth.session_duration",
		"object_store.endpoint", "object_store.region",
		"object_store.access_key_id", "object_store.secret_access_key",
		"object_store.force_path_style",
		"upload.prune_interval",
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the decode hook for custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to
// time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "genbu")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "genbu")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
