package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbu-cloud/genbu/pkg/store"
)

const testSecret = "config-test-secret-with-enough-characters"

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, "auth:\n  secret: "+testSecret+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, store.DatabaseTypeSQLite, cfg.Database.Type)
	assert.Equal(t, "genbu", cfg.Auth.Issuer)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionDuration)
	assert.Equal(t, 10*time.Minute, cfg.Upload.PruneInterval)
	assert.Equal(t, "us-east-1", cfg.ObjectStore.Region)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: debug
  format: json
shutdown_timeout: 5s
database:
  type: postgres
  postgres:
    host: db.internal
    database: genbu
    user: genbu
    password: hunter2
server:
  port: 9000
  public_url: https://files.example.com
auth:
  secret: `+testSecret+`
  session_duration: 1h
object_store:
  endpoint: http://127.0.0.1:9000
  force_path_style: true
upload:
  prune_interval: 1m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, store.DatabaseTypePostgres, cfg.Database.Type)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "https://files.example.com", cfg.Server.PublicURL)
	assert.Equal(t, time.Hour, cfg.Auth.SessionDuration)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.ObjectStore.Endpoint)
	assert.True(t, cfg.ObjectStore.ForcePathStyle)
	assert.Equal(t, time.Minute, cfg.Upload.PruneInterval)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "auth:\n  secret: "+testSecret+"\n")

	t.Setenv("GENBU_LOGGING_LEVEL", "ERROR")
	t.Setenv("GENBU_SERVER_PORT", "9999")
	t.Setenv("GENBU_DATABASE_SQLITE_PATH", "/tmp/genbu.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ERROR", cfg.Logging.Level)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/tmp/genbu.db", cfg.Database.SQLite.Path)
}

func TestEnvOnlyDeployment(t *testing.T) {
	t.Setenv("GENBU_AUTH_SECRET", testSecret)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, testSecret, cfg.Auth.Secret)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "missing secret",
			mutate:  func(cfg *Config) { cfg.Auth.Secret = "" },
			wantErr: "auth.secret",
		},
		{
			name:    "short secret",
			mutate:  func(cfg *Config) { cfg.Auth.Secret = "too-short" },
			wantErr: "auth.secret",
		},
		{
			name:    "bad logging level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "VERBOSE" },
			wantErr: "logging level",
		},
		{
			name:    "bad logging format",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: "logging format",
		},
		{
			name:    "bad database type",
			mutate:  func(cfg *Config) { cfg.Database.Type = "oracle" },
			wantErr: "database",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Auth.Secret = testSecret
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Auth.Secret = testSecret
	cfg.Server.Port = 8123

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8123, loaded.Server.Port)
	assert.Equal(t, testSecret, loaded.Auth.Secret)
}
