package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/genbu-cloud/genbu/internal/logger"
	"github.com/genbu-cloud/genbu/pkg/api"
	"github.com/genbu-cloud/genbu/pkg/config"
	"github.com/genbu-cloud/genbu/pkg/objstore"
	"github.com/genbu-cloud/genbu/pkg/objstore/s3"
	"github.com/genbu-cloud/genbu/pkg/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the genbu server",
	Long: `Start the genbu server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/genbu/config.yaml. All options can be
overridden with GENBU_* environment variables.

Examples:
  # Start with the default config location
  genbu start

  # Start with a custom config file
  genbu start --config /etc/genbu/config.yaml

  # Override log level for one run
  GENBU_LOGGING_LEVEL=DEBUG genbu start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create it first:\n  genbu init --config %s", configPath, configPath)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Cancelled on SIGINT/SIGTERM; everything below shuts down off this
	// context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting genbu", "version", Version)
	logger.Info("Configuration loaded", "database", cfg.Database.Type, "log_level", cfg.Logging.Level)

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}

	backend, err := s3.NewFromConfig(ctx, cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("failed to connect to object store: %w", err)
	}
	for _, b := range objstore.Buckets {
		if err := backend.EnsureBucket(ctx, b); err != nil {
			return fmt.Errorf("failed to ensure bucket %s: %w", b.Name(), err)
		}
	}
	logger.Info("Object store ready", "endpoint", cfg.ObjectStore.Endpoint, "buckets", len(objstore.Buckets))

	server, err := api.NewServer(cfg.Server, cfg.Auth, st, st.DB(), backend)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	go pruneLoop(ctx, server, cfg.Upload.PruneInterval)

	// Blocks until the context is cancelled or the listener fails.
	if err := server.Start(ctx); err != nil {
		return err
	}

	logger.Info("Genbu stopped")
	return nil
}

// pruneLoop sweeps expired upload leases and aborts their multipart
// sessions on a fixed interval.
func pruneLoop(ctx context.Context, server *api.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := server.Uploads().Prune(ctx)
			if err != nil {
				logger.Warn("lease prune failed", "error", err)
				continue
			}
			if pruned > 0 {
				logger.Info("pruned expired upload leases", "count", pruned)
			}
		}
	}
}
