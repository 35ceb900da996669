package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fleetworks/fleet-api/internal/circuitbreaker"
	"github.com/fleetworks/fleet-api/internal/config"
	"github.com/fleetworks/fleet-api/internal/dashboard"
	"github.com/fleetworks/fleet-api/internal/db"
)

var (
	// Global flags
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fleetctl",
	Short: "Operator commands for the fleet API database",
	Long: `fleetctl runs maintenance tasks against the fleet API database.

Connection settings come from the same CONFIG_PATH file and FLEET_*
environment variables the gateway reads.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	computeMPGCmd.Flags().Int64Var(&mpgCompany, "company", 0, "Limit the recompute to one company id")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML fixture file (defaults to the built-in fixture)")

	rootCmd.AddCommand(migrateCmd, computeMPGCmd, statsCmd, seedCmd)
}

// openDB connects with the configured settings. Callers close the client.
func openDB(ctx context.Context) (*db.Client, error) {
	return db.NewClient(ctx, cfg.Database, logger)
}

// openDashboard returns the dashboard service used to invalidate cached views.
// When Redis is unreachable the service has no cache and invalidation does
// nothing. Callers run the returned close func.
func openDashboard(ctx context.Context, h db.Handle) (*dashboard.Service, func()) {
	noCache := func() (*dashboard.Service, func()) {
		return dashboard.NewService(h, nil, cfg.Dashboard, logger), func() {}
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Warn("Invalid Redis URL, dashboard cache left to expire", zap.Error(err))
		return noCache()
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unavailable, dashboard cache left to expire", zap.Error(err))
		client.Close()
		return noCache()
	}
	return dashboard.NewService(h, circuitbreaker.NewRedisWrapper(client, logger), cfg.Dashboard, logger),
		func() { client.Close() }
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
