package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goran-ethernal/ChainIndexor/internal/config"
	"github.com/goran-ethernal/ChainIndexor/internal/engine"
	"github.com/goran-ethernal/ChainIndexor/internal/logger"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║         ChainIndexor v%s               ║
║      Blockchain Indexing Core             ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath  string
	logLevel    string
	development bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chainindexor",
	Short: "ChainIndexor - blockchain event indexing core",
	Long: `ChainIndexor indexes blockchain event logs into a queryable event store and,
optionally, a versioned derived-entity store exposed over GraphQL. It runs in
one of three modes (options.mode): Standalone, Indexer, or Watcher.`,
	Version: version,
	RunE:    runEngine,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run event store and derived store migrations without starting the engine",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&development, "dev", false, "enable development-mode logging (console encoder, stack traces)")
	rootCmd.AddCommand(migrateCmd)
}

func runEngine(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(logLevel, development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down gracefully...")
		cancel()
	}()

	log.Infof("starting in %s mode", cfg.Options.Mode)
	e, err := engine.New(ctx, *cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	if err := e.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("engine stopped with error: %w", err)
	}

	log.Info("chainindexor stopped successfully")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(logLevel, development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	ctx := context.Background()

	eventStore, err := engine.OpenEventStoreForMigration(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer eventStore.Close()

	log.Info("running event store migrations...")
	if err := eventStore.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate event store: %w", err)
	}

	if cfg.Options.Mode == config.ModeWatcher || cfg.Options.Mode == config.ModeStandalone {
		derived, err := engine.OpenDerivedStoreForMigration(cfg.Database, log)
		if err != nil {
			return fmt.Errorf("failed to open derived store: %w", err)
		}
		defer derived.Close()

		log.Info("running derived store migrations...")
		if err := derived.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate derived store: %w", err)
		}
	}

	log.Info("migrations complete")
	return nil
}
