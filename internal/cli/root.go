// Package cli holds the auction-engine command tree
package cli

import (
	"context"
	"fmt"

	"auction-engine/internal/config"
	"auction-engine/internal/repository"
	"auction-engine/utils"

	"github.com/spf13/cobra"
)

var (
	// Global flags; when set they win over the environment
	flagPort        string
	flagDatabaseURL string
	flagLogLevel    string

	cfg config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "auction-engine",
	Short: "Auction bid admission and settlement engine",
	Long: `auction-engine accepts bids on auctioned products, derives their current
price and settles ended auctions into orders exactly once.

Configuration is read from the environment (PORT, DATABASE_URL, LOG_LEVEL,
SWEEP_INTERVAL, SWEEP_WORKERS, BID_MAX_ATTEMPTS, LOCK_TIMEOUT, REQUEST_TIMEOUT,
SHUTDOWN_TIMEOUT) and may be overridden by flags. Without DATABASE_URL the
in-memory store is used.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		utils.Fatal("command failed", map[string]any{"error": err.Error()})
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagPort, "port", "", "HTTP port (overrides PORT)")
	rootCmd.PersistentFlags().StringVar(&flagDatabaseURL, "db", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
}

func loadConfig(cmd *cobra.Command) error {
	loaded, err := config.FromEnv()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		loaded.Port = flagPort
	}
	if flags.Changed("db") {
		loaded.DatabaseURL = flagDatabaseURL
	}
	if flags.Changed("log-level") {
		loaded.LogLevel = flagLogLevel
	}
	if flags.Changed("workers") {
		loaded.SweepWorkers = flagWorkers
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg = loaded
	utils.SetLevel(cfg.LogLevel)
	return nil
}

// openStore connects the configured store; callers release it with Close
func openStore(ctx context.Context, c config.Config) (repository.AuctionDB, error) {
	if !c.UsesPostgres() {
		utils.Info("using in-memory store", map[string]any{"lock_timeout": c.LockTimeout.String()})
		return repository.NewMemoryRepo(repository.WithLockTimeout(c.LockTimeout)), nil
	}

	repo, err := repository.ConnectPostgres(ctx, c.DatabaseURL, repository.WithLockTimeout(c.LockTimeout))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	utils.Info("using postgres store", map[string]any{"lock_timeout": c.LockTimeout.String()})
	return repo, nil
}

// requirePostgres opens the Postgres store or explains why it cannot
func requirePostgres(ctx context.Context, c config.Config) (*repository.PostgresRepo, error) {
	if !c.UsesPostgres() {
		return nil, fmt.Errorf("DATABASE_URL or --db is required")
	}
	return repository.ConnectPostgres(ctx, c.DatabaseURL, repository.WithLockTimeout(c.LockTimeout))
}
