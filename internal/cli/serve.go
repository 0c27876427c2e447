package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	// Serve flags
	flagWorkers int
	flagSeed    bool
	flagMigrate bool
)

// serveCmd runs the HTTP API and the background lifecycle sweeper
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the auction HTTP API",
	Long: `Run the auction HTTP API. When SWEEP_INTERVAL is positive a background
sweeper settles or expires ended auctions on that interval.

Examples:
  auction-engine serve                      # in-memory store on :8080
  auction-engine serve --seed               # with demo users and products
  auction-engine serve --db postgres://... --migrate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().IntVar(&flagWorkers, "workers", 0, "Products resolved in parallel per sweep (overrides SWEEP_WORKERS)")
	serveCmd.Flags().BoolVar(&flagSeed, "seed", false, "Load demo users and products on start")
	serveCmd.Flags().BoolVar(&flagMigrate, "migrate", false, "Apply the Postgres schema before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			utils.Warn("closing store failed", map[string]any{"error": err.Error()})
		}
	}()

	if flagMigrate {
		pg, ok := store.(*repository.PostgresRepo)
		if !ok {
			return errors.New("--migrate needs a Postgres store")
		}
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
	}

	svc := bidding.NewBiddingService(store,
		bidding.WithMaxBidAttempts(cfg.MaxBidAttempts),
		bidding.WithSweepWorkers(cfg.SweepWorkers),
	)
	if flagSeed {
		if err := seedDemo(ctx, svc); err != nil {
			return err
		}
	}

	if utils.IsDebug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: server.SetupRouter(svc, cfg.RequestTimeout),
	}

	var wg sync.WaitGroup
	if cfg.SweepInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Lifecycle().Run(ctx, cfg.SweepInterval)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		utils.Info("starting auction server", map[string]any{"addr": srv.Addr, "postgres": cfg.UsesPostgres()})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
	}

	utils.Info("gracefully shutting down", map[string]any{"timeout": cfg.ShutdownTimeout.String()})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	wg.Wait()
	return err
}
