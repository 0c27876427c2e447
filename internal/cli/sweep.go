package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/lifecycle"

	"github.com/spf13/cobra"
)

var (
	// Sweep flags
	sweepAt   string
	sweepJSON bool
)

// sweepCmd resolves ended auctions once and exits
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Settle or expire every auction that has ended",
	Long: `Run one lifecycle sweep against the configured store. Products whose end
time has passed become sold (with an order for the leading bid) or expired.
Running it again, or alongside a serving instance, never settles a product twice.

Examples:
  auction-engine sweep --db postgres://...
  auction-engine sweep --db postgres://... --at 2026-01-01T00:00:00Z --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepAt, "at", "", "Resolve as of this RFC3339 instant instead of now")
	sweepCmd.Flags().BoolVar(&sweepJSON, "json", false, "Output in JSON format")
	sweepCmd.Flags().IntVar(&flagWorkers, "workers", 0, "Products resolved in parallel (overrides SWEEP_WORKERS)")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC()
	if sweepAt != "" {
		parsed, err := time.Parse(time.RFC3339, sweepAt)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		now = parsed.UTC()
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := bidding.NewBiddingService(store, bidding.WithSweepWorkers(cfg.SweepWorkers))
	result, err := svc.RunLifecycleSweep(ctx, now)
	if printErr := printSweep(out, result, now); printErr != nil {
		return printErr
	}
	return err
}

func printSweep(out io.Writer, result lifecycle.SweepResult, now time.Time) error {
	if sweepJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			lifecycle.SweepResult
			Total int    `json:"total"`
			At    string `json:"at"`
		}{result, result.Total(), now.Format(time.RFC3339)})
	}
	_, err := fmt.Fprintf(out, "sweep at %s: %d sold, %d expired, %d skipped\n",
		now.Format(time.RFC3339), result.Sold, result.Expired, result.Skipped)
	return err
}
