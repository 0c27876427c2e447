package cli

import (
	"context"
	"fmt"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/models"

	"github.com/spf13/cobra"
)

// seedCmd loads demo data into the configured store
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create demo users and products",
	Long: `Create a seller, two buyers and a handful of products ending over the next
days. Useful against Postgres; the in-memory store is seeded with serve --seed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		repo, err := requirePostgres(ctx, cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := seedDemo(ctx, bidding.NewBiddingService(repo)); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "demo data created")
		return err
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type demoProduct struct {
	name     string
	category string
	base     string
	runs     time.Duration
}

var demoProducts = []demoProduct{
	{name: "Vintage film camera", category: "photo", base: "100", runs: 24 * time.Hour},
	{name: "Mechanical keyboard", category: "electronics", base: "200", runs: 48 * time.Hour},
	{name: "Oak bookshelf", category: "home", base: "150", runs: 72 * time.Hour},
}

// seedDemo creates sample users and products through the service
func seedDemo(ctx context.Context, svc *bidding.BiddingService) error {
	seller, err := svc.CreateUser(ctx, "demo-seller", "seller@example.com", models.RoleSeller)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	for _, name := range []string{"demo-buyer-1", "demo-buyer-2"} {
		if _, err := svc.CreateUser(ctx, name, name+"@example.com", models.RoleBuyer); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	now := time.Now().UTC()
	for _, p := range demoProducts {
		_, err := svc.CreateProduct(ctx, bidding.NewProductInput{
			Name:        p.name,
			Description: p.name + " listed for the demo auction",
			BasePrice:   models.Money(p.base),
			SellerID:    seller.UserID,
			Category:    p.category,
			EndTime:     now.Add(p.runs),
		})
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return nil
}
