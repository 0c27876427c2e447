// Package lifecycle resolves auctions whose end time has passed.
//
// A product moves active -> sold when it has at least one bid and
// active -> expired when it has none. Both are terminal. Every transition runs
// inside the product's critical section and re-checks the status there, so a
// repeated or concurrent sweep never resolves a product twice.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/pricing"
	"auction-engine/internal/repository"
	"auction-engine/internal/settlement"
	"auction-engine/utils"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the number of products resolved in parallel during a sweep
const DefaultWorkers = 4

// Outcome is what a single resolution did to a product
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeSold    Outcome = "sold"
	OutcomeExpired Outcome = "expired"
)

// SweepResult counts the products a sweep resolved
type SweepResult struct {
	Sold    int `json:"sold"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
}

// Total is the number of products settled or expired by the sweep
func (r SweepResult) Total() int {
	return r.Sold + r.Expired
}

// Controller drives the auction state machine
type Controller struct {
	repo    repository.AuctionDB
	workers int
	now     func() time.Time
}

// NewController creates a controller; workers <= 0 selects DefaultWorkers
func NewController(repo repository.AuctionDB, workers int) *Controller {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Controller{
		repo:    repo,
		workers: workers,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sweep resolves every product due at now. Failures on individual products
// do not stop the others; they are joined into the returned error.
func (c *Controller) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	ids, err := c.repo.DueProductIDs(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("lifecycle: list due products: %w", err)
	}

	var (
		mu     sync.Mutex
		result SweepResult
		errs   []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, id := range ids {
		g.Go(func() error {
			outcome, err := c.Resolve(gctx, id, now)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errs = append(errs, err)
			case outcome == OutcomeSold:
				result.Sold++
			case outcome == OutcomeExpired:
				result.Expired++
			default:
				result.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(ids) > 0 {
		utils.Info("lifecycle sweep finished", map[string]any{
			"due":     len(ids),
			"sold":    result.Sold,
			"expired": result.Expired,
			"skipped": result.Skipped,
			"failed":  len(errs),
		})
	}
	return result, errors.Join(errs...)
}

// Resolve settles or expires one product if it is still active and due at now
func (c *Controller) Resolve(ctx context.Context, productID string, now time.Time) (Outcome, error) {
	outcome := OutcomeSkipped

	err := c.repo.WithProduct(ctx, productID, func(tx repository.ProductTx) error {
		snap := tx.Snapshot()
		// status CAS: another worker or an earlier sweep may have resolved it already
		if !snap.Product.IsDue(now) {
			utils.Debug("lifecycle: product no longer due", map[string]any{
				"product_id": productID,
				"status":     string(snap.Product.Status),
			})
			return nil
		}

		leading, ok := pricing.LeadingBid(snap.Bids)
		if !ok {
			if err := tx.SetProductStatus(models.ProductExpired, now); err != nil {
				return err
			}
			outcome = OutcomeExpired
			return nil
		}

		for _, b := range snap.Bids {
			status := models.BidLost
			if b.BidID == leading.BidID {
				status = models.BidWon
			}
			if err := tx.SetBidStatus(b.BidID, status, now); err != nil {
				return err
			}
		}
		if err := tx.SetProductStatus(models.ProductSold, now); err != nil {
			return err
		}

		if _, err := settlement.Settle(tx, snap.Product, leading, now); err != nil {
			if errors.Is(err, biddingerrors.ErrAlreadySettled) {
				return nil
			}
			return err
		}
		outcome = OutcomeSold
		return nil
	})

	switch {
	case err == nil:
		if outcome != OutcomeSkipped {
			utils.Info("auction resolved", map[string]any{"product_id": productID, "outcome": string(outcome)})
		}
		return outcome, nil
	case errors.Is(err, biddingerrors.ErrConcurrencyConflict):
		// someone else holds the product; the next sweep picks it up if still due
		utils.Warn("lifecycle: product busy, deferring", map[string]any{"product_id": productID})
		return OutcomeSkipped, nil
	default:
		return OutcomeSkipped, fmt.Errorf("lifecycle: resolve product %s: %w", productID, err)
	}
}

// Run sweeps every interval until ctx is cancelled
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	utils.Info("lifecycle sweeper started", map[string]any{"interval": interval.String(), "workers": c.workers})
	for {
		select {
		case <-ctx.Done():
			utils.Info("lifecycle sweeper stopped", nil)
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx, c.now()); err != nil {
				utils.Error("lifecycle sweep failed", map[string]any{"error": err.Error()})
			}
		}
	}
}
