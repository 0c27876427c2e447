package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/lifecycle"
	"auction-engine/internal/models"
	"auction-engine/internal/pricing"
	"auction-engine/internal/repository"
	"auction-engine/utils"

	"github.com/shopspring/decimal"
)

// DefaultMaxBidAttempts bounds how often a bid is re-validated after losing a race
const DefaultMaxBidAttempts = 3

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo        repository.AuctionDB
	lifecycle   *lifecycle.Controller
	maxAttempts int
	workers     int
	now         func() time.Time
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithMaxBidAttempts sets the number of admission attempts made on concurrency conflicts
func WithMaxBidAttempts(n int) Option {
	return func(s *BiddingService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithSweepWorkers sets how many products a lifecycle sweep resolves in parallel
func WithSweepWorkers(n int) Option {
	return func(s *BiddingService) {
		s.workers = n
	}
}

// WithClock replaces the clock used to stamp created users and products
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) {
		s.now = now
	}
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:        repo,
		maxAttempts: DefaultMaxBidAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lifecycle = lifecycle.NewController(repo, s.workers)
	return s
}

// Lifecycle returns the controller that resolves ended auctions
func (s *BiddingService) Lifecycle() *lifecycle.Controller {
	return s.lifecycle
}

// PlaceBid validates and atomically records a bid on a product.
// A bid that loses a race against a concurrent commit is re-validated against
// fresh state up to maxAttempts times before ErrConcurrencyConflict is returned.
func (s *BiddingService) PlaceBid(ctx context.Context, productID, bidderID string, amount decimal.Decimal, now time.Time) (models.Bid, error) {
	if err := validateBidInput(productID, bidderID, amount); err != nil {
		return models.Bid{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		bid, err := s.admit(ctx, productID, bidderID, amount, now)
		if err == nil {
			utils.Info("bid admitted", map[string]any{
				"bid_id":     bid.BidID,
				"product_id": productID,
				"bidder_id":  bidderID,
				"amount":     bid.Amount.StringFixed(models.MoneyPrecision),
				"attempt":    attempt,
			})
			return bid, nil
		}
		if !errors.Is(err, biddingerrors.ErrConcurrencyConflict) {
			return models.Bid{}, err
		}

		lastErr = err
		utils.Warn("bid admission conflicted, retrying", map[string]any{
			"product_id": productID,
			"bidder_id":  bidderID,
			"attempt":    attempt,
		})
		if ctx.Err() != nil {
			break
		}
	}

	return models.Bid{}, fmt.Errorf("service: bid on product %s not admitted after %d attempts: %w", productID, s.maxAttempts, lastErr)
}

// admit runs one admission attempt: precheck on a snapshot, then re-check and insert under the product lock
func (s *BiddingService) admit(ctx context.Context, productID, bidderID string, amount decimal.Decimal, now time.Time) (models.Bid, error) {
	snap, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to load product %s: %w", productID, err)
	}
	if err := checkAdmissible(snap, amount, now); err != nil {
		return models.Bid{}, err
	}
	if _, err := s.repo.GetUser(ctx, bidderID); err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to load bidder %s: %w", bidderID, err)
	}

	bid := models.Bid{
		BidID:     utils.GenerateID(),
		ProductID: productID,
		BidderID:  bidderID,
		Amount:    amount,
		Status:    models.BidActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.repo.WithProduct(ctx, productID, func(tx repository.ProductTx) error {
		if err := checkAdmissible(tx.Snapshot(), amount, now); err != nil {
			return err
		}
		return tx.InsertBid(bid)
	})
	if err != nil {
		if errors.Is(err, biddingerrors.ErrReferentialIntegrity) {
			return models.Bid{}, fmt.Errorf("service: bidder %s: %w", bidderID, biddingerrors.ErrUserNotFound)
		}
		return models.Bid{}, fmt.Errorf("service: failed to record bid for product %s by user %s: %w", productID, bidderID, err)
	}

	return bid, nil
}

// validateBidInput checks the shape of a bid before any store access
func validateBidInput(productID, bidderID string, amount decimal.Decimal) error {
	if productID == "" || bidderID == "" {
		return fmt.Errorf("service: %w - missing productID or bidderID", biddingerrors.ErrInvalidBid)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	if !models.InMoneyRange(amount) {
		return fmt.Errorf("service: %w - amount exceeds %s or its precision", biddingerrors.ErrInvalidBid, models.MaxMoney.StringFixed(models.MoneyPrecision))
	}
	if !models.IsValidMoney(amount) {
		return fmt.Errorf("service: %w - amount %s has more than %d decimal places", biddingerrors.ErrInvalidBid, amount, models.MoneyPrecision)
	}
	return nil
}

// checkAdmissible applies the auction rules to a product snapshot
func checkAdmissible(snap models.ProductSnapshot, amount decimal.Decimal, now time.Time) error {
	if !snap.Product.IsOpen(now) {
		return fmt.Errorf("service: %w - product %s is %s and closes at %s",
			biddingerrors.ErrAuctionEnded, snap.Product.ProductID, snap.Product.Status, snap.Product.EndTime.Format(time.RFC3339))
	}
	current := pricing.CurrentPrice(snap.Product, snap.Bids)
	if amount.LessThanOrEqual(current) {
		return fmt.Errorf("service: %w - current price is %s", biddingerrors.ErrBidTooLow, current.StringFixed(models.MoneyPrecision))
	}
	return nil
}

// GetBidsForProduct returns all bids for a product, highest first
func (s *BiddingService) GetBidsForProduct(ctx context.Context, productID string) ([]models.Bid, error) {
	if productID == "" {
		return nil, fmt.Errorf("service: %w - empty product ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for product %s: %w", productID, err)
	}

	ranked := pricing.RankBids(bids)
	if ranked == nil {
		ranked = []models.Bid{}
	}
	return ranked, nil
}

// GetLeadingBid returns the bid that currently wins the product
func (s *BiddingService) GetLeadingBid(ctx context.Context, productID string) (models.Bid, error) {
	if productID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty product ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByProduct(ctx, productID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get leading bid for product %s: %w", productID, err)
	}

	leading, ok := pricing.LeadingBid(bids)
	if !ok {
		return models.Bid{}, fmt.Errorf("service: product %s: %w", productID, biddingerrors.ErrNoBids)
	}
	return leading, nil
}

// GetProductsByBidder returns all products a user has placed bids on
func (s *BiddingService) GetProductsByBidder(ctx context.Context, userID string) ([]models.Product, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}

	products, err := s.repo.GetProductsByBidder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get products for user %s: %w", userID, err)
	}

	return products, nil
}

// RunLifecycleSweep resolves every auction that has ended by now
func (s *BiddingService) RunLifecycleSweep(ctx context.Context, now time.Time) (lifecycle.SweepResult, error) {
	result, err := s.lifecycle.Sweep(ctx, now)
	if err != nil {
		return result, fmt.Errorf("service: lifecycle sweep: %w", err)
	}
	return result, nil
}
